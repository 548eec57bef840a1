package ingestion

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/internal/storage/sqlite"
	"github.com/signal-insights/backend/pkg/logger"
)

// Store persists a record and bumps its source counter atomically.
type Store interface {
	Insert(ctx context.Context, rec models.Record) error
}

// ValidationError lists the offending fields of a rejected record.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "invalid record: " + strings.Join(parts, ", ")
}

type Processor struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewProcessor(store Store) *Processor {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	return &Processor{
		store:    store,
		validate: v,
		now:      time.Now,
	}
}

// Collect validates rec, defaults its timestamp and stores it.
func (p *Processor) Collect(ctx context.Context, rec models.Record) error {
	if err := p.Validate(rec); err != nil {
		metrics.RecordsIngested.WithLabelValues(string(rec.Source()), "invalid").Inc()
		return err
	}

	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(p.now().UTC())
	}

	if err := p.store.Insert(ctx, rec); err != nil {
		status := "error"
		if errors.Is(err, sqlite.ErrDuplicate) {
			status = "duplicate"
		}
		metrics.RecordsIngested.WithLabelValues(string(rec.Source()), status).Inc()
		return err
	}

	metrics.RecordsIngested.WithLabelValues(string(rec.Source()), "ok").Inc()
	logger.Info("Record collected",
		zap.String("source", string(rec.Source())),
		zap.String("external_id", rec.ExternalID()),
	)
	return nil
}

func (p *Processor) Validate(rec models.Record) error {
	err := p.validate.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate record: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "is required"
		case "gt":
			fields[fe.Field()] = "must be greater than " + fe.Param()
		default:
			fields[fe.Field()] = "failed " + fe.Tag()
		}
	}
	return &ValidationError{Fields: fields}
}

var whitespace = regexp.MustCompile(`\s+`)

// PlainText strips markup from an HTML email body and collapses whitespace.
// Text without markup is returned with whitespace collapsed.
func PlainText(body string) string {
	if !strings.Contains(body, "<") {
		return strings.TrimSpace(whitespace.ReplaceAllString(body, " "))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(whitespace.ReplaceAllString(body, " "))
	}

	doc.Find("script, style, head").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
