package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signal-insights/backend/internal/llm"
	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/pkg/config"
	"github.com/signal-insights/backend/pkg/logger"
	"github.com/signal-insights/backend/pkg/utils"
)

// Completer is the inference service as seen by analysis tasks.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Outcome tags where a per-row result came from.
type Outcome string

const (
	OutcomeModel    Outcome = "model"
	OutcomeFallback Outcome = "fallback"
)

type Result[T any] struct {
	Value   T
	Outcome Outcome
}

// BatchReply is a decoded model response for one batch. Items are keyed by
// row position within the batch.
type BatchReply[T any] struct {
	Items   map[int]T
	Summary string
}

// BatchTask describes one batched inference job over rows of type R
// producing a result of type T per row.
type BatchTask[R, T any] struct {
	Name   string
	System string
	// Instruction precedes the rendered rows and describes the JSON schema.
	Instruction func(batch []R) string
	Render      func(row R, pos int) string
	Decode      func(content string, batch []R) (BatchReply[T], error)
	Fallback    func(row R) T
	Config      config.TaskConfig
}

// BatchRun holds one result per input row, in input order.
type BatchRun[T any] struct {
	Results []Result[T]
	// Summaries holds the batch-level summary of each batch that decoded.
	Summaries []string
	Fallbacks int
}

// RunBatches partitions rows, calls the model once per batch and decodes each
// reply. Failures never escape: a failed batch and any row the model omitted
// receive the task's fallback.
func RunBatches[R, T any](ctx context.Context, completer Completer, concurrency int, task BatchTask[R, T], rows []R) BatchRun[T] {
	size := task.Config.BatchSize
	if size <= 0 {
		size = len(rows)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]Result[T], len(rows))
	numBatches := 0
	if len(rows) > 0 {
		numBatches = (len(rows) + size - 1) / size
	}
	summaries := make([]string, numBatches)

	var g errgroup.Group
	g.SetLimit(concurrency)

	for b := 0; b < numBatches; b++ {
		start := b * size
		end := min(start+size, len(rows))
		batchIdx := b

		g.Go(func() error {
			batch := rows[start:end]
			reply, err := runBatch(ctx, completer, task, batch)
			if err != nil {
				logger.Warn("Batch fell back to default classification",
					zap.String("task", task.Name),
					zap.Int("batch", batchIdx),
					zap.Int("rows", len(batch)),
					zap.Error(err),
				)
				metrics.BatchFallbacks.WithLabelValues(task.Name, reasonOf(err)).Add(float64(len(batch)))
				for i, row := range batch {
					results[start+i] = Result[T]{Value: task.Fallback(row), Outcome: OutcomeFallback}
				}
				return nil
			}

			summaries[batchIdx] = reply.Summary
			omitted := 0
			for i, row := range batch {
				if v, ok := reply.Items[i]; ok {
					results[start+i] = Result[T]{Value: v, Outcome: OutcomeModel}
					continue
				}
				results[start+i] = Result[T]{Value: task.Fallback(row), Outcome: OutcomeFallback}
				omitted++
			}
			if omitted > 0 {
				metrics.BatchFallbacks.WithLabelValues(task.Name, "omitted").Add(float64(omitted))
			}
			return nil
		})
	}
	_ = g.Wait()

	run := BatchRun[T]{Results: results, Summaries: make([]string, 0, numBatches)}
	for _, s := range summaries {
		if strings.TrimSpace(s) != "" {
			run.Summaries = append(run.Summaries, s)
		}
	}
	for _, r := range results {
		if r.Outcome == OutcomeFallback {
			run.Fallbacks++
		}
	}
	return run
}

func runBatch[R, T any](ctx context.Context, completer Completer, task BatchTask[R, T], batch []R) (BatchReply[T], error) {
	rendered := make([]string, len(batch))
	for i, row := range batch {
		rendered[i] = task.Render(row, i)
	}
	body := utils.Truncate(strings.Join(rendered, "\n---\n"), task.Config.MaxChars)

	prompt := task.Instruction(batch) + "\n\n" + body

	resp, err := completer.Complete(ctx, llm.CompletionRequest{
		Task:         task.Name,
		SystemPrompt: task.System,
		UserPrompt:   prompt,
		MaxTokens:    task.Config.MaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return BatchReply[T]{}, &callError{err: err}
	}

	return task.Decode(resp.Content, batch)
}

type callError struct {
	err error
}

func (e *callError) Error() string { return "inference call failed: " + e.err.Error() }
func (e *callError) Unwrap() error { return e.err }

func reasonOf(err error) string {
	var ce *callError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &ce):
		return "call"
	case errors.As(err, &ve):
		return "schema"
	default:
		return "decode"
	}
}

// normalizer is implemented by replies that canonicalise fields, such as enum
// casing, before validation.
type normalizer interface {
	normalize()
}

// decodeStrict decodes a model reply and validates it against its struct tags.
func decodeStrict(v *validator.Validate, content string, out any) error {
	if err := llm.DecodeJSON(content, out); err != nil {
		return err
	}
	if n, ok := out.(normalizer); ok {
		n.normalize()
	}
	if err := v.Struct(out); err != nil {
		return fmt.Errorf("model reply failed schema validation: %w", err)
	}
	return nil
}

// callJSON issues a single JSON-mode request and decodes the reply into out.
func callJSON(ctx context.Context, completer Completer, v *validator.Validate, task, system, prompt string, maxTokens int, out any) error {
	resp, err := completer.Complete(ctx, llm.CompletionRequest{
		Task:         task,
		SystemPrompt: system,
		UserPrompt:   prompt,
		MaxTokens:    maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return &callError{err: err}
	}
	return decodeStrict(v, resp.Content, out)
}

// logFallback records a single-call task that degraded to its canned reply.
func logFallback(task string, err error) {
	logger.Warn("Inference reply unusable, using fallback",
		zap.String("task", task),
		zap.Error(err),
	)
	metrics.BatchFallbacks.WithLabelValues(task, reasonOf(err)).Inc()
}
