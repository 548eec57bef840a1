package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signal-insights/backend/pkg/config"
	"github.com/signal-insights/backend/pkg/utils"
)

const (
	FallbackCategory = "Uncategorized"
	fallbackAdvice   = "Focus on addressing the highest-volume categories first. Consider user feedback patterns and allocate resources accordingly."
	dayLayout        = "2006-01-02"
)

type Categorization struct {
	Category   string
	Confidence float64
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Category struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
	Trend      Trend  `json:"trend"`
	Examples   []any  `json:"examples"`
}

// TimelinePoint carries "date", "total" and one count per category name.
type TimelinePoint map[string]any

type CategoryReport struct {
	DateRange     DateRange       `json:"dateRange"`
	Categories    []Category      `json:"categories"`
	Timeline      []TimelinePoint `json:"timeline"`
	Advice        string          `json:"advice"`
	PriorityAreas []string        `json:"priorityAreas"`
}

// flexID accepts identifiers the model echoes back as either strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type categoryItem struct {
	ID         flexID  `json:"id" validate:"required"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type categoryReply struct {
	Categories []string       `json:"categories"`
	Items      []categoryItem `json:"items" validate:"dive"`
}

type adviceReply struct {
	PriorityAreas []string `json:"priorityAreas"`
	Advice        string   `json:"advice" validate:"required"`
}

// categorizeJob adapts a row type to the shared category analysis.
type categorizeJob[R any] struct {
	task        string
	noun        string
	subject     string
	examples    string
	id          func(R) string
	text        func(R) string
	createdAt   func(R) time.Time
	example     func(R) any
	emptyAdvice string
	taskCfg     config.TaskConfig
}

func categorize[R any](ctx context.Context, s *Service, job categorizeJob[R], rows []R) CategoryReport {
	if len(rows) == 0 {
		now := s.now().UTC()
		return CategoryReport{
			DateRange:     DateRange{Start: now.AddDate(0, 0, -365), End: now},
			Categories:    []Category{},
			Timeline:      []TimelinePoint{},
			Advice:        job.emptyAdvice,
			PriorityAreas: []string{},
		}
	}

	task := BatchTask[R, Categorization]{
		Name:   job.task + ".categorize",
		System: "You are a product analytics assistant. You must respond with valid JSON only, no markdown, no explanation.",
		Instruction: func(batch []R) string {
			return fmt.Sprintf(`Analyze these %d %s and discover what %s they relate to.

IMPORTANT:
1. Let the data guide you - discover 4-8 natural categories based on actual content
2. Categories should be %s
3. Be specific and actionable - avoid vague categories like "General" or "Other"
4. Assign each item to exactly one category, using the id shown in brackets

Return a valid JSON object with this structure:
{
  "categories": ["Category1", "Category2"],
  "items": [{"id": "id_1", "category": "Category1", "confidence": 0.9}]
}

Items to analyze:`, len(batch), job.noun, job.subject, job.examples)
		},
		Render: func(row R, _ int) string {
			return "[" + job.id(row) + "] " + job.text(row)
		},
		Decode: func(content string, batch []R) (BatchReply[Categorization], error) {
			var reply categoryReply
			if err := decodeStrict(s.validate, content, &reply); err != nil {
				return BatchReply[Categorization]{}, err
			}

			positions := make(map[string]int, len(batch))
			for i, row := range batch {
				positions[job.id(row)] = i
			}

			items := make(map[int]Categorization, len(reply.Items))
			for _, it := range reply.Items {
				pos, ok := positions[string(it.ID)]
				if !ok {
					continue
				}
				if _, seen := items[pos]; seen {
					continue
				}
				cat := strings.TrimSpace(it.Category)
				if cat == "" {
					cat = FallbackCategory
				}
				items[pos] = Categorization{Category: cat, Confidence: it.Confidence}
			}
			return BatchReply[Categorization]{Items: items}, nil
		},
		Fallback: func(R) Categorization {
			return Categorization{Category: FallbackCategory, Confidence: 0}
		},
		Config: job.taskCfg,
	}

	run := RunBatches(ctx, s.llm, s.cfg.Concurrency, task, rows)

	counts := make(map[string]int)
	examples := make(map[string][]any)
	perDate := make(map[string]map[string]int)

	for i, row := range rows {
		cat := run.Results[i].Value.Category
		counts[cat]++
		if len(examples[cat]) < 3 {
			examples[cat] = append(examples[cat], job.example(row))
		}

		date := job.createdAt(row).UTC().Format(dayLayout)
		if perDate[date] == nil {
			perDate[date] = make(map[string]int)
		}
		perDate[date][cat]++
	}

	dates := make([]string, 0, len(perDate))
	for d := range perDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	total := len(rows)
	categories := make([]Category, 0, len(counts))
	for name, count := range counts {
		categories = append(categories, Category{
			Name:       name,
			Count:      count,
			Percentage: int(math.Round(float64(count) / float64(total) * 100)),
			Trend:      CategoryTrend(dates, perDate, name),
			Examples:   examples[name],
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Name < categories[j].Name
	})

	timeline := make([]TimelinePoint, 0, len(dates))
	for _, d := range dates {
		point := TimelinePoint{"date": d}
		sum := 0
		for _, c := range categories {
			n := perDate[d][c.Name]
			point[c.Name] = n
			sum += n
		}
		point["total"] = sum
		timeline = append(timeline, point)
	}

	start, _ := time.Parse(dayLayout, dates[0])
	end, _ := time.Parse(dayLayout, dates[len(dates)-1])

	advice, priorities := s.advise(ctx, job.task, job.noun, total, categories)

	return CategoryReport{
		DateRange:     DateRange{Start: start, End: end},
		Categories:    categories,
		Timeline:      timeline,
		Advice:        advice,
		PriorityAreas: priorities,
	}
}

// advise asks for recommendations over the aggregate; on any failure it
// returns the three largest categories with canned advice.
func (s *Service) advise(ctx context.Context, task, noun string, total int, categories []Category) (string, []string) {
	var counts, trends strings.Builder
	for i, c := range categories {
		fmt.Fprintf(&counts, "%d. %s: %d %s (%d%%)\n", i+1, c.Name, c.Count, noun, c.Percentage)
		if i > 0 {
			trends.WriteString(", ")
		}
		trends.WriteString(c.Name + ": " + string(c.Trend))
	}

	prompt := `You are a product management advisor. Analyze this data and provide actionable recommendations.

## Data
Total: ` + strconv.Itoa(total) + "\n" + counts.String() + `
Trends: ` + trends.String() + `

Based on this data, provide:
1. Top 3 product areas needing the most urgent attention
2. 3-5 specific, actionable recommendations for improvements
3. Quick wins vs. long-term investments

Keep your response concise and actionable. Format as JSON:
{
  "priorityAreas": ["Area 1", "Area 2", "Area 3"],
  "advice": "Your advice paragraph here..."
}`

	var reply adviceReply
	err := callJSON(ctx, s.llm, s.validate, task+".advice",
		"You are a product management advisor. Respond with valid JSON only.",
		utils.Truncate(prompt, s.cfg.Advice.MaxChars), s.cfg.Advice.MaxTokens, &reply)
	if err == nil {
		if reply.PriorityAreas == nil {
			reply.PriorityAreas = []string{}
		}
		return reply.Advice, reply.PriorityAreas
	}

	logFallback(task+".advice", err)

	top := make([]string, 0, 3)
	for i := 0; i < len(categories) && i < 3; i++ {
		top = append(top, categories[i].Name)
	}
	return fallbackAdvice, top
}
