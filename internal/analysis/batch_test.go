package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/signal-insights/backend/internal/llm"
	"github.com/signal-insights/backend/pkg/config"
)

type stubCompleter struct {
	mu      sync.Mutex
	calls   []llm.CompletionRequest
	respond func(req llm.CompletionRequest) (string, error)
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	content, err := s.respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

func (s *stubCompleter) callsFor(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Task == task {
			n++
		}
	}
	return n
}

// echoTask renders rows as <n> and decodes by looking for them in the echoed prompt.
func echoTask(omit int) BatchTask[int, string] {
	return BatchTask[int, string]{
		Name:        "echo",
		Instruction: func(batch []int) string { return fmt.Sprintf("%d rows", len(batch)) },
		Render:      func(row int, _ int) string { return fmt.Sprintf("<%d>", row) },
		Decode: func(content string, batch []int) (BatchReply[string], error) {
			if strings.Contains(content, "garbage") {
				return BatchReply[string]{}, llm.ErrNoJSON
			}
			items := make(map[int]string)
			for i, row := range batch {
				if row == omit {
					continue
				}
				if strings.Contains(content, fmt.Sprintf("<%d>", row)) {
					items[i] = fmt.Sprintf("v%d", row)
				}
			}
			return BatchReply[string]{Items: items, Summary: "batch ok"}, nil
		},
		Fallback: func(int) string { return "fallback" },
		Config:   config.TaskConfig{BatchSize: 3},
	}
}

func TestRunBatches(t *testing.T) {
	ctx := context.Background()
	rows := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	t.Run("keeps input order under concurrency", func(t *testing.T) {
		stub := &stubCompleter{respond: func(req llm.CompletionRequest) (string, error) {
			return req.UserPrompt, nil
		}}

		run := RunBatches(ctx, stub, 4, echoTask(-1), rows)

		if len(run.Results) != len(rows) {
			t.Fatalf("got %d results, want %d", len(run.Results), len(rows))
		}
		for i, r := range run.Results {
			if want := fmt.Sprintf("v%d", i); r.Value != want || r.Outcome != OutcomeModel {
				t.Errorf("result[%d] = %+v, want %s from model", i, r, want)
			}
		}
		if got := stub.callsFor("echo"); got != 4 {
			t.Errorf("calls = %d, want 4", got)
		}
		if run.Fallbacks != 0 {
			t.Errorf("fallbacks = %d, want 0", run.Fallbacks)
		}
		if len(run.Summaries) != 4 {
			t.Errorf("summaries = %d, want 4", len(run.Summaries))
		}
	})

	t.Run("omitted row falls back", func(t *testing.T) {
		stub := &stubCompleter{respond: func(req llm.CompletionRequest) (string, error) {
			return req.UserPrompt, nil
		}}

		run := RunBatches(ctx, stub, 2, echoTask(5), rows)

		if r := run.Results[5]; r.Value != "fallback" || r.Outcome != OutcomeFallback {
			t.Errorf("result[5] = %+v, want fallback", r)
		}
		if r := run.Results[4]; r.Outcome != OutcomeModel {
			t.Errorf("result[4] = %+v, want model", r)
		}
		if run.Fallbacks != 1 {
			t.Errorf("fallbacks = %d, want 1", run.Fallbacks)
		}
	})

	t.Run("failed call falls back for whole batch", func(t *testing.T) {
		stub := &stubCompleter{respond: func(req llm.CompletionRequest) (string, error) {
			if strings.Contains(req.UserPrompt, "<7>") {
				return "", errors.New("upstream unavailable")
			}
			return req.UserPrompt, nil
		}}

		run := RunBatches(ctx, stub, 3, echoTask(-1), rows)

		for i, r := range run.Results {
			inFailedBatch := i >= 6 && i <= 8
			if inFailedBatch && r.Outcome != OutcomeFallback {
				t.Errorf("result[%d] = %+v, want fallback", i, r)
			}
			if !inFailedBatch && r.Outcome != OutcomeModel {
				t.Errorf("result[%d] = %+v, want model", i, r)
			}
		}
		if run.Fallbacks != 3 {
			t.Errorf("fallbacks = %d, want 3", run.Fallbacks)
		}
		if len(run.Summaries) != 3 {
			t.Errorf("summaries = %d, want 3", len(run.Summaries))
		}
	})

	t.Run("undecodable reply falls back", func(t *testing.T) {
		stub := &stubCompleter{respond: func(llm.CompletionRequest) (string, error) {
			return "garbage", nil
		}}

		run := RunBatches(ctx, stub, 1, echoTask(-1), rows)

		if run.Fallbacks != len(rows) {
			t.Errorf("fallbacks = %d, want %d", run.Fallbacks, len(rows))
		}
		if len(run.Summaries) != 0 {
			t.Errorf("summaries = %v, want none", run.Summaries)
		}
	})

	t.Run("requests json mode", func(t *testing.T) {
		stub := &stubCompleter{respond: func(req llm.CompletionRequest) (string, error) {
			return req.UserPrompt, nil
		}}

		RunBatches(ctx, stub, 1, echoTask(-1), rows[:2])

		if len(stub.calls) != 1 || !stub.calls[0].JSONMode {
			t.Errorf("calls = %+v, want one JSON-mode call", stub.calls)
		}
	})

	t.Run("no rows no calls", func(t *testing.T) {
		stub := &stubCompleter{respond: func(llm.CompletionRequest) (string, error) {
			t.Error("unexpected call")
			return "", nil
		}}

		run := RunBatches(ctx, stub, 1, echoTask(-1), nil)
		if len(run.Results) != 0 {
			t.Errorf("results = %v, want empty", run.Results)
		}
	})
}

func TestTrends(t *testing.T) {
	tests := []struct {
		name          string
		first, second float64
		want          Trend
	}{
		{"exactly plus twenty percent", 10, 12, TrendStable},
		{"exactly minus twenty percent", 10, 8, TrendStable},
		{"above plus twenty percent", 10, 13, TrendIncreasing},
		{"below minus twenty percent", 10, 7, TrendDecreasing},
		{"from zero", 0, 1, TrendIncreasing},
		{"both zero", 0, 0, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VolumeTrend(tt.first, tt.second); got != tt.want {
				t.Errorf("VolumeTrend(%v, %v) = %s, want %s", tt.first, tt.second, got, tt.want)
			}
		})
	}

	t.Run("category trend needs two dates", func(t *testing.T) {
		perDate := map[string]map[string]int{"2024-01-01": {"API": 5}}
		if got := CategoryTrend([]string{"2024-01-01"}, perDate, "API"); got != TrendStable {
			t.Errorf("got %s, want stable", got)
		}
	})

	t.Run("category trend splits dates in half", func(t *testing.T) {
		dates := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
		perDate := map[string]map[string]int{
			"2024-01-01": {"API": 1},
			"2024-01-02": {"API": 2},
			"2024-01-03": {"API": 2},
		}
		if got := CategoryTrend(dates, perDate, "API"); got != TrendIncreasing {
			t.Errorf("got %s, want increasing", got)
		}
	})
}
