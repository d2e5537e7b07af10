package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/domusnext/eval/internal/adapter/agentclient"
	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/logging"
)

// Result is the outcome of one request.
type Result struct {
	RequestID  int       `json:"requestId"`
	Query      string    `json:"query"`
	Response   string    `json:"response,omitempty"`
	Duration   int64     `json:"duration"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// TestSummary counts requests. Blank queries count toward TotalRequests only.
type TestSummary struct {
	TotalRequests     int       `json:"totalRequests"`
	CompletedRequests int       `json:"completedRequests"`
	ErrorCount        int       `json:"errorCount"`
	SuccessRate       string    `json:"successRate"`
	TestDuration      string    `json:"testDuration"`
	RequestsPerTick   int       `json:"requestsPerTick"`
	StartTime         time.Time `json:"startTime"`
}

// Performance aggregates successful durations in milliseconds.
type Performance struct {
	AverageResponseTime float64 `json:"averageResponseTime"`
	MinResponseTime     int64   `json:"minResponseTime"`
	MaxResponseTime     int64   `json:"maxResponseTime"`
}

// Summary is the report written at the end of a run.
type Summary struct {
	TestSummary TestSummary `json:"testSummary"`
	Performance Performance `json:"performance"`
	Results     []Result    `json:"results"`
}

// Runner fires a Scenario.
type Runner struct {
	scenario   Scenario
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	results  []Result
	total    int
	closed   bool
	finished int
}

// NewRunner creates a runner. A nil client uses http.DefaultClient.
func NewRunner(s Scenario, httpClient *http.Client, logger *zap.Logger) (*Runner, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Runner{
		scenario:   s,
		httpClient: httpClient,
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}, nil
}

// Run fires RequestsPerTick requests on every tick until Duration elapses, then
// waits one more interval plus Grace for stragglers. Responses arriving after
// that are dropped. Cancelling ctx stops the ticker and aborts in-flight requests.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	s := r.scenario
	start := r.now()
	r.logger.Info("load test starting",
		zap.String("target", s.TargetURL),
		zap.Int("requests_per_tick", s.RequestsPerTick),
		zap.Duration("duration", s.Duration),
		zap.Int("queries", len(s.Queries)))

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	ticker := time.NewTicker(s.Interval)
	queryIndex := 0

ticking:
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			break ticking
		case <-ticker.C:
		}
		if time.Duration(tick)*s.Interval >= s.Duration {
			break
		}
		for range s.RequestsPerTick {
			query := s.Queries[queryIndex%len(s.Queries)]
			queryIndex++
			id := r.nextID()
			if strings.TrimSpace(query) == "" {
				continue
			}
			g.Go(func() error {
				r.record(r.execute(reqCtx, id, query))
				return nil
			})
		}
	}
	ticker.Stop()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	if ctx.Err() == nil {
		r.logger.Info("waiting for remaining requests")
		timer := time.NewTimer(s.Interval + s.Grace)
		select {
		case <-done:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	r.mu.Lock()
	r.closed = true
	summary := r.summarize(start)
	r.mu.Unlock()

	cancel()
	<-done

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *Runner) nextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	return r.total
}

func (r *Runner) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.results = append(r.results, res)
	if res.Success {
		r.finished++
		if r.finished%50 == 0 {
			r.logger.Info("load test progress", zap.Int("completed", r.finished))
		}
	} else {
		r.logger.Warn("load test request failed", zap.Int("request_id", res.RequestID), zap.String("error", res.Error))
	}
}

func (r *Runner) execute(ctx context.Context, id int, query string) Result {
	started := r.now()
	res := Result{RequestID: id, Query: query}
	finish := func() Result {
		end := r.now()
		res.Duration = end.Sub(started).Milliseconds()
		res.Timestamp = end.UTC()
		return res
	}

	body, err := json.Marshal(agentclient.Request{
		Params: r.scenario.Params,
		RecentMessages: []domain.UserMessage{{
			Role:    "user",
			Content: domain.NewPartsContent(domain.TextPart{Text: query}),
		}},
	})
	if err != nil {
		res.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return finish()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.scenario.TargetURL, bytes.NewReader(body))
	if err != nil {
		res.Error = fmt.Sprintf("failed to create request: %v", err)
		return finish()
	}
	for k, v := range r.scenario.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TraceIDHeader, fmt.Sprintf("load-test-%d-%d", id, started.UnixMilli()))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		res.Error = err.Error()
		return finish()
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	text, err := io.ReadAll(resp.Body)
	res.Response = string(text)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read response: %v", err)
		return finish()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return finish()
	}
	res.Success = true
	return finish()
}

// summarize must be called with r.mu held.
func (r *Runner) summarize(start time.Time) *Summary {
	results := append([]Result{}, r.results...)
	summary := &Summary{
		TestSummary: TestSummary{
			TotalRequests:   r.total,
			TestDuration:    r.scenario.Duration.String(),
			RequestsPerTick: r.scenario.RequestsPerTick,
			StartTime:       start.UTC(),
		},
		Results: results,
	}

	var sum int64
	minDur, maxDur := int64(math.MaxInt64), int64(0)
	for _, res := range results {
		if !res.Success {
			summary.TestSummary.ErrorCount++
			continue
		}
		summary.TestSummary.CompletedRequests++
		sum += res.Duration
		minDur = min(minDur, res.Duration)
		maxDur = max(maxDur, res.Duration)
	}

	rate := 0.0
	if n := len(results); n > 0 {
		rate = float64(summary.TestSummary.CompletedRequests) / float64(n) * 100
	}
	summary.TestSummary.SuccessRate = fmt.Sprintf("%.2f%%", rate)

	if n := summary.TestSummary.CompletedRequests; n > 0 {
		summary.Performance = Performance{
			AverageResponseTime: float64(sum) / float64(n),
			MinResponseTime:     minDur,
			MaxResponseTime:     maxDur,
		}
	}
	return summary
}

// WriteSummary writes the summary as indented JSON.
func WriteSummary(path string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
