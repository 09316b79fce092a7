package stats

import (
	"context"
	"sync"
	"time"

	mstats "github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// LatencySummary holds the percentile view of one method's latencies.
type LatencySummary struct {
	Method string
	Count  int
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

// LatencySketch accumulates per-method RPC latencies and summarizes them
// as percentiles. Safe for concurrent use.
type LatencySketch struct {
	mu      sync.Mutex
	samples map[string][]float64
}

// NewLatencySketch returns an empty sketch.
func NewLatencySketch() *LatencySketch {
	return &LatencySketch{samples: make(map[string][]float64)}
}

// Observe records one call's latency for method.
func (ls *LatencySketch) Observe(method string, d time.Duration) {
	ls.mu.Lock()
	ls.samples[method] = append(ls.samples[method], float64(d))
	ls.mu.Unlock()
}

// Summaries computes percentile summaries for every observed method and
// resets the sketch.
func (ls *LatencySketch) Summaries() []LatencySummary {
	ls.mu.Lock()
	samples := ls.samples
	ls.samples = make(map[string][]float64)
	ls.mu.Unlock()

	out := make([]LatencySummary, 0, len(samples))
	for method, data := range samples {
		mean, _ := mstats.Mean(data)
		p50, _ := mstats.Median(data)
		p95, _ := mstats.Percentile(data, 95)
		p99, _ := mstats.Percentile(data, 99)
		max, _ := mstats.Max(data)
		out = append(out, LatencySummary{
			Method: method,
			Count:  len(data),
			Mean:   time.Duration(mean),
			P50:    time.Duration(p50),
			P95:    time.Duration(p95),
			P99:    time.Duration(p99),
			Max:    time.Duration(max),
		})
	}
	return out
}

type methodKey struct{}

// LatencyHandler is a stats.Handler that feeds a LatencySketch from End
// events and can periodically log the summaries.
type LatencyHandler struct {
	Sketch *LatencySketch
}

// NewLatencyHandler returns a handler backed by a fresh sketch.
func NewLatencyHandler() *LatencyHandler {
	return &LatencyHandler{Sketch: NewLatencySketch()}
}

func (h *LatencyHandler) TagRPC(ctx context.Context, info *RPCTagInfo) context.Context {
	return context.WithValue(ctx, methodKey{}, info.FullMethod)
}

func (h *LatencyHandler) HandleRPC(ctx context.Context, s RPCStats) {
	end, ok := s.(*End)
	if !ok {
		return
	}
	method, _ := ctx.Value(methodKey{}).(string)
	if method == "" {
		method = "unknown"
	}
	h.Sketch.Observe(method, end.EndTime.Sub(end.BeginTime))
}

// Report logs the current summaries and resets the sketch.
func (h *LatencyHandler) Report() {
	for _, s := range h.Sketch.Summaries() {
		zap.L().Info("rpc latency",
			zap.String("method", s.Method),
			zap.Int("count", s.Count),
			zap.Duration("mean", s.Mean),
			zap.Duration("p50", s.P50),
			zap.Duration("p95", s.P95),
			zap.Duration("p99", s.P99),
			zap.Duration("max", s.Max))
	}
}
