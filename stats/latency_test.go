package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencySketchSummaries(t *testing.T) {
	ls := NewLatencySketch()
	for i := 1; i <= 100; i++ {
		ls.Observe("/svc/A", time.Duration(i)*time.Millisecond)
	}
	ls.Observe("/svc/B", 5*time.Millisecond)

	summaries := ls.Summaries()
	require.Len(t, summaries, 2)

	byMethod := make(map[string]LatencySummary, len(summaries))
	for _, s := range summaries {
		byMethod[s.Method] = s
	}

	a := byMethod["/svc/A"]
	assert.Equal(t, 100, a.Count)
	assert.Equal(t, 100*time.Millisecond, a.Max)
	assert.InDelta(t, float64(50*time.Millisecond), float64(a.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(95*time.Millisecond), float64(a.P95), float64(time.Millisecond))
	assert.Equal(t, 1, byMethod["/svc/B"].Count)

	assert.Empty(t, ls.Summaries(), "Summaries drains the sketch")
}

func TestLatencyHandlerObservesEnds(t *testing.T) {
	h := NewLatencyHandler()
	ctx := h.TagRPC(context.Background(), &RPCTagInfo{FullMethod: "/svc/M"})

	begin := time.Now()
	h.HandleRPC(ctx, &Begin{BeginTime: begin})
	h.HandleRPC(ctx, &End{BeginTime: begin, EndTime: begin.Add(7 * time.Millisecond)})

	summaries := h.Sketch.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "/svc/M", summaries[0].Method)
	assert.Equal(t, 1, summaries[0].Count)
	assert.Equal(t, 7*time.Millisecond, summaries[0].Max)
}

func TestLatencyHandlerUntaggedContext(t *testing.T) {
	h := NewLatencyHandler()
	h.HandleRPC(context.Background(), &End{EndTime: time.Now()})

	summaries := h.Sketch.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "unknown", summaries[0].Method)
}
