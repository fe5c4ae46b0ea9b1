package frameloop

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Timing summarizes recent build durations in milliseconds.
type Timing struct {
	Frames int
	MeanMs float64
	P50Ms  float64
	P95Ms  float64
	MaxMs  float64
}

// durationWindow keeps the last size durations.
type durationWindow struct {
	mu      sync.Mutex
	size    int
	samples []time.Duration
	next    int
	total   int
}

func newDurationWindow(size int) *durationWindow {
	return &durationWindow{size: size, samples: make([]time.Duration, 0, size)}
}

func (w *durationWindow) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.total++
	if len(w.samples) < w.size {
		w.samples = append(w.samples, d)
		return
	}
	w.samples[w.next] = d
	w.next = (w.next + 1) % w.size
}

func (w *durationWindow) timing() (Timing, error) {
	w.mu.Lock()
	ms := lo.Map(w.samples, func(d time.Duration, _ int) float64 {
		return float64(d) / float64(time.Millisecond)
	})
	total := w.total
	w.mu.Unlock()

	if len(ms) == 0 {
		return Timing{}, errors.New("no frames built yet")
	}
	data := stats.Float64Data(ms)
	mean, err := data.Mean()
	if err != nil {
		return Timing{}, err
	}
	p50, err := data.Median()
	if err != nil {
		return Timing{}, err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Timing{}, err
	}
	maxMs, err := data.Max()
	if err != nil {
		return Timing{}, err
	}
	return Timing{Frames: total, MeanMs: mean, P50Ms: p50, P95Ms: p95, MaxMs: maxMs}, nil
}
