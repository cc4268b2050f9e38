package meter

import (
	"sync"
	"time"
)

const DefaultMaxSamples = 60

// FPSCounter reports the moving average rate over the last N inter-update
// intervals, whatever wall-clock span those intervals cover.
type FPSCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	last    time.Time
	samples []time.Duration // ring buffer
	next    int
	count   int
	sum     time.Duration
}

func NewFPSCounter(maxSamples int) *FPSCounter {
	return newFPSCounter(maxSamples, time.Now)
}

func newFPSCounter(maxSamples int, now func() time.Time) *FPSCounter {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &FPSCounter{
		now:     now,
		last:    now(),
		samples: make([]time.Duration, maxSamples),
	}
}

// Update records the time elapsed since the previous Update (or construction).
func (c *FPSCounter) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	d := now.Sub(c.last)
	c.last = now

	if c.count == len(c.samples) {
		c.sum -= c.samples[c.next]
	} else {
		c.count++
	}
	c.samples[c.next] = d
	c.sum += d
	c.next = (c.next + 1) % len(c.samples)
}

func (c *FPSCounter) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 || c.sum <= 0 {
		return 0
	}
	return float64(c.count) / c.sum.Seconds()
}

// Len returns the number of samples currently held.
func (c *FPSCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
