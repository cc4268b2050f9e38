package meter

import (
	"sync"
	"time"
)

const DefaultRefreshInterval = 500 * time.Millisecond

// NetSpeedCounter accumulates values between refresh ticks and publishes
// sum/interval once per tick. The published speed holds until the next tick.
// Units follow whatever the caller feeds to Update (the session feeds bits).
type NetSpeedCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	refresh time.Duration
	tick    time.Time
	sum     float64
	speed   float64
}

func NewNetSpeedCounter(refresh time.Duration) *NetSpeedCounter {
	return newNetSpeedCounter(refresh, time.Now)
}

func newNetSpeedCounter(refresh time.Duration, now func() time.Time) *NetSpeedCounter {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &NetSpeedCounter{
		now:     now,
		refresh: refresh,
		tick:    now(),
	}
}

func (c *NetSpeedCounter) Update(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sum += value
	now := c.now()
	if now.Sub(c.tick) > c.refresh {
		c.speed = c.sum / c.refresh.Seconds()
		c.tick = now
		c.sum = 0
	}
}

func (c *NetSpeedCounter) Bps() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *NetSpeedCounter) Kbps() float64 { return c.Bps() / 1024 }

func (c *NetSpeedCounter) Kbit() float64 { return c.Bps() / 1024 / 8 }

func (c *NetSpeedCounter) Mbps() float64 { return c.Bps() / 1024 / 1024 }

func (c *NetSpeedCounter) Mbit() float64 { return c.Bps() / 1024 / 1024 / 8 }
