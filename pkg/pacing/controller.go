// Package pacing keeps a producer loop at or below a target frame rate
// and reports the rate it actually achieves.
package pacing

import (
	"context"
	"sync"
	"time"

	"github.com/tauraamui/wormhole/pkg/log"
	"golang.org/x/time/rate"
)

const (
	DefaultWindow        = 2 * time.Second
	DefaultPrintInterval = 5 * time.Second
)

type Stats struct {
	Target float64
	FPS    float64
	Frames uint64
	Resets uint64
}

type Options struct {
	Name          string
	PrintFPS      bool
	PrintInterval time.Duration
	Window        time.Duration
}

// Controller paces calls to Next so their long run average rate stays
// at or below the target. A zero target disables throttling.
type Controller struct {
	mu            sync.Mutex
	name          string
	target        float64
	limiter       *rate.Limiter
	window        time.Duration
	stamps        []time.Time
	frames        uint64
	resets        uint64
	printFPS      bool
	printInterval time.Duration
	lastPrint     time.Time
}

func NewController(targetFPS float64, opts Options) *Controller {
	limit := rate.Inf
	if targetFPS > 0 {
		limit = rate.Limit(targetFPS)
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	printInterval := opts.PrintInterval
	if printInterval <= 0 {
		printInterval = DefaultPrintInterval
	}
	return &Controller{
		name:          opts.Name,
		target:        targetFPS,
		limiter:       rate.NewLimiter(limit, 1),
		window:        window,
		printFPS:      opts.PrintFPS,
		printInterval: printInterval,
		lastPrint:     time.Now(),
	}
}

// Next blocks until the next frame is due, or ctx is done.
func (c *Controller) Next(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	c.record(time.Now())
	return nil
}

func (c *Controller) record(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++
	c.stamps = append(c.stamps, now)
	cutoff := now.Add(-c.window)
	drop := 0
	for drop < len(c.stamps)-1 && c.stamps[drop].Before(cutoff) {
		drop++
	}
	c.stamps = c.stamps[drop:]

	if c.printFPS && now.Sub(c.lastPrint) >= c.printInterval {
		c.lastPrint = now
		log.Info("[%s] achieved %.2f fps (target %.2f)", c.name, c.fpsLocked(), c.target)
	}
}

func (c *Controller) fpsLocked() float64 {
	n := len(c.stamps)
	if n < 2 {
		return 0
	}
	span := c.stamps[n-1].Sub(c.stamps[0])
	if span <= 0 {
		return 0
	}
	return float64(n-1) / span.Seconds()
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Target: c.target, FPS: c.fpsLocked(), Frames: c.frames, Resets: c.resets}
}

// FPS is a convenience accessor for overlays.
func (c *Controller) FPS() float64 {
	return c.Stats().FPS
}

// ResetStats forgets the rolling window, the target rate is kept.
func (c *Controller) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamps = nil
	c.resets++
}
