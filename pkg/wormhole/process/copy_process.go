package process

import (
	"context"
	"fmt"
	"time"

	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/pacing"
	"github.com/tauraamui/wormhole/pkg/source"
)

// PollInterval is how often a copy checks its parent for a new frame.
var PollInterval = 5 * time.Millisecond

// CopyOptions describes a derived feed. A hard copy resizes and caps
// its own rate, a soft copy only runs the filter chain and follows
// the parent's pace.
type CopyOptions struct {
	Hard     bool
	Width    int
	Height   int
	// Scale resizes relative to the parent when no fixed size is given.
	Scale    float64
	MaxFPS   float64
	PrintFPS bool
	Chain    *filter.Chain
}

func CopyProcess(parent source.FrameSource, child *source.Feed, opts CopyOptions) func(context.Context) []chan interface{} {
	return func(ctx context.Context) []chan interface{} {
		chain := opts.Chain
		maxFPS := 0.0
		if opts.Hard {
			// the nested chain keeps filters appended to opts.Chain later on visible
			chain = filter.NewChain(resizer(opts), opts.Chain)
			maxFPS = opts.MaxFPS
		}
		pacer := pacing.NewController(maxFPS, pacing.Options{
			Name: fmt.Sprintf("feed %s", child.Name()), PrintFPS: opts.PrintFPS,
		})

		stopping := make(chan interface{})
		go func(ctx context.Context, stopping chan interface{}) {
			defer close(stopping)
			var lastSeq uint64
			for {
				if ctx.Err() != nil {
					return
				}
				published, seq := republish(parent, child, chain, lastSeq)
				lastSeq = seq
				if !published {
					if !wait(ctx, PollInterval) {
						return
					}
					continue
				}
				if err := pacer.Next(ctx); err != nil {
					return
				}
			}
		}(ctx, stopping)
		return []chan interface{}{stopping}
	}
}

func resizer(opts CopyOptions) filter.Filter {
	if opts.Width > 0 && opts.Height > 0 {
		return filter.Resize{Width: opts.Width, Height: opts.Height}
	}
	return filter.Scale{Factor: opts.Scale}
}

// republish derives a frame for child when parent has moved past lastSeq.
func republish(parent source.FrameSource, child *source.Feed, chain *filter.Chain, lastSeq uint64) (bool, uint64) {
	frame, ok := parent.Latest()
	if !ok || frame.Seq == lastSeq {
		return false, lastSeq
	}

	out, err := chain.Apply(frame, frame.Seq)
	if err != nil {
		log.Error("Unable to derive frame for feed [%s]: %v", child.Name(), err)
		// skip this parent frame rather than retrying it in a tight loop
		return false, frame.Seq
	}
	child.Publish(out)
	return true, frame.Seq
}
