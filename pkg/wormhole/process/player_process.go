package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/pacing"
	"github.com/tauraamui/wormhole/pkg/source"
	"github.com/tauraamui/wormhole/pkg/video/videobackend"
)

// ReadRetryDelay is how long a player waits after a failed read before
// trying the connection again.
var ReadRetryDelay = 250 * time.Millisecond

type PlayerOptions struct {
	// FPS caps the read rate, zero falls back to the connection's own rate.
	FPS      float64
	Loop     bool
	PrintFPS bool
}

// PlayerProcess reads frames off conn and publishes them to feed at
// the source's frame rate, rewinding finite sources when looping.
func PlayerProcess(conn videobackend.Connection, feed *source.Feed, opts PlayerOptions) func(context.Context) []chan interface{} {
	return func(ctx context.Context) []chan interface{} {
		fps := opts.FPS
		if fps <= 0 {
			fps = conn.FPS()
		}
		pacer := pacing.NewController(fps, pacing.Options{
			Name: fmt.Sprintf("source %s", feed.Name()), PrintFPS: opts.PrintFPS,
		})

		stopping := make(chan interface{})
		go func(ctx context.Context, stopping chan interface{}) {
			defer close(stopping)
			for {
				if ctx.Err() != nil {
					return
				}
				if !play(ctx, conn, feed, opts.Loop) {
					return
				}
				if err := pacer.Next(ctx); err != nil {
					return
				}
			}
		}(ctx, stopping)
		return []chan interface{}{stopping}
	}
}

func play(ctx context.Context, conn videobackend.Connection, feed *source.Feed, loop bool) bool {
	frame, err := conn.Read()
	if err == nil {
		feed.Publish(frame)
		return true
	}

	if errors.Is(err, videobackend.ErrEndOfStream) {
		if !loop {
			log.Info("Source [%s] reached end of stream", feed.Name())
			return false
		}
		log.Debug("Rewinding source [%s]", feed.Name())
		if err := conn.Rewind(); err != nil {
			log.Error("Unable to rewind source [%s]: %v", feed.Name(), err)
			return false
		}
		return true
	}

	log.Error("Unable to read frame from source [%s]: %v", feed.Name(), err)
	return wait(ctx, ReadRetryDelay)
}
