// Package source exposes the most recently produced frame of a video
// feed to any number of concurrent readers.
package source

import (
	"sync/atomic"

	"github.com/tauraamui/wormhole/pkg/video/videoframe"
)

// FrameSource hands out the latest published frame without blocking.
// The returned frame is shared and must be treated as read only.
type FrameSource interface {
	Latest() (videoframe.Frame, bool)
}

type Stats struct {
	Published uint64
	Seq       uint64
}

// Feed is a FrameSource whose producer publishes whole frames. Each
// publish swaps in a new immutable snapshot so readers never observe a
// partially written frame.
type Feed struct {
	name      string
	seq       atomic.Uint64
	published atomic.Uint64
	latest    atomic.Pointer[videoframe.Frame]
}

func NewFeed(name string) *Feed {
	return &Feed{name: name}
}

func (f *Feed) Name() string {
	return f.name
}

// Publish stores frame as the latest snapshot and stamps it with the
// next sequence number. The caller gives up ownership of frame.Pix.
func (f *Feed) Publish(frame videoframe.Frame) uint64 {
	frame.Seq = f.seq.Add(1)
	f.latest.Store(&frame)
	f.published.Add(1)
	return frame.Seq
}

func (f *Feed) Latest() (videoframe.Frame, bool) {
	p := f.latest.Load()
	if p == nil {
		return videoframe.Frame{}, false
	}
	return *p, true
}

func (f *Feed) Stats() Stats {
	return Stats{Published: f.published.Load(), Seq: f.seq.Load()}
}
