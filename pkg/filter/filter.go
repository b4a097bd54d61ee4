// Package filter holds the per frame pixel transforms applied before a
// frame is encoded, and the append only chain that sequences them.
package filter

import (
	"sync/atomic"

	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

var ErrFilter = xerror.NewWithKind("filter_error", "frame transform failed")

// Filter transforms a frame. Implementations must not modify the
// input frame, they either return it untouched or return a new frame.
type Filter interface {
	Apply(frame videoframe.Frame, index uint64) (videoframe.Frame, error)
}

// Func adapts a plain function into a Filter.
type Func func(frame videoframe.Frame, index uint64) (videoframe.Frame, error)

func (fn Func) Apply(frame videoframe.Frame, index uint64) (videoframe.Frame, error) {
	return fn(frame, index)
}

// Chain is an ordered, append only sequence of filters. Appends swap
// in a new backing slice so concurrent Apply calls keep working on the
// snapshot they started with and pick up the appended filter on their
// next call.
type Chain struct {
	filters atomic.Pointer[[]Filter]
}

func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	snapshot := append([]Filter(nil), filters...)
	c.filters.Store(&snapshot)
	return c
}

func (c *Chain) snapshot() []Filter {
	if c == nil {
		return nil
	}
	if p := c.filters.Load(); p != nil {
		return *p
	}
	return nil
}

// Append adds filters to the end of the chain.
func (c *Chain) Append(filters ...Filter) {
	for {
		old := c.filters.Load()
		var current []Filter
		if old != nil {
			current = *old
		}
		next := make([]Filter, 0, len(current)+len(filters))
		next = append(next, current...)
		next = append(next, filters...)
		if c.filters.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Snapshot returns a copy of the filters currently in the chain.
func (c *Chain) Snapshot() []Filter {
	return append([]Filter(nil), c.snapshot()...)
}

func (c *Chain) Len() int {
	return len(c.snapshot())
}

// Apply runs frame through every filter in insertion order. A nil
// chain returns the frame unchanged.
func (c *Chain) Apply(frame videoframe.Frame, index uint64) (videoframe.Frame, error) {
	out := frame
	for i, f := range c.snapshot() {
		next, err := f.Apply(out, index)
		if err != nil {
			return videoframe.Frame{}, xerror.Errorf("%w: stage %d: %v", ErrFilter, i, err)
		}
		out = next
	}
	return out, nil
}
