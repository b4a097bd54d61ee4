package stream

import (
	"context"
	"net/http"

	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/source"
)

// Tracker is notified as sessions are created and once they end.
type Tracker interface {
	Track(*Session)
	Untrack(*Session)
}

// Handler serves one route, creating an independent session for
// every request it receives.
type Handler struct {
	Source  source.FrameSource
	Chain   *filter.Chain
	Encoder encoder.Encoder
	Options Options
	Tracker Tracker
	// Context, when set, ends every session it parents once done.
	Context context.Context
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := h.Options
	opts.RemoteAddr = r.RemoteAddr
	if len(opts.Boundary) == 0 {
		opts.Boundary = DefaultBoundary
	}

	header := w.Header()
	header.Set("Content-Type", ContentType(opts.Boundary))
	header.Set("Cache-Control", "no-cache, private")
	header.Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if h.Context != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(h.Context, cancel)
		defer stop()
	}

	session := NewSession(h.Source, h.Chain, h.Encoder, NewTransport(w), opts)
	if h.Tracker != nil {
		h.Tracker.Track(session)
		defer h.Tracker.Untrack(session)
	}

	if err := session.Run(ctx); err != nil {
		log.Debug("Stream session [%s] ended: %v", session.ID(), err)
	}
}
