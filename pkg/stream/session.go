// Package stream drives multipart frame streams, one independent
// session per connected client.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/pacing"
	"github.com/tauraamui/wormhole/pkg/source"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const DefaultBackoff = time.Second

type State int

const (
	Starting State = iota
	Streaming
	Recovering
	Closed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Streaming:
		return "STREAMING"
	case Recovering:
		return "RECOVERING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pacer gates each successful cycle, see pacing.Controller.
type Pacer interface {
	Next(context.Context) error
	ResetStats()
	Stats() pacing.Stats
}

// Observer is told about a session's lifecycle. Calls are made from
// the session's own goroutine and must not block.
type Observer interface {
	SessionOpened(Info)
	FrameSent(info Info, bytes int, encodeTook time.Duration)
	SessionFailed(info Info, kind ErrorKind)
	SessionClosed(Info)
}

type Options struct {
	Route      string
	RemoteAddr string
	Boundary   string
	Quality    int
	Flags      encoder.Flags
	TargetFPS  float64
	PrintFPS   bool
	Backoff    time.Duration
	Pacer      Pacer
	Observer   Observer
}

// Info is a point in time copy of a session's state.
type Info struct {
	ID                  string    `json:"id"`
	Route               string    `json:"route"`
	RemoteAddr          string    `json:"remote_addr"`
	State               State     `json:"state"`
	StartedAt           time.Time `json:"started_at"`
	FramesSent          uint64    `json:"frames_sent"`
	BytesSent           uint64    `json:"bytes_sent"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SuppressedUntil     time.Time `json:"suppressed_until"`
	TargetFPS           float64   `json:"target_fps"`
	FPS                 float64   `json:"fps"`
	CloseReason         string    `json:"close_reason,omitempty"`
}

type Session struct {
	id        string
	src       source.FrameSource
	chain     *filter.Chain
	enc       encoder.Encoder
	transport Transport
	opts      Options
	pacer     Pacer
	observer  Observer

	mu                  sync.Mutex
	cancel              context.CancelFunc
	state               State
	startedAt           time.Time
	framesSent          uint64
	bytesSent           uint64
	failures            uint64
	consecutiveFailures int
	suppressedUntil     time.Time
	closeReason         string
	done                chan struct{}
}

func NewSession(
	src source.FrameSource,
	chain *filter.Chain,
	enc encoder.Encoder,
	transport Transport,
	opts Options,
) *Session {
	if len(opts.Boundary) == 0 {
		opts.Boundary = DefaultBoundary
	}
	if opts.Quality == 0 {
		opts.Quality = encoder.DefaultQuality
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}

	s := &Session{
		id:        uuid.NewString(),
		src:       src,
		chain:     chain,
		enc:       enc,
		transport: transport,
		opts:      opts,
		pacer:     opts.Pacer,
		observer:  opts.Observer,
		state:     Starting,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	if s.pacer == nil {
		s.pacer = pacing.NewController(opts.TargetFPS, pacing.Options{
			Name: fmt.Sprintf("%s %s", opts.Route, s.id[:8]), PrintFPS: opts.PrintFPS,
		})
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Info() Info {
	pacerStats := s.pacer.Stats()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:                  s.id,
		Route:               s.opts.Route,
		RemoteAddr:          s.opts.RemoteAddr,
		State:               s.state,
		StartedAt:           s.startedAt,
		FramesSent:          s.framesSent,
		BytesSent:           s.bytesSent,
		Failures:            s.failures,
		ConsecutiveFailures: s.consecutiveFailures,
		SuppressedUntil:     s.suppressedUntil,
		TargetFPS:           pacerStats.Target,
		FPS:                 pacerStats.FPS,
		CloseReason:         s.closeReason,
	}
}

// Run streams until ctx is done, Close is called or the client goes
// away. Only a failed write to the client ends the session with an
// error, every other failure is retried after the backoff interval.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != Starting {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.state = Streaming
	s.mu.Unlock()

	log.Debug("Stream session [%s] opened on [%s] for %s", s.id, s.opts.Route, s.opts.RemoteAddr)
	s.observer.SessionOpened(s.Info())

	for {
		if ctx.Err() != nil {
			s.finish("closed")
			return nil
		}

		err := s.cycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrTransportWrite):
			log.Info("Stream session [%s] on [%s] lost its client: %v", s.id, s.opts.Route, err)
			s.finish("client disconnected")
			return err
		case ctx.Err() != nil:
			s.finish("closed")
			return nil
		default:
			s.recoverFrom(ctx, err)
		}
	}
}

// Close stops the session. It is safe to call more than once and from
// any goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	neverRan := s.state == Starting
	if neverRan {
		s.state = Closed
		s.closeReason = "closed before start"
	}
	s.mu.Unlock()

	if neverRan {
		close(s.done)
		return
	}
	if cancel != nil {
		cancel()
	}
}

func (s *Session) cycle(ctx context.Context) error {
	frame, ok := s.src.Latest()
	if !ok {
		return xerror.Errorf("%w: nothing published yet", ErrSourceUnavailable)
	}

	payload, took, err := s.render(frame)
	if err != nil {
		return err
	}

	if err := s.emit(payload); err != nil {
		return err
	}
	s.succeeded()
	s.sent(len(payload), took)

	if err := s.pacer.Next(ctx); err != nil && ctx.Err() == nil {
		log.Debug("Stream session [%s] pacing wait cut short: %v", s.id, err)
	}
	return nil
}

func (s *Session) render(frame videoframe.Frame) (payload []byte, took time.Duration, err error) {
	stage := KindFilter
	defer func() {
		if r := recover(); r != nil {
			if stage == KindFilter {
				err = xerror.Errorf("%w: transform panicked: %v", ErrFilter, r)
				return
			}
			err = xerror.Errorf("%w: encoder panicked: %v", ErrEncode, r)
		}
	}()

	out, err := s.chain.Apply(frame, frame.Seq)
	if err != nil {
		return nil, 0, err
	}

	stage = KindEncode
	start := time.Now()
	payload, err = s.enc.Encode(out, s.opts.Quality, s.opts.Flags)
	if err != nil {
		if !errors.Is(err, ErrEncode) {
			err = xerror.Errorf("%w: %v", ErrEncode, err)
		}
		return nil, 0, err
	}
	return payload, time.Since(start), nil
}

func (s *Session) emit(payload []byte) error {
	if err := WritePart(s.transport, s.opts.Boundary, s.enc.ContentType(), payload); err != nil {
		return xerror.Errorf("%w: %v", ErrTransportWrite, err)
	}
	if err := s.transport.Flush(); err != nil {
		return xerror.Errorf("%w: flush: %v", ErrTransportWrite, err)
	}
	return nil
}

func (s *Session) sent(n int, took time.Duration) {
	s.mu.Lock()
	s.framesSent++
	s.bytesSent += uint64(n)
	s.mu.Unlock()
	s.observer.FrameSent(s.Info(), n, took)
}

func (s *Session) succeeded() {
	s.mu.Lock()
	recovered := s.state == Recovering
	s.consecutiveFailures = 0
	s.state = Streaming
	s.mu.Unlock()

	if recovered {
		log.Info("Stream session [%s] on [%s] recovered", s.id, s.opts.Route)
	}
}

func (s *Session) recoverFrom(ctx context.Context, err error) {
	kind := KindOf(err)

	s.mu.Lock()
	s.failures++
	s.consecutiveFailures++
	s.state = Recovering
	s.suppressedUntil = time.Now().Add(s.opts.Backoff)
	consecutive := s.consecutiveFailures
	s.mu.Unlock()

	log.Error(
		"Stream session [%s] on [%s] failed to produce frame (%s, %d consecutive), retrying in %s: %v",
		s.id, s.opts.Route, kind, consecutive, s.opts.Backoff, err,
	)
	s.observer.SessionFailed(s.Info(), kind)

	sleep(ctx, s.opts.Backoff)

	// a stalled cycle would otherwise drag the rolling rate down
	s.pacer.ResetStats()
}

func (s *Session) finish(reason string) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.closeReason = reason
	s.mu.Unlock()

	log.Debug("Stream session [%s] on [%s] closed: %s", s.id, s.opts.Route, reason)
	s.observer.SessionClosed(s.Info())
	close(s.done)
}

var sleep = func(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopObserver struct{}

func (nopObserver) SessionOpened(Info)                 {}
func (nopObserver) FrameSent(Info, int, time.Duration) {}
func (nopObserver) SessionFailed(Info, ErrorKind)      {}
func (nopObserver) SessionClosed(Info)                 {}

// Observers fans events out to each observer in turn.
type Observers []Observer

func (o Observers) SessionOpened(info Info) {
	for _, observer := range o {
		observer.SessionOpened(info)
	}
}

func (o Observers) FrameSent(info Info, bytes int, encodeTook time.Duration) {
	for _, observer := range o {
		observer.FrameSent(info, bytes, encodeTook)
	}
}

func (o Observers) SessionFailed(info Info, kind ErrorKind) {
	for _, observer := range o {
		observer.SessionFailed(info, kind)
	}
}

func (o Observers) SessionClosed(info Info) {
	for _, observer := range o {
		observer.SessionClosed(info)
	}
}
