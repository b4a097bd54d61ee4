package wormhole

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tauraamui/wormhole/pkg/configdef"
	"github.com/tauraamui/wormhole/pkg/dashboard"
	data "github.com/tauraamui/wormhole/pkg/database"
	"github.com/tauraamui/wormhole/pkg/database/repos"
	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/metrics"
	"github.com/tauraamui/wormhole/pkg/source"
	"github.com/tauraamui/wormhole/pkg/stream"
	"github.com/tauraamui/wormhole/pkg/video/videobackend"
	"github.com/tauraamui/wormhole/pkg/wormhole/process"
	"github.com/tauraamui/xerror"
)

var (
	ErrUnknownRoute = xerror.NewWithKind("unknown_route", "no stream is served on route")
	ErrUnknownFeed  = xerror.NewWithKind("unknown_feed", "no feed exists with name")
)

var connectDB = data.Connect

const drainPollInterval = 10 * time.Millisecond

type deferredFilter struct {
	chain  *filter.Chain
	filter filter.Filter
}

type connection struct {
	source configdef.Source
	conn   videobackend.Connection
}

type servedRoute struct {
	config configdef.Stream
	chain  *filter.Chain
}

// Server owns every source connection, the feeds derived from them and
// the routes streaming those feeds to clients.
type Server struct {
	config  configdef.Values
	backend videobackend.Backend

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	connections []connection
	feeds       map[string]*source.Feed
	feedOrder   []string
	feedChains  map[string]*filter.Chain
	routes      map[string]servedRoute
	processes   []process.Process

	deferred     []deferredFilter
	deferredOnce sync.Once

	sessionsMu sync.Mutex
	sessions   map[*stream.Session]struct{}

	metrics *metrics.Collector
	history *data.History
	db      repos.GormWrapper
	hub     *dashboard.Hub
	mux     *http.ServeMux

	shutdownOnce sync.Once
	shutdownDone chan interface{}
}

func NewServer(resolver configdef.Resolver, backend videobackend.Backend) (*Server, error) {
	cfg, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:       cfg,
		backend:      backend,
		ctx:          ctx,
		cancel:       cancel,
		feeds:        map[string]*source.Feed{},
		feedChains:   map[string]*filter.Chain{},
		routes:       map[string]servedRoute{},
		sessions:     map[*stream.Session]struct{}{},
		metrics:      metrics.NewCollector(),
		shutdownDone: make(chan interface{}),
	}

	if err := s.createFeeds(); err != nil {
		cancel()
		return nil, err
	}

	if cfg.History.Enabled {
		s.openHistory()
	}

	if cfg.Dashboard.Enabled {
		s.hub = dashboard.NewHub(s.Snapshot, dashboard.Options{
			Interval:   time.Duration(cfg.Dashboard.IntervalMS) * time.Millisecond,
			MaxClients: cfg.Dashboard.MaxClients,
		})
	}

	if err := s.createRoutes(); err != nil {
		s.closeHistory()
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Server) createFeeds() error {
	for _, src := range s.config.Sources {
		s.addFeed(src.Name, filter.NewChain())
	}
	for _, feed := range s.config.Feeds {
		chain, deferred, err := buildChain(feed.Name, feed.Filters)
		if err != nil {
			return xerror.Errorf("unable to build filters for feed [%s]: %w", feed.Name, err)
		}
		s.addFeed(feed.Name, chain)
		s.deferFilters(chain, deferred)
	}
	return nil
}

func (s *Server) addFeed(name string, chain *filter.Chain) {
	feed := source.NewFeed(name)
	s.feeds[name] = feed
	s.feedChains[name] = chain
	s.feedOrder = append(s.feedOrder, name)
	s.metrics.RegisterFeed(name, func() uint64 { return feed.Stats().Published })
}

func (s *Server) deferFilters(chain *filter.Chain, filters []filter.Filter) {
	for _, f := range filters {
		s.deferred = append(s.deferred, deferredFilter{chain: chain, filter: f})
	}
}

func (s *Server) openHistory() {
	db, err := connectDB()
	if err != nil {
		log.Error("Unable to open session history, continuing without it: %v", err)
		return
	}
	s.db = db
	s.history = data.NewHistory(db, s.config.History.MaxRecords)
}

func (s *Server) closeHistory() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		log.Error("Unable to close session history: %v", err)
	}
}

func (s *Server) observer() stream.Observer {
	observers := stream.Observers{s.metrics}
	if s.history != nil {
		observers = append(observers, s.history)
	}
	return observers
}

func streamOptions(st configdef.Stream, observer stream.Observer) stream.Options {
	var flags encoder.Flags
	if st.FastEncode {
		flags = encoder.FastDCT | encoder.FastUpsample
	}
	return stream.Options{
		Route:     st.Route,
		Boundary:  st.Boundary,
		Quality:   st.Quality,
		Flags:     flags,
		TargetFPS: st.TargetFPS,
		PrintFPS:  st.PrintFPS,
		Backoff:   time.Duration(st.BackoffMS) * time.Millisecond,
		Observer:  observer,
	}
}

func (s *Server) Connect() []error {
	return s.connect(context.Background())
}

func (s *Server) ConnectWithCancel(cancel context.Context) []error {
	return s.connect(cancel)
}

func (s *Server) connect(cancel context.Context) []error {
	var errs []error

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.config.Sources {
		select {
		case <-cancel.Done():
			return errs
		default:
			log.Info("Connecting to source: [%s]...", src.Name)
			conn, err := s.backend.Connect(cancel, src.Address)
			if err != nil {
				errs = append(errs, xerror.Errorf("unable to connect to source [%s]: %w", src.Name, err))
				continue
			}
			log.Info("Connected successfully to source: [%s]", src.Name)
			s.connections = append(s.connections, connection{source: src, conn: conn})
		}
	}
	return errs
}

// AppendFilter adds f to the end of the chain serving route. Sessions
// already streaming the route apply it from their next frame.
func (s *Server) AppendFilter(route string, f filter.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[route]
	if !ok {
		return xerror.Errorf("%w: %s", ErrUnknownRoute, route)
	}
	r.chain.Append(f)
	return nil
}

// AppendFeedFilter adds f to the chain deriving the named feed, and so
// to every route and feed downstream of it.
func (s *Server) AppendFeedFilter(name string, f filter.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain, ok := s.feedChains[name]
	if !ok {
		return xerror.Errorf("%w: %s", ErrUnknownFeed, name)
	}
	chain.Append(f)
	return nil
}

func (s *Server) applyDeferred() {
	s.deferredOnce.Do(func() {
		for _, d := range s.deferred {
			d.chain.Append(d.filter)
		}
		if len(s.deferred) > 0 {
			log.Info("Applied %d deferred filter(s)", len(s.deferred))
		}
	})
}

func (s *Server) Track(session *stream.Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[session] = struct{}{}
}

func (s *Server) Untrack(session *stream.Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, session)
}

// Sessions lists every open session, oldest first.
func (s *Server) Sessions() []stream.Info {
	s.sessionsMu.Lock()
	infos := make([]stream.Info, 0, len(s.sessions))
	for session := range s.sessions {
		infos = append(infos, session.Info())
	}
	s.sessionsMu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

func (s *Server) Snapshot() dashboard.Snapshot {
	feeds := make([]dashboard.FeedStats, 0, len(s.feedOrder))
	for _, name := range s.feedOrder {
		stats := s.feeds[name].Stats()
		feeds = append(feeds, dashboard.FeedStats{Name: name, Published: stats.Published, Seq: stats.Seq})
	}
	return dashboard.Snapshot{
		Timestamp: time.Now(),
		Sessions:  s.Sessions(),
		Feeds:     feeds,
	}
}

// drainSessions waits for cancelled sessions to finish recording
// their close before the history database goes away.
func (s *Server) drainSessions(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.sessionsMu.Lock()
		open := len(s.sessions)
		s.sessionsMu.Unlock()
		if open == 0 {
			return
		}
		time.Sleep(drainPollInterval)
	}
	log.Warn("Gave up waiting for stream sessions to close")
}

func (s *Server) shutdown() {
	s.cancel()
	s.drainSessions(shutdownTimeout)
	s.shutdownProcesses()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		log.Warn("Closing source connection: [%s]...", c.source.Name)
		if err := c.conn.Close(); err != nil {
			log.Error("Unable to close source [%s]: %v", c.source.Name, err)
		}
	}
	s.connections = nil
	s.closeHistory()
	close(s.shutdownDone)
}

// Shutdown ends every session, stops all processes and closes the
// source connections. The returned channel is closed once done.
func (s *Server) Shutdown() chan interface{} {
	s.shutdownOnce.Do(s.shutdown)
	return s.shutdownDone
}
