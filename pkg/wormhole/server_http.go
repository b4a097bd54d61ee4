package wormhole

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/stream"
	"github.com/tauraamui/xerror"
	"golang.org/x/sync/errgroup"
)

const (
	MetricsRoute   = "/metrics"
	DashboardRoute = "/stats/ws"
	SessionsRoute  = "/sessions"

	defaultSessionsLimit = 50
	shutdownTimeout      = 5 * time.Second
)

var ErrReservedRoute = xerror.NewWithKind("reserved_route", "route is reserved by the server")

func reserved(route string) bool {
	switch route {
	case MetricsRoute, DashboardRoute, SessionsRoute:
		return true
	}
	return false
}

// pattern matches route exactly, "/" would otherwise catch every path.
func pattern(route string) string {
	if route == "/" {
		return "GET /{$}"
	}
	return "GET " + route
}

func (s *Server) createRoutes() error {
	mux := http.NewServeMux()
	observer := s.observer()

	for _, st := range s.config.Streams {
		if reserved(st.Route) {
			return xerror.Errorf("%w: %s", ErrReservedRoute, st.Route)
		}
		if _, dup := s.routes[st.Route]; dup || !strings.HasPrefix(st.Route, "/") {
			return xerror.Errorf("invalid or duplicate stream route: %s", st.Route)
		}
		feed, ok := s.feeds[st.Feed]
		if !ok {
			return xerror.Errorf("%w: %s", ErrUnknownFeed, st.Feed)
		}
		if err := st.CheckFilters(); err != nil {
			return err
		}
		chain, deferred, err := buildChain(st.Route, st.Filters)
		if err != nil {
			return xerror.Errorf("unable to build filters for route [%s]: %w", st.Route, err)
		}
		s.deferFilters(chain, deferred)
		s.routes[st.Route] = servedRoute{config: st, chain: chain}

		mux.Handle(pattern(st.Route), &stream.Handler{
			Source:  feed,
			Chain:   chain,
			Encoder: s.backend.NewEncoder(),
			Options: streamOptions(st, observer),
			Tracker: s,
			Context: s.ctx,
		})
		log.Debug("Registered stream route [%s] for feed [%s]", st.Route, st.Feed)
	}

	mux.Handle("GET "+MetricsRoute, s.metrics.Handler())
	if s.history != nil {
		mux.HandleFunc("GET "+SessionsRoute, s.serveSessions)
	}
	if s.hub != nil {
		mux.Handle("GET "+DashboardRoute, s.hub)
	}

	s.mux = mux
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) serveSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionsLimit
	if raw := r.URL.Query().Get("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := s.history.Recent(limit)
	if err != nil {
		log.Error("Unable to read session history: %v", err)
		http.Error(w, "unable to read session history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		log.Debug("Unable to write session history: %v", err)
	}
}

// Serve listens on the configured host and port until ctx is done or
// the server is shut down.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return xerror.Errorf("unable to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.hub != nil {
		g.Go(func() error { return s.hub.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info("Serving streams on http://%s", ln.Addr())
	s.applyDeferred()

	return g.Wait()
}
