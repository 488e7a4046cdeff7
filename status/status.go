// CLAUDE:SUMMARY Read-only status surface: chi routes for health, last cycle and cycle history, plus the same endpoints as MCP tools.
// Package status serves the agent's progress over HTTP and MCP. It only
// reads: the engine snapshot and the cycle journal.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/placebot/journal"
	"github.com/hazyhaar/placebot/kit"
	"github.com/hazyhaar/placebot/shield"
	"github.com/hazyhaar/placebot/traversal"
)

// SnapshotSource exposes the last cycle outcome. *traversal.Engine satisfies it.
type SnapshotSource interface {
	Snapshot() *traversal.Outcome
}

// CycleStore reads the cycle history. *journal.Journal satisfies it.
type CycleStore interface {
	Recent(ctx context.Context, limit int) ([]*journal.Entry, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// Config for the status server.
type Config struct {
	// Addr to listen on, e.g. ":8086".
	Addr string
	// User and PasswordHash enable Basic Auth when PasswordHash (bcrypt) is set.
	User         string
	PasswordHash string
	// Root is the root target reference, reported as-is.
	Root    string
	Version string
}

// Server is the status HTTP server.
type Server struct {
	config  Config
	engine  SnapshotSource
	store   CycleStore
	logger  *slog.Logger
	started time.Time
	router  chi.Router
	mcp     *mcp.Server
	status  kit.Endpoint
	cycles  kit.Endpoint
}

// New builds the server and its routes. A nil logger uses slog.Default().
func New(cfg Config, engine SnapshotSource, store CycleStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		config:  cfg,
		engine:  engine,
		store:   store,
		logger:  logger,
		started: time.Now(),
	}
	s.status = kit.Logging(logger, "status")(s.statusEndpoint)
	s.cycles = kit.Logging(logger, "cycles")(s.cyclesEndpoint)
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "placebot", Version: cfg.Version}, nil)
	s.registerMCP(s.mcp)
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// MCP returns the MCP server carrying the status tools.
func (s *Server) MCP() *mcp.Server { return s.mcp }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.logger, s.config.User, s.config.PasswordHash) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.status(withRequest(r), nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	r.Get("/api/cycles", func(w http.ResponseWriter, r *http.Request) {
		req := &CyclesRequest{}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
				return
			}
			req.Limit = n
		}
		resp, err := s.cycles(withRequest(r), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	r.Handle("/mcp", mcpHandler)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status: listening", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("status: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	s.logger.Info("status: stopped")
	return nil
}

// Report is the /api/status payload.
type Report struct {
	Version string         `json:"version"`
	Root    string         `json:"root"`
	Uptime  string         `json:"uptime"`
	Last    *Cycle         `json:"last,omitempty"`
	Counts  map[string]int `json:"counts"`
}

// Cycle is the JSON view of a traversal outcome.
type Cycle struct {
	Outcome    string    `json:"outcome"`
	Ref        string    `json:"ref,omitempty"`
	Visited    []string  `json:"visited"`
	Percent    *float64  `json:"percent,omitempty"`
	Done       int       `json:"done"`
	Solid      int       `json:"solid"`
	Pick       *Pick     `json:"pick,omitempty"`
	WaitMs     int64     `json:"wait_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Pick is an attempted pixel.
type Pick struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Color int `json:"color"`
}

func cycleView(o *traversal.Outcome) *Cycle {
	c := &Cycle{
		Outcome:    o.Kind.String(),
		Ref:        o.Ref,
		Visited:    o.Visited,
		Done:       o.Stats.Done(),
		Solid:      o.Stats.Solid,
		WaitMs:     o.Wait.Milliseconds(),
		StartedAt:  o.Started,
		FinishedAt: o.Finished,
	}
	if p, ok := o.Percent(); ok {
		c.Percent = &p
	}
	if c.Visited == nil {
		c.Visited = []string{}
	}
	if o.Picked {
		c.Pick = &Pick{X: o.Pick.X, Y: o.Pick.Y, Color: int(o.Pick.Color)}
	}
	if o.Err != nil {
		c.Error = o.Err.Error()
	}
	return c
}

func (s *Server) statusEndpoint(ctx context.Context, _ any) (any, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Version: s.config.Version,
		Root:    s.config.Root,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Counts:  counts,
	}
	if o := s.engine.Snapshot(); o != nil {
		rep.Last = cycleView(o)
	}
	return rep, nil
}

// CyclesRequest selects how many journaled cycles to return (0 = default).
type CyclesRequest struct {
	Limit int `json:"limit"`
}

// CyclesResponse lists journaled cycles, newest first.
type CyclesResponse struct {
	Cycles []*journal.Entry `json:"cycles"`
}

func (s *Server) cyclesEndpoint(ctx context.Context, req any) (any, error) {
	r, _ := req.(*CyclesRequest)
	if r == nil {
		r = &CyclesRequest{}
	}
	entries, err := s.store.Recent(ctx, r.Limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	return &CyclesResponse{Cycles: entries}, nil
}

func withRequest(r *http.Request) context.Context {
	return kit.WithRemoteAddr(kit.WithTransport(r.Context(), "http"), r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
