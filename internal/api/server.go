// Package api exposes backtests, indicator overlays and the run journal
// over HTTP, and mounts the report WebSocket stream.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"market-analyzer/internal/backtest"
	"market-analyzer/internal/indicator"
	"market-analyzer/internal/portfolio"
	"market-analyzer/internal/store/sqlite"
)

// SymbolLister lists the symbols with stored bars.
type SymbolLister interface {
	Symbols(ctx context.Context) ([]sqlite.SymbolInfo, error)
}

// RunStore reads the run journal.
type RunStore interface {
	ListRuns(ctx context.Context, symbol string, limit int) ([]sqlite.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*backtest.Report, error)
}

// StreamHub serves the report WebSocket and its replay buffers.
type StreamHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	GetReplayRange(channel string, fromSeq, toSeq int64, runID string) [][]byte
	GetChannelSeq(channel string) int64
}

// Deps are the collaborators behind the routes. Nil stores disable the
// routes that need them (503).
type Deps struct {
	Runner  *backtest.Runner
	Bars    backtest.BarSource
	Symbols SymbolLister
	Runs    RunStore
	Hub     StreamHub
	Health  http.Handler

	// Settings applied when a request leaves a field unset.
	Indicators indicator.Config
	Risk       portfolio.RiskLimits
}

// Options tune the middleware stack.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// Server wires HTTP endpoints around the backtest runner.
type Server struct {
	Router   *gin.Engine
	deps     Deps
	limiters *ipLimiters
	srv      *http.Server
}

// NewServer builds the router. deps.Runner is required.
func NewServer(deps Deps, opts Options) *Server {
	r := gin.New()
	limiters := newIPLimiters(opts.RateLimitRPS, opts.RateLimitBurst)

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	if opts.RateLimitRPS > 0 {
		r.Use(RateLimitMiddleware(limiters))
	}
	r.Use(TimeoutMiddleware(opts.RequestTimeout))

	s := &Server{
		Router:   r,
		deps:     deps,
		limiters: limiters,
		srv:      &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/healthz", s.health)
	s.Router.GET("/ws", s.websocket)

	v1 := s.Router.Group("/api/v1")
	{
		v1.POST("/backtests", s.runBacktest)
		v1.GET("/indicators", s.getIndicators)
		v1.GET("/symbols", s.getSymbols)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/stream/replay", s.replay)
	}
}

// Start serves on addr until Stop is called. The rate-limit buckets are
// reset every five minutes while ctx is live.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go s.limiters.runCleanup(ctx, 5*time.Minute)
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
