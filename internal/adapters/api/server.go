// Package api exposes the command and query surfaces over HTTP and streams
// the event timeline over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/galebot/internal/application/orchestrator"
	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	commandTimeout  = 10 * time.Second
)

// Bot is the command and query surface of the orchestrator.
type Bot interface {
	Start(ctx context.Context, mode domain.Mode, testMode bool) (domain.Snapshot, error)
	Stop(ctx context.Context) (domain.Snapshot, error)
	SetMode(ctx context.Context, mode domain.Mode) (domain.Snapshot, error)
	UpdateConfig(ctx context.Context, u orchestrator.ConfigUpdate, persist bool) (domain.Snapshot, error)

	Snapshot() domain.Snapshot
	Balance() domain.Balance
	ActiveBet() (domain.Bet, bool)
	Ledger(offset, limit int) ([]domain.Bet, int)
	RecentOutcomes(limit int) []domain.Outcome
	Config() orchestrator.Config
}

// Stats serves the aggregated views.
type Stats interface {
	Daily() []domain.DailyStats
	Gale() []domain.GaleStats
	Strategy() []domain.StrategyStats
}

// Feed is the event stream the WebSocket clients attach to.
type Feed interface {
	SubscribeAfter(sub ports.Subscriber, after uint64) func()
	LastSeq() uint64
}

// Options configures the server.
type Options struct {
	Addr     string
	Gatherer prometheus.Gatherer // nil serves the default registry
}

// Server is the HTTP control surface.
type Server struct {
	bot   Bot
	stats Stats
	feed  Feed
	opts  Options
	srv   *http.Server
}

// NewServer wires the handlers.
func NewServer(bot Bot, stats Stats, feed Feed, opts Options) *Server {
	s := &Server{bot: bot, stats: stats, feed: feed, opts: opts}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.handleHealth)
	metrics := promhttp.Handler()
	if s.opts.Gatherer != nil {
		metrics = promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})
	}
	r.GET("/metrics", gin.WrapH(metrics))

	api := r.Group("/api")

	bot := api.Group("/bot")
	bot.POST("/start", s.handleStart)
	bot.POST("/stop", s.handleStop)
	bot.POST("/mode", s.handleMode)

	api.GET("/config", s.handleConfigGet)
	api.PUT("/config", s.handleConfigUpdate)

	api.GET("/status", s.handleStatus)
	api.GET("/balance", s.handleBalance)
	api.GET("/bet", s.handleActiveBet)
	api.GET("/ledger", s.handleLedger)
	api.GET("/outcomes", s.handleOutcomes)

	stats := api.Group("/stats")
	stats.GET("/daily", func(c *gin.Context) { c.JSON(http.StatusOK, s.stats.Daily()) })
	stats.GET("/gale", func(c *gin.Context) { c.JSON(http.StatusOK, s.stats.Gale()) })
	stats.GET("/strategy", func(c *gin.Context) { c.JSON(http.StatusOK, s.stats.Strategy()) })

	api.GET("/events", s.handleEvents)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", s.opts.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api.Run: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api.Run: shutdown: %w", err)
	}
	return nil
}

// --- commands ---

type startRequest struct {
	Mode     domain.Mode `json:"mode"`
	TestMode bool        `json:"test_mode"`
}

type modeRequest struct {
	Mode domain.Mode `json:"mode" binding:"required"`
}

type configRequest struct {
	Strategy            json.RawMessage `json:"strategy"`
	Risk                json.RawMessage `json:"risk"`
	KeepaliveEverySpins *int            `json:"keepalive_every_spins"`
	OutcomeTimeout      string          `json:"outcome_timeout"`
	Persist             bool            `json:"persist"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Mode == "" {
		req.Mode = s.bot.Snapshot().Mode
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	snap, err := s.bot.Start(ctx, req.Mode, req.TestMode)
	respond(c, snap, err)
}

func (s *Server) handleStop(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	snap, err := s.bot.Stop(ctx)
	respond(c, snap, err)
}

func (s *Server) handleMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	snap, err := s.bot.SetMode(ctx, req.Mode)
	respond(c, snap, err)
}

func (s *Server) handleConfigGet(c *gin.Context) {
	c.JSON(http.StatusOK, configView(s.bot.Config()))
}

// handleConfigUpdate merges the request onto a copy of the configuration in
// effect, so clients may send only the fields they change.
func (s *Server) handleConfigUpdate(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cur := s.bot.Config()
	var u orchestrator.ConfigUpdate
	if len(req.Strategy) > 0 {
		st := cur.Strategy
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(req.Strategy, &fields); err != nil {
			badRequest(c, fmt.Errorf("strategy: %w", err))
			return
		}
		if _, ok := fields["custom_rules"]; ok {
			st.CustomRules = nil // replaced, not merged
		}
		if err := json.Unmarshal(req.Strategy, &st); err != nil {
			badRequest(c, fmt.Errorf("strategy: %w", err))
			return
		}
		u.Strategy = &st
	}
	if len(req.Risk) > 0 {
		rk := cur.Risk
		if err := json.Unmarshal(req.Risk, &rk); err != nil {
			badRequest(c, fmt.Errorf("risk: %w", err))
			return
		}
		u.Risk = &rk
	}
	u.KeepaliveEverySpins = req.KeepaliveEverySpins
	if req.OutcomeTimeout != "" {
		d, err := time.ParseDuration(req.OutcomeTimeout)
		if err != nil {
			badRequest(c, fmt.Errorf("outcome_timeout: %w", err))
			return
		}
		u.OutcomeTimeout = &d
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	snap, err := s.bot.UpdateConfig(ctx, u, req.Persist)
	respond(c, snap, err)
}

// --- queries ---

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.bot.Snapshot()
	code := http.StatusOK
	if snap.Status == domain.StatusError {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": snap.Status, "updated_at": snap.UpdatedAt})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Snapshot())
}

func (s *Server) handleBalance(c *gin.Context) {
	b := s.bot.Balance()
	c.JSON(http.StatusOK, gin.H{
		"current":     b.Current,
		"initial":     b.Initial,
		"profit_loss": b.ProfitLoss(),
	})
}

func (s *Server) handleActiveBet(c *gin.Context) {
	bet, ok := s.bot.ActiveBet()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"bet": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bet": bet, "phase": s.bot.Snapshot().Phase})
}

func (s *Server) handleLedger(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		badRequest(c, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	bets, total := s.bot.Ledger(offset, limit)
	if bets == nil {
		bets = []domain.Bet{}
	}
	c.JSON(http.StatusOK, gin.H{"bets": bets, "total": total, "offset": offset, "limit": limit})
}

func (s *Server) handleOutcomes(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		badRequest(c, err)
		return
	}
	out := s.bot.RecentOutcomes(limit)
	if out == nil {
		out = []domain.Outcome{}
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func respond(c *gin.Context, snap domain.Snapshot, err error) {
	if err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}
	var d *domain.Denial
	if errors.As(err, &d) {
		c.JSON(denialStatus(d.Code), gin.H{"error": d, "status": snap})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": gin.H{"code": "timeout", "message": err.Error()}, "status": snap})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": err.Error()}, "status": snap})
}

func denialStatus(code string) int {
	switch code {
	case domain.DenyInvalidMode, domain.DenyInvalidConfig:
		return http.StatusBadRequest
	case domain.DenyBetPending, domain.DenyStopLoss, domain.DenyFatalState:
		return http.StatusConflict
	case domain.DenyLoopNotRunning, domain.DenyLedger:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "bad_request", "message": err.Error()}})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

type configResponse struct {
	Mode                domain.Mode           `json:"mode"`
	TestMode            bool                  `json:"test_mode"`
	Strategy            domain.StrategyConfig `json:"strategy"`
	Risk                domain.RiskConfig     `json:"risk"`
	KeepaliveEverySpins int                   `json:"keepalive_every_spins"`
	OutcomeTimeout      string                `json:"outcome_timeout"`
	PlacementTimeout    string                `json:"placement_timeout"`
}

func configView(cfg orchestrator.Config) configResponse {
	return configResponse{
		Mode:                cfg.Mode,
		TestMode:            cfg.TestMode,
		Strategy:            cfg.Strategy,
		Risk:                cfg.Risk,
		KeepaliveEverySpins: cfg.KeepaliveEverySpins,
		OutcomeTimeout:      cfg.OutcomeTimeout.String(),
		PlacementTimeout:    cfg.PlacementTimeout.String(),
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start).Round(time.Microsecond),
		)
	}
}
