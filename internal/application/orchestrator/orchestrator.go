// Package orchestrator runs the betting loop. A single goroutine owns every
// piece of mutable state: it records outcomes, asks the strategy for a
// decision, runs the risk guard, drives the bet lifecycle and publishes an
// event for each transition. Commands reach it over a channel; queries read
// the snapshot it publishes after each step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/galebot/internal/application/lifecycle"
	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ledger"
	"github.com/alejandrodnm/galebot/internal/ports"
	"github.com/alejandrodnm/galebot/internal/strategy"
)

// Config is the runtime configuration of the loop.
type Config struct {
	Mode                domain.Mode
	TestMode            bool
	Strategy            domain.StrategyConfig
	Risk                domain.RiskConfig
	KeepaliveEverySpins int
	PlacementTimeout    time.Duration
	OutcomeTimeout      time.Duration
	ReconnectBase       time.Duration
	ReconnectMax        time.Duration
	HistorySize         int
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = domain.ModeFullAuto
	}
	if c.PlacementTimeout <= 0 {
		c.PlacementTimeout = 5 * time.Second
	}
	if c.OutcomeTimeout <= 0 {
		c.OutcomeTimeout = 90 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 500 * time.Millisecond
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = 30 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 500
	}
}

// clone returns a copy whose strategy shares nothing with c.
func (c Config) clone() Config {
	c.Strategy = c.Strategy.Clone()
	return c
}

// Publisher stamps and distributes events.
type Publisher interface {
	Publish(p domain.Payload) domain.Event
}

// LedgerFactory opens a fresh ledger session, used when test mode toggles.
type LedgerFactory func(ctx context.Context, testMode bool) (*ledger.Ledger, error)

// Deps are the collaborators of the loop. Executor, Paper, Outcomes,
// ConfigStore, NewLedger and Clock are optional.
type Deps struct {
	Source      ports.OutcomeSource
	Executor    ports.BetExecutor
	Paper       ports.BetExecutor
	Ledger      *ledger.Ledger
	NewLedger   LedgerFactory
	Events      Publisher
	Outcomes    ports.OutcomeStore
	ConfigStore ports.ConfigStore
	Engine      *strategy.Engine
	// Clock stamps bets; wall clock in UTC if nil.
	Clock func() time.Time
}

// Orchestrator is the betting loop.
type Orchestrator struct {
	deps   Deps
	engine *strategy.Engine

	commands     chan command
	placements   chan placement
	sourceEvents chan sourceEvent
	done         chan struct{}
	runOnce      sync.Once

	// Loop-owned state.
	cfg           Config
	status        domain.Status
	reason        string
	lc            *lifecycle.Machine
	gale          domain.GaleState
	lastSpin      int64
	spinsSinceBet int
	pendingMode   *domain.Mode
	pendingConfig *Config

	// Published for readers.
	mu      sync.RWMutex
	snap    domain.Snapshot
	ledger  *ledger.Ledger
	history []domain.Outcome
	cfgView Config
}

// New validates the configuration and builds the loop. It starts IDLE.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg = cfg.clone()
	cfg.setDefaults()
	if deps.Source == nil {
		return nil, errors.New("orchestrator.New: outcome source is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("orchestrator.New: ledger is required")
	}
	if deps.Events == nil {
		return nil, errors.New("orchestrator.New: event publisher is required")
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator.New: %w", err)
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator.New: %w", err)
	}
	if _, err := domain.ParseMode(string(cfg.Mode)); err != nil {
		return nil, fmt.Errorf("orchestrator.New: %w", domain.NewError(domain.KindConfiguration, "orchestrator.New", err))
	}

	engine := deps.Engine
	if engine == nil {
		engine = strategy.NewEngine()
	}
	cfg.TestMode = deps.Ledger.Session().TestMode
	lc := lifecycle.New(cfg.OutcomeTimeout)
	if deps.Clock != nil {
		lc.WithClock(deps.Clock)
	}

	o := &Orchestrator{
		deps:         deps,
		engine:       engine,
		commands:     make(chan command),
		placements:   make(chan placement, 1),
		sourceEvents: make(chan sourceEvent, 1),
		done:         make(chan struct{}),
		cfg:          cfg,
		status:       domain.StatusIdle,
		lc:           lc,
		ledger:       deps.Ledger,
	}
	o.publishSnapshot()
	return o, nil
}

// Run drives the loop until ctx is cancelled. It may be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	started := false
	o.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("orchestrator.Run: already running")
	}
	defer close(o.done)

	slog.Info("orchestrator: loop started",
		"mode", o.cfg.Mode,
		"session", o.currentLedger().Session().ID,
		"test_mode", o.cfg.TestMode,
	)
	o.subscribe(ctx, 0)

	var outcomes <-chan domain.Outcome
	for {
		var timeout <-chan time.Time
		if left, ok := o.lc.Remaining(); ok {
			timeout = time.After(left)
		}

		select {
		case <-ctx.Done():
			o.shutdown()
			return nil

		case cmd := <-o.commands:
			snap, err := o.handle(ctx, cmd)
			cmd.reply <- reply{snap: snap, err: err}

		case ev := <-o.sourceEvents:
			if ev.err != nil {
				o.ioError(fmt.Sprintf("outcome source unavailable (attempt %d): %v", ev.attempt, ev.err), nil)
				continue
			}
			outcomes = ev.ch

		case out, ok := <-outcomes:
			if !ok {
				outcomes = nil
				o.ioError("outcome source closed, reconnecting", nil)
				o.subscribe(ctx, o.cfg.ReconnectBase)
				continue
			}
			o.onOutcome(ctx, out)

		case p := <-o.placements:
			o.onPlacement(ctx, p)

		case <-timeout:
			if bet, ok := o.lc.Expire(); ok {
				o.voided(ctx, bet)
				o.afterTransition(ctx)
			}
		}
	}
}

func (o *Orchestrator) setStatus(status domain.Status, reason string, terminal bool) {
	if o.status == status && !terminal {
		return
	}
	prev := o.status
	o.status = status
	o.reason = reason
	o.deps.Events.Publish(domain.StatusChange{
		Status:    status,
		Previous:  prev,
		Mode:      o.cfg.Mode,
		Reason:    reason,
		Terminal:  terminal,
		SessionID: o.ledger.Session().ID,
	})
	slog.Info("orchestrator: status changed",
		"from", prev,
		"to", status,
		"mode", o.cfg.Mode,
		"reason", reason,
	)
}

func (o *Orchestrator) ioError(msg string, bet *domain.Bet) {
	slog.Warn("orchestrator: "+msg, "last_spin", o.lastSpin)
	o.deps.Events.Publish(domain.ErrorEvent{Kind: domain.KindTransientIO, Message: msg, Bet: bet})
}

// fail handles errors that require operator intervention.
func (o *Orchestrator) fail(ctx context.Context, err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindInvariantViolation
	}
	slog.Error("orchestrator: fatal error", "kind", kind, "err", err)
	if bet, ok := o.lc.Abort("fatal: " + string(kind)); ok {
		o.voided(ctx, bet)
	}
	o.deps.Events.Publish(domain.ErrorEvent{Kind: kind, Message: err.Error(), Fatal: true})
	o.setStatus(domain.StatusError, err.Error(), true)
	o.publishSnapshot()
}

func (o *Orchestrator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if bet, ok := o.lc.Abort("shutdown"); ok {
		o.voided(ctx, bet)
	}
	if o.status == domain.StatusRunning || o.status == domain.StatusStopping {
		o.setStatus(domain.StatusIdle, "shutdown", false)
	}
	o.publishSnapshot()
	slog.Info("orchestrator: loop stopped", "last_spin", o.lastSpin)
}

func (o *Orchestrator) executor() ports.BetExecutor {
	if o.cfg.TestMode {
		return o.deps.Paper
	}
	return o.deps.Executor
}

func (o *Orchestrator) currentLedger() *ledger.Ledger {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ledger
}

func (o *Orchestrator) publishSnapshot() {
	l := o.ledger
	counts := l.Counts()
	snap := domain.Snapshot{
		Status:        o.status,
		Mode:          o.cfg.Mode,
		Running:       o.status == domain.StatusRunning || o.status == domain.StatusStopping,
		TestMode:      o.cfg.TestMode,
		SessionID:     l.Session().ID,
		Balance:       l.Balance(),
		Phase:         string(o.lc.Phase()),
		Gale:          o.gale.Clone(),
		LastSpin:      o.lastSpin,
		ConfigPending: o.pendingConfig != nil,
		Reason:        o.reason,
		TotalBets:     counts.Total,
		Wins:          counts.Wins,
		Losses:        counts.Losses,
		UpdatedAt:     time.Now().UTC(),
	}
	if bet, ok := o.lc.Active(); ok {
		snap.ActiveBet = &bet
	}
	if o.pendingMode != nil {
		m := *o.pendingMode
		snap.PendingMode = &m
	}

	o.mu.Lock()
	o.snap = snap
	o.cfgView = o.cfg.clone()
	o.mu.Unlock()
}
