package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/risk"
	"github.com/alejandrodnm/galebot/internal/strategy"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdSetMode
	cmdUpdateConfig
)

type command struct {
	kind     commandKind
	mode     domain.Mode
	testMode bool
	update   ConfigUpdate
	persist  bool
	reply    chan reply
}

type reply struct {
	snap domain.Snapshot
	err  error
}

// ConfigUpdate carries the fields to change; nil fields keep their value.
type ConfigUpdate struct {
	Strategy            *domain.StrategyConfig
	Risk                *domain.RiskConfig
	KeepaliveEverySpins *int
	OutcomeTimeout      *time.Duration
}

// Start begins betting in mode. Starting while already running is a no-op.
func (o *Orchestrator) Start(ctx context.Context, mode domain.Mode, testMode bool) (domain.Snapshot, error) {
	return o.send(ctx, command{kind: cmdStart, mode: mode, testMode: testMode})
}

// Stop stops betting. An in-flight bet is allowed to settle first. Stopping
// while idle is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) (domain.Snapshot, error) {
	return o.send(ctx, command{kind: cmdStop})
}

// SetMode switches mode, deferred until an in-flight bet settles.
func (o *Orchestrator) SetMode(ctx context.Context, mode domain.Mode) (domain.Snapshot, error) {
	return o.send(ctx, command{kind: cmdSetMode, mode: mode})
}

// UpdateConfig validates and applies new parameters, deferred until an
// in-flight bet settles. With persist, the config is saved first and nothing
// is applied if saving fails.
func (o *Orchestrator) UpdateConfig(ctx context.Context, u ConfigUpdate, persist bool) (domain.Snapshot, error) {
	return o.send(ctx, command{kind: cmdUpdateConfig, update: u, persist: persist})
}

func (o *Orchestrator) send(ctx context.Context, cmd command) (domain.Snapshot, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case o.commands <- cmd:
	case <-o.done:
		return o.Snapshot(), &domain.Denial{Code: domain.DenyLoopNotRunning, Message: "orchestrator loop is not running"}
	case <-ctx.Done():
		return o.Snapshot(), ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return o.Snapshot(), ctx.Err()
	}
}

func (o *Orchestrator) handle(ctx context.Context, cmd command) (domain.Snapshot, error) {
	var err error
	switch cmd.kind {
	case cmdStart:
		err = o.start(ctx, cmd.mode, cmd.testMode)
	case cmdStop:
		o.stop()
	case cmdSetMode:
		err = o.setMode(cmd.mode)
	case cmdUpdateConfig:
		err = o.updateConfig(cmd.update, cmd.persist)
	}
	if err != nil {
		slog.Warn("orchestrator: command refused", "err", err)
	}
	o.publishSnapshot()
	return o.Snapshot(), err
}

func deny(code, msg string) *domain.Denial {
	return &domain.Denial{Code: code, Message: msg}
}

func (o *Orchestrator) validateMode(mode domain.Mode, cfg domain.StrategyConfig) error {
	if _, err := domain.ParseMode(string(mode)); err != nil {
		return deny(domain.DenyInvalidMode, err.Error())
	}
	if mode == domain.ModeMaintenance && !cfg.KeepaliveStake.IsPositive() {
		return deny(domain.DenyInvalidConfig, "maintenance mode needs keepalive_stake > 0")
	}
	return nil
}

func (o *Orchestrator) start(ctx context.Context, mode domain.Mode, testMode bool) error {
	if mode == "" {
		mode = o.cfg.Mode
	}
	if err := o.validateMode(mode, o.cfg.Strategy); err != nil {
		return err
	}

	switch o.status {
	case domain.StatusRunning:
		return nil
	case domain.StatusStopping:
		o.setStatus(domain.StatusRunning, "stop cancelled", false)
		if mode != o.cfg.Mode {
			o.pendingMode = &mode
		}
		return nil
	}

	if !o.lc.Idle() {
		return deny(domain.DenyBetPending, "a bet is still in flight")
	}
	if mode.PlacesRealBets() {
		exec := o.deps.Executor
		if testMode {
			exec = o.deps.Paper
		}
		if exec == nil {
			return deny(domain.DenyInvalidConfig, "no executor configured for this mode")
		}
	}

	if testMode != o.cfg.TestMode {
		if o.deps.NewLedger == nil {
			return deny(domain.DenyInvalidConfig, "switching test mode is not available")
		}
		l, err := o.deps.NewLedger(ctx, testMode)
		if err != nil {
			return deny(domain.DenyLedger, err.Error())
		}
		o.mu.Lock()
		o.ledger = l
		o.mu.Unlock()
		o.cfg.TestMode = testMode
		slog.Info("orchestrator: ledger session opened", "session", l.Session().ID, "test_mode", testMode)
	}

	if v := risk.CanStart(o.ledger.Balance(), o.cfg.Risk); !v.Allowed {
		return deny(domain.DenyStopLoss, v.Detail)
	}

	o.cfg.Mode = mode
	o.spinsSinceBet = 0
	o.setStatus(domain.StatusRunning, "started", false)
	return nil
}

func (o *Orchestrator) stop() {
	switch o.status {
	case domain.StatusIdle, domain.StatusStopping:
		return
	case domain.StatusError:
		o.setStatus(domain.StatusIdle, "error acknowledged", false)
		return
	}
	if o.lc.Idle() {
		o.setStatus(domain.StatusIdle, "stopped by operator", false)
		return
	}
	o.setStatus(domain.StatusStopping, "waiting for in-flight bet", false)
}

func (o *Orchestrator) setMode(mode domain.Mode) error {
	if o.status == domain.StatusError {
		return deny(domain.DenyFatalState, "bot is in error state: "+o.reason)
	}
	cfg := o.cfg.Strategy
	if o.pendingConfig != nil {
		cfg = o.pendingConfig.Strategy
	}
	if err := o.validateMode(mode, cfg); err != nil {
		return err
	}
	if mode.PlacesRealBets() && o.executor() == nil {
		return deny(domain.DenyInvalidConfig, "no executor configured for this mode")
	}
	if !o.lc.Idle() {
		o.pendingMode = &mode
		slog.Info("orchestrator: mode change deferred until bet settles", "mode", mode)
		return nil
	}
	o.pendingMode = nil
	o.applyMode(mode)
	return nil
}

func (o *Orchestrator) applyMode(mode domain.Mode) {
	if mode == o.cfg.Mode {
		return
	}
	o.cfg.Mode = mode
	o.spinsSinceBet = 0
	o.deps.Events.Publish(domain.StatusChange{
		Status:   o.status,
		Previous: o.status,
		Mode:     mode,
		Reason:   "mode changed",
	})
	slog.Info("orchestrator: mode changed", "mode", mode, "status", o.status)
}

func (o *Orchestrator) updateConfig(u ConfigUpdate, persist bool) error {
	base := o.cfg
	if o.pendingConfig != nil {
		base = *o.pendingConfig
	}
	next := base
	if u.Strategy != nil {
		next.Strategy = u.Strategy.Clone()
	}
	if u.Risk != nil {
		next.Risk = *u.Risk
	}
	if u.KeepaliveEverySpins != nil {
		if *u.KeepaliveEverySpins < 0 {
			return deny(domain.DenyInvalidConfig, "keepalive_every_spins must be >= 0")
		}
		next.KeepaliveEverySpins = *u.KeepaliveEverySpins
	}
	if u.OutcomeTimeout != nil {
		if *u.OutcomeTimeout <= 0 {
			return deny(domain.DenyInvalidConfig, "outcome_timeout must be > 0")
		}
		next.OutcomeTimeout = *u.OutcomeTimeout
	}

	if err := next.Strategy.Validate(); err != nil {
		return deny(domain.DenyInvalidConfig, err.Error())
	}
	if err := next.Risk.Validate(); err != nil {
		return deny(domain.DenyInvalidConfig, err.Error())
	}
	mode := next.Mode
	if o.pendingMode != nil {
		mode = *o.pendingMode
	}
	if mode == domain.ModeMaintenance && !next.Strategy.KeepaliveStake.IsPositive() {
		return deny(domain.DenyInvalidConfig, "maintenance mode needs keepalive_stake > 0")
	}

	if persist && o.deps.ConfigStore != nil {
		if err := o.deps.ConfigStore.SaveStrategy(next.Strategy, next.Risk); err != nil {
			return deny(domain.DenyConfigPersist, err.Error())
		}
	}

	if !o.lc.Idle() {
		o.pendingConfig = &next
		slog.Info("orchestrator: config update deferred until bet settles")
		return nil
	}
	o.applyConfig(next)
	o.checkStopLoss()
	return nil
}

// applyConfig swaps the config. Mode and test mode are not part of it.
func (o *Orchestrator) applyConfig(next Config) {
	prev := o.cfg
	next.Mode = prev.Mode
	next.TestMode = prev.TestMode
	o.cfg = next
	o.gale = strategy.Conform(o.gale, prev.Strategy, next.Strategy)
	o.lc.SetOutcomeTimeout(next.OutcomeTimeout)
	slog.Info("orchestrator: config applied",
		"strategy", next.Strategy.Name,
		"base_bet", next.Strategy.BaseBet.StringFixed(2),
		"max_gales", next.Strategy.MaxGales,
		"stop_loss", next.Risk.StopLoss.StringFixed(2),
	)
}
