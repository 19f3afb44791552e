package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/galebot/internal/application/lifecycle"
	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
	"github.com/alejandrodnm/galebot/internal/risk"
	"github.com/alejandrodnm/galebot/internal/strategy"
)

type placement struct {
	betID string
	ack   ports.PlaceAck
	err   error
}

// onOutcome is the run step: record, resolve, observe, decide.
func (o *Orchestrator) onOutcome(ctx context.Context, out domain.Outcome) {
	if err := out.Validate(); err != nil {
		o.ioError("invalid outcome discarded: "+err.Error(), nil)
		return
	}
	if out.SpinNumber <= o.lastSpin {
		slog.Debug("orchestrator: duplicate or stale outcome ignored",
			"spin", out.SpinNumber,
			"last_spin", o.lastSpin,
		)
		return
	}

	o.record(ctx, out)

	handled := false
	if _, active := o.lc.Active(); active {
		cfg := o.cfg.Strategy
		res := o.lc.Resolve(out, !strategy.ZeroSettlesPending(cfg))
		switch res.Result {
		case lifecycle.Settled:
			if !o.settle(ctx, res.Bet, out) {
				return
			}
			handled = true
		case lifecycle.Deferred:
			slog.Info("orchestrator: zero, bet rides to next spin",
				"bet_id", res.Bet.ID,
				"spin_for", res.Bet.SpinFor,
				"zero_policy", cfg.ZeroPolicy,
			)
			o.gale = strategy.Observe(o.gale, out, cfg)
			handled = true
		case lifecycle.Voided:
			o.voided(ctx, res.Bet)
		}
	}
	if !handled {
		o.gale = strategy.Observe(o.gale, out, o.cfg.Strategy)
	}
	o.spinsSinceBet++

	o.afterTransition(ctx)
	o.decide(ctx, out.SpinNumber)
	o.publishSnapshot()
}

func (o *Orchestrator) record(ctx context.Context, out domain.Outcome) {
	o.lastSpin = out.SpinNumber

	o.mu.Lock()
	o.history = append(o.history, out)
	if len(o.history) > 2*o.cfg.HistorySize {
		o.history = append([]domain.Outcome(nil), o.history[len(o.history)-o.cfg.HistorySize:]...)
	}
	o.mu.Unlock()

	if o.deps.Outcomes != nil {
		if err := o.deps.Outcomes.SaveOutcome(ctx, out); err != nil {
			slog.Warn("orchestrator: outcome not persisted", "spin", out.SpinNumber, "err", err)
		}
	}
	o.deps.Events.Publish(domain.NewResult{Outcome: out})
}

// settle commits a won or lost bet. Ledger append, gale update and balance
// happen together; false means a fatal error stopped the loop.
func (o *Orchestrator) settle(ctx context.Context, bet domain.Bet, out domain.Outcome) bool {
	cfg := o.cfg.Strategy
	next := o.gale
	cycleLost := false
	if bet.Keepalive {
		next = strategy.Observe(o.gale, out, cfg)
	} else {
		next, cycleLost = strategy.SettleBet(o.gale, bet, out, cfg)
	}
	bet.CycleLost = cycleLost

	if !bet.Simulated {
		if err := o.ledger.Append(ctx, bet); err != nil {
			if !errors.Is(err, domain.ErrTransientIO) {
				o.lc.Finish()
				o.fail(ctx, err)
				return false
			}
			o.ioError(err.Error(), &bet)
		}
	}
	o.gale = next
	o.lc.Finish()

	outcome := out
	o.deps.Events.Publish(domain.BetResolved{
		Bet:           bet,
		Outcome:       &outcome,
		GaleStepAfter: next.Step,
		CycleLost:     cycleLost,
	})
	if !bet.Simulated {
		o.deps.Events.Publish(domain.BalanceUpdate{
			Balance: o.ledger.Balance(),
			Delta:   bet.PnL(),
			BetID:   bet.ID,
		})
	}

	attrs := []any{
		"bet_id", bet.ID,
		"spin", out.SpinNumber,
		"type", bet.Type,
		"amount", bet.Amount.StringFixed(2),
		"status", bet.Status,
		"gale_step", bet.GaleStep,
		"simulated", bet.Simulated,
		"balance", o.ledger.Balance().Current.StringFixed(2),
	}
	if cycleLost {
		slog.Warn("orchestrator: gale cycle lost", attrs...)
	} else {
		slog.Info("orchestrator: bet settled", attrs...)
	}
	return true
}

// voided records an indeterminate bet. The gale state is left untouched.
func (o *Orchestrator) voided(ctx context.Context, bet domain.Bet) {
	if !bet.Simulated {
		if err := o.ledger.Append(ctx, bet); err != nil && !errors.Is(err, domain.ErrTransientIO) {
			slog.Error("orchestrator: void bet rejected by ledger", "bet_id", bet.ID, "err", err)
		}
	}
	o.ioError("bet "+bet.ID+" voided: "+bet.VoidReason, &bet)
}

// decide asks for the next bet when the mode and the lifecycle allow it.
func (o *Orchestrator) decide(ctx context.Context, spin int64) {
	if o.status != domain.StatusRunning || !o.lc.Idle() {
		return
	}
	cfg := o.cfg.Strategy
	every := o.cfg.KeepaliveEverySpins
	keepaliveDue := every > 0 && o.spinsSinceBet >= every

	var (
		d  domain.Decision
		ok bool
	)
	switch o.cfg.Mode {
	case domain.ModeManualAnalysis:
		return
	case domain.ModeMaintenance:
		if !keepaliveDue {
			return
		}
		d, ok = o.engine.Keepalive(cfg)
	case domain.ModeFullAuto:
		d, ok = o.engine.Decide(o.gale, cfg)
		if !ok && keepaliveDue && !o.gale.InCycle() {
			d, ok = o.engine.Keepalive(cfg)
		}
	case domain.ModeDetectOnly:
		d, ok = o.engine.Decide(o.gale, cfg)
	}
	if !ok {
		return
	}

	simulated := o.cfg.Mode == domain.ModeDetectOnly
	verdict := risk.Authorize(d.Amount, d.Keepalive, o.ledger.Balance(), o.cfg.Risk)
	decision := domain.BetDecision{
		Decision:   d,
		SpinFor:    spin + 1,
		Simulated:  simulated,
		Allowed:    verdict.Allowed,
		DenyReason: verdict.Reason,
		DenyDetail: verdict.Detail,
	}
	if !verdict.Allowed {
		o.deps.Events.Publish(decision)
		slog.Warn("orchestrator: bet denied by risk guard",
			"reason", verdict.Reason,
			"detail", verdict.Detail,
			"amount", d.Amount.StringFixed(2),
			"gale_step", d.GaleStep,
		)
		if verdict.Fatal() {
			o.stopLossReached()
			return
		}
		if !d.Keepalive && o.gale.InCycle() {
			o.abandonCycle(verdict.Detail)
		}
		return
	}

	bet, err := o.lc.Open(d, spin+1, simulated)
	if err != nil {
		o.fail(ctx, err)
		return
	}
	o.gale = strategy.Open(o.gale, d)
	o.spinsSinceBet = 0
	decision.BetID = bet.ID
	o.deps.Events.Publish(decision)

	if simulated {
		placed, _ := o.lc.Placed(bet.ID, "simulated")
		o.deps.Events.Publish(domain.BetPlaced{Bet: placed})
		return
	}
	o.place(ctx, bet)
}

// abandonCycle ends a gale cycle whose next bet the risk guard refused.
// The losses so far stand and the streak window starts over.
func (o *Orchestrator) abandonCycle(detail string) {
	step := o.gale.Step
	o.gale = domain.GaleState{}
	msg := fmt.Sprintf("gale cycle abandoned at step %d: %s", step, detail)
	slog.Warn("orchestrator: " + msg)
	o.deps.Events.Publish(domain.ErrorEvent{Kind: domain.KindRiskViolation, Message: msg})
}

// place calls the executor off the loop; the result comes back on
// o.placements.
func (o *Orchestrator) place(ctx context.Context, bet domain.Bet) {
	exec := o.executor()
	if exec == nil {
		if voided, ok := o.lc.PlacementFailed(bet.ID, "no executor configured"); ok {
			o.voided(ctx, voided)
		}
		return
	}
	req := ports.PlaceRequest{BetID: bet.ID, Type: bet.Type, Amount: bet.Amount, SpinFor: bet.SpinFor}
	timeout := o.cfg.PlacementTimeout
	go func() {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ack, err := exec.Place(pctx, req)
		select {
		case o.placements <- placement{betID: req.BetID, ack: ack, err: err}:
		case <-ctx.Done():
		}
	}()
	slog.Info("orchestrator: placing bet",
		"bet_id", bet.ID,
		"spin_for", bet.SpinFor,
		"type", bet.Type,
		"amount", bet.Amount.StringFixed(2),
		"gale_step", bet.GaleStep,
		"keepalive", bet.Keepalive,
		"test_mode", o.cfg.TestMode,
	)
}

func (o *Orchestrator) onPlacement(ctx context.Context, p placement) {
	if p.err != nil {
		if bet, ok := o.lc.PlacementFailed(p.betID, p.err.Error()); ok {
			o.voided(ctx, bet)
		}
	} else if bet, ok := o.lc.Placed(p.betID, p.ack.Ref); ok {
		o.deps.Events.Publish(domain.BetPlaced{Bet: bet})
	} else {
		// The table took a bet the ledger already voided.
		o.ioError("late acknowledgement for bet "+p.betID+" (ref "+p.ack.Ref+") after it was voided: reconcile with the table", nil)
	}
	o.afterTransition(ctx)
	o.publishSnapshot()
}

// afterTransition applies what waits for the lifecycle to be idle: deferred
// mode and config, a requested stop, and the stop-loss check.
func (o *Orchestrator) afterTransition(ctx context.Context) {
	if !o.lc.Idle() {
		return
	}
	if o.pendingConfig != nil {
		next := *o.pendingConfig
		o.pendingConfig = nil
		o.applyConfig(next)
	}
	if o.pendingMode != nil {
		m := *o.pendingMode
		o.pendingMode = nil
		o.applyMode(m)
	}
	if o.status == domain.StatusStopping {
		o.setStatus(domain.StatusIdle, "stopped by operator", false)
	}
	o.checkStopLoss()
	o.publishSnapshot()
}

func (o *Orchestrator) checkStopLoss() {
	if o.status != domain.StatusRunning {
		return
	}
	if v := risk.CanStart(o.ledger.Balance(), o.cfg.Risk); !v.Allowed {
		o.stopLossReached()
	}
}

func (o *Orchestrator) stopLossReached() {
	bal := o.ledger.Balance()
	msg := "stop loss reached: balance " + bal.Current.StringFixed(2) + " <= " + o.cfg.Risk.StopLoss.StringFixed(2)
	slog.Error("orchestrator: " + msg)
	o.deps.Events.Publish(domain.ErrorEvent{Kind: domain.KindStopLossReached, Message: msg, Fatal: true})
	o.setStatus(domain.StatusIdle, risk.ReasonStopLossReached, true)
}
