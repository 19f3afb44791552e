package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/adapters/notify"
	"github.com/alejandrodnm/galebot/internal/domain"
)

func event(seq uint64, p domain.Payload) domain.Event {
	return domain.Event{Seq: seq, Time: time.Now(), Payload: p}
}

func settled(status domain.BetStatus) domain.Bet {
	b := domain.Bet{
		ID:       "b1",
		SpinFor:  42,
		Type:     domain.BetOdd,
		Amount:   decimal.NewFromInt(20),
		GaleStep: 1,
		Strategy: "gale",
		PlacedAt: time.Now(),
		Status:   domain.BetPending,
	}
	return b.Settle(status, time.Now())
}

func TestConsole_Handle_Feed(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)
	ctx := context.Background()

	o := domain.NewOutcome(42, 7, time.Now())
	require.NoError(t, c.Handle(ctx, event(1, domain.StatusChange{Status: domain.StatusRunning, Previous: domain.StatusIdle, Mode: domain.ModeFullAuto})))
	require.NoError(t, c.Handle(ctx, event(2, domain.NewResult{Outcome: o})))
	require.NoError(t, c.Handle(ctx, event(3, domain.BetResolved{Bet: settled(domain.BetWon), Outcome: &o})))
	require.NoError(t, c.Handle(ctx, event(4, domain.BalanceUpdate{
		Balance: domain.Balance{Current: decimal.NewFromInt(1020), Initial: decimal.NewFromInt(1000)},
		Delta:   decimal.NewFromInt(20),
	})))

	out := buf.String()
	assert.Contains(t, out, "idle → running (full_auto)")
	assert.NotContains(t, out, "SPIN", "results are only printed in verbose mode")
	assert.Contains(t, out, "WON")
	assert.Contains(t, out, "pnl=+20.00")
	assert.Contains(t, out, "on 7 R")
	assert.Contains(t, out, "BALANCE 1020.00 (+20.00) session=+20.00")
}

func TestConsole_Handle_VerboseAndErrors(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)
	ctx := context.Background()

	void := settled(domain.BetPending).Void("outcome_timeout", time.Now())
	lost := settled(domain.BetLost)

	require.NoError(t, c.Handle(ctx, event(1, domain.NewResult{Outcome: domain.NewOutcome(7, 0, time.Now())})))
	require.NoError(t, c.Handle(ctx, event(2, domain.BetDecision{
		Decision: domain.Decision{Type: domain.BetRed, Amount: decimal.NewFromInt(40), GaleStep: 2},
		SpinFor:  8, DenyReason: "stop_loss_breach",
	})))
	require.NoError(t, c.Handle(ctx, event(3, domain.ErrorEvent{Kind: domain.KindTransientIO, Message: "timeout", Bet: &void})))
	require.NoError(t, c.Handle(ctx, event(4, domain.BetResolved{Bet: lost, CycleLost: true})))
	require.NoError(t, c.Handle(ctx, event(5, domain.ErrorEvent{Kind: domain.KindStopLossReached, Message: "balance at floor", Fatal: true})))

	out := buf.String()
	assert.Contains(t, out, "SPIN    7 →  0 G")
	assert.Contains(t, out, "DENIED  red $40.00 step=2 spin=8 reason=stop_loss_breach")
	assert.Contains(t, out, "VOID    odd $20.00 spin=42 reason=outcome_timeout")
	assert.Contains(t, out, "[cycle lost]")
	assert.Contains(t, out, "stop_loss_reached: balance at floor [fatal]")
	assert.Equal(t, "console", c.Name())
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	lost := settled(domain.BetLost)
	lost.CycleLost = true
	c.PrintReport(notify.ReportInput{
		Session: domain.Session{ID: "sess-1", StartedAt: time.Now().Add(-time.Hour), TestMode: true},
		Balance: domain.Balance{Current: decimal.NewFromInt(980), Initial: decimal.NewFromInt(1000)},
		Report: domain.Report{
			Daily:    []domain.DailyStats{{Date: "2026-03-01", Spins: 12, Bets: 1, Losses: 1, ProfitLoss: decimal.NewFromInt(-20)}},
			Gale:     []domain.GaleStats{{Step: 1, Bets: 1, Losses: 1, ProfitLoss: decimal.NewFromInt(-20)}},
			Strategy: []domain.StrategyStats{{Strategy: "gale", Bets: 1, Losses: 1, CyclesLost: 1, ProfitLoss: decimal.NewFromInt(-20)}},
		},
		Recent: []domain.Bet{lost},
	})

	out := buf.String()
	assert.Contains(t, out, "sess-1 (test")
	assert.Contains(t, out, "-20.00")
	assert.Contains(t, out, "2026-03-01")
	assert.Contains(t, out, "cycle lost")
}

func TestConsole_PrintReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)
	c.PrintReport(notify.ReportInput{})
	assert.Contains(t, buf.String(), "(none)")
}
