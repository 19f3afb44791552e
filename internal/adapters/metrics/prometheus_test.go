package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/adapters/metrics"
	"github.com/alejandrodnm/galebot/internal/domain"
)

func TestRecorder_FoldsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)
	ctx := context.Background()
	now := time.Now()

	bet := domain.Bet{ID: "b1", Type: domain.BetRed, Amount: decimal.NewFromInt(20), GaleStep: 1, Status: domain.BetPending}
	lost := bet.Settle(domain.BetLost, now)
	void := bet.Void("missed_spin", now)

	events := []domain.Payload{
		domain.StatusChange{Status: domain.StatusRunning, Previous: domain.StatusIdle},
		domain.NewResult{Outcome: domain.NewOutcome(1, 3, now)},
		domain.NewResult{Outcome: domain.NewOutcome(2, 4, now)},
		domain.BetDecision{Allowed: true},
		domain.BetDecision{DenyReason: "stop_loss_breach"},
		domain.BetPlaced{Bet: bet},
		domain.BetResolved{Bet: lost, GaleStepAfter: 2, CycleLost: true},
		domain.BalanceUpdate{Balance: domain.Balance{Current: decimal.NewFromInt(980), Initial: decimal.NewFromInt(1000)}},
		domain.ErrorEvent{Kind: domain.KindTransientIO, Bet: &void},
	}
	for i, p := range events {
		require.NoError(t, r.Handle(ctx, domain.Event{Seq: uint64(i + 1), Time: now, Payload: p}))
	}

	assert.Equal(t, 2.0, counterValue(t, reg, "galebot_spins_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "galebot_gale_cycles_lost_total"))
	assert.Equal(t, 980.0, counterValue(t, reg, "galebot_balance"))
	assert.Equal(t, -20.0, counterValue(t, reg, "galebot_session_profit_loss"))
	assert.Equal(t, 2.0, counterValue(t, reg, "galebot_gale_step"))
	assert.Equal(t, 9.0, counterValue(t, reg, "galebot_event_sequence"))
	assert.Equal(t, "metrics", r.Name())
}

func TestRecorder_SetBalance(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)
	r.SetBalance(domain.Balance{Current: decimal.RequireFromString("1050.5"), Initial: decimal.NewFromInt(1000)})
	assert.Equal(t, 1050.5, counterValue(t, reg, "galebot_balance"))
	assert.Equal(t, 50.5, counterValue(t, reg, "galebot_session_profit_loss"))
}

// counterValue reads an unlabeled counter or gauge from the registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		require.Len(t, f.GetMetric(), 1)
		m := f.GetMetric()[0]
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
