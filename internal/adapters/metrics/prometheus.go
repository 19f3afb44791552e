// Package metrics exposes the event stream as Prometheus collectors.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Recorder implements ports.Subscriber, folding every event into counters
// and gauges.
type Recorder struct {
	spins      prometheus.Counter
	decisions  *prometheus.CounterVec
	bets       *prometheus.CounterVec
	cyclesLost prometheus.Counter
	errorsTot  *prometheus.CounterVec
	balance    prometheus.Gauge
	profitLoss prometheus.Gauge
	galeStep   prometheus.Gauge
	status     *prometheus.GaugeVec
	lastSeq    prometheus.Gauge
	staked     *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg uses the default
// registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		spins: f.NewCounter(prometheus.CounterOpts{
			Name: "galebot_spins_total",
			Help: "Outcomes recorded",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "galebot_bet_decisions_total",
			Help: "Strategy decisions by risk verdict",
		}, []string{"allowed", "reason"}),
		bets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "galebot_bets_total",
			Help: "Terminal bets by status and whether they were simulated",
		}, []string{"status", "simulated"}),
		cyclesLost: f.NewCounter(prometheus.CounterOpts{
			Name: "galebot_gale_cycles_lost_total",
			Help: "Losses that exhausted the gale cycle",
		}),
		errorsTot: f.NewCounterVec(prometheus.CounterOpts{
			Name: "galebot_errors_total",
			Help: "Error events by kind",
		}, []string{"kind"}),
		balance: f.NewGauge(prometheus.GaugeOpts{
			Name: "galebot_balance",
			Help: "Current ledger balance",
		}),
		profitLoss: f.NewGauge(prometheus.GaugeOpts{
			Name: "galebot_session_profit_loss",
			Help: "Balance minus the session's initial balance",
		}),
		galeStep: f.NewGauge(prometheus.GaugeOpts{
			Name: "galebot_gale_step",
			Help: "Gale step after the last settlement",
		}),
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "galebot_status",
			Help: "1 for the current bot status, 0 otherwise",
		}, []string{"status"}),
		lastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "galebot_event_sequence",
			Help: "Sequence number of the last event seen",
		}),
		staked: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "galebot_bet_amount",
			Help:    "Amount of placed bets",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"gale_step"}),
	}
}

// Name identifies the recorder among the event subscribers.
func (r *Recorder) Name() string { return "metrics" }

// Handle updates the collectors for one event.
func (r *Recorder) Handle(_ context.Context, e domain.Event) error {
	r.lastSeq.Set(float64(e.Seq))

	switch p := e.Payload.(type) {
	case domain.StatusChange:
		for _, s := range []domain.Status{domain.StatusIdle, domain.StatusRunning, domain.StatusStopping, domain.StatusError} {
			v := 0.0
			if s == p.Status {
				v = 1
			}
			r.status.WithLabelValues(string(s)).Set(v)
		}

	case domain.NewResult:
		r.spins.Inc()

	case domain.BetDecision:
		reason := p.DenyReason
		if p.Allowed {
			reason = "none"
		}
		r.decisions.WithLabelValues(boolLabel(p.Allowed), reason).Inc()

	case domain.BetPlaced:
		amount, _ := p.Bet.Amount.Float64()
		r.staked.WithLabelValues(stepLabel(p.Bet.GaleStep)).Observe(amount)

	case domain.BetResolved:
		r.bets.WithLabelValues(string(p.Bet.Status), boolLabel(p.Bet.Simulated)).Inc()
		if !p.Bet.Simulated {
			r.galeStep.Set(float64(p.GaleStepAfter))
			if p.CycleLost {
				r.cyclesLost.Inc()
			}
		}

	case domain.BalanceUpdate:
		cur, _ := p.Balance.Current.Float64()
		pl, _ := p.Balance.ProfitLoss().Float64()
		r.balance.Set(cur)
		r.profitLoss.Set(pl)

	case domain.ErrorEvent:
		r.errorsTot.WithLabelValues(string(p.Kind)).Inc()
		if p.Bet != nil && p.Bet.Status == domain.BetVoid {
			r.bets.WithLabelValues(string(domain.BetVoid), boolLabel(p.Bet.Simulated)).Inc()
		}
	}
	return nil
}

// SetBalance seeds the balance gauges before the first event arrives.
func (r *Recorder) SetBalance(b domain.Balance) {
	cur, _ := b.Current.Float64()
	pl, _ := b.ProfitLoss().Float64()
	r.balance.Set(cur)
	r.profitLoss.Set(pl)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func stepLabel(step int) string {
	if step > 9 {
		return "10+"
	}
	return strconv.Itoa(step)
}
