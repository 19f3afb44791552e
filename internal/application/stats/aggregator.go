// Package stats folds the event stream into daily, gale-step and strategy
// statistics. The same fold runs over the ledger, so both views agree.
package stats

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Seeder loads what a ledger session already holds: its bets and the
// outcomes observed since it started.
type Seeder func(ctx context.Context, sessionID string) ([]domain.Bet, []domain.Outcome, error)

// Aggregator is a broadcast subscriber. Wrap it with broadcast.Dedup.
//
// The statistics follow one ledger session. When a status change names a
// different session the buckets are rebuilt from the seeder, and events
// already folded by that seed are skipped.
type Aggregator struct {
	mu     sync.RWMutex
	loc    *time.Location
	seeder Seeder

	session    string
	seeded     map[string]struct{}
	seededSpin int64

	daily    map[string]*domain.DailyStats
	gale     map[int]*domain.GaleStats
	strategy map[string]*domain.StrategyStats
}

// NewAggregator creates an empty aggregator bucketing days in loc (UTC if nil).
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	a := &Aggregator{loc: loc}
	a.reset()
	return a
}

// WithSeeder sets how a new session's history is loaded.
func (a *Aggregator) WithSeeder(s Seeder) *Aggregator {
	a.seeder = s
	return a
}

// Session returns the ledger session the statistics belong to, "" until
// the first status change or SeedSession names one.
func (a *Aggregator) Session() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

func (a *Aggregator) reset() {
	a.seeded = make(map[string]struct{})
	a.seededSpin = 0
	a.daily = make(map[string]*domain.DailyStats)
	a.gale = make(map[int]*domain.GaleStats)
	a.strategy = make(map[string]*domain.StrategyStats)
}

func (a *Aggregator) Name() string { return "stats" }

// Handle folds one event. Simulated bets never count.
func (a *Aggregator) Handle(ctx context.Context, e domain.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch p := e.Payload.(type) {
	case domain.StatusChange:
		a.switchSession(ctx, p.SessionID)
	case domain.NewResult:
		if p.Outcome.SpinNumber > a.seededSpin {
			a.spin(p.Outcome)
		}
	case domain.BetResolved:
		if !p.Bet.Simulated {
			b := p.Bet
			b.CycleLost = b.CycleLost || p.CycleLost
			a.bet(b)
		}
	case domain.ErrorEvent:
		if p.Bet != nil && p.Bet.Status == domain.BetVoid && !p.Bet.Simulated {
			a.bet(*p.Bet)
		}
	}
	return nil
}

// switchSession rebuilds the buckets for a session other than the current
// one. The first session named is adopted as is.
func (a *Aggregator) switchSession(ctx context.Context, id string) {
	if id == "" || id == a.session {
		return
	}
	prev := a.session
	a.session = id
	if prev == "" {
		return
	}

	a.reset()
	if a.seeder == nil {
		slog.Info("stats: session changed, statistics reset", "from", prev, "to", id)
		return
	}
	bets, outcomes, err := a.seeder(ctx, id)
	if err != nil {
		slog.Warn("stats: could not load session history", "session", id, "err", err)
	}
	a.fold(bets, outcomes)
	slog.Info("stats: session changed, statistics rebuilt",
		"from", prev,
		"to", id,
		"bets", len(bets),
		"spins", len(outcomes),
	)
}

// FromLedger derives the statistics from the ledger and the recorded
// outcomes alone.
func FromLedger(bets []domain.Bet, outcomes []domain.Outcome, loc *time.Location) domain.Report {
	a := NewAggregator(loc)
	a.Seed(bets, outcomes)
	return a.Report()
}

// Seed folds history recorded before the aggregator subscribed, such as a
// resumed session.
func (a *Aggregator) Seed(bets []domain.Bet, outcomes []domain.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fold(bets, outcomes)
}

// SeedSession is Seed for a known session, so a later status change naming
// it does not rebuild the buckets.
func (a *Aggregator) SeedSession(id string, bets []domain.Bet, outcomes []domain.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = id
	a.fold(bets, outcomes)
}

func (a *Aggregator) fold(bets []domain.Bet, outcomes []domain.Outcome) {
	for _, o := range outcomes {
		a.spin(o)
		if o.SpinNumber > a.seededSpin {
			a.seededSpin = o.SpinNumber
		}
	}
	for _, b := range bets {
		if b.Simulated {
			continue
		}
		a.bet(b)
		if b.Status != domain.BetPending {
			a.seeded[b.ID] = struct{}{}
		}
	}
}

func (a *Aggregator) day(t time.Time) *domain.DailyStats {
	key := t.In(a.loc).Format(domain.DayFormat)
	d, ok := a.daily[key]
	if !ok {
		d = &domain.DailyStats{Date: key}
		a.daily[key] = d
	}
	return d
}

func (a *Aggregator) spin(o domain.Outcome) {
	a.day(o.ObservedAt).Spins++
}

func (a *Aggregator) bet(b domain.Bet) {
	if _, ok := a.seeded[b.ID]; ok {
		return
	}
	at := b.PlacedAt
	if b.ResolvedAt != nil {
		at = *b.ResolvedAt
	}
	d := a.day(at)
	if b.Status == domain.BetVoid {
		d.Voids++
		return
	}
	if b.Status != domain.BetWon && b.Status != domain.BetLost {
		return
	}

	g, ok := a.gale[b.GaleStep]
	if !ok {
		g = &domain.GaleStats{Step: b.GaleStep}
		a.gale[b.GaleStep] = g
	}
	s, ok := a.strategy[b.Strategy]
	if !ok {
		s = &domain.StrategyStats{Strategy: b.Strategy}
		a.strategy[b.Strategy] = s
	}

	pnl := b.PnL()
	d.Bets++
	g.Bets++
	s.Bets++
	d.ProfitLoss = d.ProfitLoss.Add(pnl)
	g.ProfitLoss = g.ProfitLoss.Add(pnl)
	s.ProfitLoss = s.ProfitLoss.Add(pnl)
	if b.Status == domain.BetWon {
		d.Wins++
		g.Wins++
		s.Wins++
	} else {
		d.Losses++
		g.Losses++
		s.Losses++
		if b.CycleLost {
			s.CyclesLost++
		}
	}
}

// Daily returns the day buckets, oldest first.
func (a *Aggregator) Daily() []domain.DailyStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.DailyStats, 0, len(a.daily))
	for _, d := range a.daily {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Gale returns the gale-step buckets by step.
func (a *Aggregator) Gale() []domain.GaleStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.GaleStats, 0, len(a.gale))
	for _, g := range a.gale {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

// Strategy returns the strategy buckets by name.
func (a *Aggregator) Strategy() []domain.StrategyStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.StrategyStats, 0, len(a.strategy))
	for _, s := range a.strategy {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

// Report returns all three views.
func (a *Aggregator) Report() domain.Report {
	return domain.Report{Daily: a.Daily(), Gale: a.Gale(), Strategy: a.Strategy()}
}
