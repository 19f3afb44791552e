package orchestrator

import "github.com/alejandrodnm/galebot/internal/domain"

// Snapshot returns the state published after the last transition.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// Balance returns the current balance.
func (o *Orchestrator) Balance() domain.Balance {
	return o.currentLedger().Balance()
}

// ActiveBet returns the bet in flight, if any.
func (o *Orchestrator) ActiveBet() (domain.Bet, bool) {
	s := o.Snapshot()
	if s.ActiveBet == nil {
		return domain.Bet{}, false
	}
	return *s.ActiveBet, true
}

// Ledger returns a page of settled bets, newest first, and the total.
func (o *Orchestrator) Ledger(offset, limit int) ([]domain.Bet, int) {
	return o.currentLedger().History(offset, limit)
}

// LedgerBets returns every bet of the current session in append order.
func (o *Orchestrator) LedgerBets() []domain.Bet {
	return o.currentLedger().Bets()
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (o *Orchestrator) RecentOutcomes(limit int) []domain.Outcome {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := len(o.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Outcome, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, o.history[i])
	}
	return out
}

// Config returns a copy of the configuration currently in effect.
func (o *Orchestrator) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfgView.clone()
}
