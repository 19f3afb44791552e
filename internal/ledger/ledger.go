// Package ledger keeps the append-only record of settled bets and derives the
// balance from it.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

// Ledger is written by the orchestrator only; readers may call the query
// methods from any goroutine.
type Ledger struct {
	mu      sync.RWMutex
	store   ports.LedgerStore
	session domain.Session

	bets     []domain.Bet
	ids      map[string]struct{}
	unsynced []domain.Bet

	balance decimal.Decimal
	wins    int
	losses  int
	voids   int
}

// New creates an empty ledger for the session. store may be nil.
func New(store ports.LedgerStore, session domain.Session) *Ledger {
	return &Ledger{
		store:   store,
		session: session,
		ids:     make(map[string]struct{}),
		balance: session.InitialBalance,
	}
}

// Open starts a new session, or reloads the latest one when resume is set
// and one exists with the same test flag.
func Open(ctx context.Context, store ports.LedgerStore, initial decimal.Decimal, testMode, resume bool) (*Ledger, error) {
	if resume && store != nil {
		s, ok, err := store.LatestSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger.Open: latest session: %w", err)
		}
		if ok && s.TestMode == testMode {
			bets, err := store.LoadBets(ctx, s.ID)
			if err != nil {
				return nil, fmt.Errorf("ledger.Open: load bets: %w", err)
			}
			l := New(store, s)
			for _, b := range bets {
				if err := l.apply(b); err != nil {
					return nil, fmt.Errorf("ledger.Open: replay: %w", err)
				}
			}
			slog.Info("ledger: session resumed",
				"session", s.ID,
				"bets", len(bets),
				"balance", l.balance.StringFixed(2),
			)
			return l, nil
		}
	}

	s := domain.Session{
		ID:             uuid.NewString(),
		StartedAt:      time.Now().UTC(),
		TestMode:       testMode,
		InitialBalance: initial,
	}
	if store != nil {
		if err := store.CreateSession(ctx, s); err != nil {
			return nil, fmt.Errorf("ledger.Open: create session: %w", err)
		}
	}
	return New(store, s), nil
}

// Append records a terminal bet and persists it before returning. A bet that
// could not be persisted stays in the ledger and is retried on the next
// append; the error is reported as transient.
func (l *Ledger) Append(ctx context.Context, b domain.Bet) error {
	l.mu.Lock()
	if err := l.apply(b); err != nil {
		l.mu.Unlock()
		return err
	}
	l.unsynced = append(l.unsynced, b)
	l.mu.Unlock()

	return l.Flush(ctx)
}

// Flush persists bets whose earlier write failed.
func (l *Ledger) Flush(ctx context.Context) error {
	if l.store == nil {
		l.mu.Lock()
		l.unsynced = nil
		l.mu.Unlock()
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.unsynced) > 0 {
		b := l.unsynced[0]
		if err := l.store.AppendBet(ctx, l.session.ID, b); err != nil {
			return domain.NewError(domain.KindTransientIO, "ledger.Append",
				fmt.Errorf("persist bet %s: %w", b.ID, err))
		}
		l.unsynced = l.unsynced[1:]
	}
	return nil
}

// apply validates and folds a bet into memory. Caller holds the lock or owns l.
func (l *Ledger) apply(b domain.Bet) error {
	if !b.Status.Terminal() {
		return domain.Errorf(domain.KindInvariantViolation, "ledger.Append", "bet %s is %s, not terminal", b.ID, b.Status)
	}
	if b.Simulated {
		return domain.Errorf(domain.KindInvariantViolation, "ledger.Append", "bet %s is simulated", b.ID)
	}
	if _, dup := l.ids[b.ID]; dup {
		return domain.Errorf(domain.KindInvariantViolation, "ledger.Append", "bet %s already recorded", b.ID)
	}
	if b.Status != domain.BetVoid && b.ProfitLoss == nil {
		return domain.Errorf(domain.KindInvariantViolation, "ledger.Append", "bet %s has no profit_loss", b.ID)
	}

	l.ids[b.ID] = struct{}{}
	l.bets = append(l.bets, b)
	l.balance = l.balance.Add(b.PnL())
	switch b.Status {
	case domain.BetWon:
		l.wins++
	case domain.BetLost:
		l.losses++
	case domain.BetVoid:
		l.voids++
	}
	return nil
}

// Session returns the ledger's session.
func (l *Ledger) Session() domain.Session {
	return l.session
}

// Balance returns the current balance.
func (l *Ledger) Balance() domain.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.Balance{Current: l.balance, Initial: l.session.InitialBalance}
}

// Counts summarizes the ledger. Total counts settled (won or lost) bets.
type Counts struct {
	Total  int `json:"total_bets"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Voids  int `json:"voids"`
}

// Counts returns the bet counters.
func (l *Ledger) Counts() Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Counts{Total: l.wins + l.losses, Wins: l.wins, Losses: l.losses, Voids: l.voids}
}

// Recompute folds the balance from scratch. It always equals Balance().
func (l *Ledger) Recompute() domain.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sum := l.session.InitialBalance
	for _, b := range l.bets {
		sum = sum.Add(b.PnL())
	}
	return domain.Balance{Current: sum, Initial: l.session.InitialBalance}
}

// History returns a page of bets, newest first, and the total count.
func (l *Ledger) History(offset, limit int) ([]domain.Bet, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := len(l.bets)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []domain.Bet{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]domain.Bet, 0, end-offset)
	for i := total - 1 - offset; i >= total-end; i-- {
		page = append(page, l.bets[i])
	}
	return page, total
}

// Bets returns a copy of every bet in append order.
func (l *Ledger) Bets() []domain.Bet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Bet(nil), l.bets...)
}
