package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ledger"
)

type mockStore struct {
	sessions []domain.Session
	bets     map[string][]domain.Bet
	failNext bool
}

func newMockStore() *mockStore {
	return &mockStore{bets: make(map[string][]domain.Bet)}
}

func (m *mockStore) CreateSession(_ context.Context, s domain.Session) error {
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *mockStore) LatestSession(context.Context) (domain.Session, bool, error) {
	if len(m.sessions) == 0 {
		return domain.Session{}, false, nil
	}
	return m.sessions[len(m.sessions)-1], true, nil
}

func (m *mockStore) AppendBet(_ context.Context, sessionID string, b domain.Bet) error {
	if m.failNext {
		m.failNext = false
		return errors.New("disk full")
	}
	m.bets[sessionID] = append(m.bets[sessionID], b)
	return nil
}

func (m *mockStore) LoadBets(_ context.Context, sessionID string) ([]domain.Bet, error) {
	return m.bets[sessionID], nil
}

func (m *mockStore) Close() error { return nil }

func settled(id string, status domain.BetStatus, amount int64) domain.Bet {
	b := domain.Bet{
		ID:       id,
		SpinFor:  1,
		Type:     domain.BetOdd,
		Amount:   decimal.NewFromInt(amount),
		Strategy: "gale",
		PlacedAt: time.Now(),
		Status:   domain.BetPending,
	}
	if status == domain.BetVoid {
		return b.Void("timeout", time.Now())
	}
	return b.Settle(status, time.Now())
}

func TestLedger_AppendUpdatesBalance(t *testing.T) {
	store := newMockStore()
	l, err := ledger.Open(context.Background(), store, decimal.NewFromInt(100), false, false)
	require.NoError(t, err)

	require.NoError(t, l.Append(context.Background(), settled("a", domain.BetLost, 10)))
	require.NoError(t, l.Append(context.Background(), settled("b", domain.BetLost, 20)))
	require.NoError(t, l.Append(context.Background(), settled("c", domain.BetWon, 40)))
	require.NoError(t, l.Append(context.Background(), settled("d", domain.BetVoid, 10)))

	assert.Equal(t, "110.00", l.Balance().Current.StringFixed(2))
	assert.True(t, l.Balance().Current.Equal(l.Recompute().Current))
	assert.Equal(t, ledger.Counts{Total: 3, Wins: 1, Losses: 2, Voids: 1}, l.Counts())
	assert.Len(t, store.bets[l.Session().ID], 4)
}

func TestLedger_RejectsPendingAndDuplicates(t *testing.T) {
	l := ledger.New(nil, domain.Session{ID: "s", InitialBalance: decimal.NewFromInt(100)})

	pending := domain.Bet{ID: "p", Status: domain.BetPending, Amount: decimal.NewFromInt(1)}
	err := l.Append(context.Background(), pending)
	assert.True(t, errors.Is(err, domain.ErrInvariantViolation))

	require.NoError(t, l.Append(context.Background(), settled("a", domain.BetWon, 5)))
	err = l.Append(context.Background(), settled("a", domain.BetWon, 5))
	assert.True(t, errors.Is(err, domain.ErrInvariantViolation))
	assert.Equal(t, "105.00", l.Balance().Current.StringFixed(2))
}

func TestLedger_RejectsSimulated(t *testing.T) {
	l := ledger.New(nil, domain.Session{ID: "s", InitialBalance: decimal.NewFromInt(100)})
	b := settled("sim", domain.BetWon, 5)
	b.Simulated = true
	assert.True(t, errors.Is(l.Append(context.Background(), b), domain.ErrInvariantViolation))
}

func TestLedger_PersistFailureIsRetried(t *testing.T) {
	store := newMockStore()
	l, err := ledger.Open(context.Background(), store, decimal.NewFromInt(100), false, false)
	require.NoError(t, err)

	store.failNext = true
	err = l.Append(context.Background(), settled("a", domain.BetLost, 10))
	assert.True(t, errors.Is(err, domain.ErrTransientIO))
	assert.Equal(t, "90.00", l.Balance().Current.StringFixed(2))

	require.NoError(t, l.Append(context.Background(), settled("b", domain.BetWon, 10)))
	persisted := store.bets[l.Session().ID]
	require.Len(t, persisted, 2)
	assert.Equal(t, "a", persisted[0].ID)
}

func TestLedger_HistoryNewestFirst(t *testing.T) {
	l := ledger.New(nil, domain.Session{ID: "s", InitialBalance: decimal.NewFromInt(100)})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, l.Append(context.Background(), settled(id, domain.BetWon, 1)))
	}

	page, total := l.History(0, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "e", page[0].ID)
	assert.Equal(t, "d", page[1].ID)

	page, _ = l.History(4, 10)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	page, _ = l.History(10, 10)
	assert.Empty(t, page)
}

func TestLedger_Resume(t *testing.T) {
	store := newMockStore()
	first, err := ledger.Open(context.Background(), store, decimal.NewFromInt(100), false, false)
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), settled("a", domain.BetLost, 30)))

	resumed, err := ledger.Open(context.Background(), store, decimal.NewFromInt(500), false, true)
	require.NoError(t, err)
	assert.Equal(t, first.Session().ID, resumed.Session().ID)
	assert.Equal(t, "70.00", resumed.Balance().Current.StringFixed(2))
	assert.Equal(t, "100.00", resumed.Balance().Initial.StringFixed(2))

	// Test sessions never resume a live one.
	paper, err := ledger.Open(context.Background(), store, decimal.NewFromInt(500), true, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.Session().ID, paper.Session().ID)
	assert.Equal(t, "500.00", paper.Balance().Current.StringFixed(2))
}
