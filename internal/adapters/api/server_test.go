package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/adapters/api"
	"github.com/alejandrodnm/galebot/internal/application/broadcast"
	"github.com/alejandrodnm/galebot/internal/application/orchestrator"
	"github.com/alejandrodnm/galebot/internal/domain"
)

type fakeBot struct {
	mu       sync.Mutex
	snap     domain.Snapshot
	cfg      orchestrator.Config
	bets     []domain.Bet
	outcomes []domain.Outcome
	denial   *domain.Denial
	started  []domain.Mode
	updates  []orchestrator.ConfigUpdate
	persist  bool
}

func (f *fakeBot) result() (domain.Snapshot, error) {
	if f.denial != nil {
		return f.snap, f.denial
	}
	return f.snap, nil
}

func (f *fakeBot) Start(_ context.Context, mode domain.Mode, testMode bool) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, mode)
	if f.denial == nil {
		f.snap.Status = domain.StatusRunning
		f.snap.Mode = mode
		f.snap.TestMode = testMode
	}
	return f.result()
}

func (f *fakeBot) Stop(context.Context) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Status = domain.StatusIdle
	return f.result()
}

func (f *fakeBot) SetMode(_ context.Context, mode domain.Mode) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := domain.ParseMode(string(mode)); err != nil {
		return f.snap, &domain.Denial{Code: domain.DenyInvalidMode, Message: err.Error()}
	}
	f.snap.Mode = mode
	return f.result()
}

func (f *fakeBot) UpdateConfig(_ context.Context, u orchestrator.ConfigUpdate, persist bool) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	f.persist = persist
	return f.result()
}

func (f *fakeBot) Snapshot() domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeBot) Balance() domain.Balance { return f.Snapshot().Balance }

func (f *fakeBot) ActiveBet() (domain.Bet, bool) {
	s := f.Snapshot()
	if s.ActiveBet == nil {
		return domain.Bet{}, false
	}
	return *s.ActiveBet, true
}

func (f *fakeBot) Ledger(offset, limit int) ([]domain.Bet, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.bets) {
		return nil, len(f.bets)
	}
	end := offset + limit
	if end > len(f.bets) {
		end = len(f.bets)
	}
	return f.bets[offset:end], len(f.bets)
}

func (f *fakeBot) RecentOutcomes(limit int) []domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.outcomes) {
		limit = len(f.outcomes)
	}
	return f.outcomes[:limit]
}

func (f *fakeBot) Config() orchestrator.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

type fakeStats struct{}

func (fakeStats) Daily() []domain.DailyStats {
	return []domain.DailyStats{{Date: "2026-03-01", Spins: 10, Bets: 2, Wins: 1, Losses: 1}}
}
func (fakeStats) Gale() []domain.GaleStats         { return []domain.GaleStats{{Step: 0, Bets: 2}} }
func (fakeStats) Strategy() []domain.StrategyStats { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *fakeBot, *broadcast.Broadcaster) {
	t.Helper()
	bot := &fakeBot{
		snap: domain.Snapshot{
			Status:  domain.StatusIdle,
			Mode:    domain.ModeDetectOnly,
			Balance: domain.Balance{Current: decimal.NewFromInt(1010), Initial: decimal.NewFromInt(1000)},
		},
		cfg: orchestrator.Config{
			Mode:           domain.ModeDetectOnly,
			Strategy:       domain.DefaultStrategyConfig(),
			Risk:           domain.RiskConfig{InitialBalance: decimal.NewFromInt(1000)},
			OutcomeTimeout: 90 * time.Second,
		},
	}
	bus := broadcast.New(broadcast.DefaultOptions())
	srv := httptest.NewServer(api.NewServer(bot, fakeStats{}, bus, api.Options{Gatherer: prometheus.NewRegistry()}).Router())
	t.Cleanup(func() {
		srv.Close()
		bus.Close()
	})
	return srv, bot, bus
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestStart_UsesCurrentModeByDefault(t *testing.T) {
	srv, bot, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/bot/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, []domain.Mode{domain.ModeDetectOnly}, bot.started)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/bot/start", `{"mode":"full_auto","test_mode":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "full_auto", body["mode"])
	assert.Equal(t, true, body["test_mode"])
}

func TestStart_DenialMapsToConflict(t *testing.T) {
	srv, bot, _ := newTestServer(t)
	bot.denial = &domain.Denial{Code: domain.DenyStopLoss, Message: "balance at floor"}

	resp, body := do(t, http.MethodPost, srv.URL+"/api/bot/start", `{"mode":"full_auto"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "stop_loss_reached", errBody["code"])
	assert.NotNil(t, body["status"])
}

func TestMode_InvalidIsBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/bot/mode", `{"mode":"turbo"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/bot/mode", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/bot/mode", `{"mode":"maintenance"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "maintenance", body["mode"])
}

func TestConfigUpdate_MergesPartialStrategy(t *testing.T) {
	srv, bot, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPut, srv.URL+"/api/config",
		`{"strategy":{"base_bet":"2.5","max_gales":4},"outcome_timeout":"45s","persist":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, bot.updates, 1)
	u := bot.updates[0]
	require.NotNil(t, u.Strategy)
	assert.True(t, u.Strategy.BaseBet.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 4, u.Strategy.MaxGales)
	assert.Equal(t, domain.MarketParity, u.Strategy.Market, "fields not sent keep their value")
	assert.Nil(t, u.Risk)
	require.NotNil(t, u.OutcomeTimeout)
	assert.Equal(t, 45*time.Second, *u.OutcomeTimeout)
	assert.True(t, bot.persist)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/config", `{"outcome_timeout":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueries(t *testing.T) {
	srv, bot, _ := newTestServer(t)
	won := domain.Bet{ID: "b1", Type: domain.BetRed, Amount: decimal.NewFromInt(10), Status: domain.BetPending}.Settle(domain.BetWon, time.Now())
	bot.bets = []domain.Bet{won}
	bot.outcomes = []domain.Outcome{domain.NewOutcome(3, 12, time.Now()), domain.NewOutcome(2, 0, time.Now())}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1010", body["current"])
	assert.Equal(t, "10", body["profit_loss"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/ledger?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	assert.Len(t, body["bets"], 1)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/ledger?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/bet", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["bet"])

	r, err := http.Get(srv.URL + "/api/outcomes?limit=1")
	require.NoError(t, err)
	var outcomes []domain.Outcome
	require.NoError(t, json.NewDecoder(r.Body).Decode(&outcomes))
	r.Body.Close()
	require.Len(t, outcomes, 1)
	assert.Equal(t, int64(3), outcomes[0].SpinNumber)

	r, err = http.Get(srv.URL + "/api/stats/daily")
	require.NoError(t, err)
	var daily []domain.DailyStats
	require.NoError(t, json.NewDecoder(r.Body).Decode(&daily))
	r.Body.Close()
	require.Len(t, daily, 1)
	assert.Equal(t, 10, daily[0].Spins)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1m30s", body["outcome_timeout"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv, bot, _ := newTestServer(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bot.mu.Lock()
	bot.snap.Status = domain.StatusError
	bot.mu.Unlock()
	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	r, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestEvents_ReplaysThenStreams(t *testing.T) {
	srv, _, bus := newTestServer(t)

	bus.Publish(domain.NewResult{Outcome: domain.NewOutcome(1, 5, time.Now())})
	bus.Publish(domain.NewResult{Outcome: domain.NewOutcome(2, 6, time.Now())})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?after=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	first := read()
	assert.Equal(t, float64(2), first["sequence"])
	assert.Equal(t, "new_result", first["type"])

	bus.Publish(domain.StatusChange{Status: domain.StatusRunning, Previous: domain.StatusIdle})
	second := read()
	assert.Equal(t, float64(3), second["sequence"])
	assert.Equal(t, "status_change", second["type"])
}

func TestEvents_BadCursor(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/events?after=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
