package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/application/broadcast"
	"github.com/alejandrodnm/galebot/internal/application/lifecycle"
	"github.com/alejandrodnm/galebot/internal/application/orchestrator"
	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ledger"
	"github.com/alejandrodnm/galebot/internal/ports"
)

const waitFor = 2 * time.Second

// epoch is the day the harness plays on. Outcomes and bets are stamped
// relative to it so day buckets never depend on the date the tests run.
var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- fakes ---

type fakeSource struct {
	mu        sync.Mutex
	chans     []chan domain.Outcome
	calls     int
	failFirst int
}

func (f *fakeSource) Outcomes(context.Context) (<-chan domain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, errors.New("detector offline")
	}
	ch := make(chan domain.Outcome)
	f.chans = append(f.chans, ch)
	return ch, nil
}

func (f *fakeSource) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeSource) current() chan domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chans) == 0 {
		return nil
	}
	return f.chans[len(f.chans)-1]
}

type fakeExecutor struct {
	mu    sync.Mutex
	reqs  []ports.PlaceRequest
	err   error
	block chan struct{}
}

func (f *fakeExecutor) Place(ctx context.Context, req ports.PlaceRequest) (ports.PlaceAck, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ports.PlaceAck{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return ports.PlaceAck{}, f.err
	}
	return ports.PlaceAck{Ref: "ack-" + req.BetID, AcceptedAt: time.Now()}, nil
}

func (f *fakeExecutor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeExecutor) amounts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.reqs))
	for _, r := range f.reqs {
		out = append(out, r.Amount.StringFixed(2))
	}
	return out
}

func (f *fakeExecutor) requests() []ports.PlaceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.PlaceRequest(nil), f.reqs...)
}

type fakeConfigStore struct {
	err   error
	saved int
}

func (f *fakeConfigStore) SaveStrategy(domain.StrategyConfig, domain.RiskConfig) error {
	if f.err != nil {
		return f.err
	}
	f.saved++
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Name() string { return "test" }

func (l *eventLog) Handle(_ context.Context, e domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) all() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

func (l *eventLog) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range l.all() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// --- harness ---

type harness struct {
	t      *testing.T
	o      *orchestrator.Orchestrator
	src    *fakeSource
	exec   *fakeExecutor
	paper  *fakeExecutor
	store  *fakeConfigStore
	bus    *broadcast.Broadcaster
	events *eventLog
}

func baseConfig() orchestrator.Config {
	s := domain.DefaultStrategyConfig()
	s.BaseBet = d("10")
	s.StreakLength = 2
	s.MaxGales = 2
	return orchestrator.Config{
		Mode:          domain.ModeFullAuto,
		Strategy:      s,
		Risk:          domain.RiskConfig{InitialBalance: d("1000"), StopLoss: d("0"), GuaranteeFundPct: d("0")},
		ReconnectBase: time.Millisecond,
		ReconnectMax:  5 * time.Millisecond,
	}
}

func newHarness(t *testing.T, mutate func(*orchestrator.Config)) *harness {
	t.Helper()
	cfg := baseConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		t:      t,
		src:    &fakeSource{},
		exec:   &fakeExecutor{},
		paper:  &fakeExecutor{},
		store:  &fakeConfigStore{},
		bus:    broadcast.New(broadcast.DefaultOptions()),
		events: &eventLog{},
	}
	h.bus.Subscribe(h.events)

	initial := cfg.Risk.InitialBalance
	began := time.Now()
	l := ledger.New(nil, domain.Session{ID: "live", InitialBalance: initial})
	o, err := orchestrator.New(cfg, orchestrator.Deps{
		Source:   h.src,
		Executor: h.exec,
		Paper:    h.paper,
		Ledger:   l,
		NewLedger: func(_ context.Context, testMode bool) (*ledger.Ledger, error) {
			return ledger.New(nil, domain.Session{ID: "paper", TestMode: testMode, InitialBalance: initial}), nil
		},
		Events:      h.bus,
		ConfigStore: h.store,
		Clock:       func() time.Time { return epoch.Add(time.Since(began)) },
	})
	require.NoError(t, err)
	h.o = o

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		h.bus.Close()
	})

	require.Eventually(t, func() bool { return h.src.current() != nil }, waitFor, time.Millisecond)
	return h
}

func (h *harness) start(mode domain.Mode) domain.Snapshot {
	h.t.Helper()
	snap, err := h.o.Start(context.Background(), mode, false)
	require.NoError(h.t, err)
	return snap
}

// send delivers an outcome without waiting for it to be processed.
func (h *harness) send(spin int64, value int) {
	h.t.Helper()
	var ch chan domain.Outcome
	require.Eventually(h.t, func() bool {
		ch = h.src.current()
		return ch != nil
	}, waitFor, time.Millisecond)
	select {
	case ch <- domain.NewOutcome(spin, value, epoch.Add(time.Duration(spin)*time.Second)):
	case <-time.After(waitFor):
		h.t.Fatalf("outcome %d not consumed", spin)
	}
}

// feed delivers an outcome and waits until the loop processed it and any
// placement it triggered was acknowledged.
func (h *harness) feed(spin int64, value int) domain.Snapshot {
	h.t.Helper()
	h.send(spin, value)
	var snap domain.Snapshot
	require.Eventually(h.t, func() bool {
		snap = h.o.Snapshot()
		return snap.LastSpin == spin && snap.Phase != string(lifecycle.PhasePendingPlacement)
	}, waitFor, time.Millisecond)
	return snap
}

func (h *harness) feedAll(first int64, values ...int) domain.Snapshot {
	h.t.Helper()
	var snap domain.Snapshot
	for i, v := range values {
		snap = h.feed(first+int64(i), v)
	}
	return snap
}

func (h *harness) waitEvents(t domain.EventType, n int) []domain.Event {
	h.t.Helper()
	var got []domain.Event
	require.Eventually(h.t, func() bool {
		got = h.events.ofType(t)
		return len(got) >= n
	}, waitFor, time.Millisecond, "waiting for %d %s events", n, t)
	return got
}
