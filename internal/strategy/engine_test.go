package strategy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/strategy"
)

func parityConfig() domain.StrategyConfig {
	cfg := domain.DefaultStrategyConfig()
	cfg.BaseBet = decimal.NewFromInt(10)
	cfg.StreakLength = 2
	cfg.MaxGales = 2
	return cfg
}

func outcome(spin int64, value int) domain.Outcome {
	return domain.NewOutcome(spin, value, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func observeAll(g domain.GaleState, cfg domain.StrategyConfig, values ...int) domain.GaleState {
	for i, v := range values {
		g = strategy.Observe(g, outcome(int64(i+1), v), cfg)
	}
	return g
}

func betType(t domain.BetType) *domain.BetType { return &t }

func TestDecide_NoBetUntilStreakForms(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()

	g := observeAll(domain.GaleState{}, cfg, 2)
	_, ok := e.Decide(g, cfg)
	assert.False(t, ok)

	g = observeAll(domain.GaleState{}, cfg, 2, 3)
	_, ok = e.Decide(g, cfg)
	assert.False(t, ok, "mixed streak must not trigger")
}

func TestDecide_OppositePattern(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()

	g := observeAll(domain.GaleState{}, cfg, 2, 4)
	d, ok := e.Decide(g, cfg)
	require.True(t, ok)
	assert.Equal(t, domain.BetOdd, d.Type)
	assert.Equal(t, "10.00", d.Amount.StringFixed(2))
	assert.Equal(t, 0, d.GaleStep)
	assert.Equal(t, "gale", d.Strategy)
	assert.False(t, d.Keepalive)
}

func TestDecide_SamePatternOnColor(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()
	cfg.Market = domain.MarketColor
	cfg.Pattern = domain.PatternSame

	// 1 and 3 are both red.
	g := observeAll(domain.GaleState{}, cfg, 1, 3)
	d, ok := e.Decide(g, cfg)
	require.True(t, ok)
	assert.Equal(t, domain.BetRed, d.Type)
}

func TestDecide_CustomRules(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()
	cfg.Market = domain.MarketColor
	cfg.Pattern = domain.PatternCustom
	cfg.CustomRules = map[domain.Class]domain.BetType{domain.ClassBlack: domain.BetEven}

	d, ok := e.Decide(observeAll(domain.GaleState{}, cfg, 2, 4), cfg)
	require.True(t, ok)
	assert.Equal(t, domain.BetEven, d.Type)

	_, ok = e.Decide(observeAll(domain.GaleState{}, cfg, 1, 3), cfg)
	assert.False(t, ok, "no rule for red")
}

func TestDecide_InCycleFollowsLastBet(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()

	g := domain.GaleState{Step: 2, LastBetType: betType(domain.BetOdd)}
	d, ok := e.Decide(g, cfg)
	require.True(t, ok)
	assert.Equal(t, domain.BetOdd, d.Type)
	assert.Equal(t, 2, d.GaleStep)
	assert.Equal(t, "40.00", d.Amount.StringFixed(2))
}

func TestDecide_StepBeyondMaxGales(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()

	_, ok := e.Decide(domain.GaleState{Step: 3, LastBetType: betType(domain.BetOdd)}, cfg)
	assert.False(t, ok)
}

func TestAmount_Progressions(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()
	cfg.BaseBet = decimal.RequireFromString("1.5")

	cases := []struct {
		name string
		prog domain.Progression
		seq  []decimal.Decimal
		want []string
	}{
		{"martingale", domain.ProgressionMartingale, nil, []string{"1.50", "3.00", "6.00", "12.00"}},
		{"fibonacci", domain.ProgressionFibonacci, nil, []string{"1.50", "1.50", "3.00", "4.50", "7.50"}},
		{"custom", domain.ProgressionCustom, []decimal.Decimal{
			decimal.NewFromInt(1), decimal.NewFromInt(3), decimal.NewFromInt(7),
		}, []string{"1.50", "4.50", "10.50", "10.50"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := cfg
			c.Progression = tc.prog
			c.Sequence = tc.seq
			for step, want := range tc.want {
				assert.Equal(t, want, e.Amount(step, c).StringFixed(2), "step %d", step)
			}
		})
	}
}

func TestAmount_RoundsToCents(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()
	cfg.BaseBet = decimal.RequireFromString("0.33")
	cfg.Multiplier = decimal.RequireFromString("2.5")

	assert.Equal(t, "0.83", e.Amount(1, cfg).String())
}

func TestKeepalive(t *testing.T) {
	e := strategy.NewEngine()
	cfg := parityConfig()

	_, ok := e.Keepalive(cfg)
	assert.False(t, ok)

	cfg.KeepaliveStake = decimal.RequireFromString("0.5")
	d, ok := e.Keepalive(cfg)
	require.True(t, ok)
	assert.True(t, d.Keepalive)
	assert.Equal(t, domain.BetRed, d.Type)
	assert.Equal(t, "0.50", d.Amount.StringFixed(2))
}

func TestRegistry_CustomProgression(t *testing.T) {
	r := strategy.NewRegistry()
	r.Register(flat{})
	e := strategy.NewEngineWithRegistry(r)

	cfg := parityConfig()
	cfg.Progression = "flat"
	assert.Equal(t, "10.00", e.Amount(5, cfg).StringFixed(2))

	_, ok := r.Get(domain.ProgressionMartingale)
	assert.False(t, ok)
}

type flat struct{}

func (flat) Name() domain.Progression { return "flat" }

func (flat) Factor(int, domain.StrategyConfig) decimal.Decimal { return decimal.NewFromInt(1) }
