package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Engine proposes gale bets. It holds no state between calls: everything it
// needs comes in through the gale state and the config snapshot.
type Engine struct {
	progressions Registry
}

// NewEngine creates an engine with the built-in progressions.
func NewEngine() *Engine {
	return &Engine{progressions: DefaultRegistry()}
}

// NewEngineWithRegistry creates an engine using the given progressions.
func NewEngineWithRegistry(r Registry) *Engine {
	return &Engine{progressions: r}
}

// Amount returns the stake for a gale step, rounded to cents.
func (e *Engine) Amount(step int, cfg domain.StrategyConfig) decimal.Decimal {
	p, ok := e.progressions.Get(cfg.Progression)
	if !ok {
		p = Martingale{}
	}
	return cfg.BaseBet.Mul(p.Factor(step, cfg)).Round(2)
}

// Decide returns the bet for the next spin, or ok=false for no bet.
//
// At step 0 a bet needs the last StreakLength observations to share one
// non-zero class. Inside a gale cycle the engine keeps backing the side of
// the bet that lost, without re-checking the streak.
func (e *Engine) Decide(g domain.GaleState, cfg domain.StrategyConfig) (domain.Decision, bool) {
	if g.Step > cfg.MaxGales {
		return domain.Decision{}, false
	}

	if g.Step > 0 {
		if g.LastBetType == nil {
			return domain.Decision{}, false
		}
		return e.decision(*g.LastBetType, g.Step, cfg), true
	}

	class, ok := Streak(g.Observations, cfg.StreakLength)
	if !ok {
		return domain.Decision{}, false
	}
	target, ok := Target(class, cfg)
	if !ok {
		return domain.Decision{}, false
	}
	return e.decision(target, 0, cfg), true
}

// Keepalive returns the minimal bet that keeps the table session alive, or
// ok=false when no keepalive stake is configured.
func (e *Engine) Keepalive(cfg domain.StrategyConfig) (domain.Decision, bool) {
	if !cfg.KeepaliveStake.IsPositive() {
		return domain.Decision{}, false
	}
	return domain.Decision{
		Type:      cfg.KeepaliveBet,
		Amount:    cfg.KeepaliveStake.Round(2),
		Strategy:  cfg.Name,
		Keepalive: true,
	}, true
}

func (e *Engine) decision(t domain.BetType, step int, cfg domain.StrategyConfig) domain.Decision {
	return domain.Decision{
		Type:     t,
		Amount:   e.Amount(step, cfg),
		GaleStep: step,
		Strategy: cfg.Name,
	}
}

// Streak reports the class shared by the last n observations. Zero never
// forms a streak.
func Streak(obs []domain.Class, n int) (domain.Class, bool) {
	if n < 1 || len(obs) < n {
		return "", false
	}
	tail := obs[len(obs)-n:]
	first := tail[0]
	if first == domain.ClassZero {
		return "", false
	}
	for _, c := range tail[1:] {
		if c != first {
			return "", false
		}
	}
	return first, true
}

// Target maps a completed streak to the bet type backed by the pattern.
func Target(class domain.Class, cfg domain.StrategyConfig) (domain.BetType, bool) {
	switch cfg.Pattern {
	case domain.PatternOpposite:
		return domain.BetTypeFor(cfg.Market.Opposite(class))
	case domain.PatternSame:
		return domain.BetTypeFor(class)
	case domain.PatternCustom:
		bt, ok := cfg.CustomRules[class]
		return bt, ok
	}
	return "", false
}
