package strategy

import "github.com/alejandrodnm/galebot/internal/domain"

// Observe records an outcome that settled no bet into the streak window.
// Under reset_streak a zero also abandons the cycle: the step returns to 0.
func Observe(g domain.GaleState, o domain.Outcome, cfg domain.StrategyConfig) domain.GaleState {
	out := g.Clone()
	class := cfg.Market.Classify(o)
	if class == domain.ClassZero {
		switch cfg.ZeroPolicy {
		case domain.ZeroNeutral:
			return out
		case domain.ZeroResetStreak:
			out.Step = 0
			out.Observations = nil
			return out
		}
	}
	out.Observations = appendCapped(out.Observations, class, cfg.StreakLength)
	return out
}

// ZeroSettlesPending reports whether a zero on the spin of a pending bet
// settles it as a loss. Otherwise the bet rides to the next spin.
func ZeroSettlesPending(cfg domain.StrategyConfig) bool {
	return cfg.ZeroPolicy == domain.ZeroCountAsLoss
}

// Open records the side backed by a gale bet so the cycle can follow it.
func Open(g domain.GaleState, d domain.Decision) domain.GaleState {
	out := g.Clone()
	if d.Keepalive {
		return out
	}
	t := d.Type
	out.LastBetType = &t
	return out
}

// Settle advances the gale state after a bet was resolved against o.
//
// A win closes the cycle and clears the streak. A loss moves one step up the
// progression; a loss at MaxGales loses the whole cycle, resets the step and
// clears the streak, and cycleLost is true. Void leaves the state untouched.
func Settle(g domain.GaleState, status domain.BetStatus, o domain.Outcome, cfg domain.StrategyConfig) (next domain.GaleState, cycleLost bool) {
	out := g.Clone()
	switch status {
	case domain.BetWon:
		out.Step = 0
		out.Observations = nil
	case domain.BetLost:
		if out.Step >= cfg.MaxGales {
			out.Step = 0
			out.Observations = nil
			return out, true
		}
		out.Step++
		out.Observations = appendCapped(out.Observations, cfg.Market.Classify(o), cfg.StreakLength)
	}
	return out, false
}

// SettleBet is Settle for a concrete bet. A bet placed at a step the state
// no longer holds rode over a reset_streak zero; its cycle is gone, so the
// result only enters the streak window.
func SettleBet(g domain.GaleState, bet domain.Bet, o domain.Outcome, cfg domain.StrategyConfig) (next domain.GaleState, cycleLost bool) {
	if bet.GaleStep != g.Step {
		return Observe(g, o, cfg), false
	}
	return Settle(g, bet.Status, o, cfg)
}

// Conform brings the state in line with a new config: a cycle deeper than
// the new MaxGales is abandoned, a market switch drops the window, and the
// window is trimmed to the new streak length.
func Conform(g domain.GaleState, prev, cfg domain.StrategyConfig) domain.GaleState {
	out := g.Clone()
	if prev.Market != cfg.Market {
		out.Observations = nil
	}
	if out.Step > cfg.MaxGales {
		out.Step = 0
		out.Observations = nil
	}
	if n := len(out.Observations); n > cfg.StreakLength && cfg.StreakLength > 0 {
		out.Observations = out.Observations[n-cfg.StreakLength:]
	}
	return out
}

func appendCapped(obs []domain.Class, c domain.Class, limit int) []domain.Class {
	obs = append(obs, c)
	if limit > 0 && len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}
	return obs
}
