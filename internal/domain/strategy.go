package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ZeroPolicy dictates what a zero does to the streak and to the pending bet.
type ZeroPolicy string

const (
	ZeroNeutral     ZeroPolicy = "neutral"
	ZeroCountAsLoss ZeroPolicy = "count_as_loss"
	ZeroResetStreak ZeroPolicy = "reset_streak"
)

// Pattern maps a completed streak to the side that is backed.
type Pattern string

const (
	PatternOpposite Pattern = "opposite"
	PatternSame     Pattern = "same"
	PatternCustom   Pattern = "custom"
)

// Progression is the staking sequence applied per gale step.
type Progression string

const (
	ProgressionMartingale Progression = "martingale"
	ProgressionFibonacci  Progression = "fibonacci"
	ProgressionCustom     Progression = "custom"
)

// MaxGalesLimit bounds the gale depth accepted from configuration.
const MaxGalesLimit = 30

// StrategyConfig is an immutable snapshot used by one decision.
type StrategyConfig struct {
	Name           string            `json:"name"`
	BaseBet        decimal.Decimal   `json:"base_bet"`
	MaxGales       int               `json:"max_gales"`
	Multiplier     decimal.Decimal   `json:"multiplier"`
	StreakLength   int               `json:"streak_length"`
	ZeroPolicy     ZeroPolicy        `json:"zero_policy"`
	Pattern        Pattern           `json:"bet_color_pattern"`
	Market         Market            `json:"market"`
	Progression    Progression       `json:"progression"`
	Sequence       []decimal.Decimal `json:"sequence,omitempty"`
	CustomRules    map[Class]BetType `json:"custom_rules,omitempty"`
	KeepaliveStake decimal.Decimal   `json:"keepalive_stake"`
	KeepaliveBet   BetType           `json:"keepalive_bet"`
}

// DefaultStrategyConfig returns a conservative martingale on parity.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Name:         "gale",
		BaseBet:      decimal.NewFromInt(1),
		MaxGales:     2,
		Multiplier:   decimal.NewFromInt(2),
		StreakLength: 3,
		ZeroPolicy:   ZeroNeutral,
		Pattern:      PatternOpposite,
		Market:       MarketParity,
		Progression:  ProgressionMartingale,
		KeepaliveBet: BetRed,
	}
}

// Clone returns a copy that shares no slice or map with c.
func (c StrategyConfig) Clone() StrategyConfig {
	out := c
	if c.Sequence != nil {
		out.Sequence = append([]decimal.Decimal(nil), c.Sequence...)
	}
	if c.CustomRules != nil {
		out.CustomRules = make(map[Class]BetType, len(c.CustomRules))
		for class, bt := range c.CustomRules {
			out.CustomRules[class] = bt
		}
	}
	return out
}

// Validate rejects unsafe or inconsistent parameters as a whole; nothing is
// applied from a config that fails here.
func (c StrategyConfig) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Name) == "" {
		add("name is required")
	}
	if !c.BaseBet.IsPositive() {
		add("base_bet must be > 0")
	}
	if c.MaxGales < 0 || c.MaxGales > MaxGalesLimit {
		add("max_gales must be in 0..%d", MaxGalesLimit)
	}
	if c.Multiplier.LessThan(decimal.NewFromInt(1)) {
		add("multiplier must be >= 1")
	}
	if c.StreakLength < 1 {
		add("streak_length must be >= 1")
	}
	switch c.ZeroPolicy {
	case ZeroNeutral, ZeroCountAsLoss, ZeroResetStreak:
	default:
		add("unknown zero_policy %q", c.ZeroPolicy)
	}
	if !c.Market.Valid() {
		add("unknown market %q", c.Market)
	}
	switch c.Pattern {
	case PatternOpposite, PatternSame:
	case PatternCustom:
		if len(c.CustomRules) == 0 {
			add("custom pattern needs custom_rules")
		}
		for class, bt := range c.CustomRules {
			if _, ok := BetTypeFor(class); !ok {
				add("custom rule on unknown class %q", class)
			}
			if _, err := ParseBetType(string(bt)); err != nil {
				add("custom rule %s: %v", class, err)
			}
		}
	default:
		add("unknown bet_color_pattern %q", c.Pattern)
	}
	switch c.Progression {
	case ProgressionMartingale, ProgressionFibonacci:
	case ProgressionCustom:
		if len(c.Sequence) < c.MaxGales+1 {
			add("custom sequence needs %d factors, got %d", c.MaxGales+1, len(c.Sequence))
		}
		for i, f := range c.Sequence {
			if !f.IsPositive() {
				add("sequence[%d] must be > 0", i)
			}
		}
	default:
		add("unknown progression %q", c.Progression)
	}
	if c.KeepaliveStake.IsNegative() {
		add("keepalive_stake must be >= 0")
	}
	if c.KeepaliveStake.IsPositive() {
		if _, err := ParseBetType(string(c.KeepaliveBet)); err != nil {
			add("keepalive_bet: %v", err)
		}
	}

	if len(problems) > 0 {
		return Errorf(KindConfiguration, "strategy.Validate", "%s", strings.Join(problems, "; "))
	}
	return nil
}
