package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Martingale multiplies the stake by the configured multiplier on every step.
type Martingale struct{}

func (Martingale) Name() domain.Progression { return domain.ProgressionMartingale }

// Factor returns multiplier^step.
func (Martingale) Factor(step int, cfg domain.StrategyConfig) decimal.Decimal {
	f := decimal.NewFromInt(1)
	for i := 0; i < step; i++ {
		f = f.Mul(cfg.Multiplier)
	}
	return f
}

// Fibonacci stakes base * fib(step+1): 1, 1, 2, 3, 5, ...
type Fibonacci struct{}

func (Fibonacci) Name() domain.Progression { return domain.ProgressionFibonacci }

func (Fibonacci) Factor(step int, _ domain.StrategyConfig) decimal.Decimal {
	a, b := int64(1), int64(1)
	for i := 0; i < step; i++ {
		a, b = b, a+b
	}
	return decimal.NewFromInt(a)
}

// CustomSequence reads the factor from the configured sequence. Steps past
// the end reuse the last factor.
type CustomSequence struct{}

func (CustomSequence) Name() domain.Progression { return domain.ProgressionCustom }

func (CustomSequence) Factor(step int, cfg domain.StrategyConfig) decimal.Decimal {
	if len(cfg.Sequence) == 0 {
		return decimal.NewFromInt(1)
	}
	if step >= len(cfg.Sequence) {
		step = len(cfg.Sequence) - 1
	}
	return cfg.Sequence[step]
}
