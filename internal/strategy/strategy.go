package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Progression defines the stake multiplier applied at each gale step.
// Each progression encapsulates a different staking sequence.
type Progression interface {
	// Name returns the identifier used in configuration.
	Name() domain.Progression

	// Factor returns the multiplier of the base bet for the given step.
	Factor(step int, cfg domain.StrategyConfig) decimal.Decimal
}

// Registry holds the available progressions indexed by name.
type Registry map[domain.Progression]Progression

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return make(Registry)
}

// DefaultRegistry returns a registry with every built-in progression.
func DefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(Martingale{})
	r.Register(Fibonacci{})
	r.Register(CustomSequence{})
	return r
}

// Register adds a progression to the registry.
func (r Registry) Register(p Progression) {
	r[p.Name()] = p
}

// Get returns the progression by name.
func (r Registry) Get(name domain.Progression) (Progression, bool) {
	p, ok := r[name]
	return p, ok
}
