package domain

// GaleState is the progression state of the strategy. Only the orchestrator
// mutates it, on settlement or when it records an outcome.
type GaleState struct {
	Step         int      `json:"current_step"`
	Observations []Class  `json:"streak_observations"`
	LastBetType  *BetType `json:"last_bet_type"`
}

// InCycle reports whether a gale cycle is under way (a loss is being chased).
func (g GaleState) InCycle() bool { return g.Step > 0 }

// Clone returns a deep copy safe to hand to readers.
func (g GaleState) Clone() GaleState {
	out := GaleState{Step: g.Step}
	if len(g.Observations) > 0 {
		out.Observations = append([]Class(nil), g.Observations...)
	}
	if g.LastBetType != nil {
		bt := *g.LastBetType
		out.LastBetType = &bt
	}
	return out
}
