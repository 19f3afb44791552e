package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the tag of a domain event.
type EventType string

const (
	EventStatusChange  EventType = "status_change"
	EventNewResult     EventType = "new_result"
	EventBetDecision   EventType = "bet_decision"
	EventBetPlaced     EventType = "bet_placed"
	EventBetResolved   EventType = "bet_resolved"
	EventBalanceUpdate EventType = "balance_update"
	EventError         EventType = "error"
)

// Payload is the closed set of event bodies. Only this package implements it.
type Payload interface {
	EventType() EventType
	sealed()
}

// StatusChange reports a bot status or mode transition.
type StatusChange struct {
	Status   Status `json:"status"`
	Previous Status `json:"previous"`
	Mode     Mode   `json:"mode"`
	Reason   string `json:"reason,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`

	// SessionID is the ledger session in effect after the change.
	SessionID string `json:"session_id,omitempty"`
}

// NewResult carries a freshly recorded outcome.
type NewResult struct {
	Outcome Outcome `json:"outcome"`
}

// BetDecision is emitted for every decision the strategy produces, together
// with the risk verdict.
type BetDecision struct {
	Decision   Decision `json:"decision"`
	SpinFor    int64    `json:"spin_number"`
	BetID      string   `json:"bet_id,omitempty"`
	Simulated  bool     `json:"simulated,omitempty"`
	Allowed    bool     `json:"allowed"`
	DenyReason string   `json:"deny_reason,omitempty"`
	DenyDetail string   `json:"deny_detail,omitempty"`
}

// BetPlaced is emitted once the executor acknowledged the wager.
type BetPlaced struct {
	Bet Bet `json:"bet"`
}

// BetResolved is emitted when a bet is settled as won or lost.
type BetResolved struct {
	Bet           Bet      `json:"bet"`
	Outcome       *Outcome `json:"outcome,omitempty"`
	GaleStepAfter int      `json:"gale_step_after"`
	CycleLost     bool     `json:"cycle_lost,omitempty"`
}

// BalanceUpdate follows every ledgered win or loss.
type BalanceUpdate struct {
	Balance Balance         `json:"balance"`
	Delta   decimal.Decimal `json:"delta"`
	BetID   string          `json:"bet_id"`
}

// ErrorEvent surfaces failures; voided bets are reported through it.
type ErrorEvent struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Bet     *Bet      `json:"bet,omitempty"`
	Fatal   bool      `json:"fatal,omitempty"`
}

func (StatusChange) EventType() EventType  { return EventStatusChange }
func (NewResult) EventType() EventType     { return EventNewResult }
func (BetDecision) EventType() EventType   { return EventBetDecision }
func (BetPlaced) EventType() EventType     { return EventBetPlaced }
func (BetResolved) EventType() EventType   { return EventBetResolved }
func (BalanceUpdate) EventType() EventType { return EventBalanceUpdate }
func (ErrorEvent) EventType() EventType    { return EventError }

func (StatusChange) sealed()  {}
func (NewResult) sealed()     {}
func (BetDecision) sealed()   {}
func (BetPlaced) sealed()     {}
func (BetResolved) sealed()   {}
func (BalanceUpdate) sealed() {}
func (ErrorEvent) sealed()    {}

// Event is one entry of the ordered timeline. Seq and Time are stamped by the
// broadcaster.
type Event struct {
	Seq     uint64
	Time    time.Time
	Payload Payload
}

// Type returns the event tag.
func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// MarshalJSON renders the wire record {type, sequence, timestamp, payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Sequence  uint64    `json:"sequence"`
		Timestamp time.Time `json:"timestamp"`
		Payload   Payload   `json:"payload"`
	}{e.Type(), e.Seq, e.Time, e.Payload})
}
