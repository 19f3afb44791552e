// Package lifecycle drives a single bet from decision to settlement.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Phase of the bet currently handled by the machine.
type Phase string

const (
	PhaseNone             Phase = "none"
	PhasePendingPlacement Phase = "pending_placement"
	PhasePlaced           Phase = "placed"
	PhaseAwaitingOutcome  Phase = "awaiting_outcome"
	PhaseSettling         Phase = "settling"
)

// Result classifies what an outcome did to the active bet.
type Result int

const (
	Ignored  Result = iota // no bet waiting, duplicate or stale spin
	Deferred               // zero under a riding policy; bet moved to the next spin
	Settled                // won or lost, machine is settling
	Voided                 // indeterminate, machine is back to none
)

func (r Result) String() string {
	switch r {
	case Deferred:
		return "deferred"
	case Settled:
		return "settled"
	case Voided:
		return "voided"
	}
	return "ignored"
}

// Resolution is returned by Resolve.
type Resolution struct {
	Result Result
	Bet    domain.Bet
}

// Void reasons.
const (
	VoidPlacementFailed = "placement_failed"
	VoidOutcomeTimeout  = "outcome_timeout"
	VoidMissedSpin      = "missed_spin"
	VoidUnconfirmed     = "outcome_before_ack"
)

// Machine holds at most one bet. It is not safe for concurrent use; the
// orchestrator goroutine owns it.
type Machine struct {
	phase    Phase
	bet      domain.Bet
	deadline time.Time
	timeout  time.Duration

	now   func() time.Time
	newID func() string
}

// New creates a machine. outcomeTimeout bounds how long a placed bet waits
// for its spin.
func New(outcomeTimeout time.Duration) *Machine {
	return &Machine{
		phase:   PhaseNone,
		timeout: outcomeTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// WithClock replaces the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// SetOutcomeTimeout applies to bets placed from now on.
func (m *Machine) SetOutcomeTimeout(d time.Duration) { m.timeout = d }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Idle reports whether no bet is in flight.
func (m *Machine) Idle() bool { return m.phase == PhaseNone }

// Active returns the bet in flight.
func (m *Machine) Active() (domain.Bet, bool) {
	if m.phase == PhaseNone {
		return domain.Bet{}, false
	}
	return m.bet, true
}

// Deadline returns when the awaited outcome times out.
func (m *Machine) Deadline() (time.Time, bool) {
	if m.phase != PhaseAwaitingOutcome {
		return time.Time{}, false
	}
	return m.deadline, true
}

// Remaining returns how long until the awaited outcome times out, measured
// on the machine's clock. It is never negative.
func (m *Machine) Remaining() (time.Duration, bool) {
	if m.phase != PhaseAwaitingOutcome {
		return 0, false
	}
	left := m.deadline.Sub(m.now())
	if left < 0 {
		left = 0
	}
	return left, true
}

// Open creates a pending bet for an authorized decision.
func (m *Machine) Open(d domain.Decision, spinFor int64, simulated bool) (domain.Bet, error) {
	if m.phase != PhaseNone {
		return domain.Bet{}, domain.Errorf(domain.KindInvariantViolation, "lifecycle.Open",
			"bet %s still %s", m.bet.ID, m.phase)
	}
	m.bet = domain.Bet{
		ID:        m.newID(),
		SpinFor:   spinFor,
		Type:      d.Type,
		Amount:    d.Amount,
		GaleStep:  d.GaleStep,
		Strategy:  d.Strategy,
		Keepalive: d.Keepalive,
		Simulated: simulated,
		PlacedAt:  m.now(),
		Status:    domain.BetPending,
	}
	m.phase = PhasePendingPlacement
	return m.bet, nil
}

// Placed records the executor acknowledgement and starts waiting for the
// outcome. ok is false when betID is not the bet pending placement.
func (m *Machine) Placed(betID, ref string) (domain.Bet, bool) {
	if m.phase != PhasePendingPlacement || m.bet.ID != betID {
		return domain.Bet{}, false
	}
	m.bet.Ref = ref
	m.phase = PhasePlaced
	m.deadline = m.now().Add(m.timeout)
	m.phase = PhaseAwaitingOutcome
	return m.bet, true
}

// PlacementFailed voids the pending bet.
func (m *Machine) PlacementFailed(betID, detail string) (domain.Bet, bool) {
	if m.phase != PhasePendingPlacement || m.bet.ID != betID {
		return domain.Bet{}, false
	}
	reason := VoidPlacementFailed
	if detail != "" {
		reason += ": " + detail
	}
	return m.void(reason), true
}

// Resolve applies an outcome to the bet in flight. zeroRides tells whether a
// zero on the bet's spin carries the bet over to the next spin instead of
// settling it.
func (m *Machine) Resolve(o domain.Outcome, zeroRides bool) Resolution {
	switch m.phase {
	case PhasePendingPlacement:
		if o.SpinNumber >= m.bet.SpinFor {
			return Resolution{Result: Voided, Bet: m.void(VoidUnconfirmed)}
		}
		return Resolution{Result: Ignored}
	case PhaseAwaitingOutcome:
	default:
		return Resolution{Result: Ignored}
	}

	switch {
	case o.SpinNumber < m.bet.SpinFor:
		return Resolution{Result: Ignored}
	case o.SpinNumber > m.bet.SpinFor:
		return Resolution{Result: Voided, Bet: m.void(VoidMissedSpin)}
	}

	if o.IsZero() && zeroRides {
		m.bet.SpinFor = o.SpinNumber + 1
		m.deadline = m.now().Add(m.timeout)
		return Resolution{Result: Deferred, Bet: m.bet}
	}

	status := domain.BetLost
	if m.bet.Type.Wins(o) {
		status = domain.BetWon
	}
	m.bet = m.bet.Settle(status, m.now())
	m.phase = PhaseSettling
	return Resolution{Result: Settled, Bet: m.bet}
}

// Finish returns the machine to none once the settlement was recorded.
func (m *Machine) Finish() {
	if m.phase == PhaseSettling {
		m.phase = PhaseNone
		m.bet = domain.Bet{}
	}
}

// Expire voids the awaited bet when its deadline passed.
func (m *Machine) Expire() (domain.Bet, bool) {
	if m.phase != PhaseAwaitingOutcome || m.now().Before(m.deadline) {
		return domain.Bet{}, false
	}
	return m.void(VoidOutcomeTimeout), true
}

// Abort voids whatever is in flight, used on shutdown and fatal errors.
func (m *Machine) Abort(reason string) (domain.Bet, bool) {
	if m.phase == PhaseNone || m.phase == PhaseSettling {
		return domain.Bet{}, false
	}
	return m.void(reason), true
}

func (m *Machine) void(reason string) domain.Bet {
	b := m.bet.Void(reason, m.now())
	m.phase = PhaseNone
	m.bet = domain.Bet{}
	m.deadline = time.Time{}
	return b
}
