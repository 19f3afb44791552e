package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how the orchestrator must react to them.
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "configuration"
	KindTransientIO        ErrorKind = "transient_io"
	KindRiskViolation      ErrorKind = "risk_violation"
	KindInvariantViolation ErrorKind = "invariant_violation"
	KindStopLossReached    ErrorKind = "stop_loss_reached"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrTransientIO        = errors.New("transient io error")
	ErrRiskViolation      = errors.New("risk violation")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrStopLossReached    = errors.New("stop loss reached")
)

var sentinels = map[ErrorKind]error{
	KindConfiguration:      ErrConfiguration,
	KindTransientIO:        ErrTransientIO,
	KindRiskViolation:      ErrRiskViolation,
	KindInvariantViolation: ErrInvariantViolation,
	KindStopLossReached:    ErrStopLossReached,
}

// Error carries the kind of a failure and the operation that raised it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of err, or "" when it is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Fatal reports whether an error kind requires operator intervention.
func (k ErrorKind) Fatal() bool {
	return k == KindInvariantViolation || k == KindStopLossReached
}

// Denial is the structured refusal returned by the command surface.
type Denial struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Denial codes.
const (
	DenyBetPending     = "bet_pending"
	DenyStopLoss       = "stop_loss_reached"
	DenyInvalidMode    = "invalid_mode"
	DenyInvalidConfig  = "invalid_config"
	DenyConfigPersist  = "config_persist_failed"
	DenyFatalState     = "fatal_state"
	DenyLoopNotRunning = "loop_not_running"
	DenyLedger         = "ledger_unavailable"
)
