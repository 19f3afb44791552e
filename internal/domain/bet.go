package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BetType es la apuesta a la par que se coloca en la mesa.
type BetType string

const (
	BetEven  BetType = "even"
	BetOdd   BetType = "odd"
	BetRed   BetType = "red"
	BetBlack BetType = "black"
)

// ParseBetType valida un tipo de apuesta que llega de la config o de la API.
func ParseBetType(s string) (BetType, error) {
	switch BetType(s) {
	case BetEven, BetOdd, BetRed, BetBlack:
		return BetType(s), nil
	}
	return "", fmt.Errorf("unknown bet type %q", s)
}

// BetTypeFor convierte una clase distinta de cero en la apuesta que la respalda.
func BetTypeFor(c Class) (BetType, bool) {
	switch c {
	case ClassEven, ClassOdd, ClassRed, ClassBlack:
		return BetType(c), true
	}
	return "", false
}

// Wins indica si el resultado o paga una apuesta de tipo t.
// El cero no paga ninguna apuesta a la par.
func (t BetType) Wins(o Outcome) bool {
	if o.IsZero() {
		return false
	}
	switch t {
	case BetEven:
		return o.Value%2 == 0
	case BetOdd:
		return o.Value%2 == 1
	case BetRed:
		return o.Color == ColorRed
	case BetBlack:
		return o.Color == ColorBlack
	}
	return false
}

// BetStatus representa el ciclo de vida de una apuesta.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetWon     BetStatus = "won"
	BetLost    BetStatus = "lost"
	BetVoid    BetStatus = "void"
)

// Terminal indica si el estado ya no puede cambiar.
func (s BetStatus) Terminal() bool {
	return s == BetWon || s == BetLost || s == BetVoid
}

// Bet es una apuesta individual. Mientras está pendiente es del lifecycle; una
// vez terminal pertenece al ledger y no se vuelve a modificar.
type Bet struct {
	ID         string           `json:"id"`
	SpinFor    int64            `json:"spin_number_placed_for"`
	Type       BetType          `json:"type"`
	Amount     decimal.Decimal  `json:"amount"`
	GaleStep   int              `json:"gale_step"`
	Strategy   string           `json:"strategy"`
	Keepalive  bool             `json:"keepalive,omitempty"`
	Simulated  bool             `json:"simulated,omitempty"`
	PlacedAt   time.Time        `json:"placed_at"`
	Status     BetStatus        `json:"status"`
	ResolvedAt *time.Time       `json:"resolved_at"`
	ProfitLoss *decimal.Decimal `json:"profit_loss"`
	Ref        string           `json:"ref,omitempty"` // referencia de la confirmación del executor
	VoidReason string           `json:"void_reason,omitempty"`
	CycleLost  bool             `json:"cycle_lost,omitempty"` // pérdida que agotó el ciclo de gale
}

// PnL devuelve el resultado liquidado, cero si está pendiente o anulada.
func (b Bet) PnL() decimal.Decimal {
	if b.ProfitLoss == nil {
		return decimal.Zero
	}
	return *b.ProfitLoss
}

// Settle devuelve una copia terminal de b. Las victorias pagan a la par.
func (b Bet) Settle(status BetStatus, at time.Time) Bet {
	out := b
	out.Status = status
	t := at
	out.ResolvedAt = &t
	var pnl decimal.Decimal
	switch status {
	case BetWon:
		pnl = b.Amount
	case BetLost:
		pnl = b.Amount.Neg()
	default:
		pnl = decimal.Zero
	}
	out.ProfitLoss = &pnl
	return out
}

// Void devuelve una copia anulada de b con el motivo.
func (b Bet) Void(reason string, at time.Time) Bet {
	out := b.Settle(BetVoid, at)
	out.VoidReason = reason
	return out
}

// Decision es lo que el motor de estrategia propone para la siguiente tirada.
type Decision struct {
	Type      BetType         `json:"bet_type"`
	Amount    decimal.Decimal `json:"amount"`
	GaleStep  int             `json:"gale_step"`
	Strategy  string          `json:"strategy"`
	Keepalive bool            `json:"keepalive,omitempty"`
}
