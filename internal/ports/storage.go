package ports

import (
	"context"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// LedgerStore persiste las sesiones y sus apuestas liquidadas.
type LedgerStore interface {
	// CreateSession registra una nueva sesión del ledger.
	CreateSession(ctx context.Context, s domain.Session) error

	// LatestSession devuelve la sesión más reciente, ok=false si no hay ninguna.
	LatestSession(ctx context.Context) (domain.Session, bool, error)

	// AppendBet guarda una apuesta terminal. Los IDs duplicados se rechazan.
	AppendBet(ctx context.Context, sessionID string, b domain.Bet) error

	// LoadBets devuelve las apuestas de una sesión en orden de inserción.
	LoadBets(ctx context.Context, sessionID string) ([]domain.Bet, error)

	Close() error
}

// OutcomeStore guarda las tiradas observadas.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, o domain.Outcome) error

	// RecentOutcomes devuelve hasta limit resultados, los más recientes primero.
	RecentOutcomes(ctx context.Context, limit int) ([]domain.Outcome, error)
}

// EventJournal registra cada evento de dominio publicado.
type EventJournal interface {
	SaveEvent(ctx context.Context, e domain.Event) error
}
