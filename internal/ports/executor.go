package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// PlaceRequest es una apuesta enviada a la mesa.
type PlaceRequest struct {
	BetID   string          `json:"bet_id"`
	Type    domain.BetType  `json:"bet_type"`
	Amount  decimal.Decimal `json:"amount"`
	SpinFor int64           `json:"spin_number"`
}

// PlaceAck confirma que la apuesta llegó a la mesa.
type PlaceAck struct {
	Ref        string    `json:"ref"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// BetExecutor coloca apuestas. Place debe respetar la cancelación de ctx; un
// timeout se devuelve como error y quien llama anula la apuesta.
type BetExecutor interface {
	Place(ctx context.Context, req PlaceRequest) (PlaceAck, error)
}
