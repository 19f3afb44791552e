package ports

import (
	"context"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// OutcomeSource entrega las tiradas observadas en orden. El canal se cierra
// cuando la fuente se agota o se cae la conexión; quien llama se vuelve a suscribir.
type OutcomeSource interface {
	Outcomes(ctx context.Context) (<-chan domain.Outcome, error)
}
