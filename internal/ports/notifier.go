package ports

import (
	"context"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Subscriber consume el stream de eventos. Handle corre en la goroutine propia
// del suscriptor; un error devuelto provoca el reenvío del mismo evento.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, e domain.Event) error
}
