package wheel

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// SpinReader es el lado detector del servicio de la mesa.
type SpinReader interface {
	SpinsAfter(ctx context.Context, after int64) ([]domain.Outcome, error)
}

// Poller convierte la API request/response del detector en un stream de
// resultados. Un poll fallido cierra el stream para que el orquestador se
// vuelva a suscribir con backoff; el cursor sobrevive a la reconexión.
type Poller struct {
	reader   SpinReader
	interval time.Duration
	last     atomic.Int64
}

// NewPoller crea un poller que pide tiradas nuevas cada interval.
func NewPoller(reader SpinReader, interval time.Duration) *Poller {
	return &Poller{reader: reader, interval: interval}
}

// Seek mueve el cursor para entregar solo las tiradas posteriores al número dado.
func (p *Poller) Seek(after int64) {
	p.last.Store(after)
}

// Outcomes implementa ports.OutcomeSource.
func (p *Poller) Outcomes(ctx context.Context) (<-chan domain.Outcome, error) {
	// Una consulta inicial para que un detector caído se reporte al momento.
	first, err := p.reader.SpinsAfter(ctx, p.last.Load())
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.Outcome)
	go func() {
		defer close(ch)
		batch := first
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			for _, o := range batch {
				if o.SpinNumber <= p.last.Load() {
					continue
				}
				select {
				case ch <- o:
					p.last.Store(o.SpinNumber)
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			batch, err = p.reader.SpinsAfter(ctx, p.last.Load())
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("wheel: poll failed, closing stream", "after", p.last.Load(), "err", err)
				}
				return
			}
		}
	}()
	return ch, nil
}
