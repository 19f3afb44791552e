// Package wheel contiene las fuentes de resultados: una ruleta simulada, el
// replay de una sesión grabada y un poller del detector de la mesa.
package wheel

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Simulator gira una ruleta justa de un solo cero a intervalo fijo. Los números
// de tirada siguen creciendo entre suscripciones.
type Simulator struct {
	interval time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	next int64
}

// NewSimulator crea un simulador. La misma seed produce la misma secuencia.
func NewSimulator(interval time.Duration, seed uint64, firstSpin int64) *Simulator {
	if firstSpin < 1 {
		firstSpin = 1
	}
	return &Simulator{
		interval: interval,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		next:     firstSpin,
	}
}

// Outcomes implementa ports.OutcomeSource. El canal se cierra cuando termina ctx.
func (s *Simulator) Outcomes(ctx context.Context) (<-chan domain.Outcome, error) {
	ch := make(chan domain.Outcome)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			o := s.spin()
			select {
			case ch <- o:
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Debug("wheel: simulator started", "interval", s.interval, "next_spin", s.peek())
	return ch, nil
}

func (s *Simulator) spin() domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := domain.NewOutcome(s.next, s.rng.IntN(domain.MaxPocket+1), time.Now().UTC())
	s.next++
	return o
}

func (s *Simulator) peek() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
