package tableapi

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

// DTOs raw del servicio de la mesa. Solo este paquete los ve; el mapeo a
// valores de dominio se hace abajo.

// spinsResponse es el body de GET /spins?after=N.
type spinsResponse struct {
	Spins []spinDTO `json:"spins"`
}

type spinDTO struct {
	Spin  int64     `json:"spin"`
	Value int       `json:"value"`
	Color string    `json:"color"`
	At    time.Time `json:"at"`
}

// betRequest es el body de POST /bets.
type betRequest struct {
	BetID   string `json:"bet_id"`
	BetType string `json:"bet_type"`
	Amount  string `json:"amount"`
	Spin    int64  `json:"spin"`
}

// betResponse es la confirmación de POST /bets.
type betResponse struct {
	Ref        string    `json:"ref"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// toOutcome valida una lectura del detector. Un color que no cuadra con la
// ruleta es una mala lectura y se rechaza en lugar de corregirse.
func (s spinDTO) toOutcome() (domain.Outcome, error) {
	color, err := domain.ParseColor(s.Color)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("spin %d: %w", s.Spin, err)
	}
	if s.Value >= 0 && s.Value <= domain.MaxPocket && domain.ColorOf(s.Value) != color {
		return domain.Outcome{}, fmt.Errorf("spin %d: value %d read as %s", s.Spin, s.Value, color)
	}
	at := s.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	o := domain.Outcome{SpinNumber: s.Spin, Value: s.Value, Color: color, ObservedAt: at}
	if err := o.Validate(); err != nil {
		return domain.Outcome{}, err
	}
	return o, nil
}

func newBetRequest(req ports.PlaceRequest) betRequest {
	return betRequest{
		BetID:   req.BetID,
		BetType: string(req.Type),
		Amount:  req.Amount.StringFixed(2),
		Spin:    req.SpinFor,
	}
}

func (r betResponse) toAck() (ports.PlaceAck, error) {
	if r.Ref == "" {
		return ports.PlaceAck{}, fmt.Errorf("ack without ref")
	}
	at := r.AcceptedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ports.PlaceAck{Ref: r.Ref, AcceptedAt: at}, nil
}
