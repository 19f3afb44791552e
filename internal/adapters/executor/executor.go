// Package executor places wagers: on paper for test sessions, or on the
// table through the actuator service.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

// Paper acknowledges every valid wager without touching the table. The
// outcome still comes from the real source, so test sessions settle exactly
// like real ones.
type Paper struct {
	latency time.Duration
}

// NewPaper creates a paper executor that answers after latency.
func NewPaper(latency time.Duration) *Paper {
	return &Paper{latency: latency}
}

// Place implements ports.BetExecutor.
func (p *Paper) Place(ctx context.Context, req ports.PlaceRequest) (ports.PlaceAck, error) {
	if err := validate(req); err != nil {
		return ports.PlaceAck{}, err
	}
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return ports.PlaceAck{}, ctx.Err()
		}
	}
	ack := ports.PlaceAck{Ref: "paper-" + uuid.NewString()[:8], AcceptedAt: time.Now().UTC()}
	slog.Debug("executor: paper bet accepted",
		"bet", req.BetID, "type", req.Type, "amount", req.Amount.StringFixed(2), "spin", req.SpinFor)
	return ack, nil
}

// BetPlacer is the actuator side of the table service.
type BetPlacer interface {
	PlaceBet(ctx context.Context, req ports.PlaceRequest) (ports.PlaceAck, error)
}

// Table sends wagers to the actuator.
type Table struct {
	placer BetPlacer
}

// NewTable creates an executor backed by the actuator.
func NewTable(placer BetPlacer) *Table {
	return &Table{placer: placer}
}

// Place implements ports.BetExecutor.
func (t *Table) Place(ctx context.Context, req ports.PlaceRequest) (ports.PlaceAck, error) {
	if err := validate(req); err != nil {
		return ports.PlaceAck{}, err
	}
	start := time.Now()
	ack, err := t.placer.PlaceBet(ctx, req)
	if err != nil {
		return ports.PlaceAck{}, domain.NewError(domain.KindTransientIO, "executor.Place", err)
	}
	slog.Info("executor: bet accepted",
		"bet", req.BetID,
		"ref", ack.Ref,
		"type", req.Type,
		"amount", req.Amount.StringFixed(2),
		"spin", req.SpinFor,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return ack, nil
}

func validate(req ports.PlaceRequest) error {
	if req.BetID == "" {
		return domain.Errorf(domain.KindInvariantViolation, "executor.Place", "bet id is required")
	}
	if _, err := domain.ParseBetType(string(req.Type)); err != nil {
		return domain.NewError(domain.KindInvariantViolation, "executor.Place", err)
	}
	if !req.Amount.IsPositive() {
		return domain.Errorf(domain.KindRiskViolation, "executor.Place", "amount %s must be > 0", req.Amount)
	}
	return nil
}
