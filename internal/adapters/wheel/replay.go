package wheel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// ErrExhausted se devuelve cuando el replay ya entregó todas las tiradas.
var ErrExhausted = errors.New("replay exhausted")

// Replay reproduce tiradas grabadas desde un archivo de texto, una por línea:
//
//	<value>
//	<spin> <value>
//	<spin> <value> <color>
//
// Se ignoran las líneas vacías y las que empiezan por '#'. Sin número de tirada
// las líneas se numeran desde 1.
type Replay struct {
	interval time.Duration
	spins    []domain.Outcome

	mu   sync.Mutex
	next int // índice de la siguiente tirada a entregar
}

// NewReplayFile carga un replay desde path.
func NewReplayFile(path string, interval time.Duration) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wheel.NewReplayFile: %w", err)
	}
	defer f.Close()
	r, err := NewReplay(f, interval)
	if err != nil {
		return nil, fmt.Errorf("wheel.NewReplayFile: %s: %w", path, err)
	}
	return r, nil
}

// NewReplay parsea un replay desde r.
func NewReplay(r io.Reader, interval time.Duration) (*Replay, error) {
	var (
		spins []domain.Outcome
		auto  int64
		last  int64
	)
	base := time.Now().UTC()
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		o, err := parseLine(text, &auto)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if o.SpinNumber <= last {
			return nil, fmt.Errorf("line %d: spin %d not after %d", line, o.SpinNumber, last)
		}
		last = o.SpinNumber
		o.ObservedAt = base.Add(time.Duration(len(spins)) * interval)
		spins = append(spins, o)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Replay{interval: interval, spins: spins}, nil
}

func parseLine(text string, auto *int64) (domain.Outcome, error) {
	fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
	var (
		spin  int64
		value int
		err   error
	)
	switch len(fields) {
	case 1:
		*auto++
		spin = *auto
		value, err = strconv.Atoi(fields[0])
	case 2, 3:
		spin, err = strconv.ParseInt(fields[0], 10, 64)
		if err == nil {
			value, err = strconv.Atoi(fields[1])
		}
	default:
		return domain.Outcome{}, fmt.Errorf("expected 1 to 3 fields, got %d", len(fields))
	}
	if err != nil {
		return domain.Outcome{}, err
	}

	o := domain.NewOutcome(spin, value, time.Time{})
	if len(fields) == 3 {
		c, err := domain.ParseColor(strings.ToLower(fields[2]))
		if err != nil {
			return domain.Outcome{}, err
		}
		o.Color = c
	}
	if err := o.Validate(); err != nil {
		return domain.Outcome{}, err
	}
	return o, nil
}

// Len devuelve el número de tiradas grabadas.
func (r *Replay) Len() int { return len(r.spins) }

// Rebase renumera las tiradas para que sigan a after, manteniendo los huecos,
// si el archivo empieza en after o antes. Devuelve el desplazamiento aplicado.
// Debe llamarse antes del primer Outcomes.
func (r *Replay) Rebase(after int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.spins) == 0 || r.spins[0].SpinNumber > after {
		return 0
	}
	shift := after - r.spins[0].SpinNumber + 1
	for i := range r.spins {
		r.spins[i].SpinNumber += shift
	}
	return shift
}

// Outcomes implementa ports.OutcomeSource. Cada llamada sigue tras la última
// tirada entregada; el canal se cierra al final del archivo.
func (r *Replay) Outcomes(ctx context.Context) (<-chan domain.Outcome, error) {
	r.mu.Lock()
	done := r.next >= len(r.spins)
	r.mu.Unlock()
	if done {
		return nil, ErrExhausted
	}

	ch := make(chan domain.Outcome)
	go func() {
		defer close(ch)
		for {
			r.mu.Lock()
			if r.next >= len(r.spins) {
				r.mu.Unlock()
				slog.Info("wheel: replay finished", "spins", len(r.spins))
				return
			}
			o := r.spins[r.next]
			r.mu.Unlock()

			if r.interval > 0 {
				select {
				case <-time.After(r.interval):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- o:
				r.mu.Lock()
				r.next++
				r.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
