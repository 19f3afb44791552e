// Package eventlog writes the domain event stream to a rotating JSON-lines
// file, one event per line in the same shape the live feed uses.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Config controls rotation. Sizes are in megabytes, age in days.
type Config struct {
	Path       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Writer implements ports.Subscriber.
type Writer struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

// New opens a rotating log at cfg.Path.
func New(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("eventlog.New: path is required")
	}
	return NewWriter(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// NewWriter writes to w, for tests.
func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{out: w, enc: json.NewEncoder(w)}
}

// Name identifies the log among the event subscribers.
func (w *Writer) Name() string { return "eventlog" }

// Handle appends one event as a JSON line.
func (w *Writer) Handle(_ context.Context, e domain.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("eventlog.Handle: event %d: %w", e.Seq, err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
