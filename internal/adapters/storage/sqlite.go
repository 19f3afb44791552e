package storage

// sqlite.go persiste todo lo que el bot no puede perder entre reinicios.
//
// Tablas:
//   - `sessions`: una fila por sesión del ledger (test y real nunca se mezclan).
//   - `bets`: apuestas liquidadas, solo append, en orden de inserción.
//   - `outcomes`: cada tirada observada, con el número de tirada como clave.
//   - `events`: journal de los eventos de dominio publicados, en JSON.
//
// Los importes se guardan como TEXT para que los decimales no pierdan precisión.
// Los tiempos usan un layout UTC de ancho fijo para comparar rangos como texto.
// Prune al abrir: outcomes y events sí, sessions y bets nunca.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/galebot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    started_at      TEXT    NOT NULL,
    test_mode       INTEGER NOT NULL DEFAULT 0,
    initial_balance TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS bets (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    session_id  TEXT    NOT NULL REFERENCES sessions(id),
    spin_for    INTEGER NOT NULL,
    bet_type    TEXT    NOT NULL,
    amount      TEXT    NOT NULL,
    gale_step   INTEGER NOT NULL DEFAULT 0,
    strategy    TEXT    NOT NULL,
    keepalive   INTEGER NOT NULL DEFAULT 0,
    placed_at   TEXT    NOT NULL,
    status      TEXT    NOT NULL,
    resolved_at TEXT,
    profit_loss TEXT,
    ref         TEXT    NOT NULL DEFAULT '',
    void_reason TEXT    NOT NULL DEFAULT '',
    cycle_lost  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
    spin_number INTEGER PRIMARY KEY,
    value       INTEGER NOT NULL,
    color       TEXT    NOT NULL,
    observed_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    seq        INTEGER NOT NULL,
    event_type TEXT    NOT NULL,
    at         TEXT    NOT NULL,
    body       TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_bets_session     ON bets(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_outcomes_at      ON outcomes(observed_at);
CREATE INDEX IF NOT EXISTS idx_events_at        ON events(at);
`

const (
	retentionOutcomes = 90 * 24 * time.Hour
	retentionEvents   = 30 * 24 * time.Hour

	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStorage implementa ports.LedgerStore, ports.OutcomeStore y
// ports.EventJournal sobre SQLite (Go puro, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en path, aplica el schema y
// elimina outcomes y events antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite admite un solo escritor
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background(), time.Now())
	return s, nil
}

// CreateSession registra una nueva sesión del ledger.
func (s *SQLiteStorage) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, test_mode, initial_balance)
		VALUES (?, ?, ?, ?)
	`, sess.ID, formatTime(sess.StartedAt), boolInt(sess.TestMode), sess.InitialBalance.String())
	if err != nil {
		return fmt.Errorf("storage.CreateSession: insert %s: %w", sess.ID, err)
	}
	return nil
}

// LatestSession devuelve la última sesión iniciada.
func (s *SQLiteStorage) LatestSession(ctx context.Context) (domain.Session, bool, error) {
	var (
		sess      domain.Session
		startedAt string
		testMode  int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, test_mode, initial_balance
		FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&sess.ID, &startedAt, &testMode, &sess.InitialBalance)
	if err == sql.ErrNoRows {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("storage.LatestSession: %w", err)
	}
	sess.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("storage.LatestSession: started_at: %w", err)
	}
	sess.TestMode = testMode == 1
	return sess, true, nil
}

// AppendBet guarda una apuesta terminal. Un ID duplicado viola la constraint
// UNIQUE y se devuelve como error.
func (s *SQLiteStorage) AppendBet(ctx context.Context, sessionID string, b domain.Bet) error {
	if !b.Status.Terminal() {
		return fmt.Errorf("storage.AppendBet: bet %s is %s", b.ID, b.Status)
	}
	var resolvedAt, pnl any
	if b.ResolvedAt != nil {
		resolvedAt = formatTime(*b.ResolvedAt)
	}
	if b.ProfitLoss != nil {
		pnl = b.ProfitLoss.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bets (
		    id, session_id, spin_for, bet_type, amount, gale_step, strategy,
		    keepalive, placed_at, status, resolved_at, profit_loss, ref,
		    void_reason, cycle_lost
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, sessionID, b.SpinFor, string(b.Type), b.Amount.String(), b.GaleStep, b.Strategy,
		boolInt(b.Keepalive), formatTime(b.PlacedAt), string(b.Status), resolvedAt, pnl, b.Ref,
		b.VoidReason, boolInt(b.CycleLost),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendBet: insert %s: %w", b.ID, err)
	}
	return nil
}

// LoadBets devuelve las apuestas de una sesión en orden de inserción.
func (s *SQLiteStorage) LoadBets(ctx context.Context, sessionID string) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, spin_for, bet_type, amount, gale_step, strategy, keepalive,
		       placed_at, status, resolved_at, profit_loss, ref, void_reason, cycle_lost
		FROM bets
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadBets: query: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var (
			b                    domain.Bet
			betType, status      string
			placedAt             string
			resolvedAt           sql.NullString
			pnl                  decimal.NullDecimal
			keepalive, cycleLost int
		)
		if err := rows.Scan(
			&b.ID, &b.SpinFor, &betType, &b.Amount, &b.GaleStep, &b.Strategy, &keepalive,
			&placedAt, &status, &resolvedAt, &pnl, &b.Ref, &b.VoidReason, &cycleLost,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadBets: scan row: %w", err)
		}
		b.Type = domain.BetType(betType)
		b.Status = domain.BetStatus(status)
		b.Keepalive = keepalive == 1
		b.CycleLost = cycleLost == 1
		if b.PlacedAt, err = parseTime(placedAt); err != nil {
			return nil, fmt.Errorf("storage.LoadBets: %s placed_at: %w", b.ID, err)
		}
		if resolvedAt.Valid {
			t, err := parseTime(resolvedAt.String)
			if err != nil {
				return nil, fmt.Errorf("storage.LoadBets: %s resolved_at: %w", b.ID, err)
			}
			b.ResolvedAt = &t
		}
		if pnl.Valid {
			v := pnl.Decimal
			b.ProfitLoss = &v
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// SaveOutcome registra una tirada. Volver a registrar el mismo número no hace
// nada, así los replays y las reconexiones no fallan.
func (s *SQLiteStorage) SaveOutcome(ctx context.Context, o domain.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (spin_number, value, color, observed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(spin_number) DO NOTHING
	`, o.SpinNumber, o.Value, string(o.Color), formatTime(o.ObservedAt))
	if err != nil {
		return fmt.Errorf("storage.SaveOutcome: insert %d: %w", o.SpinNumber, err)
	}
	return nil
}

// RecentOutcomes devuelve hasta limit resultados, los más recientes primero.
func (s *SQLiteStorage) RecentOutcomes(ctx context.Context, limit int) ([]domain.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT spin_number, value, color, observed_at
		FROM outcomes
		ORDER BY spin_number DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentOutcomes: query: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows, "storage.RecentOutcomes")
}

// OutcomesBetween devuelve los resultados observados en [from, to], los más antiguos primero.
func (s *SQLiteStorage) OutcomesBetween(ctx context.Context, from, to time.Time) ([]domain.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT spin_number, value, color, observed_at
		FROM outcomes
		WHERE observed_at BETWEEN ? AND ?
		ORDER BY spin_number
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.OutcomesBetween: query: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows, "storage.OutcomesBetween")
}

// SaveEvent añade un evento de dominio al journal.
func (s *SQLiteStorage) SaveEvent(ctx context.Context, e domain.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("storage.SaveEvent: marshal %d: %w", e.Seq, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (seq, event_type, at, body) VALUES (?, ?, ?, ?)
	`, e.Seq, string(e.Type()), formatTime(e.Time), string(body))
	if err != nil {
		return fmt.Errorf("storage.SaveEvent: insert %d: %w", e.Seq, err)
	}
	return nil
}

// Name identifica el journal entre los suscriptores de eventos.
func (s *SQLiteStorage) Name() string { return "journal" }

// Handle guarda un evento; si falla, el broadcaster lo reenvía.
func (s *SQLiteStorage) Handle(ctx context.Context, e domain.Event) error {
	return s.SaveEvent(ctx, e)
}

// EventCount devuelve cuántas filas del journal tienen el tipo dado.
func (s *SQLiteStorage) EventCount(ctx context.Context, t domain.EventType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE event_type = ?`, string(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.EventCount: %w", err)
	}
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers ---

func (s *SQLiteStorage) pruneOld(ctx context.Context, now time.Time) {
	cutoffOutcomes := formatTime(now.Add(-retentionOutcomes))
	cutoffEvents := formatTime(now.Add(-retentionEvents))
	s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE observed_at < ?`, cutoffOutcomes)
	s.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, cutoffEvents)
}

func scanOutcomes(rows *sql.Rows, op string) ([]domain.Outcome, error) {
	var out []domain.Outcome
	for rows.Next() {
		var (
			o         domain.Outcome
			color, at string
		)
		if err := rows.Scan(&o.SpinNumber, &o.Value, &color, &at); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		o.Color = domain.Color(color)
		t, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("%s: spin %d observed_at: %w", op, o.SpinNumber, err)
		}
		o.ObservedAt = t
		out = append(out, o)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
