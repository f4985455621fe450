// Package sqlstore persists drawer state and the cash move ledger through
// database/sql. Two drivers are supported: "sqlite" (modernc.org/sqlite, for
// a single terminal) and "pgx" (jackc/pgx stdlib, for a shared database).
//
// cash_moves is append-only: rows are inserted inside the same transaction
// that advances the cash_drawers head row, and are never updated or deleted.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cash_drawers (
    store_id      TEXT    PRIMARY KEY,
    session_id    TEXT    NOT NULL DEFAULT '',
    status        TEXT    NOT NULL,
    balance       TEXT    NOT NULL,
    float_amount  TEXT    NOT NULL,
    opened_at     TEXT,
    opened_by     TEXT    NOT NULL DEFAULT '',
    version       BIGINT  NOT NULL,
    updated_at    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS cash_moves (
    id          TEXT    PRIMARY KEY,
    store_id    TEXT    NOT NULL,
    session_id  TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    type        TEXT    NOT NULL,
    amount      TEXT    NOT NULL,
    reason      TEXT    NOT NULL DEFAULT '',
    order_ref   TEXT    NOT NULL DEFAULT '',
    created_by  TEXT    NOT NULL DEFAULT '',
    created_at  TEXT    NOT NULL,
    UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_cash_moves_store ON cash_moves(store_id, created_at);
`

// Fixed-width fractional seconds keep TEXT timestamps lexically ordered.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements drawer.Repository.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects with the given driver. For sqlite, dsn is a file path and
// WAL, foreign keys and a busy timeout are enabled.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case "pgx":
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetDrawerState(ctx context.Context, storeID string) (drawer.State, []drawer.Move, error) {
	q := s.rebind(`
		SELECT session_id, status, balance, float_amount, COALESCE(opened_at, ''), opened_by, version
		FROM   cash_drawers
		WHERE  store_id = ?`)

	st := drawer.State{StoreID: storeID}
	var openedAt string
	err := s.db.QueryRowContext(ctx, q, storeID).Scan(
		&st.SessionID,
		&st.Status,
		&st.Balance,
		&st.FloatAmount,
		&openedAt,
		&st.OpenedBy,
		&st.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return drawer.State{StoreID: storeID, Status: drawer.StatusClosed}, nil, nil
	}
	if err != nil {
		return drawer.State{}, nil, fmt.Errorf("sqlstore: get drawer %q: %w", storeID, err)
	}
	if openedAt != "" {
		t, err := parseTime(openedAt)
		if err != nil {
			return drawer.State{}, nil, err
		}
		st.OpenedAt = &t
	}

	moves, err := s.sessionMoves(ctx, st.SessionID)
	if err != nil {
		return drawer.State{}, nil, err
	}
	return st, moves, nil
}

func (s *Store) ApplyTransition(ctx context.Context, t drawer.Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	after := t.After
	var openedAt any
	if after.OpenedAt != nil {
		openedAt = after.OpenedAt.UTC().Format(timeLayout)
	}

	upsert := s.rebind(`
		INSERT INTO cash_drawers
			(store_id, session_id, status, balance, float_amount, opened_at, opened_by, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_id) DO UPDATE SET
			session_id   = excluded.session_id,
			status       = excluded.status,
			balance      = excluded.balance,
			float_amount = excluded.float_amount,
			opened_at    = excluded.opened_at,
			opened_by    = excluded.opened_by,
			version      = excluded.version,
			updated_at   = excluded.updated_at
		WHERE cash_drawers.version = ?`)

	res, err := tx.ExecContext(ctx, upsert,
		after.StoreID,
		after.SessionID,
		string(after.Status),
		after.Balance.String(),
		after.FloatAmount.String(),
		openedAt,
		after.OpenedBy,
		after.Version,
		t.At.UTC().Format(timeLayout),
		t.Before.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert drawer %q: %w", after.StoreID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: upsert drawer %q: %w", after.StoreID, err)
	}
	if n == 0 {
		return apperr.IllegalTransition("sqlstore.ApplyTransition", "drawer %q changed since version %d", after.StoreID, t.Before.Version)
	}

	insert := s.rebind(`
		INSERT INTO cash_moves
			(id, store_id, session_id, seq, type, amount, reason, order_ref, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, m := range t.Moves {
		if _, err := tx.ExecContext(ctx, insert,
			m.ID,
			m.StoreID,
			m.SessionID,
			m.Seq,
			string(m.Type),
			m.Amount.String(),
			m.Reason,
			m.OrderRef,
			m.By,
			m.At.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("sqlstore: insert move %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

// MovesBetween lists moves of a store across sessions, oldest first.
func (s *Store) MovesBetween(ctx context.Context, storeID string, from, to time.Time) ([]drawer.Move, error) {
	q := s.rebind(`
		SELECT id, store_id, session_id, seq, type, amount, reason, order_ref, created_by, created_at
		FROM   cash_moves
		WHERE  store_id = ? AND created_at >= ? AND created_at < ?
		ORDER  BY created_at, seq`)
	rows, err := s.db.QueryContext(ctx, q, storeID, from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list moves for %q: %w", storeID, err)
	}
	return scanMoves(rows)
}

func (s *Store) sessionMoves(ctx context.Context, sessionID string) ([]drawer.Move, error) {
	if sessionID == "" {
		return nil, nil
	}
	q := s.rebind(`
		SELECT id, store_id, session_id, seq, type, amount, reason, order_ref, created_by, created_at
		FROM   cash_moves
		WHERE  session_id = ?
		ORDER  BY seq`)
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list moves for session %q: %w", sessionID, err)
	}
	return scanMoves(rows)
}

func scanMoves(rows *sql.Rows) ([]drawer.Move, error) {
	defer rows.Close()
	var out []drawer.Move
	for rows.Next() {
		var (
			m      drawer.Move
			amount decimal.Decimal
			at     string
		)
		if err := rows.Scan(&m.ID, &m.StoreID, &m.SessionID, &m.Seq, &m.Type, &amount, &m.Reason, &m.OrderRef, &m.By, &at); err != nil {
			return nil, fmt.Errorf("sqlstore: scan move: %w", err)
		}
		t, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		m.Amount = amount
		m.At = t
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate moves: %w", err)
	}
	return out, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != "pgx" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlstore: parse time %q: %w", s, err)
	}
	return t, nil
}
