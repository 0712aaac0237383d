package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/helpibot/helpi/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger on a SQLite table.
type SQLiteLedger struct {
	db *sql.DB
	// Serializes ledger access so a Contains/Add pair within one
	// submission flow cannot interleave with another Add for the same id.
	mu sync.Mutex
}

var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLite opens (creating if needed) a SQLite-backed ledger at dbPath.
func NewSQLite(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	l := &SQLiteLedger{db: db}
	if err := l.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS submitted_tickets (
		ticket_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// Contains reports whether a ticket id has already been processed.
// Storage failures surface as Unavailable, never as "not present".
func (l *SQLiteLedger) Contains(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var found bool
	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		row := l.db.QueryRowContext(ctx, `SELECT 1 FROM submitted_tickets WHERE ticket_id = ?`, id)
		var one int
		switch scanErr := row.Scan(&one); scanErr {
		case nil:
			found = true
			return nil
		case sql.ErrNoRows:
			found = false
			return nil
		default:
			return scanErr
		}
	})
	if err != nil {
		return false, fmt.Errorf("read ledger for %s: %w: %w", id, errdefs.ErrUnavailable, err)
	}
	return found, nil
}

// Add appends a ticket id to the ledger. The insert is idempotent so a
// raced duplicate add cannot fail the submission flow.
func (l *SQLiteLedger) Add(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := l.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO submitted_tickets (ticket_id, created_at) VALUES (?, ?)`,
			id, time.Now().Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("append %s to ledger: %w: %w", id, errdefs.ErrUnavailable, err)
	}
	return nil
}

// Close closes the ledger database.
func (l *SQLiteLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close ledger database: %w", err)
	}
	return nil
}
