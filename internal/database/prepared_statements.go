package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errStatementsClosed = errors.New("prepared statements closed")

// PreparedStatements holds the hot read path of every evaluation
// Queries hold mu for reading; close takes it for writing, so a swapped-out
// set is closed only after in-flight queries finish.
type PreparedStatements struct {
	mu     sync.RWMutex
	closed bool

	getRiskProfile    *sql.Stmt
	countBansByActor  *sql.Stmt
	countBansByDevice *sql.Stmt
}

// InitPreparedStatements pre-compiles the per-evaluation queries
func (d *Database) InitPreparedStatements() error {
	ps := &PreparedStatements{}

	var err error
	ps.getRiskProfile, err = d.db.Prepare(`
		SELECT cumulative_threat_score, warning_count, last_activity, device_fingerprint
		FROM risk_profiles WHERE actor_name = $1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare getRiskProfile: %w", err)
	}

	ps.countBansByActor, err = d.db.Prepare(`SELECT COUNT(*) FROM ban_records WHERE actor_name = $1`)
	if err != nil {
		return fmt.Errorf("failed to prepare countBansByActor: %w", err)
	}

	ps.countBansByDevice, err = d.db.Prepare(`SELECT COUNT(*) FROM ban_records WHERE device_id = $1`)
	if err != nil {
		return fmt.Errorf("failed to prepare countBansByDevice: %w", err)
	}

	if old := d.stmts.Swap(ps); old != nil {
		old.close()
	}
	return nil
}

// StartPreparedStatementRefresher re-prepares statements after the server restarts
func (d *Database) StartPreparedStatementRefresher(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.db.PingContext(ctx); err != nil {
					continue
				}
				if !d.probe(ctx) {
					if err := d.InitPreparedStatements(); err != nil {
						d.logger.Warn("Re-preparing statements failed", zap.Error(err))
					}
				}
			}
		}
	}()
}

// probe reports whether the prepared statements still work
func (d *Database) probe(ctx context.Context) bool {
	var n int
	err := d.run(func(ps *PreparedStatements) *sql.Stmt { return ps.countBansByDevice }, func(stmt *sql.Stmt) error {
		return stmt.QueryRowContext(ctx, "").Scan(&n)
	})
	return !isBadPreparedStatement(err)
}

// ClosePreparedStatements closes all prepared statements
func (d *Database) ClosePreparedStatements() {
	if ps := d.stmts.Swap(nil); ps != nil {
		ps.close()
	}
}

func (ps *PreparedStatements) close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.closed = true
	for _, stmt := range []*sql.Stmt{ps.getRiskProfile, ps.countBansByActor, ps.countBansByDevice} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// run calls fn with the picked statement while holding the set's read lock.
// A set closed between Load and RLock has already been replaced; reload it.
func (d *Database) run(pick func(*PreparedStatements) *sql.Stmt, fn func(*sql.Stmt) error) error {
	for {
		ps := d.stmts.Load()
		if ps == nil {
			return errStatementsClosed
		}
		ps.mu.RLock()
		if ps.closed {
			ps.mu.RUnlock()
			continue
		}
		err := fn(pick(ps))
		ps.mu.RUnlock()
		return err
	}
}

// isBadPreparedStatement checks if error indicates invalid prepared statement
func isBadPreparedStatement(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "cached plan") ||
		strings.Contains(errStr, "closed the connection") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "statement is closed")
}
