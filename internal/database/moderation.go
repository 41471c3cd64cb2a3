package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

// GetRiskProfile returns a zero profile for actors without a row
func (d *Database) GetRiskProfile(ctx context.Context, actorName string) (*models.RiskProfile, error) {
	p := &models.RiskProfile{ActorName: actorName}
	var last int64

	scan := func(stmt *sql.Stmt) error {
		return stmt.QueryRowContext(ctx, actorName).Scan(&p.CumulativeThreatScore, &p.WarningCount, &last, &p.DeviceFingerprint)
	}
	err := d.withStmt(func(ps *PreparedStatements) *sql.Stmt { return ps.getRiskProfile }, scan)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("querying risk profile: %w", err)
	}
	p.LastActivity = time.Unix(0, last)
	return p, nil
}

func (d *Database) CountBansByActor(ctx context.Context, actorName string) (int, error) {
	return d.count(ctx, func(ps *PreparedStatements) *sql.Stmt { return ps.countBansByActor }, actorName)
}

func (d *Database) CountBansByDevice(ctx context.Context, deviceID string) (int, error) {
	return d.count(ctx, func(ps *PreparedStatements) *sql.Stmt { return ps.countBansByDevice }, deviceID)
}

func (d *Database) count(ctx context.Context, pick func(*PreparedStatements) *sql.Stmt, key string) (int, error) {
	var n int
	err := d.withStmt(pick, func(stmt *sql.Stmt) error {
		return stmt.QueryRowContext(ctx, key).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("counting bans: %w", err)
	}
	return n, nil
}

// withStmt runs fn with a prepared statement, re-preparing once when the
// server dropped it
func (d *Database) withStmt(pick func(*PreparedStatements) *sql.Stmt, fn func(*sql.Stmt) error) error {
	err := d.run(pick, fn)
	if isBadPreparedStatement(err) {
		if perr := d.InitPreparedStatements(); perr != nil {
			return errors.Join(err, perr)
		}
		err = d.run(pick, fn)
	}
	return err
}

func (d *Database) InsertBanRecord(ctx context.Context, rec *models.BanRecord) error {
	if rec == nil || rec.DeviceID == "" {
		return store.ErrInvalidRecord
	}

	var expires sql.NullInt64
	if rec.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: rec.ExpiresAt.UnixNano(), Valid: true}
	}
	patterns := rec.DetectedPatterns
	if patterns == nil {
		patterns = []string{}
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO ban_records (id, actor_name, device_id, reason, severity, threat_score,
			detected_patterns, duration_seconds, message_content, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (device_id, created_at) DO NOTHING
	`, rec.ID, rec.ActorName, rec.DeviceID, rec.Reason, rec.Severity.String(), rec.ThreatScore,
		pq.Array(patterns), rec.DurationSeconds, rec.MessageContent, rec.CreatedAt.UnixNano(), expires)
	if err != nil {
		return fmt.Errorf("inserting ban record: %w", err)
	}
	return nil
}

const upsertProfileColumns = `
		INSERT INTO risk_profiles (actor_name, cumulative_threat_score, warning_count, last_activity, device_fingerprint)`

const upsertProfileConflict = `
		ON CONFLICT (actor_name) DO UPDATE
		SET cumulative_threat_score = GREATEST(risk_profiles.cumulative_threat_score + $2, 0),
			warning_count = GREATEST(risk_profiles.warning_count + $3, 0),
			last_activity = $4,
			device_fingerprint = COALESCE(NULLIF($5, ''), risk_profiles.device_fingerprint)`

// upsertProfileQuery applies a delta unconditionally
const upsertProfileQuery = upsertProfileColumns + `
		VALUES ($1, GREATEST($2::DOUBLE PRECISION, 0), GREATEST($3::INTEGER, 0), $4, $5)` + upsertProfileConflict

// upsertKeyedProfileQuery records $6 in risk_deltas and applies the delta only
// when the key was new, in one statement
const upsertKeyedProfileQuery = `
		WITH applied AS (
			INSERT INTO risk_deltas (delta_key, applied_at) VALUES ($6, $4)
			ON CONFLICT (delta_key) DO NOTHING
			RETURNING 1
		)` + upsertProfileColumns + `
		SELECT $1, GREATEST($2::DOUBLE PRECISION, 0), GREATEST($3::INTEGER, 0), $4, $5
		WHERE EXISTS (SELECT 1 FROM applied)` + upsertProfileConflict

func (d *Database) UpsertRiskProfile(ctx context.Context, delta models.RiskDelta) error {
	if delta.ActorName == "" {
		return store.ErrInvalidRecord
	}
	at := delta.At
	if at.IsZero() {
		at = time.Now()
	}

	args := []any{delta.ActorName, delta.ThreatScore, delta.Warnings, at.UnixNano(), delta.DeviceFingerprint}
	query := upsertProfileQuery
	if delta.Key != "" {
		query = upsertKeyedProfileQuery
		args = append(args, delta.Key)
	}
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting risk profile: %w", err)
	}
	return nil
}

// PruneAppliedDeltas forgets delta keys applied before cutoff
func (d *Database) PruneAppliedDeltas(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM risk_deltas WHERE applied_at < $1`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning applied deltas: %w", err)
	}
	return res.RowsAffected()
}

func (d *Database) ResetRiskProfile(ctx context.Context, actorName string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE risk_profiles
		SET cumulative_threat_score = 0, warning_count = 0
		WHERE actor_name = $1
	`, actorName)
	if err != nil {
		return fmt.Errorf("resetting risk profile: %w", err)
	}
	return nil
}

func (d *Database) ListBans(ctx context.Context, filter store.BanFilter) ([]*models.BanRecord, error) {
	query, args := banQuery(filter)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bans: %w", err)
	}
	defer rows.Close()

	var bans []*models.BanRecord
	for rows.Next() {
		var (
			b        models.BanRecord
			severity string
			created  int64
			expires  sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.ActorName, &b.DeviceID, &b.Reason, &severity, &b.ThreatScore,
			pq.Array(&b.DetectedPatterns), &b.DurationSeconds, &b.MessageContent, &created, &expires); err != nil {
			return nil, fmt.Errorf("scanning ban: %w", err)
		}
		if b.Severity, err = models.ParseSeverity(severity); err != nil {
			return nil, err
		}
		b.CreatedAt = time.Unix(0, created)
		if expires.Valid {
			t := time.Unix(0, expires.Int64)
			b.ExpiresAt = &t
		}
		bans = append(bans, &b)
	}
	return bans, rows.Err()
}

// banQuery builds the filtered ban listing query
func banQuery(filter store.BanFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.ActorName != "" {
		args = append(args, filter.ActorName)
		where = append(where, fmt.Sprintf("actor_name = $%d", len(args)))
	}
	if filter.DeviceID != "" {
		args = append(args, filter.DeviceID)
		where = append(where, fmt.Sprintf("device_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, actor_name, device_id, reason, severity, threat_score, detected_patterns,
		duration_seconds, message_content, created_at, expires_at FROM ban_records`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// StartDeltaPruner drops applied-delta keys older than keep every interval
func (d *Database) StartDeltaPruner(ctx context.Context, every, keep time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := d.PruneAppliedDeltas(ctx, now.Add(-keep))
				if err != nil {
					d.logger.Warn("Pruning applied deltas failed", zap.Error(err))
					continue
				}
				if n > 0 {
					d.logger.Debug("Pruned applied deltas", zap.Int64("count", n))
				}
			}
		}
	}()
}
