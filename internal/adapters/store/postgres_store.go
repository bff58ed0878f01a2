package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/core"
)

// PostgresStore is a pgx-backed implementation of all four store ports,
// for deployments where several screening nodes share one database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects a pooled postgres store. The schema is expected
// to be managed externally (migrations ship with the deployment).
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	logger.Info("Connected to postgres store", zap.Int32("max_conns", cfg.MaxConns))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) FindByNumber(ctx context.Context, number string) (*core.PhoneNumberRecord, error) {
	record := &core.PhoneNumberRecord{Number: number}
	var lastUpdate *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT list_type, reputation_score,
		       f_community_reports, f_call_history, f_block_rate,
		       f_verification_status, f_time_factors, f_carrier_trust,
		       last_score_update
		FROM phone_numbers WHERE number = $1
	`, number).Scan(
		&record.Type, &record.ReputationScore,
		&record.ScoreFactors.CommunityReports, &record.ScoreFactors.CallHistory,
		&record.ScoreFactors.BlockRate, &record.ScoreFactors.VerificationStatus,
		&record.ScoreFactors.TimeFactors, &record.ScoreFactors.CarrierTrust,
		&lastUpdate,
	)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query phone record: %w", err)
	}
	if lastUpdate != nil {
		record.LastScoreUpdate = *lastUpdate
	}
	return record, nil
}

func (s *PostgresStore) UpsertReputation(ctx context.Context, number string, score int, factors core.ReputationFactors, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO phone_numbers (
			number, reputation_score,
			f_community_reports, f_call_history, f_block_rate,
			f_verification_status, f_time_factors, f_carrier_trust,
			last_score_update
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (number) DO UPDATE SET
			reputation_score = EXCLUDED.reputation_score,
			f_community_reports = EXCLUDED.f_community_reports,
			f_call_history = EXCLUDED.f_call_history,
			f_block_rate = EXCLUDED.f_block_rate,
			f_verification_status = EXCLUDED.f_verification_status,
			f_time_factors = EXCLUDED.f_time_factors,
			f_carrier_trust = EXCLUDED.f_carrier_trust,
			last_score_update = EXCLUDED.last_score_update
	`, number, score,
		factors.CommunityReports, factors.CallHistory, factors.BlockRate,
		factors.VerificationStatus, factors.TimeFactors, factors.CarrierTrust,
		at,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reputation: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetListType(ctx context.Context, number string, listType core.ListType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO phone_numbers (number, list_type) VALUES ($1, $2)
		ON CONFLICT (number) DO UPDATE SET list_type = EXCLUDED.list_type
	`, number, string(listType))
	if err != nil {
		return fmt.Errorf("failed to set list type: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry *core.CallLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_log (id, number, ts, action, risk_score, reason, duration, processing_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Number, entry.Timestamp, string(entry.Action),
		entry.RiskScore, entry.Reason, entry.Duration, entry.ProcessingID)
	if err != nil {
		return fmt.Errorf("failed to append call log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountByNumber(ctx context.Context, number string, since time.Time) (core.CallStats, error) {
	var stats core.CallStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE action = 'blocked')
		FROM call_log WHERE number = $1 AND ts >= $2
	`, number, since).Scan(&stats.Total, &stats.Blocked)
	if err != nil {
		return core.CallStats{}, fmt.Errorf("failed to count calls: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) LastEntry(ctx context.Context, number string) (*core.CallLogEntry, error) {
	entry := &core.CallLogEntry{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, number, ts, action, risk_score, COALESCE(reason, ''), duration, COALESCE(processing_id, '')
		FROM call_log WHERE number = $1 ORDER BY ts DESC LIMIT 1
	`, number).Scan(&entry.ID, &entry.Number, &entry.Timestamp, &entry.Action,
		&entry.RiskScore, &entry.Reason, &entry.Duration, &entry.ProcessingID)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last call: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) AvgDuration(ctx context.Context, number string, since time.Time) (float64, error) {
	var avg *float64
	err := s.pool.QueryRow(ctx, `
		SELECT AVG(duration) FROM call_log
		WHERE number = $1 AND ts >= $2 AND duration > 0
	`, number, since).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average durations: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (s *PostgresStore) Add(ctx context.Context, report *core.SpamReport) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO spam_reports (id, number, category, comment, confirmations, status, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, report.ID, report.Number, report.Category, report.Comment,
		report.Confirmations, string(report.Status), report.ReportedAt)
	if err != nil {
		return fmt.Errorf("failed to insert spam report: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReportsByNumber(ctx context.Context, number string) ([]core.SpamReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, number, COALESCE(category, ''), COALESCE(comment, ''), confirmations, status, reported_at
		FROM spam_reports WHERE number = $1 ORDER BY reported_at DESC
	`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to query spam reports: %w", err)
	}
	defer rows.Close()

	var reports []core.SpamReport
	for rows.Next() {
		var report core.SpamReport
		if err := rows.Scan(&report.ID, &report.Number, &report.Category, &report.Comment,
			&report.Confirmations, &report.Status, &report.ReportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spam report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) IncrementConfirmations(ctx context.Context, reportID string) (int, error) {
	var confirmations int
	err := s.pool.QueryRow(ctx, `
		UPDATE spam_reports SET confirmations = confirmations + 1
		WHERE id = $1
		RETURNING confirmations
	`, reportID).Scan(&confirmations)
	if err == pgx.ErrNoRows {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment confirmations: %w", err)
	}
	return confirmations, nil
}

func (s *PostgresStore) Create(ctx context.Context, code *core.VerificationCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_codes (id, number, code, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`, code.ID, code.Number, code.Code, code.ExpiresAt, code.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert verification code: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, number, code string, now time.Time) (*core.VerificationCode, error) {
	stored := &core.VerificationCode{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, number, code, expires_at, used, created_at
		FROM verification_codes
		WHERE number = $1 AND code = $2 AND NOT used AND expires_at > $3
		ORDER BY created_at DESC LIMIT 1
	`, number, code, now).Scan(&stored.ID, &stored.Number, &stored.Code,
		&stored.ExpiresAt, &stored.Used, &stored.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query verification code: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE verification_codes SET used = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, number string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_attempts (number, attempted_at) VALUES ($1, $2)
	`, number, at)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountAttempts(ctx context.Context, number string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_attempts WHERE number = $1 AND attempted_at >= $2
	`, number, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
