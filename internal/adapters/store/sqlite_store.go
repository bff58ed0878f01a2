package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/core"
)

// SQLiteStore is an embedded implementation of all four store ports.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS phone_numbers (
	number TEXT PRIMARY KEY,
	list_type TEXT NOT NULL DEFAULT '',
	reputation_score INTEGER NOT NULL DEFAULT 50,
	f_community_reports REAL NOT NULL DEFAULT 50,
	f_call_history REAL NOT NULL DEFAULT 50,
	f_block_rate REAL NOT NULL DEFAULT 50,
	f_verification_status REAL NOT NULL DEFAULT 50,
	f_time_factors REAL NOT NULL DEFAULT 50,
	f_carrier_trust REAL NOT NULL DEFAULT 50,
	last_score_update TIMESTAMP
);

CREATE TABLE IF NOT EXISTS call_log (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL,
	ts TIMESTAMP NOT NULL,
	action TEXT NOT NULL,
	risk_score REAL NOT NULL,
	reason TEXT,
	duration REAL NOT NULL DEFAULT 0,
	processing_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_call_log_number_ts ON call_log(number, ts);

CREATE TABLE IF NOT EXISTS spam_reports (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL,
	category TEXT,
	comment TEXT,
	confirmations INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	reported_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spam_reports_number ON spam_reports(number);

CREATE TABLE IF NOT EXISTS verification_codes (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL,
	code TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	used INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_codes_number ON verification_codes(number, code);
CREATE INDEX IF NOT EXISTS idx_verification_codes_expires ON verification_codes(expires_at);

CREATE TABLE IF NOT EXISTS verification_attempts (
	number TEXT NOT NULL,
	attempted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_attempts ON verification_attempts(number, attempted_at);
`

// NewSQLiteStore opens (and if needed initializes) a SQLite database.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByNumber(ctx context.Context, number string) (*core.PhoneNumberRecord, error) {
	record := &core.PhoneNumberRecord{Number: number}
	var lastUpdate sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT list_type, reputation_score,
		       f_community_reports, f_call_history, f_block_rate,
		       f_verification_status, f_time_factors, f_carrier_trust,
		       last_score_update
		FROM phone_numbers WHERE number = ?
	`, number).Scan(
		&record.Type, &record.ReputationScore,
		&record.ScoreFactors.CommunityReports, &record.ScoreFactors.CallHistory,
		&record.ScoreFactors.BlockRate, &record.ScoreFactors.VerificationStatus,
		&record.ScoreFactors.TimeFactors, &record.ScoreFactors.CarrierTrust,
		&lastUpdate,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query phone record: %w", err)
	}
	if lastUpdate.Valid {
		record.LastScoreUpdate = lastUpdate.Time
	}
	return record, nil
}

func (s *SQLiteStore) UpsertReputation(ctx context.Context, number string, score int, factors core.ReputationFactors, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phone_numbers (
			number, reputation_score,
			f_community_reports, f_call_history, f_block_rate,
			f_verification_status, f_time_factors, f_carrier_trust,
			last_score_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			reputation_score = excluded.reputation_score,
			f_community_reports = excluded.f_community_reports,
			f_call_history = excluded.f_call_history,
			f_block_rate = excluded.f_block_rate,
			f_verification_status = excluded.f_verification_status,
			f_time_factors = excluded.f_time_factors,
			f_carrier_trust = excluded.f_carrier_trust,
			last_score_update = excluded.last_score_update
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

func (s *SQLiteStore) SetListType(ctx context.Context, number string, listType core.ListType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phone_numbers (number, list_type) VALUES (?, ?)
		ON CONFLICT(number) DO UPDATE SET list_type = excluded.list_type
	`, number, string(listType))
	if err != nil {
		return fmt.Errorf("failed to set list type: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, entry *core.CallLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_log (id, number, ts, action, risk_score, reason, duration, processing_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Number, entry.Timestamp, string(entry.Action),
		entry.RiskScore, entry.Reason, entry.Duration, entry.ProcessingID)
	if err != nil {
		return fmt.Errorf("failed to append call log entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountByNumber(ctx context.Context, number string, since time.Time) (core.CallStats, error) {
	var stats core.CallStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN action = 'blocked' THEN 1 ELSE 0 END), 0)
		FROM call_log WHERE number = ? AND ts >= ?
	`, number, since).Scan(&stats.Total, &stats.Blocked)
	if err != nil {
		return core.CallStats{}, fmt.Errorf("failed to count calls: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) LastEntry(ctx context.Context, number string) (*core.CallLogEntry, error) {
	entry := &core.CallLogEntry{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, ts, action, risk_score, COALESCE(reason, ''), duration, COALESCE(processing_id, '')
		FROM call_log WHERE number = ? ORDER BY ts DESC LIMIT 1
	`, number).Scan(&entry.ID, &entry.Number, &entry.Timestamp, &entry.Action,
		&entry.RiskScore, &entry.Reason, &entry.Duration, &entry.ProcessingID)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last call: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) AvgDuration(ctx context.Context, number string, since time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(duration) FROM call_log
		WHERE number = ? AND ts >= ? AND duration > 0
	`, number, since).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average durations: %w", err)
	}
	return avg.Float64, nil
}

func (s *SQLiteStore) Add(ctx context.Context, report *core.SpamReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spam_reports (id, number, category, comment, confirmations, status, reported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, report.ID, report.Number, report.Category, report.Comment,
		report.Confirmations, string(report.Status), report.ReportedAt)
	if err != nil {
		return fmt.Errorf("failed to insert spam report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReportsByNumber(ctx context.Context, number string) ([]core.SpamReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, COALESCE(category, ''), COALESCE(comment, ''), confirmations, status, reported_at
		FROM spam_reports WHERE number = ? ORDER BY reported_at DESC
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

func (s *SQLiteStore) IncrementConfirmations(ctx context.Context, reportID string) (int, error) {
	// Atomic increment at the storage layer; a read-then-write here would
	// lose updates under concurrent confirmations.
	var confirmations int
	err := s.db.QueryRowContext(ctx, `
		UPDATE spam_reports SET confirmations = confirmations + 1
		WHERE id = ?
		RETURNING confirmations
	`, reportID).Scan(&confirmations)
	if err == sql.ErrNoRows {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment confirmations: %w", err)
	}
	return confirmations, nil
}

func (s *SQLiteStore) Create(ctx context.Context, code *core.VerificationCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_codes (id, number, code, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, code.ID, code.Number, code.Code, code.ExpiresAt, code.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert verification code: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindActive(ctx context.Context, number, code string, now time.Time) (*core.VerificationCode, error) {
	stored := &core.VerificationCode{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, code, expires_at, used, created_at
		FROM verification_codes
		WHERE number = ? AND code = ? AND used = 0 AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1
	`, number, code, now).Scan(&stored.ID, &stored.Number, &stored.Code,
		&stored.ExpiresAt, &stored.Used, &stored.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query verification code: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) MarkUsed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE verification_codes SET used = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark code used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, number string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_attempts (number, attempted_at) VALUES (?, ?)
	`, number, at)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountAttempts(ctx context.Context, number string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_attempts WHERE number = ? AND attempted_at >= ?
	`, number, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at <= ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to read rows affected during cleanup", zap.Error(err))
		return 0, nil
	}
	return int(affected), nil
}
