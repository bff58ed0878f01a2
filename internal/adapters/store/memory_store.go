// Package store provides the persistence adapters behind the core's store
// ports: an in-memory implementation for development and tests, an embedded
// SQLite backend, and a PostgreSQL backend.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/core"
)

// MemoryStore is an in-memory implementation of all four store ports.
type MemoryStore struct {
	mu       sync.RWMutex
	numbers  map[string]*core.PhoneNumberRecord
	calls    []*core.CallLogEntry
	reports  map[string]*core.SpamReport
	codes    map[string]*core.VerificationCode
	attempts map[string][]time.Time
	logger   *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		numbers:  make(map[string]*core.PhoneNumberRecord),
		calls:    nil,
		reports:  make(map[string]*core.SpamReport),
		codes:    make(map[string]*core.VerificationCode),
		attempts: make(map[string][]time.Time),
		logger:   logger,
	}
}

func (s *MemoryStore) FindByNumber(ctx context.Context, number string) (*core.PhoneNumberRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.numbers[number]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) UpsertReputation(ctx context.Context, number string, score int, factors core.ReputationFactors, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.numbers[number]
	if !ok {
		record = &core.PhoneNumberRecord{Number: number}
		s.numbers[number] = record
	}
	record.ReputationScore = score
	record.ScoreFactors = factors
	record.LastScoreUpdate = at
	return nil
}

func (s *MemoryStore) SetListType(ctx context.Context, number string, listType core.ListType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.numbers[number]
	if !ok {
		record = &core.PhoneNumberRecord{Number: number}
		s.numbers[number] = record
	}
	record.Type = listType
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, entry *core.CallLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	s.calls = append(s.calls, &clone)
	return nil
}

func (s *MemoryStore) CountByNumber(ctx context.Context, number string, since time.Time) (core.CallStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats core.CallStats
	for _, entry := range s.calls {
		if entry.Number != number || entry.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		if entry.Action == core.ActionBlocked {
			stats.Blocked++
		}
	}
	return stats, nil
}

func (s *MemoryStore) LastEntry(ctx context.Context, number string) (*core.CallLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *core.CallLogEntry
	for _, entry := range s.calls {
		if entry.Number != number {
			continue
		}
		if last == nil || entry.Timestamp.After(last.Timestamp) {
			last = entry
		}
	}
	if last == nil {
		return nil, core.ErrNotFound
	}
	clone := *last
	return &clone, nil
}

func (s *MemoryStore) AvgDuration(ctx context.Context, number string, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, count := 0.0, 0
	for _, entry := range s.calls {
		if entry.Number != number || entry.Timestamp.Before(since) || entry.Duration <= 0 {
			continue
		}
		sum += entry.Duration
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func (s *MemoryStore) Add(ctx context.Context, report *core.SpamReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *report
	s.reports[report.ID] = &clone
	return nil
}

func (s *MemoryStore) ReportsByNumber(ctx context.Context, number string) ([]core.SpamReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.SpamReport
	for _, report := range s.reports {
		if report.Number == number {
			out = append(out, *report)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReportedAt.After(out[j].ReportedAt)
	})
	return out, nil
}

func (s *MemoryStore) IncrementConfirmations(ctx context.Context, reportID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[reportID]
	if !ok {
		return 0, core.ErrNotFound
	}
	report.Confirmations++
	return report.Confirmations, nil
}

func (s *MemoryStore) Create(ctx context.Context, code *core.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *code
	s.codes[code.ID] = &clone
	return nil
}

func (s *MemoryStore) FindActive(ctx context.Context, number, code string, now time.Time) (*core.VerificationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, stored := range s.codes {
		if stored.Number == number && stored.Code == code && !stored.Used && stored.ExpiresAt.After(now) {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *MemoryStore) MarkUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[id]
	if !ok {
		return core.ErrNotFound
	}
	code.Used = true
	return nil
}

func (s *MemoryStore) RecordAttempt(ctx context.Context, number string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[number] = append(s.attempts[number], at)
	return nil
}

func (s *MemoryStore) CountAttempts(ctx context.Context, number string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, at := range s.attempts[number] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, code := range s.codes {
		if code.ExpiresAt.Before(before) {
			delete(s.codes, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Removed expired verification codes", zap.Int("count", removed))
	}
	return removed, nil
}
