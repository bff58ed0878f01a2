package core

import (
	"context"
	"sync"
	"time"
)

// Function-field fakes for the store and signal ports. A nil field means
// "empty but healthy": lookups miss, writes succeed.

type fakePhoneStore struct {
	findFn    func(ctx context.Context, number string) (*PhoneNumberRecord, error)
	upsertFn  func(ctx context.Context, number string, score int, factors ReputationFactors, at time.Time) error
	setListFn func(ctx context.Context, number string, listType ListType) error
}

func (f *fakePhoneStore) FindByNumber(ctx context.Context, number string) (*PhoneNumberRecord, error) {
	if f.findFn == nil {
		return nil, ErrNotFound
	}
	return f.findFn(ctx, number)
}

func (f *fakePhoneStore) UpsertReputation(ctx context.Context, number string, score int, factors ReputationFactors, at time.Time) error {
	if f.upsertFn == nil {
		return nil
	}
	return f.upsertFn(ctx, number, score, factors, at)
}

func (f *fakePhoneStore) SetListType(ctx context.Context, number string, listType ListType) error {
	if f.setListFn == nil {
		return nil
	}
	return f.setListFn(ctx, number, listType)
}

type fakeCallLog struct {
	appendFn func(ctx context.Context, entry *CallLogEntry) error
	countFn  func(ctx context.Context, number string, since time.Time) (CallStats, error)
	lastFn   func(ctx context.Context, number string) (*CallLogEntry, error)
	avgFn    func(ctx context.Context, number string, since time.Time) (float64, error)

	mu       sync.Mutex
	appended []*CallLogEntry
}

func (f *fakeCallLog) Append(ctx context.Context, entry *CallLogEntry) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, entry)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, entry)
	return nil
}

func (f *fakeCallLog) CountByNumber(ctx context.Context, number string, since time.Time) (CallStats, error) {
	if f.countFn == nil {
		return CallStats{}, nil
	}
	return f.countFn(ctx, number, since)
}

func (f *fakeCallLog) LastEntry(ctx context.Context, number string) (*CallLogEntry, error) {
	if f.lastFn == nil {
		return nil, ErrNotFound
	}
	return f.lastFn(ctx, number)
}

func (f *fakeCallLog) AvgDuration(ctx context.Context, number string, since time.Time) (float64, error) {
	if f.avgFn == nil {
		return 0, nil
	}
	return f.avgFn(ctx, number, since)
}

func (f *fakeCallLog) entries() []*CallLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*CallLogEntry, len(f.appended))
	copy(out, f.appended)
	return out
}

type fakeReportStore struct {
	reportsFn   func(ctx context.Context, number string) ([]SpamReport, error)
	incrementFn func(ctx context.Context, reportID string) (int, error)

	mu    sync.Mutex
	added []*SpamReport
}

func (f *fakeReportStore) Add(ctx context.Context, report *SpamReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, report)
	return nil
}

func (f *fakeReportStore) ReportsByNumber(ctx context.Context, number string) ([]SpamReport, error) {
	if f.reportsFn == nil {
		return nil, nil
	}
	return f.reportsFn(ctx, number)
}

func (f *fakeReportStore) IncrementConfirmations(ctx context.Context, reportID string) (int, error) {
	if f.incrementFn == nil {
		return 1, nil
	}
	return f.incrementFn(ctx, reportID)
}

// memVerificationStore is a minimal in-memory VerificationStore for
// exercising the verification flow without the adapters package.
type memVerificationStore struct {
	mu       sync.Mutex
	codes    map[string]*VerificationCode
	attempts map[string][]time.Time
	createFn func(ctx context.Context, code *VerificationCode) error
}

func newMemVerificationStore() *memVerificationStore {
	return &memVerificationStore{
		codes:    make(map[string]*VerificationCode),
		attempts: make(map[string][]time.Time),
	}
}

func (s *memVerificationStore) Create(ctx context.Context, code *VerificationCode) error {
	if s.createFn != nil {
		return s.createFn(ctx, code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *code
	s.codes[code.ID] = &clone
	return nil
}

func (s *memVerificationStore) FindActive(ctx context.Context, number, code string, now time.Time) (*VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.codes {
		if stored.Number == number && stored.Code == code && !stored.Used && stored.ExpiresAt.After(now) {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memVerificationStore) MarkUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok {
		return ErrNotFound
	}
	code.Used = true
	return nil
}

func (s *memVerificationStore) RecordAttempt(ctx context.Context, number string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[number] = append(s.attempts[number], at)
	return nil
}

func (s *memVerificationStore) CountAttempts(ctx context.Context, number string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, at := range s.attempts[number] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memVerificationStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, code := range s.codes {
		if code.ExpiresAt.Before(before) {
			delete(s.codes, id)
			removed++
		}
	}
	return removed, nil
}

type stubReputation struct {
	details *ReputationDetails
	err     error
}

func (s *stubReputation) CalculateReputationScore(ctx context.Context, number string) (*ReputationDetails, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.details == nil {
		return &ReputationDetails{Score: 50, Trend: TrendStable, Confidence: 0.3}, nil
	}
	return s.details, nil
}

type stubCarrier struct {
	info *CarrierInfo
	err  error
}

func (s *stubCarrier) Lookup(ctx context.Context, number string) (*CarrierInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.info == nil {
		return &CarrierInfo{Name: "unknown", Type: "landline", Country: "US"}, nil
	}
	return s.info, nil
}

type stubSpamDB struct {
	isSpam bool
	err    error
}

func (s *stubSpamDB) Check(ctx context.Context, number string) (*SpamDatabaseResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &SpamDatabaseResult{IsSpam: s.isSpam}, nil
}

type stubDnc struct {
	registered bool
}

func (s *stubDnc) Check(ctx context.Context, number string) (*DncResult, error) {
	return &DncResult{IsRegistered: s.registered}, nil
}

type stubVoice struct {
	signals *VoiceSignals
	err     error
}

func (s *stubVoice) Analyze(ctx context.Context, audio []byte, sampleRate int) (*VoiceSignals, error) {
	return s.signals, s.err
}

type stubScamDetector struct {
	result *ScamPhraseResult
	called bool
}

func (s *stubScamDetector) Detect(ctx context.Context, transcript, language string, audioFeatures []float64) (*ScamPhraseResult, error) {
	s.called = true
	return s.result, nil
}
