package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/metrics"
)

func newScreeningService(
	phoneStore *fakePhoneStore,
	callLog *fakeCallLog,
	reports *fakeReportStore,
	verStore *memVerificationStore,
	spamDB *stubSpamDB,
) *ScreeningService {
	m := metrics.NewNop()
	logger := zap.NewNop()
	aggregator := NewFeatureAggregator(
		phoneStore, callLog, reports,
		&stubReputation{}, &stubCarrier{}, spamDB, &stubDnc{},
		nil, nil, nil,
		m, logger, 500*time.Millisecond, false,
	)
	verification := NewVerificationService(verStore, phoneStore, m, logger)
	return NewScreeningService(aggregator, NewRiskEngine(), verification, callLog, m, logger, false)
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"+1 (202) 555-0100", "+12025550100", false},
		{"202.555.0100", "2025550100", false},
		{"  12025550100  ", "12025550100", false},
		{"+4915123456789", "+4915123456789", false},
		{"123", "", true},
		{"12a34567", "", true},
		{"12345678901234567", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeNumber(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScreenCallCleanNumberAllowed(t *testing.T) {
	callLog := &fakeCallLog{}
	svc := newScreeningService(&fakePhoneStore{}, callLog, &fakeReportStore{}, newMemVerificationStore(), &stubSpamDB{})

	result, err := svc.ScreenCall(context.Background(), "+1 (202) 555-0100", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, ActionAllowed, result.Action)
	assert.Nil(t, result.Verification)
	assert.False(t, result.Metadata.FailOpen)
	assert.NotEmpty(t, result.Metadata.ProcessingID)
	assert.Greater(t, result.DataCompleteness, 0.0)

	entries := callLog.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "+12025550100", entries[0].Number)
	assert.Equal(t, ActionAllowed, entries[0].Action)
	assert.Equal(t, result.Metadata.ProcessingID, entries[0].ProcessingID)
}

func TestScreenCallSpamListedNumberBlocked(t *testing.T) {
	callLog := &fakeCallLog{}
	verStore := newMemVerificationStore()
	svc := newScreeningService(&fakePhoneStore{}, callLog, &fakeReportStore{}, verStore, &stubSpamDB{isSpam: true})

	result, err := svc.ScreenCall(context.Background(), "12025550100", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, ActionBlocked, result.Action)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Contains(t, result.Reason, "national spam database")

	// A blocked caller is still offered the challenge path.
	require.NotNil(t, result.Verification)
	assert.Regexp(t, `^[0-9]{6}$`, result.Verification.Code)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), result.Verification.ExpiresAt, time.Minute)

	entries := callLog.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionBlocked, entries[0].Action)
}

func TestScreenCallWhitelistedNumberAllowed(t *testing.T) {
	phoneStore := &fakePhoneStore{
		findFn: func(ctx context.Context, number string) (*PhoneNumberRecord, error) {
			return &PhoneNumberRecord{Number: number, Type: ListTypeWhitelist}, nil
		},
	}
	svc := newScreeningService(phoneStore, &fakeCallLog{}, &fakeReportStore{}, newMemVerificationStore(), &stubSpamDB{isSpam: true})

	result, err := svc.ScreenCall(context.Background(), "12025550100", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, ActionAllowed, result.Action)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, "number is whitelisted", result.Reason)
}

func TestScreenCallInvalidNumber(t *testing.T) {
	svc := newScreeningService(&fakePhoneStore{}, &fakeCallLog{}, &fakeReportStore{}, newMemVerificationStore(), &stubSpamDB{})

	result, err := svc.ScreenCall(context.Background(), "not-a-number", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidNumber)
	assert.Nil(t, result)
}

func TestScreenCallFailsOpenOnPanic(t *testing.T) {
	verStore := newMemVerificationStore()
	verStore.createFn = func(ctx context.Context, code *VerificationCode) error {
		panic("verification store down")
	}
	svc := newScreeningService(&fakePhoneStore{}, &fakeCallLog{}, &fakeReportStore{}, verStore, &stubSpamDB{isSpam: true})

	result, err := svc.ScreenCall(context.Background(), "12025550100", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, ActionAllowed, result.Action)
	assert.Equal(t, 0.5, result.Risk)
	assert.Equal(t, 0.1, result.Confidence)
	assert.True(t, result.Metadata.FailOpen)
	assert.Contains(t, result.Metadata.Error, "panic")
}

func TestScreenCallDegradedSignalsStillDecide(t *testing.T) {
	phoneStore := &fakePhoneStore{
		findFn: func(ctx context.Context, number string) (*PhoneNumberRecord, error) {
			return nil, errors.New("database unavailable")
		},
	}
	svc := newScreeningService(phoneStore, &fakeCallLog{}, &fakeReportStore{}, newMemVerificationStore(), &stubSpamDB{err: errors.New("upstream timeout")})

	result, err := svc.ScreenCall(context.Background(), "12025550100", nil, 0)
	require.NoError(t, err)

	// Broken sources degrade to absent; the call is never failed open for it.
	assert.Equal(t, ActionAllowed, result.Action)
	assert.False(t, result.Metadata.FailOpen)
}

func TestScreenCallSurvivesLogWriteFailure(t *testing.T) {
	callLog := &fakeCallLog{
		appendFn: func(ctx context.Context, entry *CallLogEntry) error {
			return errors.New("disk full")
		},
	}
	svc := newScreeningService(&fakePhoneStore{}, callLog, &fakeReportStore{}, newMemVerificationStore(), &stubSpamDB{})

	result, err := svc.ScreenCall(context.Background(), "12025550100", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, ActionAllowed, result.Action)
}

func TestBatchScreenCallsOmitsFailures(t *testing.T) {
	svc := newScreeningService(&fakePhoneStore{}, &fakeCallLog{}, &fakeReportStore{}, newMemVerificationStore(), &stubSpamDB{})

	numbers := []string{"not-a-number"}
	for i := 0; i < 12; i++ {
		numbers = append(numbers, fmt.Sprintf("120255501%02d", i))
	}

	results := svc.BatchScreenCalls(context.Background(), numbers)

	assert.Len(t, results, 12)
	assert.NotContains(t, results, "not-a-number")
	for _, number := range numbers[1:] {
		assert.Contains(t, results, number)
	}
}

func TestFailOpenResultShape(t *testing.T) {
	result := FailOpenResult("proc-1", errors.New("boom"), 30*time.Millisecond)

	assert.Equal(t, ActionAllowed, result.Action)
	assert.Equal(t, 0.5, result.Risk)
	assert.Equal(t, 0.1, result.Confidence)
	assert.True(t, result.Metadata.FailOpen)
	assert.Equal(t, "boom", result.Metadata.Error)
	assert.Equal(t, "proc-1", result.Metadata.ProcessingID)
}

func TestContributingFeatures(t *testing.T) {
	features := contributingFeatures(Breakdown{Community: 0.5, Voice: 0.31, Temporal: 0.3})
	assert.Equal(t, []string{"community", "voice"}, features)

	assert.Empty(t, contributingFeatures(Breakdown{}))
}
