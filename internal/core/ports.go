package core

import (
	"context"
	"time"
)

// PhoneNumberStore persists per-number records. Both write paths are
// single-statement upserts so concurrent callers never lose updates.
type PhoneNumberStore interface {
	// FindByNumber returns the record for a number, or ErrNotFound.
	FindByNumber(ctx context.Context, number string) (*PhoneNumberRecord, error)

	// UpsertReputation creates or overwrites the reputation fields of a
	// record, preserving any existing list type.
	UpsertReputation(ctx context.Context, number string, score int, factors ReputationFactors, at time.Time) error

	// SetListType creates or updates a record's list membership.
	SetListType(ctx context.Context, number string, listType ListType) error
}

// CallLogStore persists screening outcomes and serves the time-window
// aggregates the behavioral and reputation signals are built from.
type CallLogStore interface {
	Append(ctx context.Context, entry *CallLogEntry) error

	// CountByNumber returns total and blocked call counts since a cutoff.
	CountByNumber(ctx context.Context, number string, since time.Time) (CallStats, error)

	// LastEntry returns the most recent entry for a number, or ErrNotFound.
	LastEntry(ctx context.Context, number string) (*CallLogEntry, error)

	// AvgDuration returns the mean call duration in seconds since a cutoff,
	// zero when no entries carry a duration.
	AvgDuration(ctx context.Context, number string, since time.Time) (float64, error)
}

// SpamReportStore persists community spam reports.
type SpamReportStore interface {
	Add(ctx context.Context, report *SpamReport) error
	ReportsByNumber(ctx context.Context, number string) ([]SpamReport, error)

	// IncrementConfirmations atomically bumps a report's confirmation count
	// and returns the new value. The increment must happen at the storage
	// layer, never as a read-then-write.
	IncrementConfirmations(ctx context.Context, reportID string) (int, error)
}

// VerificationStore persists challenge codes and attempt history.
type VerificationStore interface {
	Create(ctx context.Context, code *VerificationCode) error

	// FindActive returns an unused, unexpired code matching (number, code),
	// or ErrNotFound.
	FindActive(ctx context.Context, number, code string, now time.Time) (*VerificationCode, error)

	MarkUsed(ctx context.Context, id string) error
	RecordAttempt(ctx context.Context, number string, at time.Time) error
	CountAttempts(ctx context.Context, number string, since time.Time) (int, error)

	// DeleteExpired removes codes that expired before the cutoff and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// CarrierLookup resolves carrier and line-type data for a number.
type CarrierLookup interface {
	Lookup(ctx context.Context, number string) (*CarrierInfo, error)
}

// SpamDatabaseResult is a national spam database verdict.
type SpamDatabaseResult struct {
	IsSpam  bool
	Details string
}

// SpamDatabaseCheck queries the national spam database.
type SpamDatabaseCheck interface {
	Check(ctx context.Context, number string) (*SpamDatabaseResult, error)
}

// DncResult is a do-not-call registry verdict.
type DncResult struct {
	IsRegistered     bool
	RegistrationDate *time.Time
}

// DncCheck queries the do-not-call registry. Implementations must not fail:
// on any internal error they return "not registered" rather than an error.
type DncCheck interface {
	Check(ctx context.Context, number string) (*DncResult, error)
}

// VoiceSignalAnalyzer analyzes call audio. Optional; a nil analyzer or a
// failed analysis leaves the voice category absent.
type VoiceSignalAnalyzer interface {
	Analyze(ctx context.Context, audio []byte, sampleRate int) (*VoiceSignals, error)
}

// ScamPhraseDetector scans a transcript for known scam phrasing. Optional.
type ScamPhraseDetector interface {
	Detect(ctx context.Context, transcript, language string, audioFeatures []float64) (*ScamPhraseResult, error)
}

// SpamPredictor supplies an ML spam probability for a call. Optional.
type SpamPredictor interface {
	Predict(ctx context.Context, number string, features *CallFeatures) (*MLPrediction, error)
}

// ReputationProvider is the screening-path view of the reputation subsystem.
// Implementations must never block on a full recompute.
type ReputationProvider interface {
	CalculateReputationScore(ctx context.Context, number string) (*ReputationDetails, error)
}
