package core

import (
	"time"
)

// Action is the screening decision for a call.
type Action string

const (
	ActionBlocked   Action = "blocked"
	ActionAllowed   Action = "allowed"
	ActionChallenge Action = "challenge"
)

// ListType is the list membership of a phone number record.
type ListType string

const (
	ListTypeNone      ListType = ""
	ListTypeWhitelist ListType = "whitelist"
	ListTypeBlacklist ListType = "blacklist"
)

// Trend describes how a reputation score moved since the last recompute.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ReportStatus is the review state of a community spam report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportConfirmed ReportStatus = "confirmed"
	ReportDismissed ReportStatus = "dismissed"
)

// Breakdown holds the per-category risk contributions, each in [0,1].
type Breakdown struct {
	Regulatory float64 `json:"regulatory"`
	Community  float64 `json:"community"`
	Behavioral float64 `json:"behavioral"`
	Voice      float64 `json:"voice"`
	ML         float64 `json:"ml"`
	Temporal   float64 `json:"temporal"`
}

// RiskScore is the pure output of the risk engine. FinalScore is the fixed
// weighted sum of the breakdown; Action is a deterministic function of
// FinalScore and the regulatory hard overrides. DataCompleteness is the
// fraction of categories that actually had signal data.
type RiskScore struct {
	FinalScore       float64
	Action           Action
	Reason           string
	Confidence       float64
	Breakdown        Breakdown
	DataCompleteness float64
}

// VerificationInfo is attached to blocked/challenge results so the caller can
// be offered a challenge path.
type VerificationInfo struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// ResultMetadata carries non-decision context about one screening attempt.
type ResultMetadata struct {
	CarrierName     string        `json:"carrier_name,omitempty"`
	CarrierType     string        `json:"carrier_type,omitempty"`
	LineType        string        `json:"line_type,omitempty"`
	DevelopmentMode bool          `json:"development_mode,omitempty"`
	ProcessingTime  time.Duration `json:"processing_time_ns"`
	ProcessingID    string        `json:"processing_id"`
	FailOpen        bool          `json:"fail_open,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// ScreeningResult is the full outcome of screening one call.
type ScreeningResult struct {
	Action           Action            `json:"action"`
	Reason           string            `json:"reason"`
	Risk             float64           `json:"risk"`
	Confidence       float64           `json:"confidence"`
	Breakdown        Breakdown         `json:"breakdown"`
	DataCompleteness float64           `json:"data_completeness"`
	Features         []string          `json:"features,omitempty"`
	Verification     *VerificationInfo `json:"verification,omitempty"`
	Metadata         ResultMetadata    `json:"metadata"`
}

// ReputationFactors are the six named reputation sub-scores, each 0..100.
type ReputationFactors struct {
	CommunityReports   float64 `json:"community_reports"`
	CallHistory        float64 `json:"call_history"`
	BlockRate          float64 `json:"block_rate"`
	VerificationStatus float64 `json:"verification_status"`
	TimeFactors        float64 `json:"time_factors"`
	CarrierTrust       float64 `json:"carrier_trust"`
}

// PhoneNumberRecord is the persistent per-number state. Created on first
// write; mutated by reputation recompute, verification promotion and
// confirmed-report escalation. The core never deletes records.
type PhoneNumberRecord struct {
	Number          string
	Type            ListType
	ReputationScore int // 0..100
	ScoreFactors    ReputationFactors
	LastScoreUpdate time.Time
}

// ReputationDetails is the ephemeral view returned by reputation lookups.
type ReputationDetails struct {
	Score      int               `json:"score"`
	Factors    ReputationFactors `json:"factors"`
	LastUpdate time.Time         `json:"last_update"`
	Trend      Trend             `json:"trend"`
	Confidence float64           `json:"confidence"`
}

// VerificationCode is a short-lived challenge code for one number.
type VerificationCode struct {
	ID        string
	Number    string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// CallLogEntry is one screening outcome persisted for auditing and for the
// behavioral/reputation aggregates.
type CallLogEntry struct {
	ID           string
	Number       string
	Timestamp    time.Time
	Action       Action
	RiskScore    float64
	Reason       string
	Duration     float64 // seconds, zero until call teardown reports it
	ProcessingID string
}

// CallStats is an aggregate over call log entries in a time window.
type CallStats struct {
	Total   int
	Blocked int
}

// SpamReport is one community report against a number.
type SpamReport struct {
	ID            string       `json:"id"`
	Number        string       `json:"number"`
	Category      string       `json:"category"`
	Comment       string       `json:"comment,omitempty"`
	Confirmations int          `json:"confirmations"`
	Status        ReportStatus `json:"status"`
	ReportedAt    time.Time    `json:"reported_at"`
}

// Verified reports carry a heavier reputation penalty than pending ones.
func (r *SpamReport) Verified() bool {
	return r.Status == ReportConfirmed
}
