package core

import (
	"time"
)

// CallFeatures is the aggregated snapshot of every signal available about one
// inbound call. Any sub-record may be nil; a nil sub-record contributes zero
// risk to its category.
type CallFeatures struct {
	PhoneNumber string
	Timestamp   time.Time

	Carrier     *CarrierInfo
	CallHistory *CallHistory
	Community   *CommunitySignals
	Voice       *VoiceSignals
	ML          *MLPrediction
	Regulatory  *RegulatoryFlags
	ScamPhrases *ScamPhraseResult
	Temporal    *TemporalContext
}

// CarrierInfo describes the originating carrier and line type.
type CarrierInfo struct {
	Name     string
	Type     string
	Country  string
	IsMobile bool
}

// CallHistory summarizes the caller's prior activity against this system.
type CallHistory struct {
	TotalCalls      int
	BlockedCalls    int
	BlockRate       float64
	AvgCallDuration float64 // seconds
	CallFrequency   float64 // calls per day over the trailing month
	LastCallTime    time.Time
}

// CommunitySignals carries crowd-sourced spam evidence and the caller's
// trust score. ReputationScore is nil when no score could be obtained.
type CommunitySignals struct {
	SpamReports     int
	VerifiedReports int
	ReputationScore *float64 // 0..100
}

// VoiceSignals is the output of audio analysis on the live call.
type VoiceSignals struct {
	IsRobot    bool
	Confidence float64
	Features   []float64
	Patterns   VoicePatterns
	Transcript string
}

// VoicePatterns holds derived acoustic measurements. Naturalness is nil when
// the analyzer could not estimate it.
type VoicePatterns struct {
	Energy           float64
	ZeroCrossings    float64
	RhythmRegularity float64
	Naturalness      *float64
}

// MLPrediction is a spam probability from an external model.
type MLPrediction struct {
	SpamProbability float64
	Confidence      float64
	Factors         []string
}

// RegulatoryFlags holds list-membership facts about the number.
type RegulatoryFlags struct {
	IsDNC         bool
	IsFCCSpam     bool
	IsWhitelisted bool
	IsBlacklisted bool
}

// ScamPhraseResult is the output of scam-phrase detection on a transcript.
type ScamPhraseResult struct {
	Detected   bool
	Confidence float64
	Phrases    []string
	Category   string
}

// TemporalContext captures when the call arrived. TimeSinceLastCall is nil
// when the number has never called before.
type TemporalContext struct {
	HourOfDay         int
	DayOfWeek         int
	IsBusinessHours   bool
	TimeSinceLastCall *time.Duration
}
