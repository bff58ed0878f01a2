package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/metrics"
)

const behavioralWindow = 30 * 24 * time.Hour

// FeatureAggregator fans out to every signal source and assembles one
// CallFeatures snapshot. Each fetch runs in its own goroutine with a bounded
// timeout and its own error capture, so a flaky dependency degrades its
// category to absent instead of aborting the whole screening call.
type FeatureAggregator struct {
	phoneStore    PhoneNumberStore
	callLog       CallLogStore
	spamReports   SpamReportStore
	reputation    ReputationProvider
	carrier       CarrierLookup
	spamDB        SpamDatabaseCheck
	dnc           DncCheck
	voice         VoiceSignalAnalyzer
	scamPhrases   ScamPhraseDetector
	predictor     SpamPredictor
	metrics       *metrics.Metrics
	logger        *zap.Logger
	signalTimeout time.Duration
	devMode       bool
}

// NewFeatureAggregator creates a feature aggregator. voice, scamPhrases and
// predictor may be nil; their categories then stay absent.
func NewFeatureAggregator(
	phoneStore PhoneNumberStore,
	callLog CallLogStore,
	spamReports SpamReportStore,
	reputation ReputationProvider,
	carrier CarrierLookup,
	spamDB SpamDatabaseCheck,
	dnc DncCheck,
	voice VoiceSignalAnalyzer,
	scamPhrases ScamPhraseDetector,
	predictor SpamPredictor,
	m *metrics.Metrics,
	logger *zap.Logger,
	signalTimeout time.Duration,
	devMode bool,
) *FeatureAggregator {
	return &FeatureAggregator{
		phoneStore:    phoneStore,
		callLog:       callLog,
		spamReports:   spamReports,
		reputation:    reputation,
		carrier:       carrier,
		spamDB:        spamDB,
		dnc:           dnc,
		voice:         voice,
		scamPhrases:   scamPhrases,
		predictor:     predictor,
		metrics:       m,
		logger:        logger,
		signalTimeout: signalTimeout,
		devMode:       devMode,
	}
}

// fetchSignal runs one signal fetch under its own timeout, recovering from
// panics so no single source can take down the join.
func fetchSignal[T any](ctx context.Context, a *FeatureAggregator, source string, fn func(context.Context) (T, error)) (result T, err error) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.signalTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signal source panicked: %v", r)
		}
		if err != nil {
			a.metrics.SignalError(source)
			a.logger.Warn("Signal fetch failed, treating as absent",
				zap.String("source", source),
				zap.Error(err))
		}
	}()
	return fn(fetchCtx)
}

// Aggregate collects all available signals for one call and merges them into
// a single CallFeatures snapshot stamped with the supplied timestamp.
func (a *FeatureAggregator) Aggregate(ctx context.Context, phoneNumber string, audio []byte, sampleRate int, now time.Time) *CallFeatures {
	features := &CallFeatures{
		PhoneNumber: phoneNumber,
		Timestamp:   now,
	}

	var (
		record     *PhoneNumberRecord
		reputation *ReputationDetails
		carrier    *CarrierInfo
		spamDB     *SpamDatabaseResult
		dnc        *DncResult
		reports    []SpamReport
		stats      *CallStats
		lastEntry  *CallLogEntry
		avgDur     float64
		voice      *VoiceSignals
		phrases    *ScamPhraseResult
	)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() {
		record, _ = fetchSignal(ctx, a, "phone_record", func(c context.Context) (*PhoneNumberRecord, error) {
			rec, err := a.phoneStore.FindByNumber(c, phoneNumber)
			if err == ErrNotFound {
				return nil, nil
			}
			return rec, err
		})
	})

	run(func() {
		reputation, _ = fetchSignal(ctx, a, "reputation", func(c context.Context) (*ReputationDetails, error) {
			return a.reputation.CalculateReputationScore(c, phoneNumber)
		})
	})

	run(func() {
		carrier, _ = fetchSignal(ctx, a, "carrier", func(c context.Context) (*CarrierInfo, error) {
			return a.carrier.Lookup(c, phoneNumber)
		})
	})

	run(func() {
		spamDB, _ = fetchSignal(ctx, a, "spam_database", func(c context.Context) (*SpamDatabaseResult, error) {
			return a.spamDB.Check(c, phoneNumber)
		})
	})

	run(func() {
		// The DNC adapter self-guards, but a nil result still defaults to
		// "not registered" here so the category can never fail the call.
		dnc, _ = fetchSignal(ctx, a, "dnc", func(c context.Context) (*DncResult, error) {
			return a.dnc.Check(c, phoneNumber)
		})
	})

	run(func() {
		reports, _ = fetchSignal(ctx, a, "spam_reports", func(c context.Context) ([]SpamReport, error) {
			return a.spamReports.ReportsByNumber(c, phoneNumber)
		})
	})

	run(func() {
		stats, _ = fetchSignal(ctx, a, "call_history", func(c context.Context) (*CallStats, error) {
			s, err := a.callLog.CountByNumber(c, phoneNumber, now.Add(-behavioralWindow))
			if err != nil {
				return nil, err
			}
			avgDur, _ = a.callLog.AvgDuration(c, phoneNumber, now.Add(-behavioralWindow))
			return &s, nil
		})
	})

	run(func() {
		lastEntry, _ = fetchSignal(ctx, a, "last_call", func(c context.Context) (*CallLogEntry, error) {
			entry, err := a.callLog.LastEntry(c, phoneNumber)
			if err == ErrNotFound {
				return nil, nil
			}
			return entry, err
		})
	})

	analyzeAudio := len(audio) > 0 && !a.devMode && a.voice != nil
	if analyzeAudio {
		run(func() {
			voice, _ = fetchSignal(ctx, a, "voice", func(c context.Context) (*VoiceSignals, error) {
				return a.voice.Analyze(c, audio, sampleRate)
			})
			// Scam-phrase detection only runs when the voice pass already
			// flags a likely spam pattern.
			if voice != nil && voice.IsRobot && voice.Confidence > 0.7 && a.scamPhrases != nil {
				phrases, _ = fetchSignal(ctx, a, "scam_phrases", func(c context.Context) (*ScamPhraseResult, error) {
					return a.scamPhrases.Detect(c, voice.Transcript, "en", voice.Features)
				})
			}
		})
	}

	wg.Wait()

	a.merge(features, record, reputation, carrier, spamDB, dnc, reports, stats, lastEntry, avgDur, voice, phrases, now)

	if a.predictor != nil {
		prediction, _ := fetchSignal(ctx, a, "ml_prediction", func(c context.Context) (*MLPrediction, error) {
			return a.predictor.Predict(c, phoneNumber, features)
		})
		features.ML = prediction
	}

	return features
}

func (a *FeatureAggregator) merge(
	features *CallFeatures,
	record *PhoneNumberRecord,
	reputation *ReputationDetails,
	carrier *CarrierInfo,
	spamDB *SpamDatabaseResult,
	dnc *DncResult,
	reports []SpamReport,
	stats *CallStats,
	lastEntry *CallLogEntry,
	avgDuration float64,
	voice *VoiceSignals,
	phrases *ScamPhraseResult,
	now time.Time,
) {
	flags := &RegulatoryFlags{}
	if record != nil {
		flags.IsWhitelisted = record.Type == ListTypeWhitelist
		flags.IsBlacklisted = record.Type == ListTypeBlacklist
	}
	if spamDB != nil {
		flags.IsFCCSpam = spamDB.IsSpam
	}
	if dnc != nil {
		flags.IsDNC = dnc.IsRegistered
	}
	features.Regulatory = flags

	community := &CommunitySignals{}
	for _, report := range reports {
		community.SpamReports++
		if report.Verified() {
			community.VerifiedReports++
		}
	}
	if reputation != nil {
		score := float64(reputation.Score)
		community.ReputationScore = &score
	}
	features.Community = community

	features.Carrier = carrier
	features.Voice = voice
	features.ScamPhrases = phrases

	if stats != nil && stats.Total > 0 {
		blockRate := float64(stats.Blocked) / float64(stats.Total)
		history := &CallHistory{
			TotalCalls:      stats.Total,
			BlockedCalls:    stats.Blocked,
			BlockRate:       blockRate,
			AvgCallDuration: avgDuration,
			CallFrequency:   float64(stats.Total) / (behavioralWindow.Hours() / 24),
		}
		if lastEntry != nil {
			history.LastCallTime = lastEntry.Timestamp
		}
		features.CallHistory = history
	}

	hour := now.Hour()
	temporal := &TemporalContext{
		HourOfDay:       hour,
		DayOfWeek:       int(now.Weekday()),
		IsBusinessHours: hour >= 8 && hour < 18 && now.Weekday() != time.Saturday && now.Weekday() != time.Sunday,
	}
	if lastEntry != nil {
		gap := now.Sub(lastEntry.Timestamp)
		temporal.TimeSinceLastCall = &gap
	}
	features.Temporal = temporal
}
