// Package reputation owns the per-number trust score: cache-aside reads on
// the screening hot path, full recomputes in the background, and the
// write-coalescing queue that batches refresh requests.
package reputation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/callwarden/call-screener/internal/core"
	"github.com/callwarden/call-screener/internal/metrics"
)

// Factor weights. They sum to 1.0 over the 0..100 factor range.
const (
	weightCommunityReports   = 0.30
	weightCallHistory        = 0.15
	weightBlockRate          = 0.25
	weightVerificationStatus = 0.15
	weightTimeFactors        = 0.10
	weightCarrierTrust       = 0.05
)

const (
	freshnessTTL   = time.Hour
	overallWindow  = 30 * 24 * time.Hour
	recentWindow   = 7 * 24 * time.Hour
	trendThreshold = 5
	neutralScore   = 50
	neutralFactor  = 50.0
)

// Config tunes the environment-dependent parts of reputation scoring.
type Config struct {
	TrustedCarriers []string
	DomesticCountry string
}

// Service computes and caches 0..100 trust scores. CalculateReputationScore
// never blocks on a full recompute; stale and unseen numbers get
// best-available data back immediately while a background refresh is queued.
type Service struct {
	phoneStore  core.PhoneNumberStore
	callLog     core.CallLogStore
	spamReports core.SpamReportStore
	carrier     core.CarrierLookup
	queue       *BatchProcessor
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         Config
}

// NewService creates the reputation service and its injected batch queue.
func NewService(
	phoneStore core.PhoneNumberStore,
	callLog core.CallLogStore,
	spamReports core.SpamReportStore,
	carrier core.CarrierLookup,
	queue *BatchProcessor,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Service {
	s := &Service{
		phoneStore:  phoneStore,
		callLog:     callLog,
		spamReports: spamReports,
		carrier:     carrier,
		queue:       queue,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
	}
	queue.Bind(s.recomputeQuietly)
	return s
}

// CalculateReputationScore returns the best trust estimate available right
// now. Fresh stored scores are served at confidence 0.8; anything older is
// queued for background recompute and the stale value (0.6) or a neutral
// default (0.3) is returned immediately.
func (s *Service) CalculateReputationScore(ctx context.Context, number string) (*core.ReputationDetails, error) {
	record, err := s.phoneStore.FindByNumber(ctx, number)
	if err != nil && err != core.ErrNotFound {
		return nil, fmt.Errorf("failed to load phone record: %w", err)
	}

	if record != nil && time.Since(record.LastScoreUpdate) < freshnessTTL {
		s.metrics.ReputationHit()
		return &core.ReputationDetails{
			Score:      record.ReputationScore,
			Factors:    record.ScoreFactors,
			LastUpdate: record.LastScoreUpdate,
			Trend:      core.TrendStable,
			Confidence: 0.8,
		}, nil
	}

	s.metrics.ReputationMiss()
	s.queue.Enqueue(number)

	if record != nil {
		return &core.ReputationDetails{
			Score:      record.ReputationScore,
			Factors:    record.ScoreFactors,
			LastUpdate: record.LastScoreUpdate,
			Trend:      core.TrendStable,
			Confidence: 0.6,
		}, nil
	}

	return neutralDetails(), nil
}

// ForceRecalculate recomputes synchronously, bypassing the freshness cache.
// Intended for admin surfaces, not the screening hot path.
func (s *Service) ForceRecalculate(ctx context.Context, number string) (*core.ReputationDetails, error) {
	return s.updateReputationScore(ctx, number)
}

// BatchUpdateReputations recomputes a set of numbers concurrently. Used by
// the batch queue flush and exposed for explicit bulk triggers.
func (s *Service) BatchUpdateReputations(ctx context.Context, numbers []string) error {
	var g errgroup.Group
	for _, number := range numbers {
		number := number
		g.Go(func() error {
			if _, err := s.updateReputationScore(ctx, number); err != nil {
				s.logger.Warn("Reputation recompute failed",
					zap.String("number", number),
					zap.Error(err))
			}
			// One bad number never aborts the batch.
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) recomputeQuietly(numbers []string) {
	if err := s.BatchUpdateReputations(context.Background(), numbers); err != nil {
		s.logger.Error("Batch reputation update failed", zap.Error(err))
	}
}

// updateReputationScore gathers history concurrently, derives the six
// factors, and upserts the result.
func (s *Service) updateReputationScore(ctx context.Context, number string) (*core.ReputationDetails, error) {
	now := time.Now()

	var (
		record   *core.PhoneNumberRecord
		reports  []core.SpamReport
		overall  core.CallStats
		recent   core.CallStats
		lastCall *core.CallLogEntry
		carrier  *core.CarrierInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := s.phoneStore.FindByNumber(gctx, number)
		if err != nil && err != core.ErrNotFound {
			return err
		}
		record = rec
		return nil
	})
	g.Go(func() error {
		var err error
		reports, err = s.spamReports.ReportsByNumber(gctx, number)
		return err
	})
	g.Go(func() error {
		var err error
		overall, err = s.callLog.CountByNumber(gctx, number, now.Add(-overallWindow))
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.callLog.CountByNumber(gctx, number, now.Add(-recentWindow))
		return err
	})
	g.Go(func() error {
		entry, err := s.callLog.LastEntry(gctx, number)
		if err != nil && err != core.ErrNotFound {
			return err
		}
		lastCall = entry
		return nil
	})
	g.Go(func() error {
		// Carrier data is a nice-to-have; a failed lookup just scores the
		// carrier factor as unknown.
		info, err := s.carrier.Lookup(gctx, number)
		if err == nil {
			carrier = info
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to gather reputation inputs: %w", err)
	}

	factors := core.ReputationFactors{
		CommunityReports:   communityReportsFactor(reports, now),
		CallHistory:        callHistoryFactor(overall.Total, recent.Total),
		BlockRate:          blockRateFactor(overall, recent),
		VerificationStatus: verificationStatusFactor(record),
		TimeFactors:        timeFactor(recent.Total),
		CarrierTrust:       s.carrierTrustFactor(carrier),
	}

	score := weightedScore(factors)
	trend := scoreTrend(record, score)
	confidence := scoreConfidence(record, reports, overall.Total, lastCall, now)

	if err := s.phoneStore.UpsertReputation(ctx, number, score, factors, now); err != nil {
		return nil, fmt.Errorf("failed to persist reputation score: %w", err)
	}

	s.logger.Debug("Recomputed reputation score",
		zap.String("number", number),
		zap.Int("score", score),
		zap.String("trend", string(trend)))

	return &core.ReputationDetails{
		Score:      score,
		Factors:    factors,
		LastUpdate: now,
		Trend:      trend,
		Confidence: confidence,
	}, nil
}

// communityReportsFactor starts clean at 100 and subtracts an age-decayed
// penalty per report: 15 for verified reports, 5 otherwise.
func communityReportsFactor(reports []core.SpamReport, now time.Time) float64 {
	score := 100.0
	for i := range reports {
		penalty := 5.0
		if reports[i].Verified() {
			penalty = 15.0
		}
		score -= penalty * reportDecay(now.Sub(reports[i].ReportedAt))
	}
	return math.Max(score, 0)
}

func reportDecay(age time.Duration) float64 {
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0.2
	}
}

// callHistoryFactor tiers on 30-day and 7-day call totals. Zero history is
// neutral, not suspicious.
func callHistoryFactor(totalCalls, recentCalls int) float64 {
	switch {
	case totalCalls == 0:
		return neutralFactor
	case totalCalls > 10 && recentCalls > 5:
		return 70
	case totalCalls > 5:
		return 60
	case totalCalls > 2:
		return 50
	default:
		return 40
	}
}

// blockRateFactor weights the trailing week's block rate over the month's.
func blockRateFactor(overall, recent core.CallStats) float64 {
	overallRate := 0.0
	if overall.Total > 0 {
		overallRate = float64(overall.Blocked) / float64(overall.Total)
	}
	recentRate := 0.0
	if recent.Total > 0 {
		recentRate = float64(recent.Blocked) / float64(recent.Total)
	}
	return 100 * (1 - (overallRate*0.3 + recentRate*0.7))
}

func verificationStatusFactor(record *core.PhoneNumberRecord) float64 {
	if record == nil {
		return neutralFactor
	}
	switch record.Type {
	case core.ListTypeWhitelist:
		return 100
	case core.ListTypeBlacklist:
		return 0
	default:
		return neutralFactor
	}
}

// timeFactor rates the calls-per-day cadence over the trailing week. A few
// calls a day is a normal pattern; dozens is spam-like; near-silence reads
// as a rarely-used number.
func timeFactor(recentCalls int) float64 {
	perDay := float64(recentCalls) / 7
	switch {
	case perDay > 10:
		return 20
	case perDay >= 1 && perDay <= 3:
		return 80
	case float64(recentCalls) < 0.1:
		return 40
	default:
		return 60
	}
}

func (s *Service) carrierTrustFactor(carrier *core.CarrierInfo) float64 {
	score := 50.0
	if carrier == nil {
		return score
	}
	if carrier.IsMobile {
		score += 10
	}
	for _, trusted := range s.cfg.TrustedCarriers {
		if strings.EqualFold(trusted, carrier.Name) {
			score += 10
			break
		}
	}
	if s.cfg.DomesticCountry != "" && !strings.EqualFold(carrier.Country, s.cfg.DomesticCountry) {
		score -= 10
	}
	return score
}

func weightedScore(f core.ReputationFactors) int {
	raw := f.CommunityReports*weightCommunityReports +
		f.CallHistory*weightCallHistory +
		f.BlockRate*weightBlockRate +
		f.VerificationStatus*weightVerificationStatus +
		f.TimeFactors*weightTimeFactors +
		f.CarrierTrust*weightCarrierTrust
	score := int(math.Round(raw))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func scoreTrend(record *core.PhoneNumberRecord, score int) core.Trend {
	if record == nil {
		return core.TrendStable
	}
	delta := score - record.ReputationScore
	switch {
	case delta >= trendThreshold:
		return core.TrendImproving
	case delta <= -trendThreshold:
		return core.TrendDeclining
	default:
		return core.TrendStable
	}
}

// scoreConfidence scales with how much data the recompute actually saw: one
// point each for community reports, meaningful call volume, recent activity
// and a prior stored score.
func scoreConfidence(record *core.PhoneNumberRecord, reports []core.SpamReport, totalCalls int, lastCall *core.CallLogEntry, now time.Time) float64 {
	points := 0
	if len(reports) > 0 {
		points++
	}
	if totalCalls > 3 {
		points++
	}
	if lastCall != nil && now.Sub(lastCall.Timestamp) < recentWindow {
		points++
	}
	if record != nil {
		points++
	}
	return math.Min(float64(points)/4+0.2, 1.0)
}

func neutralDetails() *core.ReputationDetails {
	return &core.ReputationDetails{
		Score: neutralScore,
		Factors: core.ReputationFactors{
			CommunityReports:   neutralFactor,
			CallHistory:        neutralFactor,
			BlockRate:          neutralFactor,
			VerificationStatus: neutralFactor,
			TimeFactors:        neutralFactor,
			CarrierTrust:       neutralFactor,
		},
		Trend:      core.TrendStable,
		Confidence: 0.3,
	}
}
