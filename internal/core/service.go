package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/metrics"
)

const batchChunkSize = 10

var phoneNumberPattern = regexp.MustCompile(`^\+?[0-9]{4,15}$`)

// ScreeningService drives one call through aggregation, scoring and side
// effects. It never returns an error from ScreenCall once aggregation has
// begun: any internal failure is converted into an explicit fail-open result.
type ScreeningService struct {
	aggregator   *FeatureAggregator
	engine       *RiskEngine
	verification *VerificationService
	callLog      CallLogStore
	metrics      *metrics.Metrics
	logger       *zap.Logger
	devMode      bool
}

// NewScreeningService creates the screening orchestrator.
func NewScreeningService(
	aggregator *FeatureAggregator,
	engine *RiskEngine,
	verification *VerificationService,
	callLog CallLogStore,
	m *metrics.Metrics,
	logger *zap.Logger,
	devMode bool,
) *ScreeningService {
	return &ScreeningService{
		aggregator:   aggregator,
		engine:       engine,
		verification: verification,
		callLog:      callLog,
		metrics:      m,
		logger:       logger,
		devMode:      devMode,
	}
}

// NormalizeNumber strips separators and validates the result. Returns
// ErrInvalidNumber for anything that does not look like a phone number.
func NormalizeNumber(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if !phoneNumberPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return cleaned, nil
}

// FailOpenResult is the explicit availability-over-blocking decision: when
// screening itself breaks, the call is allowed at low confidence and the
// failure is marked in metadata.
func FailOpenResult(processingID string, cause error, elapsed time.Duration) *ScreeningResult {
	return &ScreeningResult{
		Action:     ActionAllowed,
		Reason:     "screening error, allowing call",
		Risk:       0.5,
		Confidence: 0.1,
		Metadata: ResultMetadata{
			ProcessingID:   processingID,
			ProcessingTime: elapsed,
			FailOpen:       true,
			Error:          cause.Error(),
		},
	}
}

// ScreenCall screens one inbound call. Audio is optional; when present and
// not in development mode it is run through voice analysis. Only a
// validation failure is surfaced as an error.
func (s *ScreeningService) ScreenCall(ctx context.Context, phoneNumber string, audio []byte, sampleRate int) (*ScreeningResult, error) {
	number, err := NormalizeNumber(phoneNumber)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	processingID := uuid.NewString()

	result := s.screen(ctx, number, audio, sampleRate, start, processingID)
	result.Metadata.ProcessingTime = time.Since(start)

	s.metrics.Screening(string(result.Action), result.Metadata.ProcessingTime)
	if result.Metadata.FailOpen {
		s.metrics.FailOpen()
	}

	s.logCall(ctx, number, result)
	return result, nil
}

func (s *ScreeningService) screen(ctx context.Context, number string, audio []byte, sampleRate int, start time.Time, processingID string) (result *ScreeningResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Screening panicked, failing open",
				zap.String("number", number),
				zap.Any("panic", r))
			result = FailOpenResult(processingID, fmt.Errorf("screening panic: %v", r), time.Since(start))
		}
	}()

	features := s.aggregator.Aggregate(ctx, number, audio, sampleRate, start)
	risk := s.engine.CalculateRisk(features)

	result = &ScreeningResult{
		Action:           risk.Action,
		Reason:           risk.Reason,
		Risk:             risk.FinalScore,
		Confidence:       risk.Confidence,
		Breakdown:        risk.Breakdown,
		DataCompleteness: risk.DataCompleteness,
		Features:         contributingFeatures(risk.Breakdown),
		Metadata: ResultMetadata{
			ProcessingID:    processingID,
			DevelopmentMode: s.devMode,
		},
	}
	if features.Carrier != nil {
		result.Metadata.CarrierName = features.Carrier.Name
		result.Metadata.CarrierType = "landline"
		if features.Carrier.IsMobile {
			result.Metadata.CarrierType = "mobile"
		}
		result.Metadata.LineType = features.Carrier.Type
	}

	if risk.Action == ActionBlocked || risk.Action == ActionChallenge {
		code, err := s.verification.GenerateVerificationCode(ctx, number)
		if err != nil {
			// The decision stands even when code issuance fails; the caller
			// just cannot be offered a challenge path this time.
			s.logger.Error("Failed to issue verification code",
				zap.String("number", number),
				zap.Error(err))
		} else {
			result.Verification = &VerificationInfo{
				Code:      code.Code,
				ExpiresAt: code.ExpiresAt,
				Message:   "enter the verification code to confirm you are a real caller",
			}
		}
	}

	return result
}

// contributingFeatures lists the categories that added measurable risk.
func contributingFeatures(breakdown Breakdown) []string {
	var features []string
	for _, c := range []struct {
		name  string
		score float64
	}{
		{"regulatory", breakdown.Regulatory},
		{"community", breakdown.Community},
		{"behavioral", breakdown.Behavioral},
		{"voice", breakdown.Voice},
		{"ml", breakdown.ML},
		{"temporal", breakdown.Temporal},
	} {
		if c.score > 0.3 {
			features = append(features, c.name)
		}
	}
	return features
}

// LogCall persists a screening outcome. Best effort: a failed write is
// logged and swallowed, never surfaced to the call path.
func (s *ScreeningService) LogCall(ctx context.Context, phoneNumber string, result *ScreeningResult) {
	s.logCall(ctx, phoneNumber, result)
}

func (s *ScreeningService) logCall(ctx context.Context, number string, result *ScreeningResult) {
	entry := &CallLogEntry{
		ID:           uuid.NewString(),
		Number:       number,
		Timestamp:    time.Now(),
		Action:       result.Action,
		RiskScore:    result.Risk,
		Reason:       result.Reason,
		ProcessingID: result.Metadata.ProcessingID,
	}
	if err := s.callLog.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to persist call log entry",
			zap.String("number", number),
			zap.Error(err))
	}
}

// BatchScreenCalls screens many numbers in chunks of ten, each chunk
// concurrently. A number that fails validation or screening is omitted from
// the result map; one bad number never aborts the batch.
func (s *ScreeningService) BatchScreenCalls(ctx context.Context, phoneNumbers []string) map[string]*ScreeningResult {
	results := make(map[string]*ScreeningResult, len(phoneNumbers))
	var mu sync.Mutex

	for i := 0; i < len(phoneNumbers); i += batchChunkSize {
		chunk := phoneNumbers[i:min(i+batchChunkSize, len(phoneNumbers))]

		var wg sync.WaitGroup
		for _, number := range chunk {
			wg.Add(1)
			go func(number string) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("Batch screening entry panicked",
							zap.String("number", number),
							zap.Any("panic", r))
					}
				}()
				result, err := s.ScreenCall(ctx, number, nil, 0)
				if err != nil {
					s.logger.Warn("Skipping number in batch screening",
						zap.String("number", number),
						zap.Error(err))
					return
				}
				mu.Lock()
				results[number] = result
				mu.Unlock()
			}(number)
		}
		wg.Wait()
	}

	return results
}
