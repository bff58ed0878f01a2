package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/metrics"
)

const (
	codeTTL       = 15 * time.Minute
	attemptWindow = 24 * time.Hour
)

// VerificationService issues and checks challenge codes. A successful check
// promotes the number to the whitelist, so a challenged caller that proves
// human is trusted from then on.
type VerificationService struct {
	store      VerificationStore
	phoneStore PhoneNumberStore
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewVerificationService creates a verification service.
func NewVerificationService(store VerificationStore, phoneStore PhoneNumberStore, m *metrics.Metrics, logger *zap.Logger) *VerificationService {
	return &VerificationService{
		store:      store,
		phoneStore: phoneStore,
		metrics:    m,
		logger:     logger,
	}
}

// GenerateVerificationCode issues a fresh 6-digit code valid for 15 minutes.
func (s *VerificationService) GenerateVerificationCode(ctx context.Context, phoneNumber string) (*VerificationCode, error) {
	number, err := NormalizeNumber(phoneNumber)
	if err != nil {
		return nil, err
	}

	digits, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := time.Now()
	code := &VerificationCode{
		ID:        uuid.NewString(),
		Number:    number,
		Code:      digits,
		ExpiresAt: now.Add(codeTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	s.logger.Info("Issued verification code",
		zap.String("number", number),
		zap.Time("expires_at", code.ExpiresAt))
	return code, nil
}

// VerifyCode checks a (number, code) pair. It accepts only a matching,
// unused, unexpired code, consumes it, and promotes the number to the
// whitelist. Every call is recorded as an attempt regardless of outcome.
func (s *VerificationService) VerifyCode(ctx context.Context, phoneNumber, code string) error {
	number, err := NormalizeNumber(phoneNumber)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.store.RecordAttempt(ctx, number, now); err != nil {
		s.logger.Warn("Failed to record verification attempt", zap.Error(err))
	}

	stored, err := s.store.FindActive(ctx, number, code, now)
	if err != nil {
		s.metrics.VerifyFailure()
		if err == ErrNotFound {
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to look up verification code: %w", err)
	}

	if err := s.store.MarkUsed(ctx, stored.ID); err != nil {
		s.metrics.VerifyFailure()
		return fmt.Errorf("failed to consume verification code: %w", err)
	}

	if err := s.phoneStore.SetListType(ctx, number, ListTypeWhitelist); err != nil {
		// The code is already spent; promotion failure is logged but the
		// verification itself stands.
		s.logger.Error("Failed to promote verified number to whitelist",
			zap.String("number", number),
			zap.Error(err))
	}

	s.metrics.VerifySuccess()
	s.logger.Info("Caller passed verification", zap.String("number", number))
	return nil
}

// GetVerificationAttempts counts attempts for a number in the trailing 24
// hours. The surface layer is expected to refuse verification once this
// exceeds its budget.
func (s *VerificationService) GetVerificationAttempts(ctx context.Context, phoneNumber string) (int, error) {
	number, err := NormalizeNumber(phoneNumber)
	if err != nil {
		return 0, err
	}
	return s.store.CountAttempts(ctx, number, time.Now().Add(-attemptWindow))
}

// StartCleanup purges expired codes on a fixed cadence until the context is
// cancelled.
func (s *VerificationService) StartCleanup(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed, err := s.store.DeleteExpired(ctx, time.Now())
				if err != nil {
					s.logger.Error("Failed to clean up verification codes", zap.Error(err))
					continue
				}
				if removed > 0 {
					s.logger.Debug("Removed expired verification codes", zap.Int("count", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
