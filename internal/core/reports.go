package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportService records community spam reports and escalates numbers to the
// blacklist once a report gathers enough confirmations.
type ReportService struct {
	reports         SpamReportStore
	phoneStore      PhoneNumberStore
	logger          *zap.Logger
	escalationCount int
}

// NewReportService creates a report service. escalationCount is the number
// of confirmations at which a report's subject is blacklisted.
func NewReportService(reports SpamReportStore, phoneStore PhoneNumberStore, logger *zap.Logger, escalationCount int) *ReportService {
	return &ReportService{
		reports:         reports,
		phoneStore:      phoneStore,
		logger:          logger,
		escalationCount: escalationCount,
	}
}

// ReportSpam files a new community report against a number.
func (s *ReportService) ReportSpam(ctx context.Context, phoneNumber, category, comment string) (*SpamReport, error) {
	number, err := NormalizeNumber(phoneNumber)
	if err != nil {
		return nil, err
	}

	report := &SpamReport{
		ID:         uuid.NewString(),
		Number:     number,
		Category:   category,
		Comment:    comment,
		Status:     ReportPending,
		ReportedAt: time.Now(),
	}
	if err := s.reports.Add(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to store spam report: %w", err)
	}

	s.logger.Info("Recorded spam report",
		zap.String("number", number),
		zap.String("category", category))
	return report, nil
}

// ConfirmReport adds one confirmation to a report. The increment happens at
// the storage layer so concurrent confirmations are never lost. Crossing the
// escalation threshold blacklists the reported number.
func (s *ReportService) ConfirmReport(ctx context.Context, reportID, phoneNumber string) error {
	number, err := NormalizeNumber(phoneNumber)
	if err != nil {
		return err
	}

	confirmations, err := s.reports.IncrementConfirmations(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to confirm report: %w", err)
	}

	if confirmations >= s.escalationCount {
		if err := s.phoneStore.SetListType(ctx, number, ListTypeBlacklist); err != nil {
			return fmt.Errorf("failed to blacklist confirmed spam number: %w", err)
		}
		s.logger.Warn("Number escalated to blacklist after confirmed reports",
			zap.String("number", number),
			zap.Int("confirmations", confirmations))
	}
	return nil
}
