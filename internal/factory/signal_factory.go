package factory

import (
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/adapters/signals"
	"github.com/callwarden/call-screener/internal/config"
	"github.com/callwarden/call-screener/internal/core"
)

// SignalFactory creates the external signal-source adapters from
// configuration.
type SignalFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSignalFactory creates a new signal factory.
func NewSignalFactory(cfg *config.Config, logger *zap.Logger) *SignalFactory {
	return &SignalFactory{cfg: cfg, logger: logger}
}

// CreateCarrierLookup builds the prefix-table carrier lookup.
func (f *SignalFactory) CreateCarrierLookup() (core.CarrierLookup, error) {
	var entries []signals.CarrierEntry
	if err := f.cfg.UnmarshalKey("signals.carrier_table", &entries); err != nil {
		return nil, err
	}
	return signals.NewStaticCarrierLookup(entries, f.logger), nil
}

// CreateSpamDatabase builds the national spam database check.
func (f *SignalFactory) CreateSpamDatabase() core.SpamDatabaseCheck {
	return signals.NewListSpamDatabase(f.cfg.GetStringSlice("signals.spam_database_numbers"), f.logger)
}

// CreateDncCheck builds the do-not-call registry check.
func (f *SignalFactory) CreateDncCheck() core.DncCheck {
	return signals.NewListDncRegistry(f.cfg.GetStringSlice("signals.dnc_numbers"), f.logger)
}

// CreateVoiceAnalyzer builds the voice analyzer. Disabled in development
// mode, where audio analysis is skipped entirely.
func (f *SignalFactory) CreateVoiceAnalyzer() core.VoiceSignalAnalyzer {
	if f.cfg.GetBool("server.development_mode") {
		return nil
	}
	return signals.NewHeuristicVoiceAnalyzer(f.logger)
}

// CreateScamDetector builds the scam-phrase detector.
func (f *SignalFactory) CreateScamDetector() core.ScamPhraseDetector {
	phrases := f.cfg.GetStringMapString("signals.scam_phrases")
	if len(phrases) == 0 {
		return nil
	}
	return signals.NewKeywordScamDetector(phrases, f.logger)
}
