package di

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/adapters/httpapi"
	"github.com/callwarden/call-screener/internal/config"
	"github.com/callwarden/call-screener/internal/core"
	"github.com/callwarden/call-screener/internal/factory"
	"github.com/callwarden/call-screener/internal/logging"
	"github.com/callwarden/call-screener/internal/metrics"
	"github.com/callwarden/call-screener/internal/reputation"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(func() *metrics.Metrics {
		return metrics.New(prometheus.DefaultRegisterer)
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewSignalFactory); err != nil {
		return nil, err
	}

	// Register stores
	if err := container.Provide(func(f *factory.StoreFactory) (*factory.Stores, error) {
		return f.CreateStores()
	}); err != nil {
		return nil, err
	}

	// Register signal sources
	if err := container.Provide(func(f *factory.SignalFactory) (core.CarrierLookup, error) {
		return f.CreateCarrierLookup()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SignalFactory) core.SpamDatabaseCheck {
		return f.CreateSpamDatabase()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SignalFactory) core.DncCheck {
		return f.CreateDncCheck()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SignalFactory) core.VoiceSignalAnalyzer {
		return f.CreateVoiceAnalyzer()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SignalFactory) core.ScamPhraseDetector {
		return f.CreateScamDetector()
	}); err != nil {
		return nil, err
	}

	// Register reputation subsystem
	if err := container.Provide(func(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*reputation.BatchProcessor, error) {
		delay, err := cfg.GetDuration("reputation.batch_delay")
		if err != nil {
			return nil, err
		}
		return reputation.NewBatchProcessor(cfg.GetInt("reputation.batch_size"), delay, m, logger), nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		stores *factory.Stores,
		carrier core.CarrierLookup,
		queue *reputation.BatchProcessor,
		m *metrics.Metrics,
		cfg *config.Config,
		logger *zap.Logger,
	) *reputation.Service {
		return reputation.NewService(
			stores.PhoneNumbers, stores.CallLog, stores.SpamReports, carrier,
			queue, m, logger,
			reputation.Config{
				TrustedCarriers: cfg.GetStringSlice("reputation.trusted_carriers"),
				DomesticCountry: cfg.GetString("reputation.domestic_country"),
			},
		)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *reputation.Service) core.ReputationProvider {
		return s
	}); err != nil {
		return nil, err
	}

	// Register core services
	if err := container.Provide(func(stores *factory.Stores, m *metrics.Metrics, logger *zap.Logger) *core.VerificationService {
		return core.NewVerificationService(stores.Verification, stores.PhoneNumbers, m, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(stores *factory.Stores, cfg *config.Config, logger *zap.Logger) *core.ReportService {
		return core.NewReportService(stores.SpamReports, stores.PhoneNumbers, logger, cfg.GetInt("reports.escalation_confirmations"))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewRiskEngine); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		stores *factory.Stores,
		rep core.ReputationProvider,
		carrier core.CarrierLookup,
		spamDB core.SpamDatabaseCheck,
		dnc core.DncCheck,
		voice core.VoiceSignalAnalyzer,
		scam core.ScamPhraseDetector,
		m *metrics.Metrics,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.FeatureAggregator, error) {
		timeout, err := cfg.GetDuration("screening.signal_timeout")
		if err != nil {
			timeout = 2 * time.Second
		}
		return core.NewFeatureAggregator(
			stores.PhoneNumbers, stores.CallLog, stores.SpamReports,
			rep, carrier, spamDB, dnc, voice, scam, nil,
			m, logger, timeout, cfg.GetBool("server.development_mode"),
		), nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		aggregator *core.FeatureAggregator,
		engine *core.RiskEngine,
		verification *core.VerificationService,
		stores *factory.Stores,
		m *metrics.Metrics,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.ScreeningService {
		return core.NewScreeningService(
			aggregator, engine, verification, stores.CallLog, m, logger,
			cfg.GetBool("server.development_mode"),
		)
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		screening *core.ScreeningService,
		verification *core.VerificationService,
		reports *core.ReportService,
		rep *reputation.Service,
		cfg *config.Config,
		logger *zap.Logger,
	) *httpapi.Server {
		return httpapi.NewServer(
			screening, verification, reports, rep, logger,
			cfg.GetString("server.listen_address"),
			cfg.GetInt("verification.max_attempts"),
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
