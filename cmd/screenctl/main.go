package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/config"
	"github.com/callwarden/call-screener/internal/core"
	"github.com/callwarden/call-screener/internal/factory"
	"github.com/callwarden/call-screener/internal/logging"
	"github.com/callwarden/call-screener/internal/metrics"
	"github.com/callwarden/call-screener/internal/reputation"
)

var (
	number      = flag.String("number", "", "Phone number to screen (required)")
	audioFile   = flag.String("audio", "", "Optional raw audio file to analyze")
	sampleRate  = flag.Int("sample-rate", 8000, "Sample rate of the audio file")
	showRep     = flag.Bool("reputation", false, "Show reputation details instead of screening")
	forceRecalc = flag.Bool("recalculate", false, "Force a synchronous reputation recompute")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog     = flag.Bool("json-log", false, "Output logs in JSON format")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *number == "" {
		fmt.Println("Usage: screenctl -number <phone number> [-audio file] [-reputation] [-recalculate]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := factory.NewStoreFactory(cfg, logger).CreateStores()
	if err != nil {
		logger.Fatal("Failed to create stores", zap.Error(err))
	}
	defer stores.Close()

	signalFactory := factory.NewSignalFactory(cfg, logger)
	carrier, err := signalFactory.CreateCarrierLookup()
	if err != nil {
		logger.Fatal("Failed to create carrier lookup", zap.Error(err))
	}

	m := metrics.NewNop()
	queue := reputation.NewBatchProcessor(cfg.GetInt("reputation.batch_size"), 5*time.Second, m, logger)
	repService := reputation.NewService(
		stores.PhoneNumbers, stores.CallLog, stores.SpamReports, carrier,
		queue, m, logger,
		reputation.Config{
			TrustedCarriers: cfg.GetStringSlice("reputation.trusted_carriers"),
			DomesticCountry: cfg.GetString("reputation.domestic_country"),
		},
	)

	if *showRep || *forceRecalc {
		var details *core.ReputationDetails
		if *forceRecalc {
			details, err = repService.ForceRecalculate(ctx, *number)
		} else {
			details, err = repService.CalculateReputationScore(ctx, *number)
		}
		if err != nil {
			logger.Fatal("Reputation lookup failed", zap.Error(err))
		}
		printJSON(details)
		return
	}

	var audio []byte
	if *audioFile != "" {
		audio, err = os.ReadFile(*audioFile)
		if err != nil {
			logger.Fatal("Failed to read audio file", zap.Error(err))
		}
	}

	timeout, err := cfg.GetDuration("screening.signal_timeout")
	if err != nil {
		timeout = 2 * time.Second
	}
	devMode := cfg.GetBool("server.development_mode")

	aggregator := core.NewFeatureAggregator(
		stores.PhoneNumbers, stores.CallLog, stores.SpamReports,
		repService, carrier,
		signalFactory.CreateSpamDatabase(), signalFactory.CreateDncCheck(),
		signalFactory.CreateVoiceAnalyzer(), signalFactory.CreateScamDetector(),
		nil, m, logger, timeout, devMode,
	)
	verification := core.NewVerificationService(stores.Verification, stores.PhoneNumbers, m, logger)
	screening := core.NewScreeningService(
		aggregator, core.NewRiskEngine(), verification, stores.CallLog, m, logger, devMode,
	)

	result, err := screening.ScreenCall(ctx, *number, audio, *sampleRate)
	if err != nil {
		logger.Fatal("Screening failed", zap.Error(err))
	}
	printJSON(result)
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Printf("Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
