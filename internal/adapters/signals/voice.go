package signals

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/core"
)

// HeuristicVoiceAnalyzer is a development stand-in for the real DSP/ML voice
// pipeline. It derives crude energy and zero-crossing measurements from raw
// PCM bytes, enough to exercise the voice category end to end.
type HeuristicVoiceAnalyzer struct {
	logger *zap.Logger
}

// NewHeuristicVoiceAnalyzer creates the development voice analyzer.
func NewHeuristicVoiceAnalyzer(logger *zap.Logger) *HeuristicVoiceAnalyzer {
	return &HeuristicVoiceAnalyzer{logger: logger}
}

func (a *HeuristicVoiceAnalyzer) Analyze(ctx context.Context, audio []byte, sampleRate int) (*core.VoiceSignals, error) {
	if len(audio) == 0 {
		return nil, nil
	}

	var sum float64
	crossings := 0
	prevPositive := audio[0] >= 128
	for _, b := range audio {
		centered := float64(b) - 128
		if centered < 0 {
			sum -= centered
		} else {
			sum += centered
		}
		positive := b >= 128
		if positive != prevPositive {
			crossings++
			prevPositive = positive
		}
	}
	energy := sum / float64(len(audio)) / 128
	zeroCrossRate := float64(crossings) / float64(len(audio))

	// Near-constant energy with a very regular crossing rate reads as
	// synthesized speech.
	rhythm := 1 - energy
	if rhythm < 0 {
		rhythm = 0
	}
	signals := &core.VoiceSignals{
		IsRobot:    energy < 0.05 || zeroCrossRate > 0.45,
		Confidence: 0.5,
		Features:   []float64{energy, zeroCrossRate},
		Patterns: core.VoicePatterns{
			Energy:           energy,
			ZeroCrossings:    zeroCrossRate,
			RhythmRegularity: rhythm,
		},
	}
	a.logger.Debug("Analyzed call audio",
		zap.Float64("energy", energy),
		zap.Float64("zero_cross_rate", zeroCrossRate),
		zap.Bool("is_robot", signals.IsRobot))
	return signals, nil
}

// KeywordScamDetector flags transcripts containing configured scam phrases.
// A development stand-in for the real text classifier.
type KeywordScamDetector struct {
	phrases map[string]string // phrase -> category
	logger  *zap.Logger
}

// NewKeywordScamDetector creates a detector over phrase->category pairs.
func NewKeywordScamDetector(phrases map[string]string, logger *zap.Logger) *KeywordScamDetector {
	normalized := make(map[string]string, len(phrases))
	for phrase, category := range phrases {
		normalized[strings.ToLower(phrase)] = category
	}
	return &KeywordScamDetector{phrases: normalized, logger: logger}
}

func (d *KeywordScamDetector) Detect(ctx context.Context, transcript, language string, audioFeatures []float64) (*core.ScamPhraseResult, error) {
	if transcript == "" {
		return &core.ScamPhraseResult{}, nil
	}

	lowered := strings.ToLower(transcript)
	result := &core.ScamPhraseResult{}
	for phrase, category := range d.phrases {
		if strings.Contains(lowered, phrase) {
			result.Detected = true
			result.Phrases = append(result.Phrases, phrase)
			result.Category = category
		}
	}
	if result.Detected {
		// Confidence grows with each distinct matched phrase.
		result.Confidence = 0.5 + 0.1*float64(len(result.Phrases))
		if result.Confidence > 0.95 {
			result.Confidence = 0.95
		}
		d.logger.Info("Detected scam phrasing",
			zap.Strings("phrases", result.Phrases),
			zap.String("category", result.Category))
	}
	return result, nil
}
