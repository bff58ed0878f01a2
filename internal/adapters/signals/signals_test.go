package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStaticCarrierLookupLongestPrefixWins(t *testing.T) {
	lookup := NewStaticCarrierLookup([]CarrierEntry{
		{Prefix: "1", Name: "Generic US", Type: "landline", Country: "US"},
		{Prefix: "1202", Name: "Capital Wireless", Type: "voip", Country: "US", IsMobile: true},
		{Prefix: "44", Name: "UK Telecom", Type: "landline", Country: "GB"},
	}, zap.NewNop())

	info, err := lookup.Lookup(context.Background(), "12025550100")
	require.NoError(t, err)
	assert.Equal(t, "Capital Wireless", info.Name)
	assert.True(t, info.IsMobile)

	info, err = lookup.Lookup(context.Background(), "13105550100")
	require.NoError(t, err)
	assert.Equal(t, "Generic US", info.Name)

	info, err = lookup.Lookup(context.Background(), "442012345678")
	require.NoError(t, err)
	assert.Equal(t, "UK Telecom", info.Name)
}

func TestStaticCarrierLookupUnknownPrefix(t *testing.T) {
	lookup := NewStaticCarrierLookup(nil, zap.NewNop())

	info, err := lookup.Lookup(context.Background(), "99912345678")
	require.NoError(t, err)
	assert.Equal(t, "unknown", info.Name)
	assert.False(t, info.IsMobile)
}

func TestListSpamDatabase(t *testing.T) {
	db := NewListSpamDatabase([]string{"12025550100", " 12025550101 "}, zap.NewNop())
	ctx := context.Background()

	result, err := db.Check(ctx, "12025550100")
	require.NoError(t, err)
	assert.True(t, result.IsSpam)

	// Entries are trimmed on load.
	result, err = db.Check(ctx, "12025550101")
	require.NoError(t, err)
	assert.True(t, result.IsSpam)

	result, err = db.Check(ctx, "12025550199")
	require.NoError(t, err)
	assert.False(t, result.IsSpam)

	db.Update([]string{"12025550199"})
	result, err = db.Check(ctx, "12025550100")
	require.NoError(t, err)
	assert.False(t, result.IsSpam)
	result, err = db.Check(ctx, "12025550199")
	require.NoError(t, err)
	assert.True(t, result.IsSpam)
}

func TestListDncRegistry(t *testing.T) {
	registry := NewListDncRegistry([]string{"12025550100"}, zap.NewNop())
	ctx := context.Background()

	result, err := registry.Check(ctx, "12025550100")
	require.NoError(t, err)
	assert.True(t, result.IsRegistered)

	result, err = registry.Check(ctx, "12025550199")
	require.NoError(t, err)
	assert.False(t, result.IsRegistered)
}

func TestHeuristicVoiceAnalyzerEmptyAudio(t *testing.T) {
	analyzer := NewHeuristicVoiceAnalyzer(zap.NewNop())

	signals, err := analyzer.Analyze(context.Background(), nil, 8000)
	require.NoError(t, err)
	assert.Nil(t, signals)
}

func TestHeuristicVoiceAnalyzerFlatSignal(t *testing.T) {
	analyzer := NewHeuristicVoiceAnalyzer(zap.NewNop())

	// Silence: every sample at the midpoint, near-zero energy.
	audio := make([]byte, 1024)
	for i := range audio {
		audio[i] = 128
	}
	signals, err := analyzer.Analyze(context.Background(), audio, 8000)
	require.NoError(t, err)
	require.NotNil(t, signals)
	assert.True(t, signals.IsRobot)
	assert.InDelta(t, 0, signals.Patterns.Energy, 0.01)
	require.Len(t, signals.Features, 2)
}

func TestHeuristicVoiceAnalyzerAlternatingSignal(t *testing.T) {
	analyzer := NewHeuristicVoiceAnalyzer(zap.NewNop())

	// A sample-rate square wave crosses zero constantly.
	audio := make([]byte, 1024)
	for i := range audio {
		if i%2 == 0 {
			audio[i] = 255
		}
	}
	signals, err := analyzer.Analyze(context.Background(), audio, 8000)
	require.NoError(t, err)
	require.NotNil(t, signals)
	assert.True(t, signals.IsRobot)
	assert.Greater(t, signals.Patterns.ZeroCrossings, 0.45)
}

func TestKeywordScamDetector(t *testing.T) {
	detector := NewKeywordScamDetector(map[string]string{
		"Social Security": "government-imposter",
		"gift card":       "payment-scam",
		"warranty":        "warranty-scam",
	}, zap.NewNop())
	ctx := context.Background()

	result, err := detector.Detect(ctx, "Your SOCIAL SECURITY number has been suspended, pay with a gift card", "en", nil)
	require.NoError(t, err)
	assert.True(t, result.Detected)
	assert.Len(t, result.Phrases, 2)
	assert.InDelta(t, 0.7, result.Confidence, 1e-9)

	result, err = detector.Detect(ctx, "Hi, calling about dinner on Friday", "en", nil)
	require.NoError(t, err)
	assert.False(t, result.Detected)
	assert.Zero(t, result.Confidence)

	result, err = detector.Detect(ctx, "", "en", nil)
	require.NoError(t, err)
	assert.False(t, result.Detected)
}
