package core

import (
	"fmt"
	"math"
	"sort"
)

// Category weights. They sum to 1.0 so FinalScore stays in [0,1].
const (
	weightRegulatory = 0.25
	weightCommunity  = 0.20
	weightBehavioral = 0.15
	weightVoice      = 0.15
	weightML         = 0.15
	weightTemporal   = 0.10
)

// Decision thresholds on the weighted final score.
const (
	blockThreshold     = 0.70
	challengeThreshold = 0.40
)

// RiskEngine turns a CallFeatures snapshot into a RiskScore. It performs no
// I/O and reads no clocks: identical input always yields identical output.
type RiskEngine struct{}

// NewRiskEngine creates a new risk engine.
func NewRiskEngine() *RiskEngine {
	return &RiskEngine{}
}

// CalculateRisk scores one call. Absent sub-records contribute zero risk to
// their category; DataCompleteness reports how many categories had data.
func (e *RiskEngine) CalculateRisk(features *CallFeatures) *RiskScore {
	breakdown := Breakdown{
		Regulatory: scoreRegulatory(features.Regulatory),
		Community:  scoreCommunity(features.Community),
		Behavioral: scoreBehavioral(features.CallHistory),
		Voice:      scoreVoice(features.Voice),
		ML:         scoreML(features.ML),
		Temporal:   scoreTemporal(features.Temporal),
	}

	finalScore := breakdown.Regulatory*weightRegulatory +
		breakdown.Community*weightCommunity +
		breakdown.Behavioral*weightBehavioral +
		breakdown.Voice*weightVoice +
		breakdown.ML*weightML +
		breakdown.Temporal*weightTemporal

	action, confidence, reason := decide(finalScore, features.Regulatory, breakdown)

	return &RiskScore{
		FinalScore:       finalScore,
		Action:           action,
		Reason:           reason,
		Confidence:       confidence,
		Breakdown:        breakdown,
		DataCompleteness: completeness(features),
	}
}

func scoreRegulatory(flags *RegulatoryFlags) float64 {
	if flags == nil {
		return 0
	}
	score := 0.0
	if flags.IsFCCSpam {
		score += 0.9
	}
	if flags.IsDNC {
		score += 0.8
	}
	score = clamp01(score)
	if flags.IsBlacklisted {
		score = 1.0
	}
	if flags.IsWhitelisted {
		score = 0.0
	}
	return score
}

func scoreCommunity(community *CommunitySignals) float64 {
	if community == nil {
		return 0
	}
	// Unknown reputation is treated as middle-of-the-road, not clean.
	reputationRisk := 0.5
	if community.ReputationScore != nil {
		reputationRisk = (100 - *community.ReputationScore) / 100
	}
	reportRisk := math.Min(float64(community.SpamReports)/10, 0.9)
	verifiedRisk := math.Min(float64(community.VerifiedReports)/5, 1.0)
	return clamp01(reputationRisk*0.4 + reportRisk*0.3 + verifiedRisk*0.3)
}

func scoreBehavioral(history *CallHistory) float64 {
	if history == nil {
		return 0
	}
	score := history.BlockRate * 0.5
	if history.CallFrequency > 3 {
		score += math.Min((history.CallFrequency-3)/10, 0.3)
	}
	if history.AvgCallDuration > 0 && history.AvgCallDuration < 10 {
		score += 0.2
	}
	if history.TotalCalls > 5 && history.BlockRate > 0.6 {
		score += 0.3
	}
	return clamp01(score)
}

func scoreVoice(voice *VoiceSignals) float64 {
	if voice == nil {
		return 0
	}
	score := 0.0
	if voice.IsRobot {
		score += voice.Confidence * 0.6
	}
	if voice.Patterns.Naturalness != nil && *voice.Patterns.Naturalness < 0.3 {
		score += 0.3
	}
	if voice.Patterns.RhythmRegularity > 0.8 {
		score += 0.2
	}
	if voice.Patterns.Energy < 0.1 || voice.Patterns.Energy > 0.9 {
		score += 0.1
	}
	return clamp01(score)
}

func scoreML(prediction *MLPrediction) float64 {
	if prediction == nil {
		return 0
	}
	// Low-confidence predictions are damped toward half their raw value.
	return clamp01(prediction.SpamProbability * (0.5 + prediction.Confidence*0.5))
}

func scoreTemporal(temporal *TemporalContext) float64 {
	if temporal == nil {
		return 0
	}
	score := 0.0
	if !temporal.IsBusinessHours {
		if temporal.HourOfDay < 8 || temporal.HourOfDay > 21 {
			score += 0.3
		} else {
			score += 0.1
		}
	}
	if temporal.TimeSinceLastCall != nil && temporal.TimeSinceLastCall.Seconds() < 3600 {
		score += 0.3
	}
	return clamp01(score)
}

// decide applies the hard overrides, then thresholds the weighted score.
func decide(finalScore float64, flags *RegulatoryFlags, breakdown Breakdown) (Action, float64, string) {
	if flags != nil {
		if flags.IsBlacklisted {
			return ActionBlocked, 1.0, "number is blacklisted"
		}
		if flags.IsWhitelisted {
			return ActionAllowed, 1.0, "number is whitelisted"
		}
		if flags.IsFCCSpam {
			return ActionBlocked, 0.95, "number is listed in the national spam database"
		}
	}

	reason := describeRisk(breakdown)
	switch {
	case finalScore >= blockThreshold:
		return ActionBlocked, math.Min(finalScore, 0.95), reason
	case finalScore >= challengeThreshold:
		return ActionChallenge, finalScore, reason
	default:
		return ActionAllowed, 1 - finalScore, reason
	}
}

var categoryLabels = map[string]string{
	"regulatory": "regulatory list flags",
	"community":  "community spam reports",
	"behavioral": "suspicious calling patterns",
	"voice":      "robotic voice characteristics",
	"ml":         "machine-learned spam probability",
	"temporal":   "unusual call timing",
}

// describeRisk names the two strongest categories above 0.3 so every
// decision is explainable from its breakdown.
func describeRisk(breakdown Breakdown) string {
	type categoryScore struct {
		name  string
		score float64
	}
	scores := []categoryScore{
		{"regulatory", breakdown.Regulatory},
		{"community", breakdown.Community},
		{"behavioral", breakdown.Behavioral},
		{"voice", breakdown.Voice},
		{"ml", breakdown.ML},
		{"temporal", breakdown.Temporal},
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	var top []string
	for _, cs := range scores {
		if cs.score > 0.3 && len(top) < 2 {
			top = append(top, categoryLabels[cs.name])
		}
	}
	switch len(top) {
	case 0:
		return "no significant risk indicators"
	case 1:
		return fmt.Sprintf("elevated risk from %s", top[0])
	default:
		return fmt.Sprintf("elevated risk from %s and %s", top[0], top[1])
	}
}

// completeness is the fraction of the six categories with data present.
func completeness(features *CallFeatures) float64 {
	present := 0
	if features.Regulatory != nil {
		present++
	}
	if features.Community != nil {
		present++
	}
	if features.CallHistory != nil {
		present++
	}
	if features.Voice != nil {
		present++
	}
	if features.ML != nil {
		present++
	}
	if features.Temporal != nil {
		present++
	}
	return float64(present) / 6
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
