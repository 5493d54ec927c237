// Package scoring computes the four weighted composite scores from derived
// signals and ancillary state. Scores are explainable by construction: every
// number traces to named factors and carries the evidence behind its inputs.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

// revenueReference is the revenue that maps to a full client-value revenue
// score on the log scale.
const revenueReference = 100_000.0

// scoreEvidenceCap bounds the evidence union attached to each score.
const scoreEvidenceCap = 60

// healthWeights blends the risk components into the pressure that project
// health inverts. Delivery mechanics (blockers, stage, agreements) weigh
// heaviest.
var healthWeights = map[models.SignalKey]float64{
	models.SignalWaitingOnClientDays:   0.10,
	models.SignalResponseTimeAvg:       0.08,
	models.SignalBlockersAge:           0.14,
	models.SignalStageOverdue:          0.13,
	models.SignalAgreementOverdueCount: 0.12,
	models.SignalSentimentTrend:        0.09,
	models.SignalScopeCreepRate:        0.10,
	models.SignalBudgetBurnRate:        0.09,
	models.SignalMarginRisk:            0.08,
	models.SignalActivityDrop:          0.07,
}

// riskWeights emphasizes blockers, stage slippage, and the finance
// components.
var riskWeights = map[models.SignalKey]float64{
	models.SignalWaitingOnClientDays:   0.07,
	models.SignalResponseTimeAvg:       0.05,
	models.SignalBlockersAge:           0.17,
	models.SignalStageOverdue:          0.16,
	models.SignalAgreementOverdueCount: 0.08,
	models.SignalSentimentTrend:        0.05,
	models.SignalScopeCreepRate:        0.05,
	models.SignalBudgetBurnRate:        0.17,
	models.SignalMarginRisk:            0.16,
	models.SignalActivityDrop:          0.04,
}

var clientValueWeights = map[string]float64{
	"revenue":    0.30,
	"margin":     0.25,
	"engagement": 0.20,
	"sentiment":  0.10,
	"stability":  0.15,
}

var upsellWeights = map[string]float64{
	"client_value":         0.40,
	"need_signal":          0.35,
	"commercial_stability": 0.25,
}

// Result carries the four scores plus the normalized risk components they
// were blended from.
type Result struct {
	Scores         []models.Score
	ScoreMap       map[models.ScoreType]models.Score
	RiskComponents map[models.SignalKey]float64
}

// ComputeScores derives project_health, risk, client_value, and
// upsell_likelihood from the signals and state. It is total: any finite
// signal slice (including empty) yields four finite scores in [0, 100].
func ComputeScores(signals []models.Signal, state *models.SignalState, now time.Time) Result {
	if state == nil {
		state = &models.SignalState{}
	}

	values := make(map[models.SignalKey]float64, len(signals))
	for _, s := range signals {
		values[s.Key] = s.Value
	}
	components := riskComponents(values)

	evidence := scoreEvidence(signals)

	healthPressure := weightedAverage(components, healthWeights)
	health := clamp100(100 - healthPressure)
	risk := clamp100(weightedAverage(components, riskWeights))

	clientValue, clientFactors := clientValueScore(components, state, health)
	upsell, upsellFactors := upsellScore(clientValue, health, risk, state, now)

	scores := []models.Score{
		{
			Type:         models.ScoreProjectHealth,
			Score:        health,
			Level:        healthLevel(health),
			Weights:      weightStrings(healthWeights),
			Thresholds:   map[string]float64{"critical": 40, "high": 60, "medium": 75},
			Factors:      componentFactors(components, healthWeights),
			EvidenceRefs: evidence,
			ComputedAt:   now,
		},
		{
			Type:         models.ScoreRisk,
			Score:        risk,
			Level:        riskLevel(risk),
			Weights:      weightStrings(riskWeights),
			Thresholds:   map[string]float64{"medium": 45, "high": 65, "critical": 80},
			Factors:      componentFactors(components, riskWeights),
			EvidenceRefs: evidence,
			ComputedAt:   now,
		},
		{
			Type:         models.ScoreClientValue,
			Score:        clientValue,
			Level:        clientValueLevel(clientValue),
			Weights:      clientValueWeights,
			Thresholds:   map[string]float64{"critical": 25, "medium": 60, "high": 80},
			Factors:      clientFactors,
			EvidenceRefs: evidence,
			ComputedAt:   now,
		},
		{
			Type:         models.ScoreUpsellLikelihood,
			Score:        upsell,
			Level:        upsellLevel(upsell),
			Weights:      upsellWeights,
			Thresholds:   map[string]float64{"medium": 40, "high": 65, "critical": 80},
			Factors:      upsellFactors,
			EvidenceRefs: evidence,
			ComputedAt:   now,
		},
	}

	scoreMap := make(map[models.ScoreType]models.Score, len(scores))
	for _, s := range scores {
		scoreMap[s.Type] = s
	}

	return Result{Scores: scores, ScoreMap: scoreMap, RiskComponents: components}
}

// riskComponents normalizes the raw signal values into [0, 100] pressure
// components via fixed linear mappings against domain caps.
func riskComponents(values map[models.SignalKey]float64) map[models.SignalKey]float64 {
	burnOverrun := 0.0
	if burn := values[models.SignalBudgetBurnRate]; burn > 1 {
		burnOverrun = (burn - 1) * 500
	}
	sentimentPenalty := 0.0
	if trend := values[models.SignalSentimentTrend]; trend < 0 {
		sentimentPenalty = -trend * 300
	}

	return map[models.SignalKey]float64{
		models.SignalWaitingOnClientDays:   clamp100(values[models.SignalWaitingOnClientDays] / 6 * 100),
		models.SignalResponseTimeAvg:       clamp100(values[models.SignalResponseTimeAvg] / 720 * 100),
		models.SignalBlockersAge:           clamp100(values[models.SignalBlockersAge] / 7 * 100),
		models.SignalStageOverdue:          clamp100(values[models.SignalStageOverdue] / 5 * 100),
		models.SignalAgreementOverdueCount: clamp100(values[models.SignalAgreementOverdueCount] * 40),
		models.SignalSentimentTrend:        clamp100(sentimentPenalty),
		models.SignalScopeCreepRate:        clamp100(values[models.SignalScopeCreepRate] * 250),
		models.SignalBudgetBurnRate:        clamp100(burnOverrun),
		models.SignalMarginRisk:            clamp100(values[models.SignalMarginRisk] * 100),
		models.SignalActivityDrop:          clamp100(values[models.SignalActivityDrop] * 100),
	}
}

func clientValueScore(components map[models.SignalKey]float64, state *models.SignalState, health float64) (float64, []models.ScoreFactor) {
	revenueScore := clamp100(math.Log1p(state.Finance.Revenue) / math.Log1p(revenueReference) * 100)
	marginScore := 100 - components[models.SignalMarginRisk]
	engagementScore := 100 - components[models.SignalActivityDrop]
	sentimentScore := clamp100((state.Sentiment.EWMA + 1) * 50)
	stabilityScore := health

	parts := map[string]float64{
		"revenue":    revenueScore,
		"margin":     marginScore,
		"engagement": engagementScore,
		"sentiment":  sentimentScore,
		"stability":  stabilityScore,
	}
	return blend(parts, clientValueWeights)
}

func upsellScore(clientValue, health, risk float64, state *models.SignalState, now time.Time) (float64, []models.ScoreFactor) {
	needs7d := countSince(state.Needs.Times, now.AddDate(0, 0, -7))
	scopeRequests7d := countSince(state.Scope.Requests, now.AddDate(0, 0, -7))

	needSignal := clamp100(float64(needs7d)*35 + float64(scopeRequests7d)*12)
	commercialStability := clamp100((100-risk)*0.6 + health*0.4)

	parts := map[string]float64{
		"client_value":         clientValue,
		"need_signal":          needSignal,
		"commercial_stability": commercialStability,
	}
	return blend(parts, upsellWeights)
}

// blend computes the weighted average of named parts and the per-part
// contribution factors, in stable weight-map-independent order.
func blend(parts map[string]float64, weights map[string]float64) (float64, []models.ScoreFactor) {
	var total, totalWeight float64
	keys := sortedKeys(weights)
	factors := make([]models.ScoreFactor, 0, len(keys))
	for _, key := range keys {
		weight := weights[key]
		contribution := weight * parts[key]
		total += contribution
		totalWeight += weight
		factors = append(factors, models.ScoreFactor{Key: key, Contribution: round2(contribution)})
	}
	if totalWeight == 0 {
		return 0, factors
	}
	return clamp100(total / totalWeight), factors
}

// weightedAverage blends components by weight, returning 0 when the total
// weight is 0 so it never divides by zero.
func weightedAverage(components map[models.SignalKey]float64, weights map[models.SignalKey]float64) float64 {
	var total, totalWeight float64
	for key, weight := range weights {
		total += weight * components[key]
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return total / totalWeight
}

func componentFactors(components map[models.SignalKey]float64, weights map[models.SignalKey]float64) []models.ScoreFactor {
	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	factors := make([]models.ScoreFactor, 0, len(keys))
	for _, key := range keys {
		signalKey := models.SignalKey(key)
		factors = append(factors, models.ScoreFactor{
			Key:          key,
			Contribution: round2(weights[signalKey] * components[signalKey]),
		})
	}
	return factors
}

func scoreEvidence(signals []models.Signal) []models.EvidenceRef {
	lists := make([][]models.EvidenceRef, 0, len(signals))
	for _, s := range signals {
		lists = append(lists, s.EvidenceRefs)
	}
	return models.DedupeEvidence(scoreEvidenceCap, lists...)
}

// --- Level mappings ---

// healthLevel: lower is worse.
func healthLevel(score float64) models.ScoreLevel {
	switch {
	case score < 40:
		return models.LevelCritical
	case score < 60:
		return models.LevelHigh
	case score < 75:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// riskLevel: higher is worse.
func riskLevel(score float64) models.ScoreLevel {
	switch {
	case score >= 80:
		return models.LevelCritical
	case score >= 65:
		return models.LevelHigh
	case score >= 45:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// clientValueLevel: higher is better, with a critical floor for accounts at
// risk of churn.
func clientValueLevel(score float64) models.ScoreLevel {
	switch {
	case score < 25:
		return models.LevelCritical
	case score < 60:
		return models.LevelLow
	case score < 80:
		return models.LevelMedium
	default:
		return models.LevelHigh
	}
}

// upsellLevel reuses the risk-style cutoffs: a strong opportunity is
// surfaced with the same urgency as a high risk.
func upsellLevel(score float64) models.ScoreLevel {
	switch {
	case score >= 80:
		return models.LevelCritical
	case score >= 65:
		return models.LevelHigh
	case score >= 40:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// --- Small helpers ---

func weightStrings(weights map[models.SignalKey]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for key, weight := range weights {
		out[string(key)] = weight
	}
	return out
}

func countSince(times []time.Time, cutoff time.Time) int {
	count := 0
	for _, t := range times {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
