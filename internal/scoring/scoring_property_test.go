package scoring

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/opspulse/opspulse/pkg/models"
)

var allSignalKeys = []models.SignalKey{
	models.SignalWaitingOnClientDays,
	models.SignalResponseTimeAvg,
	models.SignalBlockersAge,
	models.SignalStageOverdue,
	models.SignalAgreementOverdueCount,
	models.SignalSentimentTrend,
	models.SignalScopeCreepRate,
	models.SignalBudgetBurnRate,
	models.SignalMarginRisk,
	models.SignalActivityDrop,
}

// genSignals generates the full signal set with arbitrary finite values.
func genSignals(t *rapid.T) []models.Signal {
	signals := make([]models.Signal, 0, len(allSignalKeys))
	for i, key := range allSignalKeys {
		signals = append(signals, models.Signal{
			Key:   key,
			Value: rapid.Float64Range(-1000, 1000).Draw(t, fmt.Sprintf("value_%d", i)),
		})
	}
	return signals
}

// Feature: scoring engine, Property 4: Score Bounds
// *For any* finite signal values and state totals, all four scores SHALL be
// finite and within [0, 100].
func TestProperty4_ScoreBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
		state := &models.SignalState{
			Finance: models.FinanceState{
				PlannedBudget: rapid.Float64Range(0, 1e6).Draw(rt, "budget"),
				ActualCost:    rapid.Float64Range(0, 1e6).Draw(rt, "cost"),
				Revenue:       rapid.Float64Range(0, 1e6).Draw(rt, "revenue"),
			},
			Sentiment: models.SentimentState{
				EWMA: rapid.Float64Range(-1, 1).Draw(rt, "ewma"),
			},
		}

		result := ComputeScores(genSignals(rt), state, now)

		if len(result.Scores) != 4 {
			rt.Fatalf("got %d scores, want 4", len(result.Scores))
		}
		for _, s := range result.Scores {
			if s.Score < 0 || s.Score > 100 {
				rt.Errorf("%s = %f out of [0, 100]", s.Type, s.Score)
			}
			if s.Level == "" {
				rt.Errorf("%s has no level", s.Type)
			}
		}
		for key, component := range result.RiskComponents {
			if component < 0 || component > 100 {
				rt.Errorf("component %s = %f out of [0, 100]", key, component)
			}
		}
	})
}
