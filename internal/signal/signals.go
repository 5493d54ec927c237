package signal

import (
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

// Definition holds the fixed threshold metadata for one signal key.
// LowerIsWorse flips the comparator for signals where negative values are
// the unhealthy direction (sentiment trend).
type Definition struct {
	Key          models.SignalKey
	Warn         float64
	Critical     float64
	LowerIsWorse bool
}

// definitions is the fixed per-key threshold table, in output order.
var definitions = []Definition{
	{Key: models.SignalWaitingOnClientDays, Warn: 2, Critical: 4},
	{Key: models.SignalResponseTimeAvg, Warn: 240, Critical: 720},
	{Key: models.SignalBlockersAge, Warn: 2, Critical: 5},
	{Key: models.SignalStageOverdue, Warn: 1, Critical: 3},
	{Key: models.SignalAgreementOverdueCount, Warn: 1, Critical: 2},
	{Key: models.SignalSentimentTrend, Warn: -0.1, Critical: -0.25, LowerIsWorse: true},
	{Key: models.SignalScopeCreepRate, Warn: 0.2, Critical: 0.35},
	{Key: models.SignalBudgetBurnRate, Warn: 1.1, Critical: 1.2},
	{Key: models.SignalMarginRisk, Warn: 0.25, Critical: 0.4},
	{Key: models.SignalActivityDrop, Warn: 0.5, Critical: 0.8},
}

// Lookup returns the threshold definition for a signal key.
func Lookup(key models.SignalKey) (Definition, bool) {
	for _, def := range definitions {
		if def.Key == key {
			return def, true
		}
	}
	return Definition{}, false
}

// MapByKey indexes a signal slice by key.
func MapByKey(signals []models.Signal) map[models.SignalKey]models.Signal {
	out := make(map[models.SignalKey]models.Signal, len(signals))
	for _, s := range signals {
		out[s.Key] = s
	}
	return out
}

// Status classifies a value against a definition's thresholds.
func (d Definition) Status(value float64) models.SignalStatus {
	if d.LowerIsWorse {
		switch {
		case value <= d.Critical:
			return models.SignalCritical
		case value <= d.Warn:
			return models.SignalWarn
		default:
			return models.SignalOK
		}
	}
	switch {
	case value >= d.Critical:
		return models.SignalCritical
	case value >= d.Warn:
		return models.SignalWarn
	default:
		return models.SignalOK
	}
}

// ComputeSignals derives the ten signals from accumulated state. It never
// mutates the state and never fails: degraded input produces zero-valued
// signals, not errors.
func ComputeSignals(state *models.SignalState, now time.Time) []models.Signal {
	values := map[models.SignalKey]float64{
		models.SignalWaitingOnClientDays:   waitingOnClientDays(state, now),
		models.SignalResponseTimeAvg:       responseTimeAvg(state),
		models.SignalBlockersAge:           blockersAge(state, now),
		models.SignalStageOverdue:          stageOverdue(state, now),
		models.SignalAgreementOverdueCount: agreementOverdueCount(state, now),
		models.SignalSentimentTrend:        state.Sentiment.EWMA - state.Sentiment.PrevEWMA,
		models.SignalScopeCreepRate:        scopeCreepRate(state, now),
		models.SignalBudgetBurnRate:        budgetBurnRate(state),
		models.SignalMarginRisk:            marginRisk(state),
		models.SignalActivityDrop:          activityDrop(state, now),
	}

	signals := make([]models.Signal, 0, len(definitions))
	for _, def := range definitions {
		value := values[def.Key]
		signals = append(signals, models.Signal{
			Key:               def.Key,
			Value:             value,
			Status:            def.Status(value),
			ThresholdWarn:     def.Warn,
			ThresholdCritical: def.Critical,
			Details:           signalDetails(def.Key, state, now),
			EvidenceRefs:      models.DedupeEvidence(evidencePerSignalCap, state.Evidence[def.Key]),
		})
	}
	return signals
}

// waitingOnClientDays is nonzero only while the team spoke more recently
// than the client (or the client never spoke): days since the last team
// message.
func waitingOnClientDays(state *models.SignalState, now time.Time) float64 {
	team := state.Waiting.LastTeamMessageAt
	client := state.Waiting.LastClientMessageAt
	if team == nil {
		return 0
	}
	if client != nil && !team.After(*client) {
		return 0
	}
	days := now.Sub(*team).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

func responseTimeAvg(state *models.SignalState) float64 {
	if state.Response.Samples == 0 {
		return 0
	}
	return state.Response.TotalMinutes / float64(state.Response.Samples)
}

func blockersAge(state *models.SignalState, now time.Time) float64 {
	if len(state.Blockers.Open) == 0 {
		return 0
	}
	var totalDays float64
	for _, entry := range state.Blockers.Open {
		age := now.Sub(entry.OpenedAt).Hours() / 24
		if age > 0 {
			totalDays += age
		}
	}
	return totalDays / float64(len(state.Blockers.Open))
}

func stageOverdue(state *models.SignalState, now time.Time) float64 {
	if state.Stage.Status != models.StageActive || state.Stage.DueAt == nil {
		return 0
	}
	if !now.After(*state.Stage.DueAt) {
		return 0
	}
	return now.Sub(*state.Stage.DueAt).Hours() / 24
}

func agreementOverdueCount(state *models.SignalState, now time.Time) float64 {
	count := 0
	for _, entry := range state.Agreements.Open {
		if entry.DueAt != nil && entry.DueAt.Before(now) {
			count++
		}
	}
	return float64(count)
}

func scopeCreepRate(state *models.SignalState, now time.Time) float64 {
	requests := countSince(state.Scope.Requests, now.AddDate(0, 0, -7))
	clientMsgs := countSince(state.Scope.ClientMessages, now.AddDate(0, 0, -7))
	if clientMsgs < 1 {
		clientMsgs = 1
	}
	return float64(requests) / float64(clientMsgs)
}

func budgetBurnRate(state *models.SignalState) float64 {
	if state.Finance.PlannedBudget > 0 {
		return state.Finance.ActualCost / state.Finance.PlannedBudget
	}
	if state.Finance.ActualCost > 0 {
		return noBudgetBurnFallback
	}
	return 0
}

func marginRisk(state *models.SignalState) float64 {
	cost := state.Finance.ActualCost
	revenue := state.Finance.Revenue
	if revenue <= 0 {
		if cost > 0 {
			return 1.0
		}
		return 0
	}
	margin := (revenue - cost) / revenue
	return clampFloat((0.35-margin)/0.35, 0, 1)
}

func activityDrop(state *models.SignalState, now time.Time) float64 {
	current := activityWindowCount(state, now, 0, 7)
	previous := activityWindowCount(state, now, 7, 14)
	if previous == 0 {
		return 0
	}
	return clampFloat(float64(previous-current)/float64(previous), 0, 1)
}

// activityWindowCount sums day-bucketed activity for days in
// [now-untilDaysAgo, now-fromDaysAgo).
func activityWindowCount(state *models.SignalState, now time.Time, fromDaysAgo, untilDaysAgo int) int {
	total := 0
	for offset := fromDaysAgo; offset < untilDaysAgo; offset++ {
		total += state.Activity.DailyCounts[dayKey(now.AddDate(0, 0, -offset))]
	}
	return total
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

// signalDetails attaches the driver values behind each signal so consumers
// can explain it without re-deriving state.
func signalDetails(key models.SignalKey, state *models.SignalState, now time.Time) map[string]any {
	switch key {
	case models.SignalWaitingOnClientDays:
		details := map[string]any{
			"approval_pending": state.Stage.ApprovalPending,
		}
		if state.Waiting.LastClientMessageAt != nil {
			details["last_client_message_at"] = state.Waiting.LastClientMessageAt.UTC().Format(time.RFC3339)
		}
		if state.Waiting.LastTeamMessageAt != nil {
			details["last_team_message_at"] = state.Waiting.LastTeamMessageAt.UTC().Format(time.RFC3339)
		}
		return details
	case models.SignalResponseTimeAvg:
		return map[string]any{
			"samples": state.Response.Samples,
			"pending": len(state.Response.Pending),
		}
	case models.SignalBlockersAge:
		return map[string]any{
			"open_blockers": len(state.Blockers.Open),
		}
	case models.SignalStageOverdue:
		details := map[string]any{
			"stage_id":         state.Stage.ID,
			"stage_status":     string(state.Stage.Status),
			"approval_pending": state.Stage.ApprovalPending,
		}
		if state.Stage.DueAt != nil {
			details["due_at"] = state.Stage.DueAt.UTC().Format(time.RFC3339)
		}
		return details
	case models.SignalAgreementOverdueCount:
		return map[string]any{
			"open_agreements": len(state.Agreements.Open),
		}
	case models.SignalSentimentTrend:
		return map[string]any{
			"ewma":      state.Sentiment.EWMA,
			"prev_ewma": state.Sentiment.PrevEWMA,
			"samples":   state.Sentiment.Samples,
		}
	case models.SignalScopeCreepRate:
		return map[string]any{
			"scope_requests_7d":  countSince(state.Scope.Requests, now.AddDate(0, 0, -7)),
			"client_requests_7d": countSince(state.Scope.ClientMessages, now.AddDate(0, 0, -7)),
		}
	case models.SignalBudgetBurnRate:
		return map[string]any{
			"planned_budget": state.Finance.PlannedBudget,
			"actual_cost":    state.Finance.ActualCost,
		}
	case models.SignalMarginRisk:
		return map[string]any{
			"revenue":     state.Finance.Revenue,
			"actual_cost": state.Finance.ActualCost,
		}
	case models.SignalActivityDrop:
		return map[string]any{
			"current_7d":  activityWindowCount(state, now, 0, 7),
			"previous_7d": activityWindowCount(state, now, 7, 14),
		}
	}
	return nil
}
