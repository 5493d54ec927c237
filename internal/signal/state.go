// Package signal implements the signal engine: it folds domain events into
// a versioned SignalState and derives ten threshold-classified signals from
// that state. All functions are pure over their inputs; callers own the
// state and are responsible for persisting it between batches.
package signal

import (
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

const (
	// DefaultAlpha is the default EWMA smoothing factor for sentiment.
	DefaultAlpha = 0.35
	// AlphaMin and AlphaMax bound the smoothing factor.
	AlphaMin = 0.05
	AlphaMax = 0.9

	// listWindow bounds timestamp lists (scope requests, client messages,
	// pending responses, need timestamps).
	listWindow = 35 * 24 * time.Hour
	// openWindow bounds open blocker and agreement maps.
	openWindow = 90 * 24 * time.Hour
	// activityWindowDays bounds the daily activity counters.
	activityWindowDays = 30

	// evidencePerSignalCap bounds each evidence bucket in the state.
	evidencePerSignalCap = 20
)

// NewState returns a zero-valued SignalState ready for folding.
func NewState(now time.Time) *models.SignalState {
	return &models.SignalState{
		Version:    models.SignalStateVersion,
		Blockers:   models.BlockerState{Open: make(map[string]models.BlockerEntry)},
		Stage:      models.StageState{Status: models.StageUnknown},
		Agreements: models.AgreementState{Open: make(map[string]models.AgreementEntry)},
		Sentiment:  models.SentimentState{Alpha: DefaultAlpha},
		Activity:   models.ActivityState{DailyCounts: make(map[string]int)},
		Evidence:   make(models.EvidenceBuckets),
	}
}

// Clone returns a deep copy of the state. ApplyEvents clones before folding
// so the caller's previous state is never mutated.
func Clone(state *models.SignalState) *models.SignalState {
	if state == nil {
		return nil
	}
	out := *state

	out.Waiting.LastClientMessageAt = cloneTime(state.Waiting.LastClientMessageAt)
	out.Waiting.LastTeamMessageAt = cloneTime(state.Waiting.LastTeamMessageAt)

	out.Response.Pending = append([]time.Time(nil), state.Response.Pending...)

	out.Blockers.Open = make(map[string]models.BlockerEntry, len(state.Blockers.Open))
	for id, entry := range state.Blockers.Open {
		out.Blockers.Open[id] = entry
	}

	out.Stage.StartedAt = cloneTime(state.Stage.StartedAt)
	out.Stage.DueAt = cloneTime(state.Stage.DueAt)

	out.Agreements.Open = make(map[string]models.AgreementEntry, len(state.Agreements.Open))
	for id, entry := range state.Agreements.Open {
		entry.DueAt = cloneTime(entry.DueAt)
		out.Agreements.Open[id] = entry
	}

	out.Scope.Requests = append([]time.Time(nil), state.Scope.Requests...)
	out.Scope.ClientMessages = append([]time.Time(nil), state.Scope.ClientMessages...)

	out.Activity.DailyCounts = make(map[string]int, len(state.Activity.DailyCounts))
	for day, count := range state.Activity.DailyCounts {
		out.Activity.DailyCounts[day] = count
	}

	out.Needs.Times = append([]time.Time(nil), state.Needs.Times...)
	out.Needs.Evidence = append([]models.EvidenceRef(nil), state.Needs.Evidence...)

	out.Evidence = make(models.EvidenceBuckets, len(state.Evidence))
	for key, refs := range state.Evidence {
		out.Evidence[key] = append([]models.EvidenceRef(nil), refs...)
	}

	out.Cursor.LastEventTS = cloneTime(state.Cursor.LastEventTS)
	if state.Cursor.FoldedIDs != nil {
		out.Cursor.FoldedIDs = make(map[string]bool, len(state.Cursor.FoldedIDs))
		for id := range state.Cursor.FoldedIDs {
			out.Cursor.FoldedIDs[id] = true
		}
	}

	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// prune drops accumulated data that has aged out of its rolling window so
// old entries do not bias rates forever.
func prune(state *models.SignalState, now time.Time) {
	listCutoff := now.Add(-listWindow)
	openCutoff := now.Add(-openWindow)

	state.Response.Pending = pruneTimes(state.Response.Pending, listCutoff)
	state.Scope.Requests = pruneTimes(state.Scope.Requests, listCutoff)
	state.Scope.ClientMessages = pruneTimes(state.Scope.ClientMessages, listCutoff)
	state.Needs.Times = pruneTimes(state.Needs.Times, listCutoff)

	for id, entry := range state.Blockers.Open {
		if entry.OpenedAt.Before(openCutoff) {
			delete(state.Blockers.Open, id)
		}
	}
	for id, entry := range state.Agreements.Open {
		if entry.CreatedAt.Before(openCutoff) {
			delete(state.Agreements.Open, id)
		}
	}

	dayCutoff := dayKey(now.AddDate(0, 0, -activityWindowDays))
	for day := range state.Activity.DailyCounts {
		if day < dayCutoff {
			delete(state.Activity.DailyCounts, day)
		}
	}
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	if len(times) == 0 {
		return times
	}
	kept := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// dayKey returns the UTC ISO date bucket for a timestamp.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// clampAlpha bounds the sentiment smoothing factor, falling back to the
// default when unset.
func clampAlpha(alpha float64) float64 {
	if alpha == 0 {
		return DefaultAlpha
	}
	if alpha < AlphaMin {
		return AlphaMin
	}
	if alpha > AlphaMax {
		return AlphaMax
	}
	return alpha
}
