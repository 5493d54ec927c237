package signal

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

// noBudgetBurnFallback is the burn rate reported when cost was logged
// against a zero budget. Kept as-is for compatibility with historical
// scoring output; a future config knob could replace it.
const noBudgetBurnFallback = 1.5

// Result is the outcome of folding a batch of events.
type Result struct {
	State           *models.SignalState
	ProcessedEvents int
	LastEventID     string
}

// ApplyEvents clones the previous state (or creates a fresh one), orders the
// batch canonically, and folds each event. The caller's previous state is
// never mutated, so retries and replays are safe.
func ApplyEvents(prev *models.SignalState, events []models.Event, now time.Time) Result {
	state := Clone(prev)
	if state == nil {
		state = NewState(now)
	}

	ordered := append([]models.Event(nil), events...)
	sortEvents(ordered)

	processed := 0
	for _, evt := range ordered {
		if alreadyFolded(state.Cursor, evt.ID) {
			continue
		}
		ApplyEvent(state, evt, now)
		processed++
	}

	return Result{
		State:           state,
		ProcessedEvents: processed,
		LastEventID:     state.Cursor.LastEventID,
	}
}

// sortEvents establishes the canonical fold order: ascending numeric ID when
// both sides have one, ascending timestamp otherwise. The sort is stable so
// ties keep input order.
func sortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, aOK := numericID(events[i].ID)
		b, bOK := numericID(events[j].ID)
		if aOK && bOK {
			return a < b
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}

// numericID parses an event ID as a finite number.
func numericID(id string) (float64, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(id, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ApplyEvent folds a single event into the state and returns the same state.
// Unrecognized event types are a no-op. Malformed payload fields degrade to
// safe defaults; the fold never fails.
func ApplyEvent(state *models.SignalState, evt models.Event, now time.Time) *models.SignalState {
	if state == nil {
		return nil
	}
	if alreadyFolded(state.Cursor, evt.ID) {
		return state
	}

	switch evt.Type.Normalize() {
	case models.EventMessageSent:
		applyMessage(state, evt)
	case models.EventTaskBlocked:
		applyBlockerOpened(state, evt)
	case models.EventBlockerResolved:
		applyBlockerResolved(state, evt)
	case models.EventStageStarted:
		applyStageStarted(state, evt)
	case models.EventStageCompleted:
		applyStageCompleted(state, evt)
	case models.EventAgreementCreated:
		applyAgreementCreated(state, evt)
	case models.EventApprovalApproved:
		applyApprovalApproved(state, evt)
	case models.EventScopeChangeRequested:
		state.Scope.Requests = append(state.Scope.Requests, evt.OccurredAt)
		mergeEvidence(state, models.SignalScopeCreepRate, evt.EvidenceRefs)
	case models.EventFinanceEntryCreated:
		applyFinanceEntry(state, evt)
	case models.EventNeedDetected:
		state.Needs.Times = append(state.Needs.Times, evt.OccurredAt)
		state.Needs.Evidence = models.DedupeEvidence(evidencePerSignalCap, state.Needs.Evidence, evt.EvidenceRefs)
	case models.EventDecisionMade, models.EventOfferCreated, models.EventTaskCreated:
		// Activity only.
	default:
		return state
	}

	if state.Activity.DailyCounts == nil {
		state.Activity.DailyCounts = make(map[string]int)
	}
	state.Activity.DailyCounts[dayKey(evt.OccurredAt)]++
	advanceCursor(state, evt)
	prune(state, now)
	return state
}

func applyMessage(state *models.SignalState, evt models.Event) {
	ts := evt.OccurredAt
	role := senderRole(evt.Payload)

	switch {
	case isClientRole(role):
		state.Waiting.LastClientMessageAt = cloneTime(&ts)
		state.Response.Pending = append(state.Response.Pending, ts)
		state.Scope.ClientMessages = append(state.Scope.ClientMessages, ts)
		mergeEvidence(state, models.SignalWaitingOnClientDays, evt.EvidenceRefs)
		mergeEvidence(state, models.SignalResponseTimeAvg, evt.EvidenceRefs)
	case isTeamRole(role):
		state.Waiting.LastTeamMessageAt = cloneTime(&ts)
		if len(state.Response.Pending) > 0 {
			oldest := state.Response.Pending[0]
			state.Response.TotalMinutes += ts.Sub(oldest).Minutes()
			state.Response.Samples++
			state.Response.Pending = state.Response.Pending[1:]
		}
		mergeEvidence(state, models.SignalWaitingOnClientDays, evt.EvidenceRefs)
		mergeEvidence(state, models.SignalResponseTimeAvg, evt.EvidenceRefs)
	}

	if score, ok := payloadFloat(evt.Payload, "sentiment_score"); ok {
		foldSentiment(&state.Sentiment, clampFloat(score, -1, 1))
		mergeEvidence(state, models.SignalSentimentTrend, evt.EvidenceRefs)
	}
}

// foldSentiment advances the EWMA by one sample. The first sample seeds the
// average directly; PrevEWMA always captures the pre-update value.
func foldSentiment(s *models.SentimentState, x float64) {
	s.Alpha = clampAlpha(s.Alpha)
	s.PrevEWMA = s.EWMA
	if s.Samples == 0 {
		s.EWMA = x
	} else {
		s.EWMA = s.Alpha*x + (1-s.Alpha)*s.EWMA
	}
	s.Samples++
}

func applyBlockerOpened(state *models.SignalState, evt models.Event) {
	if state.Blockers.Open == nil {
		state.Blockers.Open = make(map[string]models.BlockerEntry)
	}
	state.Blockers.Open[blockerID(evt)] = models.BlockerEntry{OpenedAt: evt.OccurredAt}
	mergeEvidence(state, models.SignalBlockersAge, evt.EvidenceRefs)
}

func applyBlockerResolved(state *models.SignalState, evt models.Event) {
	delete(state.Blockers.Open, blockerID(evt))
	mergeEvidence(state, models.SignalBlockersAge, evt.EvidenceRefs)
}

func applyStageStarted(state *models.SignalState, evt models.Event) {
	started := payloadTime(evt.Payload, "started_at")
	if started == nil {
		ts := evt.OccurredAt
		started = &ts
	}
	state.Stage = models.StageState{
		ID:              payloadString(evt.Payload, "stage_id"),
		Name:            payloadString(evt.Payload, "stage_name"),
		Status:          models.StageActive,
		StartedAt:       started,
		DueAt:           payloadTime(evt.Payload, "due_at"),
		ApprovalPending: payloadBool(evt.Payload, "approval_pending"),
	}
	mergeEvidence(state, models.SignalStageOverdue, evt.EvidenceRefs)
	// Client approval gates the stage, so stage evidence also backs the
	// waiting signal.
	mergeEvidence(state, models.SignalWaitingOnClientDays, evt.EvidenceRefs)
}

func applyStageCompleted(state *models.SignalState, evt models.Event) {
	state.Stage.Status = models.StageCompleted
	state.Stage.ApprovalPending = false
	mergeEvidence(state, models.SignalStageOverdue, evt.EvidenceRefs)
}

func applyAgreementCreated(state *models.SignalState, evt models.Event) {
	if state.Agreements.Open == nil {
		state.Agreements.Open = make(map[string]models.AgreementEntry)
	}
	state.Agreements.Open[agreementID(evt)] = models.AgreementEntry{
		DueAt:     payloadTime(evt.Payload, "due_at"),
		CreatedAt: evt.OccurredAt,
	}
	mergeEvidence(state, models.SignalAgreementOverdueCount, evt.EvidenceRefs)
}

func applyApprovalApproved(state *models.SignalState, evt models.Event) {
	delete(state.Agreements.Open, agreementID(evt))
	state.Stage.ApprovalPending = false
	mergeEvidence(state, models.SignalAgreementOverdueCount, evt.EvidenceRefs)
}

func applyFinanceEntry(state *models.SignalState, evt models.Event) {
	amount, _ := payloadFloat(evt.Payload, "amount")
	amount = math.Abs(amount)

	switch strings.ToLower(payloadString(evt.Payload, "entry_type")) {
	case "planned_budget", "budget_plan", "budget":
		state.Finance.PlannedBudget += amount
		mergeEvidence(state, models.SignalBudgetBurnRate, evt.EvidenceRefs)
	case "cost", "expense":
		state.Finance.ActualCost += amount
		mergeEvidence(state, models.SignalBudgetBurnRate, evt.EvidenceRefs)
		mergeEvidence(state, models.SignalMarginRisk, evt.EvidenceRefs)
	case "revenue", "invoice", "payment":
		state.Finance.Revenue += amount
		mergeEvidence(state, models.SignalMarginRisk, evt.EvidenceRefs)
	}
}

// alreadyFolded reports whether a non-numeric event ID was folded before.
// Numeric IDs are ordered by the LastEventID watermark instead.
func alreadyFolded(cursor models.CursorState, id string) bool {
	if _, ok := numericID(id); ok {
		return false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return cursor.FoldedIDs[id]
}

// advanceCursor moves the incremental watermark. The ID watermark only moves
// forward on a larger numeric ID; non-numeric IDs are recorded in the folded
// set; the timestamp watermark never regresses.
func advanceCursor(state *models.SignalState, evt models.Event) {
	if n, ok := numericID(evt.ID); ok {
		if cur, curOK := numericID(state.Cursor.LastEventID); !curOK || n > cur {
			state.Cursor.LastEventID = evt.ID
		}
	} else if id := strings.TrimSpace(evt.ID); id != "" {
		if state.Cursor.FoldedIDs == nil {
			state.Cursor.FoldedIDs = make(map[string]bool)
		}
		state.Cursor.FoldedIDs[id] = true
	}
	if state.Cursor.LastEventTS == nil || evt.OccurredAt.After(*state.Cursor.LastEventTS) {
		ts := evt.OccurredAt
		state.Cursor.LastEventTS = &ts
	}
}

// mergeEvidence appends deduplicated refs to a signal's evidence bucket,
// keeping the bucket within its cap.
func mergeEvidence(state *models.SignalState, key models.SignalKey, refs []models.EvidenceRef) {
	if len(refs) == 0 {
		return
	}
	if state.Evidence == nil {
		state.Evidence = make(models.EvidenceBuckets)
	}
	state.Evidence[key] = models.DedupeEvidence(evidencePerSignalCap, state.Evidence[key], refs)
}

func blockerID(evt models.Event) string {
	if id := payloadString(evt.Payload, "blocker_id", "task_id", "subject_id"); id != "" {
		return id
	}
	return evt.ID
}

func agreementID(evt models.Event) string {
	if id := payloadString(evt.Payload, "agreement_id", "subject_id"); id != "" {
		return id
	}
	return evt.ID
}

// --- Sender classification ---

var clientRoles = map[string]bool{
	"client":   true,
	"customer": true,
	"external": true,
}

var teamRoles = map[string]bool{
	"team":            true,
	"agent":           true,
	"pm":              true,
	"project_manager": true,
	"account_manager": true,
	"staff":           true,
	"internal":        true,
}

func senderRole(payload map[string]any) string {
	return strings.ToLower(payloadString(payload, "sender_role", "sender_type", "sender", "author_type"))
}

func isClientRole(role string) bool { return clientRoles[role] }

func isTeamRole(role string) bool { return teamRoles[role] }

// --- Payload helpers ---
//
// Connector payloads are telemetry-like input: missing or malformed fields
// degrade to zero values instead of failing the fold.

func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			switch s := v.(type) {
			case string:
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			case int:
				return strconv.Itoa(s)
			}
		}
	}
	return ""
}

func payloadFloat(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func payloadBool(payload map[string]any, key string) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

func payloadTime(payload map[string]any, key string) *time.Time {
	switch v := payload[key].(type) {
	case time.Time:
		t := v
		return &t
	case string:
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return &t
		}
	}
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
