package models

import "time"

// SignalStateVersion is the current SignalState schema version.
const SignalStateVersion = 1

// StageStatus is the lifecycle status of the current delivery stage.
type StageStatus string

const (
	StageUnknown   StageStatus = "unknown"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
)

// SignalState is the versioned accumulator the signal engine folds events
// into. It is JSON- and YAML-serializable by construction so the caller can
// round-trip it through any store, keyed per (tenant, project) scope.
type SignalState struct {
	Version    int             `json:"version" yaml:"version"`
	Waiting    WaitingState    `json:"waiting" yaml:"waiting"`
	Response   ResponseState   `json:"response" yaml:"response"`
	Blockers   BlockerState    `json:"blockers" yaml:"blockers"`
	Stage      StageState      `json:"stage" yaml:"stage"`
	Agreements AgreementState  `json:"agreements" yaml:"agreements"`
	Sentiment  SentimentState  `json:"sentiment" yaml:"sentiment"`
	Scope      ScopeState      `json:"scope" yaml:"scope"`
	Finance    FinanceState    `json:"finance" yaml:"finance"`
	Activity   ActivityState   `json:"activity" yaml:"activity"`
	Needs      NeedState       `json:"needs" yaml:"needs"`
	Evidence   EvidenceBuckets `json:"evidence_by_signal" yaml:"evidence_by_signal"`
	Cursor     CursorState     `json:"cursor" yaml:"cursor"`
}

// EvidenceBuckets maps a signal key to the deduplicated evidence justifying
// that signal, capped per key by the engine.
type EvidenceBuckets map[SignalKey][]EvidenceRef

// WaitingState tracks the last message timestamps on each side of the
// client/team conversation.
type WaitingState struct {
	LastClientMessageAt *time.Time `json:"last_client_message_at,omitempty" yaml:"last_client_message_at,omitempty"`
	LastTeamMessageAt   *time.Time `json:"last_team_message_at,omitempty" yaml:"last_team_message_at,omitempty"`
}

// ResponseState tracks client messages awaiting a team reply and the running
// moving average of response latency. Pending is a FIFO queue: the oldest
// pending client message is matched to the next team reply.
type ResponseState struct {
	Pending      []time.Time `json:"pending,omitempty" yaml:"pending,omitempty"`
	TotalMinutes float64     `json:"total_minutes" yaml:"total_minutes"`
	Samples      int         `json:"samples" yaml:"samples"`
}

// BlockerEntry records when an open blocker was reported.
type BlockerEntry struct {
	OpenedAt time.Time `json:"opened_at" yaml:"opened_at"`
}

// BlockerState holds currently open blockers keyed by blocker ID.
type BlockerState struct {
	Open map[string]BlockerEntry `json:"open,omitempty" yaml:"open,omitempty"`
}

// StageState describes the current delivery stage.
type StageState struct {
	ID              string      `json:"stage_id,omitempty" yaml:"stage_id,omitempty"`
	Name            string      `json:"stage_name,omitempty" yaml:"stage_name,omitempty"`
	Status          StageStatus `json:"status" yaml:"status"`
	StartedAt       *time.Time  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	DueAt           *time.Time  `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	ApprovalPending bool        `json:"approval_pending" yaml:"approval_pending"`
}

// AgreementEntry records an open agreement awaiting approval.
type AgreementEntry struct {
	DueAt     *time.Time `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

// AgreementState holds open agreements keyed by agreement ID.
type AgreementState struct {
	Open map[string]AgreementEntry `json:"open,omitempty" yaml:"open,omitempty"`
}

// SentimentState is the exponentially weighted moving average of message
// sentiment. EWMA is always within [-1, 1].
type SentimentState struct {
	EWMA     float64 `json:"ewma" yaml:"ewma"`
	PrevEWMA float64 `json:"prev_ewma" yaml:"prev_ewma"`
	Samples  int     `json:"samples" yaml:"samples"`
	Alpha    float64 `json:"alpha" yaml:"alpha"`
}

// ScopeState tracks scope-change requests and client-authored messages.
// ClientMessages is the denominator for the scope creep rate.
type ScopeState struct {
	Requests       []time.Time `json:"requests,omitempty" yaml:"requests,omitempty"`
	ClientMessages []time.Time `json:"client_messages,omitempty" yaml:"client_messages,omitempty"`
}

// FinanceState holds cumulative budget, cost, and revenue totals.
type FinanceState struct {
	PlannedBudget float64 `json:"planned_budget" yaml:"planned_budget"`
	ActualCost    float64 `json:"actual_cost" yaml:"actual_cost"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
}

// ActivityState counts state-mutating events per ISO date (UTC).
type ActivityState struct {
	DailyCounts map[string]int `json:"daily_counts,omitempty" yaml:"daily_counts,omitempty"`
}

// NeedState accumulates detected client needs and their evidence.
type NeedState struct {
	Times    []time.Time   `json:"times,omitempty" yaml:"times,omitempty"`
	Evidence []EvidenceRef `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// CursorState is the incremental-resumption watermark. LastEventID advances
// only on a larger numeric ID; LastEventTS advances to the folded event's
// timestamp.
type CursorState struct {
	LastEventID string     `json:"last_event_id,omitempty" yaml:"last_event_id,omitempty"`
	LastEventTS *time.Time `json:"last_event_ts,omitempty" yaml:"last_event_ts,omitempty"`
	// FoldedIDs records folded events whose IDs are not numeric. The ID
	// watermark cannot order those, so incremental reads re-deliver them;
	// this set keeps the re-delivery idempotent.
	FoldedIDs map[string]bool `json:"folded_ids,omitempty" yaml:"folded_ids,omitempty"`
}
