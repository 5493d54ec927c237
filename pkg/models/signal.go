package models

// SignalKey identifies one of the ten derived signals.
type SignalKey string

const (
	SignalWaitingOnClientDays   SignalKey = "waiting_on_client_days"
	SignalResponseTimeAvg       SignalKey = "response_time_avg"
	SignalBlockersAge           SignalKey = "blockers_age"
	SignalStageOverdue          SignalKey = "stage_overdue"
	SignalAgreementOverdueCount SignalKey = "agreement_overdue_count"
	SignalSentimentTrend        SignalKey = "sentiment_trend"
	SignalScopeCreepRate        SignalKey = "scope_creep_rate"
	SignalBudgetBurnRate        SignalKey = "budget_burn_rate"
	SignalMarginRisk            SignalKey = "margin_risk"
	SignalActivityDrop          SignalKey = "activity_drop"
)

// SignalStatus classifies a signal value against its thresholds.
type SignalStatus string

const (
	SignalOK       SignalStatus = "ok"
	SignalWarn     SignalStatus = "warn"
	SignalCritical SignalStatus = "critical"
)

// Signal is a normalized, threshold-classified indicator derived from
// accumulated state. Signals are recomputed fresh on every evaluation and
// are not persisted as part of the state.
type Signal struct {
	Key               SignalKey      `json:"signal_key" yaml:"signal_key"`
	Value             float64        `json:"value" yaml:"value"`
	Status            SignalStatus   `json:"status" yaml:"status"`
	ThresholdWarn     float64        `json:"threshold_warn" yaml:"threshold_warn"`
	ThresholdCritical float64        `json:"threshold_critical" yaml:"threshold_critical"`
	Details           map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	EvidenceRefs      []EvidenceRef  `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"`
}
