package models

// RecommendationCategory identifies one of the five recommendation rules.
type RecommendationCategory string

const (
	RecWaitingOnClient   RecommendationCategory = "waiting_on_client"
	RecScopeCreep        RecommendationCategory = "scope_creep_change_request"
	RecDeliveryRisk      RecommendationCategory = "delivery_risk"
	RecFinanceRisk       RecommendationCategory = "finance_risk"
	RecUpsellOpportunity RecommendationCategory = "upsell_opportunity"
)

// Template keys passed to the template generator.
const (
	TemplateWaiting    = "WAITING"
	TemplateScopeCreep = "SCOPE_CREEP"
	TemplateDelivery   = "DELIVERY"
	TemplateFinance    = "FINANCE"
	TemplateUpsell     = "UPSELL"
)

// Recommendation is an evidence-gated, priority-ranked suggested action.
// Recommendations are ephemeral: they are recomputed on every pipeline run
// and the caller compares DedupeKey against previously surfaced ones.
type Recommendation struct {
	Category       RecommendationCategory `json:"category" yaml:"category"`
	Priority       int                    `json:"priority" yaml:"priority"`
	Title          string                 `json:"title" yaml:"title"`
	Rationale      string                 `json:"rationale" yaml:"rationale"`
	EvidenceRefs   []EvidenceRef          `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"`
	TemplateKey    string                 `json:"suggested_template_key" yaml:"suggested_template_key"`
	Template       string                 `json:"suggested_template" yaml:"suggested_template"`
	SignalSnapshot map[string]float64     `json:"signal_snapshot,omitempty" yaml:"signal_snapshot,omitempty"`
	ScoreSnapshot  map[string]float64     `json:"score_snapshot,omitempty" yaml:"score_snapshot,omitempty"`
	DedupeKey      string                 `json:"dedupe_key" yaml:"dedupe_key"`
}
