package models

import "time"

// ScoreType identifies one of the four composite scores.
type ScoreType string

const (
	ScoreProjectHealth    ScoreType = "project_health"
	ScoreRisk             ScoreType = "risk"
	ScoreClientValue      ScoreType = "client_value"
	ScoreUpsellLikelihood ScoreType = "upsell_likelihood"
)

// ScoreLevel is the qualitative classification of a score.
type ScoreLevel string

const (
	LevelLow      ScoreLevel = "low"
	LevelMedium   ScoreLevel = "medium"
	LevelHigh     ScoreLevel = "high"
	LevelCritical ScoreLevel = "critical"
)

// ScoreFactor is one named contribution to a composite score, rounded to
// two decimals for display.
type ScoreFactor struct {
	Key          string  `json:"key" yaml:"key"`
	Contribution float64 `json:"contribution" yaml:"contribution"`
}

// Score is a weighted composite of risk components on a 0-100 scale.
// Every score traces to named inputs through Factors.
type Score struct {
	Type         ScoreType          `json:"score_type" yaml:"score_type"`
	Score        float64            `json:"score" yaml:"score"`
	Level        ScoreLevel         `json:"level" yaml:"level"`
	Weights      map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	Thresholds   map[string]float64 `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Factors      []ScoreFactor      `json:"factors,omitempty" yaml:"factors,omitempty"`
	EvidenceRefs []EvidenceRef      `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"`
	ComputedAt   time.Time          `json:"computed_at" yaml:"computed_at"`
}
