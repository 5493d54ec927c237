// Package recommend synthesizes evidence-gated, priority-ranked
// recommendations from signals, scores, and state. Every recommendation
// carries a deterministic dedupe key so repeated runs over unchanged inputs
// can be recognized upstream.
package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

// recEvidenceCap bounds the merged evidence list per recommendation.
const recEvidenceCap = 25

// TemplateGenerator produces outreach copy for a template key and variable
// set. It may call out to an external service; errors propagate to the
// caller of Generate. When no generator is configured, a deterministic local
// substitution is used instead.
type TemplateGenerator func(ctx context.Context, key string, vars map[string]string) (string, error)

// Input carries the pipeline outputs Generate evaluates.
type Input struct {
	Signals   []models.Signal
	Scores    []models.Score
	State     *models.SignalState
	Now       time.Time
	Templates TemplateGenerator
}

// Generate evaluates the five recommendation rules in fixed order. A rule
// only emits when its merged evidence list is non-empty: no evidence, no
// recommendation, regardless of how extreme the signal is. Output is sorted
// by priority descending; ties keep rule order.
func Generate(ctx context.Context, in Input) ([]models.Recommendation, error) {
	if in.State == nil {
		in.State = &models.SignalState{}
	}

	signals := make(map[models.SignalKey]models.Signal, len(in.Signals))
	for _, s := range in.Signals {
		signals[s.Key] = s
	}
	scores := make(map[models.ScoreType]models.Score, len(in.Scores))
	for _, s := range in.Scores {
		scores[s.Type] = s
	}

	rules := []func(signals map[models.SignalKey]models.Signal, scores map[models.ScoreType]models.Score, in Input) *candidate{
		waitingRule,
		scopeCreepRule,
		deliveryRiskRule,
		financeRiskRule,
		upsellRule,
	}

	var recs []models.Recommendation
	for _, rule := range rules {
		cand := rule(signals, scores, in)
		if cand == nil || len(cand.evidence) == 0 {
			continue
		}
		rec, err := cand.build(ctx, in, scores)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority > recs[j].Priority
	})
	return recs, nil
}

// candidate is a triggered rule before template generation.
type candidate struct {
	category  models.RecommendationCategory
	priority  int
	title     string
	rationale string
	template  string
	vars      map[string]string
	drivers   map[string]float64
	evidence  []models.EvidenceRef
	snapshot  map[string]float64
}

func (c *candidate) build(ctx context.Context, in Input, scores map[models.ScoreType]models.Score) (models.Recommendation, error) {
	var template string
	if in.Templates != nil {
		generated, err := in.Templates(ctx, c.template, c.vars)
		if err != nil {
			return models.Recommendation{}, fmt.Errorf("generating %s template: %w", c.template, err)
		}
		template = generated
	} else {
		template = RenderLocal(c.template, c.vars)
	}

	scoreSnapshot := make(map[string]float64, len(scores))
	for scoreType, score := range scores {
		scoreSnapshot[string(scoreType)] = score.Score
	}

	return models.Recommendation{
		Category:       c.category,
		Priority:       c.priority,
		Title:          c.title,
		Rationale:      c.rationale,
		EvidenceRefs:   c.evidence,
		TemplateKey:    c.template,
		Template:       template,
		SignalSnapshot: c.snapshot,
		ScoreSnapshot:  scoreSnapshot,
		DedupeKey:      dedupeKey(c.category, c.drivers),
	}, nil
}

func waitingRule(signals map[models.SignalKey]models.Signal, _ map[models.ScoreType]models.Score, in Input) *candidate {
	days := signals[models.SignalWaitingOnClientDays].Value
	if days < 2 {
		return nil
	}

	priority := 4
	if days >= 4 || in.State.Stage.ApprovalPending {
		priority = 5
	}

	return &candidate{
		category:  models.RecWaitingOnClient,
		priority:  priority,
		title:     "Client response needed",
		rationale: fmt.Sprintf("The client has been silent for %.1f days since the last team message.", days),
		template:  models.TemplateWaiting,
		vars: map[string]string{
			"days":       formatNumber(days),
			"stage_name": in.State.Stage.Name,
		},
		drivers: map[string]float64{
			"days":             quantize(days),
			"approval_pending": boolDriver(in.State.Stage.ApprovalPending),
		},
		evidence: models.DedupeEvidence(recEvidenceCap,
			signals[models.SignalWaitingOnClientDays].EvidenceRefs,
			signals[models.SignalResponseTimeAvg].EvidenceRefs,
		),
		snapshot: map[string]float64{
			string(models.SignalWaitingOnClientDays): days,
		},
	}
}

func scopeCreepRule(signals map[models.SignalKey]models.Signal, _ map[models.ScoreType]models.Score, in Input) *candidate {
	rate := signals[models.SignalScopeCreepRate].Value
	requests7d := countSince(in.State.Scope.Requests, in.Now.AddDate(0, 0, -7))
	if rate < 0.2 && requests7d < 2 {
		return nil
	}

	priority := 4
	if rate >= 0.35 || requests7d >= 3 {
		priority = 5
	}

	return &candidate{
		category: models.RecScopeCreep,
		priority: priority,
		title:    "Scope creep: formalize a change request",
		rationale: fmt.Sprintf("%d scope-change requests in the last 7 days (%.0f%% of client requests).",
			requests7d, rate*100),
		template: models.TemplateScopeCreep,
		vars: map[string]string{
			"requests_7d": strconv.Itoa(requests7d),
			"rate":        formatNumber(rate),
		},
		drivers: map[string]float64{
			"rate":        quantize(rate),
			"requests_7d": float64(requests7d),
		},
		evidence: models.DedupeEvidence(recEvidenceCap,
			signals[models.SignalScopeCreepRate].EvidenceRefs,
		),
		snapshot: map[string]float64{
			string(models.SignalScopeCreepRate): rate,
		},
	}
}

func deliveryRiskRule(signals map[models.SignalKey]models.Signal, _ map[models.ScoreType]models.Score, in Input) *candidate {
	openBlockers := len(in.State.Blockers.Open)
	blockersAge := signals[models.SignalBlockersAge].Value
	stageOverdue := signals[models.SignalStageOverdue].Value

	blockerCondition := openBlockers > 3 && blockersAge > 5
	if !blockerCondition && stageOverdue <= 1 {
		return nil
	}

	priority := 4
	if blockerCondition {
		priority = 5
	}

	return &candidate{
		category: models.RecDeliveryRisk,
		priority: priority,
		title:    "Delivery at risk",
		rationale: fmt.Sprintf("%d open blockers (avg age %.1f days), stage %.1f days overdue.",
			openBlockers, blockersAge, stageOverdue),
		template: models.TemplateDelivery,
		vars: map[string]string{
			"open_blockers": strconv.Itoa(openBlockers),
			"blockers_age":  formatNumber(blockersAge),
			"stage_overdue": formatNumber(stageOverdue),
			"stage_name":    in.State.Stage.Name,
		},
		drivers: map[string]float64{
			"open_blockers": float64(openBlockers),
			"blockers_age":  quantize(blockersAge),
			"stage_overdue": quantize(stageOverdue),
		},
		evidence: models.DedupeEvidence(recEvidenceCap,
			signals[models.SignalBlockersAge].EvidenceRefs,
			signals[models.SignalStageOverdue].EvidenceRefs,
		),
		snapshot: map[string]float64{
			string(models.SignalBlockersAge):  blockersAge,
			string(models.SignalStageOverdue): stageOverdue,
		},
	}
}

func financeRiskRule(signals map[models.SignalKey]models.Signal, _ map[models.ScoreType]models.Score, in Input) *candidate {
	burn := signals[models.SignalBudgetBurnRate].Value
	margin := signals[models.SignalMarginRisk].Value
	if burn <= 1.1 && margin < 0.25 {
		return nil
	}

	priority := 4
	if burn >= 1.2 || margin >= 0.4 {
		priority = 5
	}

	return &candidate{
		category: models.RecFinanceRisk,
		priority: priority,
		title:    "Budget and margin need attention",
		rationale: fmt.Sprintf("Budget burn at %.0f%% of plan, margin risk %.2f.",
			burn*100, margin),
		template: models.TemplateFinance,
		vars: map[string]string{
			"burn_rate":   formatNumber(burn),
			"margin_risk": formatNumber(margin),
		},
		drivers: map[string]float64{
			"burn_rate":   quantize(burn),
			"margin_risk": quantize(margin),
		},
		evidence: models.DedupeEvidence(recEvidenceCap,
			signals[models.SignalBudgetBurnRate].EvidenceRefs,
			signals[models.SignalMarginRisk].EvidenceRefs,
		),
		snapshot: map[string]float64{
			string(models.SignalBudgetBurnRate): burn,
			string(models.SignalMarginRisk):     margin,
		},
	}
}

func upsellRule(signals map[models.SignalKey]models.Signal, scores map[models.ScoreType]models.Score, in Input) *candidate {
	upsell := scores[models.ScoreUpsellLikelihood].Score
	needs7d := countSince(in.State.Needs.Times, in.Now.AddDate(0, 0, -7))
	if upsell < 65 || needs7d == 0 {
		return nil
	}

	priority := 4
	if upsell >= 80 {
		priority = 5
	}

	return &candidate{
		category: models.RecUpsellOpportunity,
		priority: priority,
		title:    "Upsell opportunity detected",
		rationale: fmt.Sprintf("Upsell likelihood at %.0f with %d client needs detected this week.",
			upsell, needs7d),
		template: models.TemplateUpsell,
		vars: map[string]string{
			"score":    formatNumber(upsell),
			"needs_7d": strconv.Itoa(needs7d),
		},
		drivers: map[string]float64{
			"score":    quantize(upsell),
			"needs_7d": float64(needs7d),
		},
		evidence: models.DedupeEvidence(recEvidenceCap,
			in.State.Needs.Evidence,
			signals[models.SignalScopeCreepRate].EvidenceRefs,
		),
		snapshot: map[string]float64{
			string(models.SignalScopeCreepRate): signals[models.SignalScopeCreepRate].Value,
		},
	}
}

// dedupeKey hashes the category and quantized driver values. It never
// includes wall-clock time, so repeated runs over unchanged inputs produce
// the same key.
func dedupeKey(category models.RecommendationCategory, drivers map[string]float64) string {
	keys := make([]string, 0, len(drivers))
	for key := range drivers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(category))
	for _, key := range keys {
		fmt.Fprintf(h, "|%s=%s", key, strconv.FormatFloat(drivers[key], 'f', 2, 64))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// quantize rounds a driver to two decimals so float jitter cannot change
// the dedupe key.
func quantize(v float64) float64 {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return rounded
}

func boolDriver(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
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
