package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func signalWith(key models.SignalKey, value float64, refs ...models.EvidenceRef) models.Signal {
	return models.Signal{Key: key, Value: value, EvidenceRefs: refs}
}

func scoreWith(scoreType models.ScoreType, value float64) models.Score {
	return models.Score{Type: scoreType, Score: value}
}

func TestGenerateZeroInputsYieldsNothing(t *testing.T) {
	recs, err := Generate(context.Background(), Input{
		State: &models.SignalState{},
		Now:   testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d recommendations on zero input, want 0", len(recs))
	}
}

func TestEvidenceGateBlocksWithoutEvidence(t *testing.T) {
	// Waiting signal far past critical, but no evidence anywhere.
	recs, err := Generate(context.Background(), Input{
		Signals: []models.Signal{signalWith(models.SignalWaitingOnClientDays, 30)},
		State:   &models.SignalState{},
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d recommendations without evidence, want 0", len(recs))
	}
}

func TestWaitingRule(t *testing.T) {
	ref := models.EvidenceRef{MessageID: "m-1"}

	tests := []struct {
		name            string
		days            float64
		approvalPending bool
		wantCount       int
		wantPriority    int
	}{
		{"below threshold", 1.5, false, 0, 0},
		{"warn level", 2.5, false, 1, 4},
		{"critical days", 4.5, false, 1, 5},
		{"approval pending escalates", 2.5, true, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &models.SignalState{}
			state.Stage.ApprovalPending = tt.approvalPending

			recs, err := Generate(context.Background(), Input{
				Signals: []models.Signal{signalWith(models.SignalWaitingOnClientDays, tt.days, ref)},
				State:   state,
				Now:     testNow,
			})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if len(recs) != tt.wantCount {
				t.Fatalf("got %d recommendations, want %d", len(recs), tt.wantCount)
			}
			if tt.wantCount == 1 {
				if recs[0].Category != models.RecWaitingOnClient {
					t.Errorf("category = %s, want waiting_on_client", recs[0].Category)
				}
				if recs[0].Priority != tt.wantPriority {
					t.Errorf("priority = %d, want %d", recs[0].Priority, tt.wantPriority)
				}
				if recs[0].Template == "" {
					t.Errorf("local template was not rendered")
				}
			}
		})
	}
}

func TestScopeCreepRuleTriggersOnRequestCount(t *testing.T) {
	ref := models.EvidenceRef{WorkItemID: "w-1"}
	state := &models.SignalState{}
	state.Scope.Requests = []time.Time{
		testNow.Add(-24 * time.Hour),
		testNow.Add(-48 * time.Hour),
		testNow.Add(-72 * time.Hour),
	}

	// Rate below its threshold, but three requests this week trigger anyway.
	recs, err := Generate(context.Background(), Input{
		Signals: []models.Signal{signalWith(models.SignalScopeCreepRate, 0.1, ref)},
		State:   state,
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Category != models.RecScopeCreep {
		t.Errorf("category = %s, want scope_creep_change_request", recs[0].Category)
	}
	if recs[0].Priority != 5 {
		t.Errorf("priority = %d, want 5 for three requests in a week", recs[0].Priority)
	}
}

func TestDeliveryRiskRule(t *testing.T) {
	ref := models.EvidenceRef{WorkItemID: "blk-evidence"}
	state := &models.SignalState{Blockers: models.BlockerState{Open: map[string]models.BlockerEntry{
		"a": {}, "b": {}, "c": {}, "d": {},
	}}}

	recs, err := Generate(context.Background(), Input{
		Signals: []models.Signal{
			signalWith(models.SignalBlockersAge, 6, ref),
			signalWith(models.SignalStageOverdue, 0),
		},
		State: state,
		Now:   testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Category != models.RecDeliveryRisk {
		t.Errorf("category = %s, want delivery_risk", recs[0].Category)
	}
	if recs[0].Priority != 5 {
		t.Errorf("priority = %d, want 5 for the blocker condition", recs[0].Priority)
	}
}

func TestFinanceRiskRule(t *testing.T) {
	ref := models.EvidenceRef{SourceTable: "finance_entries", SourcePK: "17"}

	recs, err := Generate(context.Background(), Input{
		Signals: []models.Signal{
			signalWith(models.SignalBudgetBurnRate, 1.15, ref),
			signalWith(models.SignalMarginRisk, 0.1),
		},
		State: &models.SignalState{},
		Now:   testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Category != models.RecFinanceRisk {
		t.Errorf("category = %s, want finance_risk", recs[0].Category)
	}
	if recs[0].Priority != 4 {
		t.Errorf("priority = %d, want 4 below the critical cutoffs", recs[0].Priority)
	}
}

func TestUpsellRuleNeedsBothScoreAndNeeds(t *testing.T) {
	ref := models.EvidenceRef{RAGChunkID: "chunk-9"}

	state := &models.SignalState{}
	state.Needs.Times = []time.Time{testNow.Add(-24 * time.Hour)}
	state.Needs.Evidence = []models.EvidenceRef{ref}

	// High score but needs present: triggers.
	recs, err := Generate(context.Background(), Input{
		Scores: []models.Score{scoreWith(models.ScoreUpsellLikelihood, 82)},
		State:  state,
		Now:    testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Priority != 5 {
		t.Errorf("priority = %d, want 5 at score 82", recs[0].Priority)
	}

	// Same score but no needs this week: no recommendation.
	quiet := &models.SignalState{}
	quiet.Needs.Evidence = []models.EvidenceRef{ref}
	recs, err = Generate(context.Background(), Input{
		Scores: []models.Score{scoreWith(models.ScoreUpsellLikelihood, 82)},
		State:  quiet,
		Now:    testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d recommendations without recent needs, want 0", len(recs))
	}
}

func TestGenerateSortsByPriorityDescending(t *testing.T) {
	msgRef := models.EvidenceRef{MessageID: "m-1"}
	finRef := models.EvidenceRef{SourceTable: "finance_entries", SourcePK: "3"}

	recs, err := Generate(context.Background(), Input{
		Signals: []models.Signal{
			signalWith(models.SignalWaitingOnClientDays, 2.5, msgRef), // priority 4
			signalWith(models.SignalBudgetBurnRate, 1.4, finRef),      // priority 5
		},
		State: &models.SignalState{},
		Now:   testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].Priority < recs[1].Priority {
		t.Errorf("recommendations not sorted by priority: %d before %d", recs[0].Priority, recs[1].Priority)
	}
	if recs[0].Category != models.RecFinanceRisk {
		t.Errorf("first recommendation = %s, want finance_risk", recs[0].Category)
	}
}

func TestGeneratorErrorPropagates(t *testing.T) {
	boom := errors.New("template service down")
	failing := func(ctx context.Context, key string, vars map[string]string) (string, error) {
		return "", boom
	}

	_, err := Generate(context.Background(), Input{
		Signals:   []models.Signal{signalWith(models.SignalWaitingOnClientDays, 3, models.EvidenceRef{MessageID: "m"})},
		State:     &models.SignalState{},
		Now:       testNow,
		Templates: failing,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped template error", err)
	}
}

func TestExternalGeneratorOutputUsed(t *testing.T) {
	gen := func(ctx context.Context, key string, vars map[string]string) (string, error) {
		return "custom message for " + key, nil
	}

	recs, err := Generate(context.Background(), Input{
		Signals:   []models.Signal{signalWith(models.SignalWaitingOnClientDays, 3, models.EvidenceRef{MessageID: "m"})},
		State:     &models.SignalState{},
		Now:       testNow,
		Templates: gen,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Template != "custom message for WAITING" {
		t.Errorf("Template = %q, want generator output", recs[0].Template)
	}
}

func TestDedupeKeyDeterministic(t *testing.T) {
	drivers := map[string]float64{"days": 3.14159, "approval_pending": 1}

	a := dedupeKey(models.RecWaitingOnClient, drivers)
	b := dedupeKey(models.RecWaitingOnClient, map[string]float64{"approval_pending": 1, "days": 3.14159})
	if a != b {
		t.Errorf("same drivers produced different keys: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("key length = %d, want 16", len(a))
	}

	c := dedupeKey(models.RecWaitingOnClient, map[string]float64{"days": 4, "approval_pending": 1})
	if a == c {
		t.Errorf("different drivers produced the same key")
	}

	d := dedupeKey(models.RecFinanceRisk, drivers)
	if a == d {
		t.Errorf("different categories produced the same key")
	}
}

func TestDedupeKeyIgnoresJitter(t *testing.T) {
	a := dedupeKey(models.RecWaitingOnClient, map[string]float64{"days": quantize(2.10000001)})
	b := dedupeKey(models.RecWaitingOnClient, map[string]float64{"days": quantize(2.09999999)})
	if a != b {
		t.Errorf("float jitter changed the dedupe key: %s vs %s", a, b)
	}
}

func TestRenderLocal(t *testing.T) {
	msg := RenderLocal(models.TemplateWaiting, map[string]string{"days": "3.0"})
	if !strings.Contains(msg, "3.0 days") {
		t.Errorf("rendered template missing substitution: %q", msg)
	}

	if got := RenderLocal("NO_SUCH_KEY", nil); got != "" {
		t.Errorf("unknown key rendered %q, want empty", got)
	}
}

func TestEvidenceRefsDeduplicated(t *testing.T) {
	ref := models.EvidenceRef{MessageID: "m-1"}

	recs, err := Generate(context.Background(), Input{
		Signals: []models.Signal{
			// Same ref reaches the rule through both contributing signals.
			signalWith(models.SignalWaitingOnClientDays, 3, ref),
			signalWith(models.SignalResponseTimeAvg, 100, ref),
		},
		State: &models.SignalState{},
		Now:   testNow,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if len(recs[0].EvidenceRefs) != 1 {
		t.Errorf("EvidenceRefs = %d, want 1 after structural dedupe", len(recs[0].EvidenceRefs))
	}
}
