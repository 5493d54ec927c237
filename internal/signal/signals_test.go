package signal

import (
	"math"
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

func signalByKey(t *testing.T, signals []models.Signal, key models.SignalKey) models.Signal {
	t.Helper()
	for _, s := range signals {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("signal %s missing from output", key)
	return models.Signal{}
}

func TestComputeSignalsZeroState(t *testing.T) {
	signals := ComputeSignals(NewState(testNow), testNow)

	if len(signals) != 10 {
		t.Fatalf("got %d signals, want 10", len(signals))
	}
	for _, s := range signals {
		if s.Value != 0 {
			t.Errorf("%s = %f on zero state, want 0", s.Key, s.Value)
		}
		if s.Status != models.SignalOK {
			t.Errorf("%s status = %s on zero state, want ok", s.Key, s.Status)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name  string
		key   models.SignalKey
		value float64
		want  models.SignalStatus
	}{
		{"waiting below warn", models.SignalWaitingOnClientDays, 1.9, models.SignalOK},
		{"waiting at warn", models.SignalWaitingOnClientDays, 2, models.SignalWarn},
		{"waiting at critical", models.SignalWaitingOnClientDays, 4, models.SignalCritical},
		{"burn ok", models.SignalBudgetBurnRate, 1.0, models.SignalOK},
		{"burn warn", models.SignalBudgetBurnRate, 1.15, models.SignalWarn},
		{"burn critical", models.SignalBudgetBurnRate, 1.25, models.SignalCritical},
		{"sentiment flat is ok", models.SignalSentimentTrend, 0, models.SignalOK},
		{"sentiment mild drop warns", models.SignalSentimentTrend, -0.15, models.SignalWarn},
		{"sentiment sharp drop critical", models.SignalSentimentTrend, -0.3, models.SignalCritical},
		{"sentiment rise is ok", models.SignalSentimentTrend, 0.2, models.SignalOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := Lookup(tt.key)
			if !ok {
				t.Fatalf("no definition for %s", tt.key)
			}
			if got := def.Status(tt.value); got != tt.want {
				t.Errorf("Status(%f) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestWaitingOnClientDays(t *testing.T) {
	team := testNow.Add(-3 * 24 * time.Hour)
	client := testNow.Add(-1 * 24 * time.Hour)

	tests := []struct {
		name   string
		client *time.Time
		team   *time.Time
		want   float64
	}{
		{"no team message", &client, nil, 0},
		{"client replied after team", &client, &team, 0},
		{"team waiting on client", nil, &team, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState(testNow)
			state.Waiting.LastClientMessageAt = tt.client
			state.Waiting.LastTeamMessageAt = tt.team

			got := signalByKey(t, ComputeSignals(state, testNow), models.SignalWaitingOnClientDays)
			if math.Abs(got.Value-tt.want) > 1e-9 {
				t.Errorf("value = %f, want %f", got.Value, tt.want)
			}
		})
	}
}

func TestWaitingOnClientWhenTeamSpokeLast(t *testing.T) {
	state := NewState(testNow)
	clientTS := testNow.Add(-5 * 24 * time.Hour)
	teamTS := testNow.Add(-2 * 24 * time.Hour)
	state.Waiting.LastClientMessageAt = &clientTS
	state.Waiting.LastTeamMessageAt = &teamTS

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalWaitingOnClientDays)
	if math.Abs(got.Value-2) > 1e-9 {
		t.Errorf("value = %f, want 2 days since last team message", got.Value)
	}
	if got.Status != models.SignalWarn {
		t.Errorf("status = %s, want warn", got.Status)
	}
}

func TestResponseTimeAvg(t *testing.T) {
	state := NewState(testNow)
	state.Response.TotalMinutes = 900
	state.Response.Samples = 3

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalResponseTimeAvg)
	if got.Value != 300 {
		t.Errorf("value = %f, want 300", got.Value)
	}
	if got.Status != models.SignalWarn {
		t.Errorf("status = %s, want warn at 300 min", got.Status)
	}
}

func TestBlockersAgeAveragesOpenBlockers(t *testing.T) {
	state := NewState(testNow)
	state.Blockers.Open["a"] = models.BlockerEntry{OpenedAt: testNow.Add(-2 * 24 * time.Hour)}
	state.Blockers.Open["b"] = models.BlockerEntry{OpenedAt: testNow.Add(-6 * 24 * time.Hour)}

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalBlockersAge)
	if math.Abs(got.Value-4) > 1e-9 {
		t.Errorf("value = %f, want 4", got.Value)
	}
}

func TestStageOverdueOnlyWhenActive(t *testing.T) {
	due := testNow.Add(-2 * 24 * time.Hour)

	state := NewState(testNow)
	state.Stage = models.StageState{Status: models.StageActive, DueAt: &due}
	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalStageOverdue)
	if math.Abs(got.Value-2) > 1e-9 {
		t.Errorf("active overdue stage: value = %f, want 2", got.Value)
	}

	state.Stage.Status = models.StageCompleted
	got = signalByKey(t, ComputeSignals(state, testNow), models.SignalStageOverdue)
	if got.Value != 0 {
		t.Errorf("completed stage: value = %f, want 0", got.Value)
	}
}

func TestScopeCreepRate(t *testing.T) {
	state := NewState(testNow)
	recent := testNow.Add(-24 * time.Hour)
	state.Scope.Requests = []time.Time{recent, recent}
	state.Scope.ClientMessages = []time.Time{recent, recent, recent, recent}

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalScopeCreepRate)
	if math.Abs(got.Value-0.5) > 1e-9 {
		t.Errorf("value = %f, want 0.5", got.Value)
	}
}

func TestScopeCreepRateZeroDenominator(t *testing.T) {
	state := NewState(testNow)
	state.Scope.Requests = []time.Time{testNow.Add(-time.Hour)}

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalScopeCreepRate)
	if got.Value != 1 {
		t.Errorf("value = %f, want 1 (denominator floors at 1)", got.Value)
	}
}

func TestBudgetBurnRate(t *testing.T) {
	tests := []struct {
		name   string
		budget float64
		cost   float64
		want   float64
	}{
		{"normal burn", 10000, 12000, 1.2},
		{"cost without budget", 0, 500, noBudgetBurnFallback},
		{"no finance data", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState(testNow)
			state.Finance.PlannedBudget = tt.budget
			state.Finance.ActualCost = tt.cost

			got := signalByKey(t, ComputeSignals(state, testNow), models.SignalBudgetBurnRate)
			if math.Abs(got.Value-tt.want) > 1e-9 {
				t.Errorf("value = %f, want %f", got.Value, tt.want)
			}
		})
	}
}

func TestMarginRisk(t *testing.T) {
	tests := []struct {
		name    string
		cost    float64
		revenue float64
		want    float64
	}{
		{"cost with no revenue", 100, 0, 1},
		{"no finance data", 0, 0, 0},
		{"healthy margin", 5000, 10000, 0}, // margin 0.5 above the 0.35 floor
		{"zero margin", 10000, 10000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState(testNow)
			state.Finance.ActualCost = tt.cost
			state.Finance.Revenue = tt.revenue

			got := signalByKey(t, ComputeSignals(state, testNow), models.SignalMarginRisk)
			if math.Abs(got.Value-tt.want) > 1e-9 {
				t.Errorf("value = %f, want %f", got.Value, tt.want)
			}
		})
	}
}

func TestActivityDrop(t *testing.T) {
	state := NewState(testNow)
	// 10 events in the previous week, 2 in the current week.
	for day := 7; day < 14; day++ {
		state.Activity.DailyCounts[dayKey(testNow.AddDate(0, 0, -day))] = 2
	}
	state.Activity.DailyCounts[dayKey(testNow)] = 2

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalActivityDrop)
	want := (14.0 - 2.0) / 14.0
	if math.Abs(got.Value-want) > 1e-9 {
		t.Errorf("value = %f, want %f", got.Value, want)
	}
}

func TestActivityDropNoHistory(t *testing.T) {
	state := NewState(testNow)
	state.Activity.DailyCounts[dayKey(testNow)] = 5

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalActivityDrop)
	if got.Value != 0 {
		t.Errorf("value = %f, want 0 when there is no previous-week baseline", got.Value)
	}
}

func TestSignalEvidenceComesFromBuckets(t *testing.T) {
	state := NewState(testNow)
	ref := models.EvidenceRef{MessageID: "m-1"}
	state.Evidence[models.SignalWaitingOnClientDays] = []models.EvidenceRef{ref}

	got := signalByKey(t, ComputeSignals(state, testNow), models.SignalWaitingOnClientDays)
	if len(got.EvidenceRefs) != 1 || got.EvidenceRefs[0] != ref {
		t.Errorf("EvidenceRefs = %v, want [%v]", got.EvidenceRefs, ref)
	}
}
