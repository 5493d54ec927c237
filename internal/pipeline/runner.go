// Package pipeline orchestrates the signal, scoring, and recommendation
// engines over the persistent stores. Runs are serialized per scope so two
// evaluations never race on the same state file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opspulse/opspulse/internal/recommend"
	"github.com/opspulse/opspulse/internal/scoring"
	"github.com/opspulse/opspulse/internal/signal"
	"github.com/opspulse/opspulse/internal/storage"
	"github.com/opspulse/opspulse/pkg/models"
)

// RunResult holds the full output of one pipeline evaluation.
type RunResult struct {
	Scope           string                  `json:"scope"`
	State           *models.SignalState     `json:"state"`
	Signals         []models.Signal         `json:"signals"`
	Scores          []models.Score          `json:"scores"`
	Recommendations []models.Recommendation `json:"recommendations"`
	ProcessedEvents int                     `json:"processed_events"`
	EvaluatedAt     time.Time               `json:"evaluated_at"`
}

// Runner wires the stores to the engines.
type Runner struct {
	events    storage.EventStore
	states    storage.StateStore
	runs      storage.RunLog
	templates recommend.TemplateGenerator
	alpha     float64

	mu     sync.Mutex
	scopes map[string]*sync.Mutex
}

// NewRunner creates a Runner. templates may be nil, in which case the
// built-in recommendation templates are used. alpha seeds the sentiment
// smoothing factor for freshly created scopes.
func NewRunner(events storage.EventStore, states storage.StateStore, runs storage.RunLog, templates recommend.TemplateGenerator, alpha float64) *Runner {
	return &Runner{
		events:    events,
		states:    states,
		runs:      runs,
		templates: templates,
		alpha:     alpha,
		scopes:    make(map[string]*sync.Mutex),
	}
}

func (r *Runner) scopeLock(scope string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.scopes[scope]
	if !ok {
		lock = &sync.Mutex{}
		r.scopes[scope] = lock
	}
	return lock
}

// Ingest appends events to the scope's event log without evaluating them.
// They are picked up by the next Evaluate run via the state cursor.
func (r *Runner) Ingest(scope string, events []models.Event) error {
	if err := storage.ValidateScope(scope); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := r.events.Append(scope, events); err != nil {
		return fmt.Errorf("appending events for scope %s: %w", scope, err)
	}
	return nil
}

// Evaluate folds any events past the scope's cursor into its state, derives
// signals, scores, and recommendations, persists the updated state, and
// records the run.
func (r *Runner) Evaluate(ctx context.Context, scope string, now time.Time) (*RunResult, error) {
	if err := storage.ValidateScope(scope); err != nil {
		return nil, err
	}

	lock := r.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	state, err := r.loadOrInitState(scope, now)
	if err != nil {
		return nil, err
	}

	events, err := r.events.ReadSince(scope, state.Cursor.LastEventID)
	if err != nil {
		return nil, fmt.Errorf("reading events for scope %s: %w", scope, err)
	}

	folded := signal.ApplyEvents(state, events, now)

	signals := signal.ComputeSignals(folded.State, now)
	scores := scoring.ComputeScores(signals, folded.State, now)

	recs, err := recommend.Generate(ctx, recommend.Input{
		Signals:   signals,
		Scores:    scores.Scores,
		State:     folded.State,
		Now:       now,
		Templates: r.templates,
	})
	if err != nil {
		return nil, fmt.Errorf("generating recommendations for scope %s: %w", scope, err)
	}

	if err := r.states.Save(scope, folded.State); err != nil {
		return nil, fmt.Errorf("saving state for scope %s: %w", scope, err)
	}

	record := storage.RunRecord{
		Time:            now,
		Scope:           scope,
		ProcessedEvents: folded.ProcessedEvents,
		Recommendations: len(recs),
	}
	if s, ok := scores.ScoreMap[models.ScoreProjectHealth]; ok {
		record.ProjectHealth = s.Score
	}
	if s, ok := scores.ScoreMap[models.ScoreRisk]; ok {
		record.Risk = s.Score
	}
	if err := r.runs.Append(record); err != nil {
		return nil, fmt.Errorf("recording run for scope %s: %w", scope, err)
	}

	return &RunResult{
		Scope:           scope,
		State:           folded.State,
		Signals:         signals,
		Scores:          scores.Scores,
		Recommendations: recs,
		ProcessedEvents: folded.ProcessedEvents,
		EvaluatedAt:     now,
	}, nil
}

// Signals derives the current signal set from the persisted state without
// folding new events or writing anything.
func (r *Runner) Signals(scope string, now time.Time) ([]models.Signal, error) {
	state, err := r.loadState(scope)
	if err != nil {
		return nil, err
	}
	return signal.ComputeSignals(state, now), nil
}

// Scores derives the current composite scores from the persisted state
// without folding new events or writing anything.
func (r *Runner) Scores(scope string, now time.Time) ([]models.Score, error) {
	state, err := r.loadState(scope)
	if err != nil {
		return nil, err
	}
	signals := signal.ComputeSignals(state, now)
	return scoring.ComputeScores(signals, state, now).Scores, nil
}

// Recommendations derives the current recommendation set from the persisted
// state without folding new events or writing anything.
func (r *Runner) Recommendations(ctx context.Context, scope string, now time.Time) ([]models.Recommendation, error) {
	state, err := r.loadState(scope)
	if err != nil {
		return nil, err
	}
	signals := signal.ComputeSignals(state, now)
	scores := scoring.ComputeScores(signals, state, now)
	return recommend.Generate(ctx, recommend.Input{
		Signals:   signals,
		Scores:    scores.Scores,
		State:     state,
		Now:       now,
		Templates: r.templates,
	})
}

// State returns the persisted state for a scope.
func (r *Runner) State(scope string) (*models.SignalState, error) {
	return r.loadState(scope)
}

// Runs returns the recorded pipeline runs for a scope, oldest first.
func (r *Runner) Runs(scope string) ([]storage.RunRecord, error) {
	return r.runs.Read(scope)
}

func (r *Runner) loadState(scope string) (*models.SignalState, error) {
	if err := storage.ValidateScope(scope); err != nil {
		return nil, err
	}
	state, err := r.states.Load(scope)
	if err != nil {
		if errors.Is(err, storage.ErrScopeNotFound) {
			return nil, fmt.Errorf("scope %s: %w", scope, storage.ErrScopeNotFound)
		}
		return nil, fmt.Errorf("loading state for scope %s: %w", scope, err)
	}
	return state, nil
}

func (r *Runner) loadOrInitState(scope string, now time.Time) (*models.SignalState, error) {
	state, err := r.states.Load(scope)
	if err != nil {
		if errors.Is(err, storage.ErrScopeNotFound) {
			fresh := signal.NewState(now)
			if r.alpha > 0 {
				fresh.Sentiment.Alpha = r.alpha
			}
			return fresh, nil
		}
		return nil, fmt.Errorf("loading state for scope %s: %w", scope, err)
	}
	return state, nil
}
