// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the opspulse pipeline as MCP tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/opspulse/opspulse/internal/pipeline"
	"github.com/opspulse/opspulse/pkg/models"
)

// Server wraps the pipeline runner and exposes it as MCP tools.
type Server struct {
	server *gomcp.Server
	runner *pipeline.Runner
}

// NewServer creates a new MCP server over the given pipeline runner.
func NewServer(runner *pipeline.Runner, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{runner: runner}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "opspulse", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type ingestEventsInput struct {
	Scope  string         `json:"scope" jsonschema:"required,the engagement scope to ingest into"`
	Events []models.Event `json:"events" jsonschema:"required,the domain events to append"`
}

type ingestEventsOutput struct {
	Ingested int    `json:"ingested"`
	Message  string `json:"message"`
}

type evaluateScopeInput struct {
	Scope string `json:"scope" jsonschema:"required,the engagement scope to evaluate"`
	At    string `json:"at,omitempty" jsonschema:"evaluation time in RFC3339 (defaults to now)"`
}

type evaluateScopeOutput struct {
	Scope           string                  `json:"scope"`
	ProcessedEvents int                     `json:"processed_events"`
	Signals         []models.Signal         `json:"signals"`
	Scores          []models.Score          `json:"scores"`
	Recommendations []models.Recommendation `json:"recommendations"`
	EvaluatedAt     string                  `json:"evaluated_at"`
}

type getSignalsInput struct {
	Scope string `json:"scope" jsonschema:"required,the engagement scope to inspect"`
	At    string `json:"at,omitempty" jsonschema:"evaluation time in RFC3339 (defaults to now)"`
}

type getSignalsOutput struct {
	Signals []models.Signal `json:"signals"`
	Count   int             `json:"count"`
}

type getScoresInput struct {
	Scope string `json:"scope" jsonschema:"required,the engagement scope to inspect"`
	At    string `json:"at,omitempty" jsonschema:"evaluation time in RFC3339 (defaults to now)"`
}

type getScoresOutput struct {
	Scores []models.Score `json:"scores"`
	Count  int            `json:"count"`
}

type getRecommendationsInput struct {
	Scope string `json:"scope" jsonschema:"required,the engagement scope to inspect"`
	At    string `json:"at,omitempty" jsonschema:"evaluation time in RFC3339 (defaults to now)"`
}

type getRecommendationsOutput struct {
	Recommendations []models.Recommendation `json:"recommendations"`
	Count           int                     `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ingest_events",
		Description: "Append domain events (messages, blockers, stages, agreements, finance entries) to a scope's event log. Events are folded into state on the next evaluate_scope call.",
	}, s.handleIngestEvents)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "evaluate_scope",
		Description: "Fold new events into the scope's signal state and return the derived signals, composite scores, and recommendations. Persists the updated state.",
	}, s.handleEvaluateScope)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_signals",
		Description: "Return the ten threshold-classified signals for a scope from its persisted state, without folding new events.",
	}, s.handleGetSignals)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_scores",
		Description: "Return the four composite scores (project_health, risk, client_value, upsell_likelihood) for a scope from its persisted state.",
	}, s.handleGetScores)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_recommendations",
		Description: "Return the current evidence-backed recommendations for a scope, recomputed from its persisted state. Each carries a deterministic dedupe key.",
	}, s.handleGetRecommendations)
}

// --- Tool handlers ---

func (s *Server) handleIngestEvents(_ context.Context, _ *gomcp.CallToolRequest, input ingestEventsInput) (*gomcp.CallToolResult, ingestEventsOutput, error) {
	if input.Scope == "" {
		return errorResult("scope is required"), ingestEventsOutput{}, nil
	}
	if len(input.Events) == 0 {
		return errorResult("events must not be empty"), ingestEventsOutput{}, nil
	}

	if err := s.runner.Ingest(input.Scope, input.Events); err != nil {
		return errorResult(fmt.Sprintf("ingesting events: %s", err)), ingestEventsOutput{}, nil
	}

	out := ingestEventsOutput{
		Ingested: len(input.Events),
		Message:  fmt.Sprintf("ingested %d event(s) into scope %s", len(input.Events), input.Scope),
	}
	return nil, out, nil
}

func (s *Server) handleEvaluateScope(ctx context.Context, _ *gomcp.CallToolRequest, input evaluateScopeInput) (*gomcp.CallToolResult, evaluateScopeOutput, error) {
	if input.Scope == "" {
		return errorResult("scope is required"), evaluateScopeOutput{}, nil
	}
	now, err := parseAt(input.At)
	if err != nil {
		return errorResult(err.Error()), evaluateScopeOutput{}, nil
	}

	result, err := s.runner.Evaluate(ctx, input.Scope, now)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating scope %s: %s", input.Scope, err)), evaluateScopeOutput{}, nil
	}

	out := evaluateScopeOutput{
		Scope:           result.Scope,
		ProcessedEvents: result.ProcessedEvents,
		Signals:         result.Signals,
		Scores:          result.Scores,
		Recommendations: result.Recommendations,
		EvaluatedAt:     result.EvaluatedAt.Format(time.RFC3339),
	}
	return nil, out, nil
}

func (s *Server) handleGetSignals(_ context.Context, _ *gomcp.CallToolRequest, input getSignalsInput) (*gomcp.CallToolResult, getSignalsOutput, error) {
	if input.Scope == "" {
		return errorResult("scope is required"), getSignalsOutput{}, nil
	}
	now, err := parseAt(input.At)
	if err != nil {
		return errorResult(err.Error()), getSignalsOutput{}, nil
	}

	signals, err := s.runner.Signals(input.Scope, now)
	if err != nil {
		return errorResult(fmt.Sprintf("getting signals for scope %s: %s", input.Scope, err)), getSignalsOutput{}, nil
	}

	return nil, getSignalsOutput{Signals: signals, Count: len(signals)}, nil
}

func (s *Server) handleGetScores(_ context.Context, _ *gomcp.CallToolRequest, input getScoresInput) (*gomcp.CallToolResult, getScoresOutput, error) {
	if input.Scope == "" {
		return errorResult("scope is required"), getScoresOutput{}, nil
	}
	now, err := parseAt(input.At)
	if err != nil {
		return errorResult(err.Error()), getScoresOutput{}, nil
	}

	scores, err := s.runner.Scores(input.Scope, now)
	if err != nil {
		return errorResult(fmt.Sprintf("getting scores for scope %s: %s", input.Scope, err)), getScoresOutput{}, nil
	}

	return nil, getScoresOutput{Scores: scores, Count: len(scores)}, nil
}

func (s *Server) handleGetRecommendations(ctx context.Context, _ *gomcp.CallToolRequest, input getRecommendationsInput) (*gomcp.CallToolResult, getRecommendationsOutput, error) {
	if input.Scope == "" {
		return errorResult("scope is required"), getRecommendationsOutput{}, nil
	}
	now, err := parseAt(input.At)
	if err != nil {
		return errorResult(err.Error()), getRecommendationsOutput{}, nil
	}

	recs, err := s.runner.Recommendations(ctx, input.Scope, now)
	if err != nil {
		return errorResult(fmt.Sprintf("getting recommendations for scope %s: %s", input.Scope, err)), getRecommendationsOutput{}, nil
	}

	return nil, getRecommendationsOutput{Recommendations: recs, Count: len(recs)}, nil
}

// --- Helpers ---

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseAt parses an optional RFC3339 evaluation time, defaulting to now.
func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing at time (want RFC3339): %s", err)
	}
	return t.UTC(), nil
}
