package models

import (
	"strings"
	"time"
)

// EventType identifies the kind of domain event emitted by connector
// ingestion (chat, issue tracker, CRM sync) and internal producers.
type EventType string

const (
	EventMessageSent          EventType = "message_sent"
	EventTaskBlocked          EventType = "task_blocked"
	EventBlockerResolved      EventType = "blocker_resolved"
	EventStageStarted         EventType = "stage_started"
	EventStageCompleted       EventType = "stage_completed"
	EventAgreementCreated     EventType = "agreement_created"
	EventApprovalApproved     EventType = "approval_approved"
	EventScopeChangeRequested EventType = "scope_change_requested"
	EventFinanceEntryCreated  EventType = "finance_entry_created"
	EventNeedDetected         EventType = "need_detected"
	EventDecisionMade         EventType = "decision_made"
	EventOfferCreated         EventType = "offer_created"
	EventTaskCreated          EventType = "task_created"
)

// Normalize returns the lowercased, trimmed form used for dispatch.
// Producers are not guaranteed to agree on casing.
func (t EventType) Normalize() EventType {
	return EventType(strings.ToLower(strings.TrimSpace(string(t))))
}

// Event is an immutable domain event. Ordering is not guaranteed by the
// producer; the signal engine establishes a canonical order before folding.
type Event struct {
	// ID is the event identifier. Numeric IDs order the fold; non-numeric
	// IDs fall back to timestamp ordering.
	ID           string         `json:"id" yaml:"id"`
	Type         EventType      `json:"event_type" yaml:"event_type"`
	OccurredAt   time.Time      `json:"event_ts" yaml:"event_ts"`
	Payload      map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	EvidenceRefs []EvidenceRef  `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"`
}

// EvidenceRef points at a concrete source artifact (message, work item,
// CRM record, document, or generic table row) that justifies a derived
// signal or recommendation. A ref with no identifying field is discarded.
type EvidenceRef struct {
	MessageID   string `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	WorkItemID  string `json:"work_item_id,omitempty" yaml:"work_item_id,omitempty"`
	CRMRecordID string `json:"crm_record_id,omitempty" yaml:"crm_record_id,omitempty"`
	DocURL      string `json:"doc_url,omitempty" yaml:"doc_url,omitempty"`
	RAGChunkID  string `json:"rag_chunk_id,omitempty" yaml:"rag_chunk_id,omitempty"`
	SourceTable string `json:"source_table,omitempty" yaml:"source_table,omitempty"`
	SourcePK    string `json:"source_pk,omitempty" yaml:"source_pk,omitempty"`
}

// IsZero reports whether the ref carries no identifying field.
func (r EvidenceRef) IsZero() bool {
	return r == EvidenceRef{}
}

// Key returns the structural identity used for deduplication.
func (r EvidenceRef) Key() string {
	return strings.Join([]string{
		r.MessageID, r.WorkItemID, r.CRMRecordID,
		r.DocURL, r.RAGChunkID, r.SourceTable, r.SourcePK,
	}, "|")
}
