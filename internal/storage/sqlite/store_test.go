package sqlite

import (
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/models"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	events := []models.Event{
		{ID: "1", Type: models.EventMessageSent, OccurredAt: testNow.Add(-time.Hour),
			Payload: map[string]any{"sender_role": "client", "sentiment_score": 0.4}},
		{ID: "2", Type: models.EventTaskBlocked, OccurredAt: testNow,
			Payload:      map[string]any{"blocker_id": "BLK-1"},
			EvidenceRefs: []models.EvidenceRef{{WorkItemID: "w-1", DocURL: "https://tracker/w-1"}}},
	}
	if err := store.Append("acme-q1", events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.ReadAll("acme-q1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("insertion order not preserved: %s, %s", got[0].ID, got[1].ID)
	}
	if !got[0].OccurredAt.Equal(testNow.Add(-time.Hour)) {
		t.Errorf("timestamp not round-tripped: %v", got[0].OccurredAt)
	}
	if role, _ := got[0].Payload["sender_role"].(string); role != "client" {
		t.Errorf("payload not round-tripped: %v", got[0].Payload)
	}
	if len(got[1].EvidenceRefs) != 1 || got[1].EvidenceRefs[0].DocURL != "https://tracker/w-1" {
		t.Errorf("evidence not round-tripped: %v", got[1].EvidenceRefs)
	}
}

func TestStoreReadSince(t *testing.T) {
	store := openTestStore(t)

	events := []models.Event{
		{ID: "1", Type: models.EventMessageSent, OccurredAt: testNow},
		{ID: "2", Type: models.EventMessageSent, OccurredAt: testNow},
		{ID: "evt-external", Type: models.EventNeedDetected, OccurredAt: testNow},
		{ID: "3", Type: models.EventMessageSent, OccurredAt: testNow},
	}
	if err := store.Append("acme-q1", events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.ReadSince("acme-q1", "2")
	if err != nil {
		t.Fatalf("ReadSince: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (non-numeric IDs always included)", len(got))
	}
	if got[0].ID != "evt-external" || got[1].ID != "3" {
		t.Errorf("ReadSince(2) = %s, %s, want evt-external, 3", got[0].ID, got[1].ID)
	}
}

func TestStoreScopeIsolation(t *testing.T) {
	store := openTestStore(t)

	if err := store.Append("acme-q1", []models.Event{
		{ID: "1", Type: models.EventMessageSent, OccurredAt: testNow},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append("beta-q2", []models.Event{
		{ID: "9", Type: models.EventTaskBlocked, OccurredAt: testNow},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.ReadAll("acme-q1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("scope leak: got %v", got)
	}
}

func TestStoreRejectsBadScope(t *testing.T) {
	store := openTestStore(t)

	if err := store.Append("../escape", nil); err == nil {
		t.Fatalf("Append with path traversal succeeded, want error")
	}
	if _, err := store.ReadAll(""); err == nil {
		t.Fatalf("ReadAll with empty scope succeeded, want error")
	}
}
