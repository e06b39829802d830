package persistence

import (
	"errors"
	"testing"

	"github.com/tlahtinen/governor/pkg/api"
)

func TestMemoryStoreSaveGetUpdate(t *testing.T) {
	store := NewMemoryStore()

	rec := &Record{
		ID:       "proc-1",
		Kind:     "SWITCH_THROTTLE",
		Status:   api.StatusPending,
		Snapshot: []byte("snap"),
	}

	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get("proc-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kind != rec.Kind {
		t.Fatalf("expected Kind %q, got %q", rec.Kind, got.Kind)
	}
	if string(got.Snapshot) != "snap" {
		t.Fatalf("expected Snapshot %q, got %q", "snap", got.Snapshot)
	}

	rec.Status = api.StatusSucceeded
	if err := store.Update(rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err = store.Get("proc-1")
	if err != nil {
		t.Fatalf("Get after Update failed: %v", err)
	}
	if got.Status != api.StatusSucceeded {
		t.Fatalf("expected Status %q, got %q", api.StatusSucceeded, got.Status)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get("nope")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	store := NewMemoryStore()

	err := store.Update(&Record{ID: "nope"})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()

	recs := []*Record{
		{ID: "a", Kind: "SWITCH_THROTTLE", Status: api.StatusPending},
		{ID: "b", Kind: "SWITCH_THROTTLE", Status: api.StatusWaiting},
		{ID: "c", Kind: "OTHER", Status: api.StatusPending},
	}
	for _, rec := range recs {
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	pending, err := store.List(Filter{Status: api.StatusPending})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending records, got %d", len(pending))
	}

	both, err := store.List(Filter{Kind: "SWITCH_THROTTLE", Status: api.StatusWaiting})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(both) != 1 || both[0].ID != "b" {
		t.Fatalf("expected only record b, got %v", both)
	}
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Save(&Record{ID: "a", Kind: "K", Status: api.StatusPending}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("a"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := store.Get("a"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after delete, got %v", err)
	}
}
