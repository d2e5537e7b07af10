package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/domusnext/eval/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func seedCase(t *testing.T, store *SQLiteStore, contextID, caseID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	if existing, _ := store.GetContext(ctx, contextID); existing == nil {
		if err := store.CreateContext(ctx, &ContextRecord{
			ID: contextID, Name: "ctx", ParamsJSON: "{}", HeadersJSON: "{}",
			OrderIndex: at.UnixMilli(), CreatedAt: at, UpdatedAt: at,
		}); err != nil {
			t.Fatalf("CreateContext failed: %v", err)
		}
	}
	if err := store.CreateCase(ctx, &CaseRecord{
		ID: caseID, ContextID: contextID, Title: "case",
		UserMessageJSON: `{"role":"user","content":""}`, MetadataJSON: "{}",
		OrderIndex: at.UnixMilli(), CreatedAt: at, UpdatedAt: at,
	}); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
}

func TestSQLiteStoreVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	base := time.UnixMilli(1_700_000_000_000)
	notes := "first"
	for i, id := range []string{"v1", "v2"} {
		at := base.Add(time.Duration(i) * time.Second)
		if err := store.CreateVersion(ctx, &domain.Version{ID: id, Label: id, Notes: &notes, CreatedAt: at, UpdatedAt: at}); err != nil {
			t.Fatalf("CreateVersion failed: %v", err)
		}
	}

	versions, err := store.ListVersions(ctx)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 2 || versions[0].ID != "v2" {
		t.Fatalf("expected newest version first, got %+v", versions)
	}

	patch := domain.VersionPatch{Label: domain.Cleared[string](), Notes: domain.Cleared[string]()}
	if err := store.UpdateVersion(ctx, "v1", patch, base.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateVersion failed: %v", err)
	}
	got, err := store.GetVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if got.Label != "v1" {
		t.Fatalf("null label should be ignored, got %q", got.Label)
	}
	if got.Notes != nil {
		t.Fatalf("expected notes cleared, got %q", *got.Notes)
	}
	if !got.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected updated_at bumped, got %v", got.UpdatedAt)
	}

	missing, err := store.GetVersion(ctx, "nope")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing version")
	}
}

func TestSQLiteStoreCasesOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	base := time.UnixMilli(1_700_000_000_000)
	seedCase(t, store, "c1", "k2", base.Add(2*time.Millisecond))
	seedCase(t, store, "c1", "k1", base.Add(time.Millisecond))
	seedCase(t, store, "c2", "k3", base.Add(3*time.Millisecond))

	cases, err := store.ListCasesByContexts(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("ListCasesByContexts failed: %v", err)
	}
	if len(cases) != 2 || cases[0].ID != "k1" || cases[1].ID != "k2" {
		t.Fatalf("unexpected cases: %+v", cases)
	}

	none, err := store.ListCasesByContexts(ctx, nil)
	if err != nil {
		t.Fatalf("ListCasesByContexts failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no cases for empty filter")
	}
}

func TestSQLiteStoreReplaceResults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	now := time.UnixMilli(1_700_000_000_000)
	if err := store.CreateVersion(ctx, &domain.Version{ID: "v1", Label: "v1", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	seedCase(t, store, "c1", "k1", now)
	seedCase(t, store, "c1", "k2", now)

	result := func(id, runID, caseID string) domain.Result {
		latency := int64(10)
		started := now
		return domain.Result{
			ID: id, VersionID: "v1", ContextID: "c1", CaseID: caseID, RunID: runID,
			Status: domain.ResultStatusSucceeded, RequestPayload: json.RawMessage(`{}`),
			LatencyMs: &latency, StartedAt: &started, CreatedAt: now,
		}
	}

	if err := store.ReplaceResults(ctx, "v1", []domain.Result{result("r1", "run1", "k1"), result("r2", "run1", "k2")}); err != nil {
		t.Fatalf("ReplaceResults failed: %v", err)
	}
	if err := store.ReplaceResults(ctx, "v1", []domain.Result{result("r3", "run2", "k1")}); err != nil {
		t.Fatalf("ReplaceResults failed: %v", err)
	}

	all, err := store.ListResults(ctx, []string{"v1"}, []string{"k1", "k2"})
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 results, got %d", len(all))
	}

	run1, err := store.ListResultsByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("ListResultsByRun failed: %v", err)
	}
	if len(run1) != 1 || run1[0].CaseID != "k2" {
		t.Fatalf("expected only k2 left from run1, got %+v", run1)
	}

	updated := run1[0]
	updated.Status = domain.ResultStatusFailed
	msg := "boom"
	updated.Error = &msg
	if err := store.UpdateResult(ctx, &updated); err != nil {
		t.Fatalf("UpdateResult failed: %v", err)
	}
	run1, _ = store.ListResultsByRun(ctx, "run1")
	if run1[0].Status != domain.ResultStatusFailed || run1[0].Error == nil || *run1[0].Error != "boom" {
		t.Fatalf("unexpected updated result: %+v", run1[0])
	}

	if err := store.DeleteCase(ctx, "k1"); err != nil {
		t.Fatalf("DeleteCase failed: %v", err)
	}
	left, _ := store.ListResults(ctx, []string{"v1"}, []string{"k1", "k2"})
	if len(left) != 1 || left[0].CaseID != "k2" {
		t.Fatalf("expected case delete to cascade, got %+v", left)
	}
}

func TestSQLiteStoreUpdateCaseClearsAssistant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	now := time.UnixMilli(1_700_000_000_000)
	seedCase(t, store, "c1", "k1", now)

	update := CaseUpdate{AssistantMessageJSON: domain.Present(`{"role":"assistant","content":[]}`)}
	if err := store.UpdateCase(ctx, "k1", update, now); err != nil {
		t.Fatalf("UpdateCase failed: %v", err)
	}
	got, _ := store.GetCase(ctx, "k1")
	if got.AssistantMessageJSON == nil {
		t.Fatalf("expected assistant message set")
	}

	update = CaseUpdate{AssistantMessageJSON: domain.Cleared[string](), UserMessageJSON: domain.Cleared[string]()}
	if err := store.UpdateCase(ctx, "k1", update, now); err != nil {
		t.Fatalf("UpdateCase failed: %v", err)
	}
	got, _ = store.GetCase(ctx, "k1")
	if got.AssistantMessageJSON != nil {
		t.Fatalf("expected assistant message cleared")
	}
	if got.UserMessageJSON == "" {
		t.Fatalf("user message must survive a null update")
	}
}

func TestSQLiteStoreFileCascadeAcrossConnections(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "eval.db") + "?mode=rwc&_journal_mode=WAL"
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	now := time.UnixMilli(1_700_000_000_000)
	seedCase(t, store, "c1", "k1", now)

	// Pin the existing connection so the delete runs on a fresh one.
	held, err := store.db.Conn(ctx)
	if err != nil {
		t.Fatalf("failed to hold connection: %v", err)
	}
	defer held.Close()

	var enabled int
	if err := held.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("failed to read pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("expected foreign keys on pooled connection, got %d", enabled)
	}

	if err := store.DeleteContext(ctx, "c1"); err != nil {
		t.Fatalf("DeleteContext failed: %v", err)
	}
	got, err := store.GetCase(ctx, "k1")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected case k1 removed with context c1")
	}

	var fresh int
	if err := store.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fresh); err != nil {
		t.Fatalf("failed to read pragma: %v", err)
	}
	if fresh != 1 {
		t.Fatalf("expected foreign keys on new connection, got %d", fresh)
	}
}
