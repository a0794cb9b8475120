package settings

import (
	"path/filepath"
	"testing"

	"devscope/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "devscope.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIdentityRoundTrip(t *testing.T) {
	store := openTestStore(t)

	// Fresh store yields a zero identity, not an error.
	identity, err := store.LoadIdentity()
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if identity != (models.Identity{}) {
		t.Errorf("expected zero identity, got %+v", identity)
	}

	want := models.Identity{UserID: "dev1", DisplayName: "Dev One", OrgID: "NYU-Team"}
	if err := store.SaveIdentity(want); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}
	got, err := store.LoadIdentity()
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}

	// Saving again replaces the single row.
	want.DisplayName = "D. One"
	if err := store.SaveIdentity(want); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}
	got, _ = store.LoadIdentity()
	if got.DisplayName != "D. One" {
		t.Errorf("DisplayName = %q after upsert", got.DisplayName)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)

	sessions := []SavedSession{
		{ID: "s1", ProjectName: "alpha", RepoPath: "/repo/a", Goal: "ship"},
		{ID: "s2", ProjectName: "beta"},
	}
	for _, s := range sessions {
		if err := store.SaveSession(s); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	got, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	for _, s := range got {
		if s.CreatedAt.IsZero() {
			t.Error("CreatedAt should be backfilled on save")
		}
	}

	// Upsert keeps a single row per id.
	if err := store.SaveSession(SavedSession{ID: "s1", ProjectName: "alpha2"}); err != nil {
		t.Fatalf("SaveSession upsert: %v", err)
	}
	got, _ = store.ListSessions()
	if len(got) != 2 {
		t.Fatalf("upsert created a duplicate: %d rows", len(got))
	}

	if err := store.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := store.DeleteSession("missing"); err != nil {
		t.Fatalf("deleting an unknown id should succeed: %v", err)
	}
	got, _ = store.ListSessions()
	if len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("unexpected sessions after delete: %+v", got)
	}
}
