package svc

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"snipvault/pkg/domain"
)

func seedSnippet(t *testing.T, repo *memRepo, id string, expiresAt time.Time) {
	t.Helper()
	err := repo.Put(context.Background(), &domain.Snippet{
		ID:               id,
		EncryptedContent: []byte{0x01},
		CreatedAt:        expiresAt.Add(-time.Hour),
		ExpiresAt:        expiresAt,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	repo := newMemRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSnippet(t, repo, "expired-1", base.Add(-time.Minute))
	seedSnippet(t, repo, "expired-2", base)
	seedSnippet(t, repo, "live-1", base.Add(time.Hour))

	r := NewReclaimer(repo, time.Hour)
	r.now = func() time.Time { return base }

	deleted, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, ok := repo.snippets["live-1"]; !ok {
		t.Error("sweep removed a live snippet")
	}
	if _, ok := repo.snippets["expired-1"]; ok {
		t.Error("sweep left an expired snippet behind")
	}
}

func TestSweep_NothingExpired(t *testing.T) {
	repo := newMemRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSnippet(t, repo, "live-1", base.Add(time.Hour))

	r := NewReclaimer(repo, time.Hour)
	r.now = func() time.Time { return base }

	deleted, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestSweep_Idempotent(t *testing.T) {
	repo := newMemRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSnippet(t, repo, "expired-1", base)

	r := NewReclaimer(repo, time.Hour)
	r.now = func() time.Time { return base }

	if deleted, _ := r.Sweep(context.Background()); deleted != 1 {
		t.Fatalf("first sweep deleted %d, want 1", deleted)
	}
	if deleted, _ := r.Sweep(context.Background()); deleted != 0 {
		t.Fatalf("second sweep deleted %d, want 0", deleted)
	}
}

type failingRepo struct {
	*memRepo
	fail bool
}

func (f *failingRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if f.fail {
		return 0, errors.New("locked")
	}
	return f.memRepo.DeleteExpired(ctx, now)
}

func TestSweep_ErrorLeavesBacklogForNextPass(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &failingRepo{memRepo: newMemRepo(), fail: true}
	seedSnippet(t, repo.memRepo, "expired-1", base)

	r := NewReclaimer(repo, time.Hour)
	r.now = func() time.Time { return base }

	if _, err := r.Sweep(context.Background()); err == nil {
		t.Fatal("expected sweep error")
	}
	if _, ok := repo.snippets["expired-1"]; !ok {
		t.Fatal("failed sweep must not lose the record")
	}

	// The next pass succeeds and catches up.
	repo.fail = false
	deleted, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestReclaimer_StartTwice(t *testing.T) {
	r := NewReclaimer(newMemRepo(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatal("second Start should fail while the loop is running")
	}
}
