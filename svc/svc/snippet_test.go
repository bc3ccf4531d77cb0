package svc

import (
	"bytes"
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"snipvault/cfg"
	"snipvault/pkg/crypt"
	"snipvault/pkg/domain"
	"snipvault/svc/cache"
)

// memRepo is an in-memory Repository for exercising the store without
// SQLite. It mirrors the real repository's contract: lookups ignore expiry.
type memRepo struct {
	mu       sync.Mutex
	snippets map[string]*domain.Snippet
	putErr   error
	getErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{snippets: make(map[string]*domain.Snippet)}
}

func (m *memRepo) Put(ctx context.Context, sn *domain.Snippet) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sn
	m.snippets[sn.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.Snippet, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sn, ok := m.snippets[id]
	if !ok {
		return nil, domain.ErrSnippetNotFound
	}
	cp := *sn
	return &cp, nil
}

func (m *memRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snippets[id]; !ok {
		return false, nil
	}
	delete(m.snippets, id)
	return true, nil
}

func (m *memRepo) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Snippet
	for _, sn := range m.snippets {
		if sn.OwnerID == ownerID {
			cp := *sn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, sn := range m.snippets {
		if !now.Before(sn.ExpiresAt) {
			delete(m.snippets, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memRepo) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.snippets[id]
	return ok, nil
}

func newTestSnippets(t *testing.T, repo Repository) *Snippets {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	cipher, err := crypt.New(crypt.ModeAESGCM, key)
	if err != nil {
		t.Fatal(err)
	}
	lru, err := cache.NewLRU(100)
	if err != nil {
		t.Fatal(err)
	}
	c := &cfg.Cfg{MaxSnippetSize: 64 * 1024}
	return NewSnippets(repo, lru, nil, cipher, c)
}

func TestCreateGet_RoundTrip(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	ctx := context.Background()

	content := "func main() {\n\tprintln(\"hello\")\n}\n"
	created, err := s.Create(ctx, domain.CreateParams{
		Content:  content,
		Title:    "hello",
		Language: "go",
		OwnerID:  "alice",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created snippet has empty id")
	}
	if len(created.ID) != 22 {
		t.Errorf("id length = %d, want 22", len(created.ID))
	}
	if created.Content != "" {
		t.Error("Create should not echo plaintext back")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != content {
		t.Errorf("content round trip mismatch: got %q, want %q", got.Content, content)
	}
	if got.Title != "hello" || got.Language != "go" {
		t.Errorf("metadata mismatch: title=%q language=%q", got.Title, got.Language)
	}
}

func TestCreate_EncryptedAtRest(t *testing.T) {
	repo := newMemRepo()
	s := newTestSnippets(t, repo)

	content := "super secret payload"
	created, err := s.Create(context.Background(), domain.CreateParams{Content: content})
	if err != nil {
		t.Fatal(err)
	}
	stored := repo.snippets[created.ID]
	if stored == nil {
		t.Fatal("snippet not persisted")
	}
	if bytes.Contains(stored.EncryptedContent, []byte(content)) {
		t.Error("persisted record contains plaintext")
	}
	if stored.Content != "" {
		t.Error("persisted record carries a plaintext field")
	}
}

func TestCreate_EmptyContent(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	_, err := s.Create(context.Background(), domain.CreateParams{Content: ""})
	if !errors.Is(err, domain.ErrContentRequired) {
		t.Fatalf("got %v, want ErrContentRequired", err)
	}
}

func TestCreate_TooLarge(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	big := bytes.Repeat([]byte("a"), 64*1024+1)
	_, err := s.Create(context.Background(), domain.CreateParams{Content: string(big)})
	if !errors.Is(err, domain.ErrSnippetTooLarge) {
		t.Fatalf("got %v, want ErrSnippetTooLarge", err)
	}
}

func TestCreate_ExpiryClamping(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	tests := []struct {
		name    string
		minutes int
		wantTTL time.Duration
	}{
		{"requested within range", 30, 30 * time.Minute},
		{"above cap clamps to cap", 720, 360 * time.Minute},
		{"zero falls back to default", 0, 60 * time.Minute},
		{"negative falls back to default", -10, 60 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sn, err := s.Create(context.Background(), domain.CreateParams{
				Content:       "x",
				ExpiryMinutes: tt.minutes,
			})
			if err != nil {
				t.Fatal(err)
			}
			if got := sn.ExpiresAt.Sub(sn.CreatedAt); got != tt.wantTTL {
				t.Errorf("ttl = %v, want %v", got, tt.wantTTL)
			}
			if !sn.CreatedAt.Equal(base) {
				t.Errorf("created_at = %v, want %v", sn.CreatedAt, base)
			}
		})
	}
}

func TestGet_Missing(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	_, err := s.Get(context.Background(), "nonexistent-id")
	if !errors.Is(err, domain.ErrSnippetNotFound) {
		t.Fatalf("got %v, want ErrSnippetNotFound", err)
	}
}

func TestGet_ExpiredLooksLikeMissing(t *testing.T) {
	repo := newMemRepo()
	s := newTestSnippets(t, repo)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	sn, err := s.Create(ctx, domain.CreateParams{Content: "short lived", ExpiryMinutes: 5})
	if err != nil {
		t.Fatal(err)
	}

	// Just before expiry the snippet is served.
	s.now = func() time.Time { return base.Add(5*time.Minute - time.Second) }
	if _, err := s.Get(ctx, sn.ID); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	// At and after the expiry instant it is gone, even though the record
	// still physically exists.
	s.now = func() time.Time { return base.Add(5 * time.Minute) }
	if _, err := s.Get(ctx, sn.ID); !errors.Is(err, domain.ErrSnippetNotFound) {
		t.Fatalf("Get at expiry: got %v, want ErrSnippetNotFound", err)
	}
	if _, ok := repo.snippets[sn.ID]; !ok {
		t.Error("lazy expiry must not remove the record from the repository")
	}
}

func TestDelete_Ownership(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	ctx := context.Background()

	sn, err := s.Create(ctx, domain.CreateParams{Content: "owned by alice", OwnerID: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	// A non-owner gets the same outcome as a missing id: false, no error.
	deleted, err := s.Delete(ctx, sn.ID, "bob")
	if err != nil {
		t.Fatalf("Delete as bob: %v", err)
	}
	if deleted {
		t.Fatal("non-owner must not delete the snippet")
	}
	if _, err := s.Get(ctx, sn.ID); err != nil {
		t.Fatalf("snippet should survive a non-owner delete: %v", err)
	}

	deleted, err = s.Delete(ctx, sn.ID, "alice")
	if err != nil {
		t.Fatalf("Delete as alice: %v", err)
	}
	if !deleted {
		t.Fatal("owner delete should succeed")
	}
	if _, err := s.Get(ctx, sn.ID); !errors.Is(err, domain.ErrSnippetNotFound) {
		t.Fatalf("after delete: got %v, want ErrSnippetNotFound", err)
	}
}

func TestDelete_AnonymousRecord(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	ctx := context.Background()

	sn, err := s.Create(ctx, domain.CreateParams{Content: "no owner"})
	if err != nil {
		t.Fatal(err)
	}
	// Anonymous snippets have no owner, so nobody can delete them. They
	// only die by expiry.
	for _, caller := range []string{"", "alice"} {
		deleted, err := s.Delete(ctx, sn.ID, caller)
		if err != nil {
			t.Fatalf("Delete as %q: %v", caller, err)
		}
		if deleted {
			t.Errorf("caller %q deleted an anonymous snippet", caller)
		}
	}
}

func TestDelete_MissingID(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	deleted, err := s.Delete(context.Background(), "never-existed", "alice")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted {
		t.Fatal("delete of a missing id should report false")
	}
}

func TestListByOwner(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return tick }
		sn, err := s.Create(ctx, domain.CreateParams{Content: "entry", OwnerID: "alice", ExpiryMinutes: 60})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, sn.ID)
	}
	s.now = func() time.Time { return base }
	if _, err := s.Create(ctx, domain.CreateParams{Content: "other", OwnerID: "bob"}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("list length = %d, want 3", len(list))
	}
	// Newest first.
	for i, sn := range list {
		if want := ids[len(ids)-1-i]; sn.ID != want {
			t.Errorf("list[%d].ID = %s, want %s", i, sn.ID, want)
		}
	}
	for _, sn := range list {
		if sn.Content != "" {
			t.Error("listing must not decrypt content")
		}
	}
}

func TestListByOwner_IncludesExpired(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if _, err := s.Create(ctx, domain.CreateParams{Content: "x", OwnerID: "alice", ExpiryMinutes: 5}); err != nil {
		t.Fatal(err)
	}

	// Expired but not yet reclaimed: still part of the owner's history.
	s.now = func() time.Time { return base.Add(time.Hour) }
	list, err := s.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list length = %d, want 1", len(list))
	}
}

func TestListByOwner_EmptyOwner(t *testing.T) {
	s := newTestSnippets(t, newMemRepo())
	list, err := s.ListByOwner(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("anonymous owner has no history, got %d entries", len(list))
	}
}

func TestGet_RepoFailureIsNotNotFound(t *testing.T) {
	repo := newMemRepo()
	repo.getErr = errors.New("disk on fire")
	s := newTestSnippets(t, repo)

	_, err := s.Get(context.Background(), "some-id")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrSnippetNotFound) {
		t.Fatal("infrastructure failure must not masquerade as not-found")
	}
}
