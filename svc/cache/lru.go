package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"snipvault/pkg/domain"
)

// LRU holds snippet records in their at-rest (encrypted) form. Entries carry
// their own expiry so a cache hit can never outlive the snippet's TTL.
type LRU struct {
	c  *lru.Cache[string, item]
	mu sync.Mutex
}
type item struct {
	snippet *domain.Snippet
	exp     time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(ctx context.Context, id string) *domain.Snippet {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(id)
	if !ok {
		return nil
	}
	if time.Now().After(it.exp) {
		l.c.Remove(id)
		return nil
	}
	return it.snippet
}

func (l *LRU) Set(ctx context.Context, sn *domain.Snippet, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(sn.ID, item{
		snippet: sn,
		exp:     time.Now().Add(ttl),
	})
}

func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(id)
}
