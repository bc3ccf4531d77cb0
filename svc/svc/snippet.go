// Package svc holds the snippet store: the single authority for snippet
// creation, visibility and authorized removal. Everything else in the
// process (HTTP handlers, caches, the reclaimer) goes through or around it,
// never past it.
package svc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"snipvault/cfg"
	"snipvault/metrics"
	"snipvault/pkg/crypt"
	"snipvault/pkg/domain"
	"snipvault/svc/cache"
	"snipvault/svc/db"
	"snipvault/svc/util"
)

// Repository is the persistence contract the store is written against. Any
// engine offering per-record atomic put/get/delete plus the two predicate
// scans satisfies it. Lookups return records regardless of expiry; logical
// expiry is the store's concern, not the repository's.
type Repository interface {
	Put(ctx context.Context, sn *domain.Snippet) error
	GetByID(ctx context.Context, id string) (*domain.Snippet, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Snippet, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type Snippets struct {
	repo   Repository
	lru    *cache.LRU
	rdb    *db.Redis
	cipher *crypt.Cipher
	cfg    *cfg.Cfg
	group  singleflight.Group
	now    func() time.Time
}

func NewSnippets(repo Repository, lru *cache.LRU, rdb *db.Redis, cipher *crypt.Cipher, c *cfg.Cfg) *Snippets {
	if repo == nil || lru == nil || cipher == nil || c == nil {
		panic("snippet service: nil dependency (repo, lru, cipher, or cfg)")
	}
	return &Snippets{
		repo:   repo,
		lru:    lru,
		rdb:    rdb,
		cipher: cipher,
		cfg:    c,
		now:    time.Now,
	}
}

// Create encrypts and persists a new snippet. The returned record carries
// the encrypted content only; the submitted plaintext is not echoed back.
// Out-of-range TTLs are silently normalized, empty content is rejected.
func (s *Snippets) Create(ctx context.Context, params domain.CreateParams) (*domain.Snippet, error) {
	if params.Content == "" {
		return nil, domain.ErrContentRequired
	}
	if int64(len(params.Content)) > s.cfg.MaxSnippetSize {
		return nil, domain.ErrSnippetTooLarge
	}
	id, err := util.GenID(func(id string) (bool, error) {
		return s.repo.Exists(ctx, id)
	})
	if err != nil {
		return nil, errors.Wrap(err, "gen id")
	}
	encrypted, err := s.cipher.Encrypt([]byte(params.Content))
	if err != nil {
		return nil, errors.Wrap(err, "encrypt content")
	}
	metrics.EncryptionOps.WithLabelValues("encrypt").Inc()

	now := s.now()
	ttl := domain.ClampExpiry(params.ExpiryMinutes)
	sn := &domain.Snippet{
		ID:               id,
		Title:            params.Title,
		Language:         params.Language,
		EncryptedContent: encrypted,
		OwnerID:          params.OwnerID,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
	if err := s.repo.Put(ctx, sn); err != nil {
		return nil, errors.Wrap(err, "put snippet")
	}
	s.lru.Set(ctx, sn, ttl)
	if s.rdb != nil {
		if err := s.rdb.CacheSnippet(ctx, sn, ttl); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to cache in Redis")
		}
	}
	metrics.SnippetCreated.Inc()
	return sn, nil
}

// Get returns the snippet with decrypted content, or ErrSnippetNotFound.
// An expired record is indistinguishable from a missing one. Reads never
// mutate the record: expiry here is a comparison, physical removal is the
// reclaimer's job.
func (s *Snippets) Get(ctx context.Context, id string) (*domain.Snippet, error) {
	if sn := s.lru.Get(ctx, id); sn != nil {
		if sn.Expired(s.now()) {
			s.evict(ctx, id)
			return nil, domain.ErrSnippetNotFound
		}
		metrics.CacheHits.Inc()
		return s.opened(sn)
	}
	if s.rdb != nil {
		if sn, err := s.rdb.GetSnippet(ctx, id); err == nil && sn != nil {
			if sn.Expired(s.now()) {
				s.evict(ctx, id)
				return nil, domain.ErrSnippetNotFound
			}
			metrics.CacheHits.Inc()
			s.lru.Set(ctx, sn, time.Until(sn.ExpiresAt))
			return s.opened(sn)
		}
	}
	metrics.CacheMisses.Inc()
	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSnippetNotFound) {
			return nil, domain.ErrSnippetNotFound
		}
		return nil, errors.Wrap(err, "get snippet")
	}
	sn := v.(*domain.Snippet)
	if sn.Expired(s.now()) {
		return nil, domain.ErrSnippetNotFound
	}
	ttl := time.Until(sn.ExpiresAt)
	s.lru.Set(ctx, sn, ttl)
	if s.rdb != nil {
		if err := s.rdb.CacheSnippet(ctx, sn, ttl); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to cache in Redis")
		}
	}
	return s.opened(sn)
}

// opened copies the record and substitutes plaintext for the stored
// ciphertext. The cached original is never mutated.
func (s *Snippets) opened(sn *domain.Snippet) (*domain.Snippet, error) {
	plaintext, err := s.cipher.Decrypt(sn.EncryptedContent)
	if err != nil {
		// Corrupted ciphertext or key mismatch. Surfaced as an opaque
		// internal failure, never as not-found.
		return nil, errors.Wrap(err, "decrypt content")
	}
	metrics.EncryptionOps.WithLabelValues("decrypt").Inc()
	out := *sn
	out.Content = string(plaintext)
	metrics.SnippetRetrieved.Inc()
	return &out, nil
}

// ListByOwner returns the owner's snippets newest first, content still
// encrypted. Records past expiry but not yet reclaimed are included.
// An empty owner has no history by construction.
func (s *Snippets) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Snippet, error) {
	if ownerID == "" {
		return nil, nil
	}
	out, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list by owner")
	}
	return out, nil
}

// Delete removes the snippet if ownerID matches the record's owner. The
// false return collapses not-found, anonymous record, and owner mismatch
// into one outcome so a non-owner learns nothing about the id.
func (s *Snippets) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	if ownerID == "" {
		return false, nil
	}
	sn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSnippetNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "load snippet for delete")
	}
	if sn.OwnerID == "" || sn.OwnerID != ownerID {
		return false, nil
	}
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "delete snippet")
	}
	s.evict(ctx, id)
	if deleted {
		metrics.SnippetDeleted.Inc()
	}
	return deleted, nil
}

func (s *Snippets) evict(ctx context.Context, id string) {
	s.lru.Delete(id)
	if s.rdb != nil {
		if err := s.rdb.Delete(ctx, id); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to delete from redis")
		}
	}
}
