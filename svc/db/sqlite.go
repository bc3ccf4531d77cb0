package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"snipvault/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed      = 0
	circuitOpen        = 1
	circuitHalfOpen    = 2
	maxFailures        = 5
	cooldownSeconds    = 30
	minResponseTime    = 50 * time.Millisecond
	responseTimeJitter = 20 * time.Millisecond
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

// SQLite persists snippet records. Lookups do not filter on expiry: the
// snippet service owns the notion of a record being logically dead, this
// layer only stores and scans.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	case circuitHalfOpen:
		return nil
	default:
		return nil
	}
}

func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	_, err = s.db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	_, err = s.db.Exec("PRAGMA synchronous=FULL")
	if err != nil {
		return errors.Wrap(err, "set synchronous mode")
	}
	query := `
	CREATE TABLE IF NOT EXISTS snippets (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		encrypted_content BLOB NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snippets_expires_at ON snippets(expires_at);
	CREATE INDEX IF NOT EXISTS idx_snippets_owner ON snippets(owner_id, created_at);
	`
	_, err = s.db.Exec(query)
	return err
}

// normalizeResponseTime pads lookup latency to a jittered floor so timing
// cannot reveal whether an id exists.
func normalizeResponseTime(start time.Time) {
	elapsed := time.Since(start)
	var jitterNanos int64
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		jitterNanos = int64(responseTimeJitter)
	} else {
		jitterNanos = int64(binary.BigEndian.Uint64(b[:]) % uint64(responseTimeJitter))
	}
	target := minResponseTime + time.Duration(jitterNanos)
	if elapsed < target {
		time.Sleep(target - elapsed)
	}
}

func (s *SQLite) Put(ctx context.Context, sn *domain.Snippet) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO snippets (id, title, language, encrypted_content, owner_id, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(queryCtx, q,
		sn.ID, sn.Title, sn.Language, sn.EncryptedContent, sn.OwnerID, sn.CreatedAt, sn.ExpiresAt,
	)
	s.recordError(err)
	return errors.Wrap(err, "db put")
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*domain.Snippet, error) {
	start := time.Now()
	defer normalizeResponseTime(start)
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, title, language, encrypted_content, owner_id, created_at, expires_at
	FROM snippets WHERE id = ?
	`
	var sn domain.Snippet
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(
		&sn.ID, &sn.Title, &sn.Language, &sn.EncryptedContent, &sn.OwnerID, &sn.CreatedAt, &sn.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSnippetNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	return &sn, nil
}

func (s *SQLite) DeleteByID(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	defer normalizeResponseTime(start)
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	result, err := s.db.ExecContext(queryCtx, `DELETE FROM snippets WHERE id = ?`, id)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "db delete")
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *SQLite) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Snippet, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, title, language, encrypted_content, owner_id, created_at, expires_at
	FROM snippets WHERE owner_id = ? ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(queryCtx, q, ownerID)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db find by owner")
	}
	defer rows.Close()
	var out []*domain.Snippet
	for rows.Next() {
		var sn domain.Snippet
		if err := rows.Scan(
			&sn.ID, &sn.Title, &sn.Language, &sn.EncryptedContent, &sn.OwnerID, &sn.CreatedAt, &sn.ExpiresAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan snippet row")
		}
		out = append(out, &sn)
	}
	return out, errors.Wrap(rows.Err(), "iterate snippet rows")
}

// DeleteExpired removes records with expires_at <= now in bounded batches so
// a large backlog never holds a write lock for long.
func (s *SQLite) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	totalDeleted := 0
	maxIterations := 10000
	for i := 0; i < maxIterations; i++ {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}
		queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		result, err := s.db.ExecContext(queryCtx, `
			DELETE FROM snippets
			WHERE id IN (
				SELECT id FROM snippets
				WHERE expires_at <= ?
				LIMIT 100
			)
		`, now)
		cancel()
		s.recordError(err)
		if err != nil {
			return totalDeleted, errors.Wrap(err, "reclaim batch failed")
		}
		deleted, _ := result.RowsAffected()
		totalDeleted += int(deleted)
		if deleted == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return totalDeleted, nil
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	defer normalizeResponseTime(start)
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	q := `SELECT 1 FROM snippets WHERE id = ? LIMIT 1`
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return exists == 1, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
