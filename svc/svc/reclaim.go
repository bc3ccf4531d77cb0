package svc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"snipvault/metrics"
	"snipvault/svc/util"
)

// Reclaimer physically removes records past their expiry, independent of
// read traffic. Without it, an id that is never looked up again would keep
// its ciphertext on disk indefinitely.
type Reclaimer struct {
	repo     Repository
	interval time.Duration
	running  atomic.Bool
	now      func() time.Time
}

func NewReclaimer(repo Repository, interval time.Duration) *Reclaimer {
	if repo == nil {
		panic("reclaimer: nil repository")
	}
	return &Reclaimer{
		repo:     repo,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the sweep loop. It runs until ctx is cancelled; partial
// batch completion on shutdown is safe because individual deletes are
// atomic.
func (r *Reclaimer) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("reclaimer already running")
	}
	go r.run(ctx)
	return nil
}

func (r *Reclaimer) run(ctx context.Context) {
	defer r.running.Store(false)
	sweepRequestID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, sweepRequestID)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", sweepRequestID).
		Dur("interval", r.interval).
		Msg("reclaimer started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", sweepRequestID).
				Msg("reclaimer shutting down")
			return
		case <-ticker.C:
			// A failed sweep is reported and retried next tick,
			// never fatal.
			if _, err := r.Sweep(ctx); err != nil {
				util.Error().
					Err(err).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("reclaim sweep failed")
			}
		}
	}
}

// Sweep performs a single reclamation pass and returns the number of
// records removed. Zero removals is a normal, silent outcome. Racing with
// request-path deletes is harmless: removing an already-removed record is
// a no-op, and a record that expires mid-sweep is caught on a later pass.
func (r *Reclaimer) Sweep(ctx context.Context) (int, error) {
	metrics.ReclaimCycles.Inc()
	deleted, err := r.repo.DeleteExpired(ctx, r.now())
	if err != nil {
		return deleted, err
	}
	if deleted > 0 {
		metrics.SnippetsReclaimed.Add(float64(deleted))
		util.Info().
			Int("deleted", deleted).
			Str("request_id", util.GetRequestID(ctx)).
			Msg("reclaim completed")
	}
	return deleted, nil
}
