package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

// Recorder writes finished results and counter updates in the background,
// retrying failed writes with exponential backoff. Record never blocks the
// caller.
type Recorder struct {
	results  ResultStore
	counters CounterStore
	logger   *slog.Logger
	wg       sync.WaitGroup

	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// NewRecorder creates a recorder writing to the given stores
func NewRecorder(results ResultStore, counters CounterStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		results:        results,
		counters:       counters,
		logger:         logger,
		MinBackoff:     100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		MaxAttempts:    8,
		AttemptTimeout: 5 * time.Second,
	}
}

// Record persists result and updates every roster member's counters. The
// two writes are independent: a failed result write does not skip counters.
func (r *Recorder) Record(result session.Result) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.record(result)
	}()
}

func (r *Recorder) record(result session.Result) {
	log := r.logger.With("result_id", result.ID)

	// counters are updated even when the result could not be stored
	r.retry(log, "persist result", func(ctx context.Context) error {
		return r.results.PersistResult(ctx, result)
	})

	for _, participantID := range result.Roster {
		delta := storage.DeltaFor(result, participantID)
		r.retry(log.With("participant_id", participantID), "update counters", func(ctx context.Context) error {
			return r.counters.UpdateCounters(ctx, participantID, delta)
		})
	}
	log.Debug("result recorded")
}

func (r *Recorder) retry(log *slog.Logger, op string, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    r.MinBackoff,
		Max:    r.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for {
		ctx, cancel := context.WithTimeout(context.Background(), r.AttemptTimeout)
		err := fn(ctx)
		cancel()
		if err == nil {
			return nil
		}

		attempt := int(b.Attempt()) + 1
		if attempt >= r.MaxAttempts {
			log.Error("giving up", "op", op, "attempts", attempt, "error", err)
			return err
		}
		wait := b.Duration()
		log.Warn("write failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		time.Sleep(wait)
	}
}

// Wait blocks until pending writes finish or ctx ends
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
