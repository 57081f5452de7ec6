package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/livegame/metrics"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
)

// Target delivers one stat delta. Errors wrapped with backoff.Permanent
// are not retried.
type Target interface {
	Deliver(ctx context.Context, delta session.PlayerStatDelta) error
}

// TargetFunc adapts a function to Target
type TargetFunc func(ctx context.Context, delta session.PlayerStatDelta) error

func (f TargetFunc) Deliver(ctx context.Context, delta session.PlayerStatDelta) error {
	return f(ctx, delta)
}

// StoreTarget applies deltas straight to the player stat store
func StoreTarget(store games.StatStore) Target {
	return TargetFunc(func(ctx context.Context, d session.PlayerStatDelta) error {
		return applyToStore(ctx, store, d)
	})
}

func applyToStore(ctx context.Context, store games.StatStore, d session.PlayerStatDelta) error {
	applied, err := store.ApplyPlayerStatDelta(ctx, d.PlayerID, d.PointsAdded, d.EventID)
	if errors.Is(err, session.ErrNotFound) {
		return backoff.Permanent(err)
	}
	if err != nil {
		return err
	}
	if !applied {
		log.Debug().Str("event_id", d.EventID).Msg("stat delta already applied")
	}
	return nil
}

type ForwarderConfig struct {
	Workers         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed bounds one retry round of a delta. A delta whose round runs
	// out goes back on the queue; zero retries until shutdown.
	MaxElapsed time.Duration
}

func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		Workers:         2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsed:      5 * time.Minute,
	}
}

// Forwarder queues stat deltas and delivers them in the background,
// retrying transient failures with exponential backoff until they land.
// Only permanent failures are dropped. Forward never blocks the caller.
type Forwarder struct {
	target Target
	cfg    ForwarderConfig

	mu     sync.Mutex
	queue  []session.PlayerStatDelta
	signal chan struct{}
}

func NewForwarder(target Target, cfg ForwarderConfig) *Forwarder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Forwarder{
		target: target,
		cfg:    cfg,
		signal: make(chan struct{}, 1),
	}
}

// Forward enqueues d for delivery
func (f *Forwarder) Forward(d session.PlayerStatDelta) {
	f.mu.Lock()
	f.queue = append(f.queue, d)
	depth := len(f.queue)
	f.mu.Unlock()

	metrics.StatQueueDepth.Set(float64(depth))
	f.wake()
}

func (f *Forwarder) wake() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued deltas
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Start runs the delivery workers until ctx is cancelled
func (f *Forwarder) Start(ctx context.Context) {
	log.Info().Int("workers", f.cfg.Workers).Msg("stat forwarder started")

	var wg sync.WaitGroup
	for i := 0; i < f.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker(ctx)
		}()
	}
	wg.Wait()

	if n := f.Pending(); n > 0 {
		log.Warn().Int("pending", n).Msg("stat forwarder stopped with undelivered deltas")
	} else {
		log.Info().Msg("stat forwarder stopped")
	}
}

func (f *Forwarder) worker(ctx context.Context) {
	for {
		d, ok := f.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-f.signal:
				continue
			}
		}

		permanent, err := f.deliver(ctx, d)
		switch {
		case err == nil:
			metrics.StatForwards.WithLabelValues("delivered").Inc()
		case ctx.Err() != nil:
			// cancelled mid retry, keep it queued
			f.requeue(d)
			return
		case permanent:
			metrics.StatForwards.WithLabelValues("failed").Inc()
			log.Error().
				Err(err).
				Str("event_id", d.EventID).
				Str("player_id", d.PlayerID).
				Int("points", d.PointsAdded).
				Msg("dropping stat delta")
		default:
			// transient failures are never dropped, the delta goes to the
			// back of the queue and the worker pauses before moving on
			metrics.StatForwards.WithLabelValues("requeued").Inc()
			log.Warn().
				Err(err).
				Str("event_id", d.EventID).
				Dur("pause", f.cfg.MaxInterval).
				Msg("stat delta retry budget exhausted, requeueing")
			f.push(d)
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.cfg.MaxInterval):
			}
		}
	}
}

func (f *Forwarder) next() (session.PlayerStatDelta, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return session.PlayerStatDelta{}, false
	}
	d := f.queue[0]
	f.queue = f.queue[1:]
	metrics.StatQueueDepth.Set(float64(len(f.queue)))
	if len(f.queue) > 0 {
		f.wake()
	}
	return d, true
}

// push appends d behind everything already queued
func (f *Forwarder) push(d session.PlayerStatDelta) {
	f.mu.Lock()
	f.queue = append(f.queue, d)
	metrics.StatQueueDepth.Set(float64(len(f.queue)))
	f.mu.Unlock()
	f.wake()
}

func (f *Forwarder) requeue(d session.PlayerStatDelta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append([]session.PlayerStatDelta{d}, f.queue...)
	metrics.StatQueueDepth.Set(float64(len(f.queue)))
}

// deliver retries d until it lands, the error is permanent or the retry
// budget runs out
func (f *Forwarder) deliver(ctx context.Context, d session.PlayerStatDelta) (permanent bool, err error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialInterval
	b.MaxInterval = f.cfg.MaxInterval
	b.MaxElapsedTime = f.cfg.MaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		err := f.target.Deliver(ctx, d)
		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.StatRetries.Inc()
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Str("event_id", d.EventID).
			Msg("stat delta delivery failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return permanent, fmt.Errorf("deliver stat delta after %d attempts: %w", attempt, err)
	}

	if attempt > 1 {
		log.Info().
			Int("attempt", attempt).
			Str("event_id", d.EventID).
			Msg("stat delta delivered after retry")
	}
	return false, nil
}
