// Package worker implements the delivery worker: the background task that
// drains the queue, sends snapshots to the collector with bounded retries and
// keeps the configuration cache fresh.
//
// Lifecycle: Starting -> Running -> Draining -> Stopped. The worker stops
// after processing a queue.Shutdown item, or when its context is cancelled
// by the owner as a last resort.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	models "github.com/Schera-ole/hostagent/internal/model"
	"github.com/Schera-ole/hostagent/internal/queue"
)

// Source yields queue items in order.
type Source interface {
	Get(ctx context.Context) (queue.Item, error)
}

// Sender delivers one snapshot to the collector.
type Sender interface {
	SendMetrics(ctx context.Context, token string, snapshot models.Snapshot) error
}

// ConfigRefresher is the part of the configuration cache the worker drives.
type ConfigRefresher interface {
	Refresh(ctx context.Context) error
	LastRefresh() time.Time
}

// Stats is a point-in-time copy of the worker counters.
type Stats struct {
	Delivered       uint64
	Failed          uint64
	Rejected        uint64
	Discarded       uint64
	Retries         uint64
	ConfigRefreshes uint64
	ConfigFailures  uint64
}

// Worker delivers snapshots from a queue to the collector.
type Worker struct {
	source Source
	cache  ConfigRefresher
	sender Sender
	token  string
	opts   Options
	logger *zap.SugaredLogger

	state atomic.Int32

	// pending is the in-flight buffer: at most one snapshot
	pending atomic.Pointer[models.Snapshot]

	// disabled latches after the collector rejects the credentials
	disabled  atomic.Bool
	fatal     chan error
	fatalOnce sync.Once

	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	runOnce  sync.Once

	delivered       atomic.Uint64
	failed          atomic.Uint64
	rejected        atomic.Uint64
	discarded       atomic.Uint64
	retries         atomic.Uint64
	configRefreshes atomic.Uint64
	configFailures  atomic.Uint64
}

// New creates a worker. Zero fields of opts take their DefaultOptions values.
func New(source Source, cache ConfigRefresher, sender Sender, token string, opts Options, logger *zap.SugaredLogger) *Worker {
	return &Worker{
		source:   source,
		cache:    cache,
		sender:   sender,
		token:    token,
		opts:     opts.withDefaults(),
		logger:   logger,
		fatal:    make(chan error, 1),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run executes the worker until a Shutdown item has been processed or ctx is
// cancelled. Only the first call has any effect.
func (w *Worker) Run(ctx context.Context) {
	w.runOnce.Do(func() {
		w.run(ctx)
	})
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(Stopped)

	w.setState(Starting)
	w.refreshConfig(ctx)
	w.setState(Running)

	for {
		item, err := w.source.Get(ctx)
		if err != nil {
			w.logger.Warnw("delivery worker cancelled", "error", err, "buffered", w.Buffered())
			return
		}

		switch item := item.(type) {
		case queue.Snapshot:
			w.handleSnapshot(ctx, item.Data)
		case queue.RefreshConfig:
			w.refreshConfig(ctx)
		case queue.Shutdown:
			w.setState(Draining)
			w.drain(ctx)
			return
		default:
			w.logger.Errorw("unexpected queue item", "item", item)
		}
	}
}

// RequestStop tells the worker that shutdown has begun: backoff waits end
// early and an interrupted snapshot is kept for the drain phase.
func (w *Worker) RequestStop() {
	w.stopOnce.Do(func() {
		close(w.stopping)
	})
}

// Done is closed once the worker reaches Stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Fatal delivers at most one error, wrapping ErrFatalAuth, when the collector
// rejects the agent credentials.
func (w *Worker) Fatal() <-chan error {
	return w.fatal
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// DeliveryDisabled reports whether credentials were rejected during this run.
func (w *Worker) DeliveryDisabled() bool {
	return w.disabled.Load()
}

// Buffered returns the number of snapshots in the in-flight buffer (0 or 1).
func (w *Worker) Buffered() int {
	if w.pending.Load() != nil {
		return 1
	}
	return 0
}

// Stats returns a copy of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Delivered:       w.delivered.Load(),
		Failed:          w.failed.Load(),
		Rejected:        w.rejected.Load(),
		Discarded:       w.discarded.Load(),
		Retries:         w.retries.Load(),
		ConfigRefreshes: w.configRefreshes.Load(),
		ConfigFailures:  w.configFailures.Load(),
	}
}

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		w.logger.Debugw("delivery worker state", "from", prev.String(), "to", s.String())
	}
}

func (w *Worker) handleSnapshot(ctx context.Context, snapshot models.Snapshot) {
	if w.disabled.Load() {
		w.discarded.Add(1)
		return
	}
	if stale := w.pending.Swap(&snapshot); stale != nil {
		// a snapshot interrupted by a stop request is superseded by a fresher one
		w.failed.Add(1)
	}

	w.deliver(ctx, w.opts.MaxAttempts, w.opts.MaxElapsed, true)
	w.maybeRefresh(ctx)
}

func (w *Worker) drain(ctx context.Context) {
	if w.pending.Load() == nil || w.disabled.Load() {
		w.logger.Debug("nothing to drain")
		return
	}
	drainCtx, cancel := context.WithTimeout(ctx, w.opts.DrainTimeout)
	defer cancel()

	w.logger.Infow("draining buffered snapshot", "attempts", w.opts.DrainAttempts, "timeout", w.opts.DrainTimeout)
	if !w.deliver(drainCtx, w.opts.DrainAttempts, w.opts.DrainTimeout, false) {
		w.pending.Store(nil)
		w.failed.Add(1)
		w.logger.Warn("final delivery did not complete, snapshot dropped")
	}
}

// deliver sends the buffered snapshot, retrying transient failures with
// exponential backoff. It returns false when it was interrupted (stop request
// or cancelled context) and the snapshot is still buffered; otherwise the
// buffer is empty on return.
func (w *Worker) deliver(ctx context.Context, maxAttempts int, budget time.Duration, interruptible bool) bool {
	snapshot := w.pending.Load()
	if snapshot == nil {
		return true
	}

	deadline := time.Now().Add(budget)
	backoff := w.opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if time.Until(deadline) < backoff {
				break
			}
			w.retries.Add(1)
			w.logger.Debugw("retrying delivery", "attempt", attempt, "delay", backoff, "error", lastErr)
			if !w.wait(ctx, backoff, interruptible) {
				return false
			}
			backoff = min(backoff*2, w.opts.MaxBackoff)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		err := w.send(ctx, *snapshot, min(w.opts.AttemptTimeout, remaining))
		if ctx.Err() != nil {
			return false
		}

		switch {
		case err == nil:
			w.pending.Store(nil)
			w.delivered.Add(1)
			return true
		case errors.Is(err, internalerrors.ErrFatalAuth):
			w.pending.Store(nil)
			w.disable(err)
			return true
		case errors.Is(err, internalerrors.ErrTransientDelivery):
			lastErr = err
		default:
			w.pending.Store(nil)
			w.rejected.Add(1)
			w.logger.Warnw("snapshot rejected, dropping", "error", err)
			return true
		}
	}

	w.pending.Store(nil)
	w.failed.Add(1)
	w.logger.Warnw("delivery retries exhausted, dropping snapshot", "error", lastErr)
	return true
}

func (w *Worker) send(ctx context.Context, snapshot models.Snapshot, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.sender.SendMetrics(attemptCtx, w.token, snapshot)
}

func (w *Worker) wait(ctx context.Context, d time.Duration, interruptible bool) bool {
	var stop <-chan struct{}
	if interruptible {
		stop = w.stopping
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) disable(err error) {
	w.disabled.Store(true)
	w.fatalOnce.Do(func() {
		w.logger.Errorw("collector rejected credentials, delivery disabled", "error", err)
		w.fatal <- err
	})
}

func (w *Worker) maybeRefresh(ctx context.Context) {
	if w.disabled.Load() || w.stopRequested() {
		return
	}
	if w.opts.RefreshInterval > 0 && time.Since(w.cache.LastRefresh()) < w.opts.RefreshInterval {
		return
	}
	w.refreshConfig(ctx)
}

func (w *Worker) refreshConfig(ctx context.Context) {
	if w.disabled.Load() {
		return
	}
	ctx, cancel := w.untilStop(ctx)
	defer cancel()

	if err := w.cache.Refresh(ctx); err != nil {
		w.configFailures.Add(1)
		if errors.Is(err, internalerrors.ErrFatalAuth) {
			w.disable(err)
			return
		}
		w.logger.Warnw("configuration refresh failed, keeping previous", "error", err)
		return
	}
	w.configRefreshes.Add(1)
}

// untilStop derives a context that also ends when a stop is requested, so a
// slow configuration fetch never holds up shutdown.
func (w *Worker) untilStop(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopping:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (w *Worker) stopRequested() bool {
	select {
	case <-w.stopping:
		return true
	default:
		return false
	}
}
