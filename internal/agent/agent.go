package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Schera-ole/hostagent/internal/client"
	"github.com/Schera-ole/hostagent/internal/configcache"
	"github.com/Schera-ole/hostagent/internal/queue"
	"github.com/Schera-ole/hostagent/internal/sampler"
	"github.com/Schera-ole/hostagent/internal/telemetry"
	"github.com/Schera-ole/hostagent/internal/worker"
)

// Agent owns the queue, the configuration cache, the sampling loop and the
// delivery worker.
type Agent struct {
	config *AgentConfig
	logger *zap.SugaredLogger

	queue    *queue.Queue
	cache    *configcache.Cache
	worker   *worker.Worker
	sampler  *sampler.Sampler
	registry *prometheus.Registry
	watchdog *watchdog

	workerCtx    context.Context
	cancelWorker context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option customises an Agent.
type Option func(*options)

type options struct {
	worker  worker.Options
	sampler sampler.Options
	client  []client.Option
}

// WithWorkerOptions overrides the delivery worker timings.
func WithWorkerOptions(opts worker.Options) Option {
	return func(o *options) {
		o.worker = opts
	}
}

// WithDisabledPoll overrides the config poll period while sampling is disabled.
func WithDisabledPoll(d time.Duration) Option {
	return func(o *options) {
		o.sampler.DisabledPoll = d
	}
}

// WithClientOptions passes extra options to the collector client.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) {
		o.client = append(o.client, opts...)
	}
}

// New wires an agent for the given token. source produces the snapshots.
func New(config *AgentConfig, token string, source sampler.Source, logger *zap.SugaredLogger, opts ...Option) *Agent {
	o := options{worker: worker.DefaultOptions()}
	for _, opt := range opts {
		opt(&o)
	}

	collector := client.New(config.Address, append([]client.Option{client.WithKey(config.Key)}, o.client...)...)
	q := queue.New(config.QueueSize)
	cache := configcache.New(collector, token, logger)
	w := worker.New(q, cache, collector, token, o.worker, logger)

	a := &Agent{
		config:   config,
		logger:   logger,
		queue:    q,
		cache:    cache,
		worker:   w,
		watchdog: newWatchdog(logger),
	}
	o.sampler.OnCycle = a.watchdog.Ping
	a.sampler = sampler.New(q, cache, source, o.sampler, logger)
	a.registry = telemetry.NewRegistry(q, w, cache)
	// the worker outlives the signal context so it can drain
	a.workerCtx, a.cancelWorker = context.WithCancel(context.Background())
	return a
}

// Start spawns the delivery worker. The worker fetches the configuration
// before it starts consuming the queue.
func (a *Agent) Start() {
	a.startOnce.Do(func() {
		a.logger.Infow("hostagent starting", "version", Version, "collector", a.config.Address)
		go a.worker.Run(a.workerCtx)
	})
}

// Run samples until ctx ends, the collector rejects the agent credentials
// or the metrics listener fails. Call Stop afterwards.
func (a *Agent) Run(ctx context.Context) error {
	a.Start()
	a.watchdog.Ready()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.sampler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case err := <-a.worker.Fatal():
			a.logger.Errorw("collector rejected agent credentials", "error", err)
			return err
		case <-gctx.Done():
			return nil
		}
	})
	if a.config.MetricsAddress != "" {
		g.Go(func() error {
			if err := telemetry.Serve(gctx, a.config.MetricsAddress, a.registry, a.logger); err != nil {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop performs the orderly shutdown: pending items are discarded, the
// shutdown sentinel is enqueued and the worker gets StopTimeout to drain its
// in-flight snapshot. After that the worker is cancelled and given a short
// grace period. Stop returns false if the worker did not stop in time.
func (a *Agent) Stop() bool {
	stopped := true
	a.stopOnce.Do(func() {
		a.watchdog.Stopping()
		a.worker.RequestStop()
		a.Start()
		cleared := a.queue.Clear()
		a.queue.Put(queue.Shutdown{})
		a.logger.Infow("shutting down", "discarded", cleared, "buffered", a.worker.Buffered())

		timer := time.NewTimer(a.config.StopTimeout)
		defer timer.Stop()
		select {
		case <-a.worker.Done():
			a.cancelWorker()
			a.logger.Infow("delivery worker stopped", "stats", a.worker.Stats())
			return
		case <-timer.C:
		}

		a.logger.Warnw("delivery worker did not stop in time, cancelling", "timeout", a.config.StopTimeout)
		a.cancelWorker()
		select {
		case <-a.worker.Done():
		case <-time.After(stopGrace):
			a.logger.Errorw("delivery worker abandoned", "state", a.worker.State().String())
			stopped = false
		}
	})
	return stopped
}

// Registry exposes the agent's Prometheus collectors.
func (a *Agent) Registry() *prometheus.Registry {
	return a.registry
}

// WorkerState returns the delivery worker lifecycle phase.
func (a *Agent) WorkerState() worker.State {
	return a.worker.State()
}

// QueueLen returns the number of pending queue items.
func (a *Agent) QueueLen() int {
	return a.queue.Len()
}
