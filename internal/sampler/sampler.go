// Package sampler produces snapshots on the configured interval and feeds
// them to the delivery queue.
package sampler

import (
	"context"
	"time"

	"go.uber.org/zap"

	models "github.com/Schera-ole/hostagent/internal/model"
	"github.com/Schera-ole/hostagent/internal/queue"
)

const (
	// DefaultDisabledPoll is the wait between config refresh requests while
	// sampling is disabled.
	DefaultDisabledPoll = models.DefaultInterval * time.Second

	// MinWait is the pause after a cycle that overran its interval.
	MinWait = 100 * time.Millisecond
)

// Source produces one snapshot for the given configuration.
type Source interface {
	Collect(ctx context.Context, config models.Configuration) models.Snapshot
}

// Sink accepts queue items.
type Sink interface {
	Put(item queue.Item)
}

// ConfigProvider returns the current configuration.
type ConfigProvider interface {
	Get() models.Configuration
}

// Options tunes the loop.
type Options struct {
	DisabledPoll time.Duration
	// OnCycle is called at the start of every cycle.
	OnCycle func()
}

// Sampler is the sampling loop.
type Sampler struct {
	sink   Sink
	cache  ConfigProvider
	source Source
	opts   Options
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New creates a sampling loop.
func New(sink Sink, cache ConfigProvider, source Source, opts Options, logger *zap.SugaredLogger) *Sampler {
	if opts.DisabledPoll <= 0 {
		opts.DisabledPoll = DefaultDisabledPoll
	}
	return &Sampler{
		sink:   sink,
		cache:  cache,
		source: source,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	s.logger.Info("sampler started")
	defer s.logger.Info("sampler stopped")

	for ctx.Err() == nil {
		if s.opts.OnCycle != nil {
			s.opts.OnCycle()
		}
		s.wait(ctx, s.cycle(ctx))
	}
}

// cycle performs one iteration and returns how long to wait before the next.
func (s *Sampler) cycle(ctx context.Context) time.Duration {
	config := s.cache.Get()
	if !config.Enabled {
		s.logger.Debug("sampling disabled, requesting config refresh")
		s.sink.Put(queue.RefreshConfig{})
		return s.opts.DisabledPoll
	}

	start := s.now()
	snapshot := s.source.Collect(ctx, config)
	if ctx.Err() != nil {
		return 0
	}
	s.sink.Put(queue.Snapshot{Data: snapshot})

	wait := config.IntervalDuration() - s.now().Sub(start)
	if wait <= 0 {
		wait = MinWait
	}
	return wait
}

func (s *Sampler) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
