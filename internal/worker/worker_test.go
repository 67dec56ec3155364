package worker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Schera-ole/hostagent/internal/client"
	"github.com/Schera-ole/hostagent/internal/configcache"
	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	models "github.com/Schera-ole/hostagent/internal/model"
	"github.com/Schera-ole/hostagent/internal/queue"
)

// fastOptions keeps the production shape of the policy with millisecond waits.
func fastOptions() Options {
	return Options{
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		MaxElapsed:     time.Second,
		AttemptTimeout: 200 * time.Millisecond,
		DrainAttempts:  2,
		DrainTimeout:   300 * time.Millisecond,
	}
}

type fakeRefresher struct {
	calls atomic.Int64
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeRefresher) LastRefresh() time.Time {
	return time.Now()
}

// scriptedSender returns the scripted errors in order, then nil forever.
type scriptedSender struct {
	mu     sync.Mutex
	script []error
	sent   []models.Snapshot
}

func (s *scriptedSender) SendMetrics(ctx context.Context, token string, snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, snapshot)
	if len(s.script) == 0 {
		return nil
	}
	err := s.script[0]
	s.script = s.script[1:]
	return err
}

func (s *scriptedSender) Sent() []models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Snapshot(nil), s.sent...)
}

func transient() error {
	return fmt.Errorf("%w: connection refused", internalerrors.ErrTransientDelivery)
}

func snapshotItem(ts float64) queue.Snapshot {
	return queue.Snapshot{Data: models.Snapshot{"ts": ts}}
}

func runWorker(t *testing.T, w *Worker) {
	t.Helper()
	go w.Run(context.Background())
}

func waitStopped(t *testing.T, w *Worker, within time.Duration) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(within):
		t.Fatalf("worker did not stop within %v, state %s", within, w.State())
	}
	assert.Equal(t, Stopped, w.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDefaultOptions(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultOptions(), opts)
	assert.Equal(t, 4, opts.MaxAttempts)
	assert.Equal(t, time.Second, opts.InitialBackoff)
}

func TestWorker_DeliversInOrder(t *testing.T) {
	q := queue.New(10)
	sender := &scriptedSender{}
	refresher := &fakeRefresher{}
	w := New(q, refresher, sender, "token", fastOptions(), zap.NewNop().Sugar())

	for i := 1; i <= 3; i++ {
		q.Put(snapshotItem(float64(i)))
	}
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	sent := sender.Sent()
	require.Len(t, sent, 3)
	for i, s := range sent {
		assert.Equal(t, float64(i+1), s.Timestamp())
	}
	assert.Equal(t, uint64(3), w.Stats().Delivered)
	// initial refresh plus one opportunistic refresh per delivery cycle
	assert.Equal(t, int64(4), refresher.calls.Load())
}

func TestWorker_RetryThenSuccessDeliversOnce(t *testing.T) {
	var attempts atomic.Int64
	var mu sync.Mutex
	received := map[float64]int{}

	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body)
		mu.Lock()
		received[42]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	q := queue.New(10)
	w := New(q, &fakeRefresher{}, client.New(collector.URL), "token", fastOptions(), zap.NewNop().Sugar())

	q.Put(snapshotItem(42))
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, 2*time.Second)

	assert.Equal(t, int64(4), attempts.Load())
	mu.Lock()
	assert.Equal(t, 1, received[42])
	mu.Unlock()

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(3), stats.Retries)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestWorker_RetriesResendSameSnapshot(t *testing.T) {
	q := queue.New(10)
	sender := &scriptedSender{script: []error{transient(), transient()}}
	w := New(q, &fakeRefresher{}, sender, "token", fastOptions(), zap.NewNop().Sugar())

	q.Put(snapshotItem(1))
	q.Put(snapshotItem(2))
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	sent := sender.Sent()
	require.Len(t, sent, 4)
	assert.Equal(t, []float64{1, 1, 1, 2}, []float64{
		sent[0].Timestamp(), sent[1].Timestamp(), sent[2].Timestamp(), sent[3].Timestamp(),
	})
}

func TestWorker_RetriesExhaustedDropsSnapshot(t *testing.T) {
	q := queue.New(10)
	sender := &scriptedSender{script: []error{transient(), transient(), transient(), transient()}}
	w := New(q, &fakeRefresher{}, sender, "token", fastOptions(), zap.NewNop().Sugar())

	q.Put(snapshotItem(1))
	q.Put(snapshotItem(2))
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	sent := sender.Sent()
	require.Len(t, sent, 5)
	assert.Equal(t, float64(2), sent[4].Timestamp())

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(3), stats.Retries)
}

func TestWorker_RetryBudgetCapsAttempts(t *testing.T) {
	q := queue.New(10)
	sender := &scriptedSender{script: []error{transient(), transient(), transient(), transient()}}
	opts := fastOptions()
	opts.InitialBackoff = 50 * time.Millisecond
	opts.MaxBackoff = 50 * time.Millisecond
	opts.MaxElapsed = 80 * time.Millisecond
	w := New(q, &fakeRefresher{}, sender, "token", opts, zap.NewNop().Sugar())

	q.Put(snapshotItem(1))
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	// one try, one retry after 50ms, then the next wait no longer fits the budget
	assert.Len(t, sender.Sent(), 2)
	assert.Equal(t, uint64(1), w.Stats().Failed)
}

func TestWorker_RejectedSnapshotIsNotRetried(t *testing.T) {
	q := queue.New(10)
	rejected := fmt.Errorf("%w: %w", internalerrors.ErrSnapshotRejected, &internalerrors.StatusError{Code: 400})
	sender := &scriptedSender{script: []error{rejected}}
	w := New(q, &fakeRefresher{}, sender, "token", fastOptions(), zap.NewNop().Sugar())

	q.Put(snapshotItem(1))
	q.Put(snapshotItem(2))
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	assert.Len(t, sender.Sent(), 2)
	assert.Equal(t, uint64(1), w.Stats().Rejected)
	assert.Equal(t, uint64(1), w.Stats().Delivered)
}

func TestWorker_FatalAuthDisablesDelivery(t *testing.T) {
	q := queue.New(10)
	authErr := fmt.Errorf("%w: %w", internalerrors.ErrFatalAuth, &internalerrors.StatusError{Code: 401})
	sender := &scriptedSender{script: []error{authErr}}
	w := New(q, &fakeRefresher{}, sender, "token", fastOptions(), zap.NewNop().Sugar())
	runWorker(t, w)

	q.Put(snapshotItem(1))
	select {
	case err := <-w.Fatal():
		assert.ErrorIs(t, err, internalerrors.ErrFatalAuth)
	case <-time.After(time.Second):
		t.Fatal("fatal error not reported")
	}
	assert.True(t, w.DeliveryDisabled())

	q.Put(snapshotItem(2))
	q.Put(snapshotItem(3))
	q.Put(queue.Shutdown{})
	waitStopped(t, w, time.Second)

	assert.Len(t, sender.Sent(), 1, "no send attempt after credentials were rejected")
	assert.Equal(t, uint64(2), w.Stats().Discarded)
	assert.Equal(t, uint64(0), w.Stats().Delivered)

	select {
	case err := <-w.Fatal():
		t.Fatalf("fatal reported twice: %v", err)
	default:
	}
}

type blockingSender struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (b *blockingSender) SendMetrics(ctx context.Context, token string, snapshot models.Snapshot) error {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", internalerrors.ErrTransientDelivery, ctx.Err())
	}
}

func TestWorker_SuccessEmptiesBuffer(t *testing.T) {
	q := queue.New(10)
	sender := &blockingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	opts := fastOptions()
	opts.AttemptTimeout = 5 * time.Second
	w := New(q, &fakeRefresher{}, sender, "token", opts, zap.NewNop().Sugar())
	runWorker(t, w)

	q.Put(snapshotItem(1))
	<-sender.started
	assert.Equal(t, 1, w.Buffered())
	assert.Equal(t, Running, w.State())

	close(sender.release)
	require.Eventually(t, func() bool { return w.Stats().Delivered == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, w.Buffered())

	q.Put(queue.Shutdown{})
	waitStopped(t, w, time.Second)
}

func TestWorker_ControlMessageRefreshesConfig(t *testing.T) {
	var enabled atomic.Bool
	fetcher := fetcherFunc(func(ctx context.Context, token string) (models.Configuration, error) {
		return models.Configuration{Enabled: enabled.Load(), Interval: 5}, nil
	})
	cache := configcache.New(fetcher, "token", zap.NewNop().Sugar())
	q := queue.New(10)
	sender := &scriptedSender{}
	w := New(q, cache, sender, "token", fastOptions(), zap.NewNop().Sugar())
	runWorker(t, w)

	require.Eventually(t, func() bool { return w.Stats().ConfigRefreshes == 1 }, time.Second, time.Millisecond)
	assert.False(t, cache.Get().Enabled)

	enabled.Store(true)
	q.Put(queue.RefreshConfig{})
	require.Eventually(t, func() bool { return cache.Get().Enabled }, time.Second, time.Millisecond)
	assert.Empty(t, sender.Sent(), "a refresh does not send anything")

	q.Put(queue.Shutdown{})
	waitStopped(t, w, time.Second)
}

func TestWorker_ConfigFailureIsNotFatal(t *testing.T) {
	q := queue.New(10)
	refresher := &fakeRefresher{err: internalerrors.ErrConfigFetch}
	sender := &scriptedSender{}
	w := New(q, refresher, sender, "token", fastOptions(), zap.NewNop().Sugar())

	q.Put(queue.RefreshConfig{})
	q.Put(snapshotItem(1))
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(3), stats.ConfigFailures)
	assert.False(t, w.DeliveryDisabled())
}

func TestWorker_ConfigAuthFailureDisablesDelivery(t *testing.T) {
	q := queue.New(10)
	authErr := fmt.Errorf("%w: %w: %w", internalerrors.ErrConfigFetch, internalerrors.ErrFatalAuth, &internalerrors.StatusError{Code: 403})
	refresher := &fakeRefresher{err: authErr}
	sender := &scriptedSender{}
	w := New(q, refresher, sender, "token", fastOptions(), zap.NewNop().Sugar())
	runWorker(t, w)

	select {
	case err := <-w.Fatal():
		assert.ErrorIs(t, err, internalerrors.ErrFatalAuth)
	case <-time.After(time.Second):
		t.Fatal("fatal error not reported")
	}
	assert.True(t, w.DeliveryDisabled())

	q.Put(queue.RefreshConfig{})
	q.Put(snapshotItem(1))
	q.Put(queue.Shutdown{})
	waitStopped(t, w, time.Second)

	assert.Empty(t, sender.Sent())
	assert.Equal(t, int64(1), refresher.calls.Load(), "no fetch after credentials were rejected")
	assert.Equal(t, uint64(1), w.Stats().Discarded)
}

func TestWorker_RefreshIntervalThrottles(t *testing.T) {
	q := queue.New(10)
	refresher := &fakeRefresher{}
	opts := fastOptions()
	opts.RefreshInterval = time.Hour
	w := New(q, refresher, &scriptedSender{}, "token", opts, zap.NewNop().Sugar())

	for i := 0; i < 5; i++ {
		q.Put(snapshotItem(float64(i)))
	}
	q.Put(queue.Shutdown{})
	runWorker(t, w)
	waitStopped(t, w, time.Second)

	// fakeRefresher reports a refresh "now", so only the startup fetch runs
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestWorker_StopKeepsInterruptedSnapshotForDrain(t *testing.T) {
	q := queue.New(10)
	sender := &scriptedSender{script: []error{transient()}}
	opts := fastOptions()
	opts.InitialBackoff = time.Minute
	opts.MaxBackoff = time.Minute
	opts.MaxElapsed = time.Hour
	w := New(q, &fakeRefresher{}, sender, "token", opts, zap.NewNop().Sugar())
	runWorker(t, w)

	q.Put(snapshotItem(7))
	require.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, time.Second, time.Millisecond)

	w.RequestStop()
	q.Clear()
	q.Put(queue.Shutdown{})
	waitStopped(t, w, time.Second)

	sent := sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, float64(7), sent[1].Timestamp())
	assert.Equal(t, uint64(1), w.Stats().Delivered)
	assert.Equal(t, 0, w.Buffered())
}

func TestWorker_ShutdownWithUnreachableCollector(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	q := queue.New(10)
	opts := fastOptions()
	opts.InitialBackoff = 100 * time.Millisecond
	opts.MaxBackoff = time.Second
	opts.MaxElapsed = time.Minute
	w := New(q, &fakeRefresher{}, client.New("http://"+addr), "token", opts, zap.NewNop().Sugar())

	for i := 0; i < 5; i++ {
		q.Put(snapshotItem(float64(i)))
	}
	runWorker(t, w)
	require.Eventually(t, func() bool { return w.Buffered() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	w.RequestStop()
	assert.Positive(t, q.Clear())
	q.Put(queue.Shutdown{})

	waitStopped(t, w, opts.DrainTimeout+time.Second)
	assert.Less(t, time.Since(start), opts.DrainTimeout+time.Second)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(0), w.Stats().Delivered)
}

func TestWorker_ContextCancelStops(t *testing.T) {
	q := queue.New(10)
	w := New(q, &fakeRefresher{}, &scriptedSender{}, "token", fastOptions(), zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	require.Eventually(t, func() bool { return w.State() == Running }, time.Second, time.Millisecond)

	cancel()
	waitStopped(t, w, time.Second)
}

type fetcherFunc func(ctx context.Context, token string) (models.Configuration, error)

func (f fetcherFunc) FetchConfig(ctx context.Context, token string) (models.Configuration, error) {
	return f(ctx, token)
}
