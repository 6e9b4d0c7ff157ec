// Package runner executes numbered tasks on a fixed pool of workers and
// hands their outputs to a single consumer in strictly increasing task order.
//
// Each worker owns a session built by an InitFunc (typically a node
// connection plus cached metadata). Task numbers come from one shared
// counter; a worker claims its next number only once its previous output has
// been handed off. Failed tasks are retried in place, and a worker that keeps
// failing throws its session away and builds a new one before trying the same
// task again.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// MaxTaskRetries is the default number of times a task is retried on the
// same session before the session is rebuilt.
const MaxTaskRetries = 5

// ErrNoMoreWork is returned by an InitFunc or TaskFunc to stop the calling
// worker. The run ends once every worker has stopped.
var ErrNoMoreWork = errors.New("runner: no more work")

// InitFunc builds the session for one worker.
type InitFunc[S, W any] func(ctx context.Context, worker int, seed S) (W, error)

// TaskFunc runs task n on a worker's session.
type TaskFunc[W, O any] func(ctx context.Context, n uint64, session W) (O, error)

// EmitFunc receives outputs in task order. It is never called concurrently.
type EmitFunc[O any] func(ctx context.Context, n uint64, out O) error

// Runner is a configured pipeline. It may be Run more than once.
type Runner[S, W, O any] struct {
	seed S
	init InitFunc[S, W]
	task TaskFunc[W, O]
	emit EmitFunc[O]

	logger      *slog.Logger
	maxRetries  int
	initBackoff time.Duration
	maxBackoff  time.Duration

	metricsOnce sync.Once
	tasks       metric.Int64Counter
	failures    metric.Int64Counter
	reinits     metric.Int64Counter
	pending     atomic.Int64
}

// Option configures a Runner.
type Option func(*settings)

type settings struct {
	logger      *slog.Logger
	maxRetries  int
	initBackoff time.Duration
	maxBackoff  time.Duration
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMaxTaskRetries sets how many in-place retries a failing task gets
// before its worker's session is rebuilt. Negative values are treated as 0.
func WithMaxTaskRetries(n int) Option {
	return func(s *settings) { s.maxRetries = max(n, 0) }
}

// WithInitBackoff sets the base and ceiling of the jittered exponential
// delay between failed session initialisations.
func WithInitBackoff(base, ceiling time.Duration) Option {
	return func(s *settings) {
		s.initBackoff = base
		s.maxBackoff = max(ceiling, base)
	}
}

// New returns a runner. seed is passed unchanged to every InitFunc call.
func New[S, W, O any](seed S, init InitFunc[S, W], task TaskFunc[W, O], emit EmitFunc[O], opts ...Option) *Runner[S, W, O] {
	s := settings{
		logger:      slog.New(slog.DiscardHandler),
		maxRetries:  MaxTaskRetries,
		initBackoff: 250 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
	for _, o := range opts {
		o(&s)
	}
	return &Runner[S, W, O]{
		seed:        seed,
		init:        init,
		task:        task,
		emit:        emit,
		logger:      s.logger,
		maxRetries:  s.maxRetries,
		initBackoff: s.initBackoff,
		maxBackoff:  s.maxBackoff,
	}
}

type result[O any] struct {
	n   uint64
	out O
}

// Run starts workers workers claiming task numbers from start upwards and
// blocks until every worker has stopped and every contiguous output has been
// emitted, the context is cancelled, or emit fails. Outputs that arrive
// after cancellation, or that follow a task number no worker produced, are
// dropped.
func (r *Runner[S, W, O]) Run(ctx context.Context, workers int, start uint64) error {
	if workers < 1 {
		return fmt.Errorf("runner: need at least one worker, got %d", workers)
	}
	r.metricsOnce.Do(r.registerMetrics)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var next atomic.Uint64
	next.Store(start)
	results := make(chan result[O], workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error { return r.work(gctx, i, &next, results) })
	}

	emitDone := make(chan error, 1)
	go func() { emitDone <- r.collect(ctx, cancel, start, results) }()

	werr := g.Wait()
	close(results)
	if err := <-emitDone; err != nil {
		return err
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return ctx.Err()
}

// collect emits outputs in order, buffering those that arrive early. After
// an emit failure it keeps draining so workers are never blocked.
func (r *Runner[S, W, O]) collect(ctx context.Context, cancel context.CancelFunc, start uint64, results <-chan result[O]) error {
	want := start
	buffered := make(map[uint64]O)
	var failed error
	for res := range results {
		if failed != nil || ctx.Err() != nil {
			continue
		}
		buffered[res.n] = res.out
		for {
			out, ok := buffered[want]
			if !ok {
				break
			}
			delete(buffered, want)
			if err := r.emit(ctx, want, out); err != nil {
				failed = fmt.Errorf("runner: emit %d: %w", want, err)
				cancel()
				break
			}
			want++
		}
		r.pending.Store(int64(len(buffered)))
	}
	if failed == nil && len(buffered) > 0 && ctx.Err() == nil {
		r.logger.Warn("runner: dropping outputs after gap", "missing", want, "dropped", len(buffered))
	}
	r.pending.Store(0)
	return failed
}

func (r *Runner[S, W, O]) work(ctx context.Context, worker int, next *atomic.Uint64, results chan<- result[O]) error {
	n := next.Add(1) - 1
	for {
		session, err := r.initSession(ctx, worker)
		if errors.Is(err, ErrNoMoreWork) {
			return nil
		}
		if err != nil {
			return err
		}

		n, err = r.serve(ctx, worker, n, session, next, results)
		closeSession(session)
		if errors.Is(err, ErrNoMoreWork) {
			return nil
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		r.reinits.Add(ctx, 1)
		r.logger.Error("runner: rebuilding worker session", "worker", worker, "task", n, "error", err)
	}
}

// serve runs tasks on one session until the session must be rebuilt or the
// worker should stop. It returns the task number still owed.
func (r *Runner[S, W, O]) serve(ctx context.Context, worker int, n uint64, session W, next *atomic.Uint64, results chan<- result[O]) (uint64, error) {
	for {
		out, err := r.attempt(ctx, worker, n, session)
		if err != nil {
			return n, err
		}
		select {
		case results <- result[O]{n: n, out: out}:
		case <-ctx.Done():
			return n, ctx.Err()
		}
		r.tasks.Add(ctx, 1)
		n = next.Add(1) - 1
	}
}

// attempt runs task n, retrying in place up to the configured limit.
func (r *Runner[S, W, O]) attempt(ctx context.Context, worker int, n uint64, session W) (O, error) {
	var zero O
	for tries := 0; ; tries++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := r.task(ctx, n, session)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrNoMoreWork) || ctx.Err() != nil {
			return zero, err
		}
		r.failures.Add(ctx, 1)
		r.logger.Warn("runner: task failed", "worker", worker, "task", n, "attempt", tries+1, "error", err)
		if tries >= r.maxRetries {
			return zero, fmt.Errorf("task %d failed %d times: %w", n, tries+1, err)
		}
	}
}

// initSession calls init until it succeeds, reports ErrNoMoreWork, or the
// context ends.
func (r *Runner[S, W, O]) initSession(ctx context.Context, worker int) (W, error) {
	delay := r.initBackoff
	for {
		session, err := r.init(ctx, worker, r.seed)
		if err == nil || errors.Is(err, ErrNoMoreWork) {
			return session, err
		}
		if ctx.Err() != nil {
			return session, ctx.Err()
		}
		r.logger.Warn("runner: worker init failed", "worker", worker, "error", err)
		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		}
		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-time.After(wait):
		}
		delay = min(delay*2, r.maxBackoff)
	}
}

func closeSession(session any) {
	if c, ok := session.(io.Closer); ok {
		_ = c.Close()
	}
}

func (r *Runner[S, W, O]) registerMetrics() {
	meter := telemetry.Meter("kiroku/runner")

	r.tasks = counter(meter, "kiroku.runner.tasks", "Tasks completed and handed to the ordered output")
	r.failures = counter(meter, "kiroku.runner.task_failures", "Task attempts that returned an error")
	r.reinits = counter(meter, "kiroku.runner.reinits", "Worker sessions discarded and rebuilt")
	_, _ = meter.Int64ObservableGauge("kiroku.runner.pending_outputs",
		metric.WithDescription("Outputs completed out of order and waiting to be emitted"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.pending.Load())
			return nil
		}),
	)
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil || c == nil {
		return noop.Int64Counter{}
	}
	return c
}
