package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/circuit"
	"mercator-hq/sentinel/pkg/limits/ratelimit"
	"mercator-hq/sentinel/pkg/limits/storage"
	"mercator-hq/sentinel/pkg/telemetry/logging"
	"mercator-hq/sentinel/pkg/tokens"
)

// Governor owns one rate limiter, budget tracker, circuit breaker and job
// registry, and runs every outbound call through them in order.
//
// A Governor is built once at startup and passed to the code that talks to
// backends. Tests build their own.
//
// # Example
//
//	gov := limits.NewGovernor(limits.Config{
//	    RateLimit: ratelimit.Config{MaxPerMinute: 60},
//	    Budget:    budget.Config{MaxTokensPerDay: 2_000_000},
//	})
//	defer gov.Close(context.Background())
//
//	res, err := gov.Execute(ctx, limits.Call{
//	    Operation:       "review",
//	    Params:          map[string]string{"cwd": repo},
//	    EstimatedTokens: 8000,
//	}, func(ctx context.Context, _ jobs.ProgressFunc) (limits.Result, error) {
//	    out, tokens, err := runBackend(ctx)
//	    return limits.Result{Usage: limits.Usage{Tokens: tokens}, Value: out}, err
//	})
type Governor struct {
	limiter  *ratelimit.Limiter
	budget   *budget.Tracker
	breaker  *circuit.Breaker
	registry *jobs.Registry
	running  *ratelimit.ConcurrencyLimiter

	store     storage.CounterStore
	estimator tokens.Estimator
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	clock     func() time.Time
}

// Config configures the components owned by a Governor.
type Config struct {
	RateLimit ratelimit.Config
	Budget    budget.Config
	Circuit   circuit.Config
	Jobs      jobs.Config

	// MaxRunningJobs caps how many submitted jobs execute at once.
	// Zero means no cap.
	MaxRunningJobs int
}

// Option configures a Governor.
type Option func(*Governor)

// WithStore shares rate limit and budget counters through store.
// The Governor does not close the store.
func WithStore(store storage.CounterStore) Option {
	return func(g *Governor) { g.store = store }
}

// WithEstimator estimates EstimatedTokens for calls that carry a Prompt.
func WithEstimator(e tokens.Estimator) Option {
	return func(g *Governor) { g.estimator = e }
}

// WithMetrics records Prometheus metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(g *Governor) { g.metrics = m }
}

// WithTracer creates spans on tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Governor) { g.tracer = tracer }
}

// WithLogger sets the logger for the Governor and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Governor) { g.logger = logger }
}

// WithClock overrides time.Now for every component. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Governor) { g.clock = clock }
}

// NewGovernor builds the components from cfg.
func NewGovernor(cfg Config, opts ...Option) *Governor {
	g := &Governor{}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	if g.tracer == nil {
		g.tracer = noop.NewTracerProvider().Tracer("sentinel")
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	rl := cfg.RateLimit
	rl.Store = g.store
	rl.Logger = g.logger
	rl.Clock = g.clock
	onStoreError := rl.OnStoreError
	rl.OnStoreError = func(key string, err error) {
		g.metrics.RecordRateLimitStoreError()
		if onStoreError != nil {
			onStoreError(key, err)
		}
	}

	bc := cfg.Budget
	bc.Store = g.store
	bc.Logger = g.logger
	bc.Clock = g.clock

	cc := cfg.Circuit
	cc.Logger = g.logger
	cc.Clock = g.clock
	onStateChange := cc.OnStateChange
	cc.OnStateChange = func(key string, from, to circuit.State) {
		g.metrics.RecordCircuitTransition(from, to)
		g.metrics.UpdateOpenCircuits(g.breaker.Stats().Open)
		if onStateChange != nil {
			onStateChange(key, from, to)
		}
	}

	jc := cfg.Jobs
	jc.Logger = g.logger
	jc.Clock = g.clock

	g.limiter = ratelimit.NewLimiter(rl)
	g.budget = budget.NewTracker(bc)
	g.breaker = circuit.NewBreaker(cc)
	g.registry = jobs.NewRegistry(jc)
	g.running = ratelimit.NewConcurrencyLimiter(cfg.MaxRunningJobs)
	g.logger = g.logger.With("component", "governor")

	return g
}

// Execute runs fn through rate limiting, budget, circuit breaking and
// reservation, then records the outcome:
//
//	rate limit -> budget check -> circuit -> reserve -> fn
//	success: commit actual usage, record circuit success
//	failure: release reservation, record circuit failure
//
// Admission failures are returned as *LimitError. Errors from fn are
// returned unchanged. The reservation is resolved on every path, including
// a panic in fn, which is re-raised afterwards.
//
// If fn succeeds but the shared budget store cannot record the usage, the
// result is returned together with an error matching ErrStoreUnavailable.
func (g *Governor) Execute(ctx context.Context, call Call, fn CallFunc) (Result, error) {
	return g.execute(ctx, call, fn, func(int) {}, false)
}

// execute runs the governed sequence. admitted is set by Submit, which has
// already spent the rate limit slot and run the budget check; the job body
// starts at the circuit check.
func (g *Governor) execute(ctx context.Context, call Call, fn CallFunc, progress jobs.ProgressFunc, admitted bool) (result Result, err error) {
	key := circuit.MakeKey(call.Operation, call.Params)
	estimate := g.estimate(call)

	ctx, span := g.tracer.Start(ctx, "sentinel.execute", trace.WithAttributes(
		attribute.String("sentinel.operation", call.Operation),
		attribute.String("sentinel.circuit_key", key),
		attribute.Int64("sentinel.estimated_tokens", estimate),
	))
	start := time.Now()
	defer func() {
		outcome := "success"
		var limitErr *LimitError
		switch {
		case errors.As(err, &limitErr):
			outcome = string(limitErr.Type)
		case err != nil:
			outcome = "error"
		}
		g.metrics.RecordCall(call.Operation, outcome, time.Since(start))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !admitted {
		if err := g.admit(ctx, call.RateKey); err != nil {
			return Result{}, err
		}
	}
	if err := g.checkCircuit(key); err != nil {
		return Result{}, err
	}

	res, err := g.budget.Reserve(ctx, estimate)
	g.metrics.RecordBudgetCheck("reserve", err)
	if err != nil {
		g.breaker.Abort(key)
		return Result{}, &LimitError{Type: LimitBudget, Err: err}
	}
	span.AddEvent("reserved", trace.WithAttributes(attribute.String("sentinel.reservation_id", res.ID)))

	// Resolution must survive the caller cancelling ctx.
	bg := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			g.breaker.RecordFailure(key, fmt.Errorf("call panicked: %v", p))
			g.release(bg, res)
			panic(p)
		}
	}()

	result, err = fn(ctx, progress)
	if err != nil {
		g.breaker.RecordFailure(key, err)
		g.release(bg, res)
		return result, err
	}

	g.breaker.RecordSuccess(key)
	if err := g.commit(bg, call.Operation, result.Usage, res); err != nil {
		return result, err
	}
	span.SetAttributes(attribute.Int64("sentinel.tokens", result.Usage.Tokens))
	return result, nil
}

// estimate returns the tokens to reserve for call.
func (g *Governor) estimate(call Call) int64 {
	if call.EstimatedTokens > 0 || call.Prompt == "" || g.estimator == nil {
		return call.EstimatedTokens
	}
	model := call.Params["model"]
	return g.estimator.Estimate(call.Prompt, model, call.MaxOutputTokens)
}

// admit runs the rate limit and the budget check.
func (g *Governor) admit(ctx context.Context, rateKey string) error {
	err := g.limiter.Check(ctx, rateKey)
	g.metrics.RecordRateLimitCheck(err)
	if err != nil {
		limitErr := &LimitError{Type: LimitRate, Key: rateKey, Err: err}
		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			limitErr.Key = exceeded.Key
			limitErr.RetryAfter = exceeded.RetryAfter
		}
		return limitErr
	}

	err = g.budget.Check(ctx)
	g.metrics.RecordBudgetCheck("check", err)
	if err != nil {
		return &LimitError{Type: LimitBudget, Err: err}
	}
	return nil
}

func (g *Governor) checkCircuit(key string) error {
	d := g.breaker.CanExecute(key)
	if d.Allowed {
		return nil
	}
	return &LimitError{
		Type:       LimitCircuit,
		Key:        key,
		RetryAfter: d.RetryAfter,
		Err:        d.Err(key),
	}
}

// commit charges actual usage. A reservation that expired while the call
// ran is gone, so its usage is charged directly instead.
func (g *Governor) commit(ctx context.Context, operation string, usage Usage, res *budget.Reservation) error {
	err := g.budget.Commit(ctx, operation, usage.Tokens, usage.CostUSD, res)
	if errors.Is(err, budget.ErrReservationFinalized) {
		g.logger.Warn("reservation expired before commit, charging usage directly",
			"reservation_id", res.ID,
			"operation", operation,
			"tokens", usage.Tokens,
		)
		err = g.budget.Commit(ctx, operation, usage.Tokens, usage.CostUSD, nil)
	}
	g.metrics.RecordBudgetResolution("commit", err)

	if err != nil {
		g.logger.Error("failed to commit usage",
			"reservation_id", res.ID,
			"operation", operation,
			"tokens", usage.Tokens,
			"error", err,
		)
		return fmt.Errorf("commit usage: %w", err)
	}

	g.metrics.RecordTokensCommitted(usage.Tokens)
	g.refreshBudgetMetrics(ctx)
	return nil
}

func (g *Governor) release(ctx context.Context, res *budget.Reservation) {
	err := g.budget.Release(ctx, res)
	g.metrics.RecordBudgetResolution("release", err)
	if err != nil {
		g.logger.Error("failed to release reservation",
			"reservation_id", res.ID,
			"amount", res.Amount,
			"error", err,
		)
		return
	}
	g.refreshBudgetMetrics(ctx)
}

func (g *Governor) refreshBudgetMetrics(ctx context.Context) {
	if status, err := g.budget.Status(ctx); err == nil {
		g.metrics.UpdateBudget(status)
	}
}

// Submit runs a call as a background job and returns the job id.
//
// The running-job cap, rate limit and budget check run before the job is
// created, so a caller over its limits is rejected at once with a
// *LimitError. Admission is not repeated inside the job, so each submitted
// call spends one rate limit slot. A job that loses the race for the last
// running slot fails with a concurrency *LimitError. The circuit check,
// reservation and call run inside the job; a rejection there leaves the
// job failed with the rejection as its error.
// The job result is the call's Result.
func (g *Governor) Submit(ctx context.Context, call Call, fn CallFunc) (string, error) {
	if g.running.Full() {
		g.metrics.RecordConcurrencyRejected()
		return "", &LimitError{Type: LimitConcurrency, Err: ratelimit.ErrConcurrencyExceeded}
	}
	if err := g.admit(ctx, call.RateKey); err != nil {
		return "", err
	}

	metadata := maps.Clone(call.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["operation"] = call.Operation
	metadata["circuit_key"] = circuit.MakeKey(call.Operation, call.Params)

	parent := trace.SpanContextFromContext(ctx)

	id := g.registry.Create(func(jobCtx context.Context, job jobs.Job, progress jobs.ProgressFunc) (any, error) {
		defer g.metrics.UpdateJobs(g.registry.Counts())

		jobCtx = trace.ContextWithRemoteSpanContext(jobCtx, parent)
		jobCtx = logging.WithOperation(logging.WithJobID(jobCtx, job.ID), call.Operation)
		jobCtx, span := g.tracer.Start(jobCtx, "sentinel.job", trace.WithAttributes(
			attribute.String("sentinel.job_id", job.ID),
		))
		defer span.End()

		if !g.running.Acquire() {
			g.metrics.RecordConcurrencyRejected()
			err := &LimitError{Type: LimitConcurrency, Err: ratelimit.ErrConcurrencyExceeded}
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		defer g.running.Release()

		result, err := g.execute(jobCtx, call, fn, progress, true)
		if err != nil {
			return nil, err
		}
		return result, nil
	}, metadata)

	g.metrics.RecordJobSubmitted()
	g.metrics.UpdateJobs(g.registry.Counts())
	g.logger.InfoContext(ctx, "job submitted", "job_id", id, "operation", call.Operation)

	return id, nil
}

// Sweep evicts stale jobs and expires stale reservations. The Sweeper calls
// it on a schedule; lazy eviction happens regardless.
func (g *Governor) Sweep(ctx context.Context) (evictedJobs int, expiredReservations int) {
	evictedJobs = g.registry.Evict()

	now := time.Now()
	if g.clock != nil {
		now = g.clock()
	}
	expired := g.budget.ExpireReservations(ctx, now)
	for range expired {
		g.metrics.RecordBudgetResolution("expire", nil)
	}

	g.metrics.UpdateJobs(g.registry.Counts())
	g.refreshBudgetMetrics(ctx)
	return evictedJobs, len(expired)
}

// SetLimits applies new rate, budget and running-job caps to the running
// components.
func (g *Governor) SetLimits(maxPerMinute int, maxTokensPerDay int64, maxRunningJobs int) {
	g.limiter.SetLimit(maxPerMinute)
	g.budget.SetLimit(maxTokensPerDay)
	g.running.SetLimit(maxRunningJobs)
	g.logger.Info("limits updated",
		"max_per_minute", maxPerMinute,
		"max_tokens_per_day", maxTokensPerDay,
		"max_running_jobs", maxRunningJobs,
	)
}

// RunningJobs returns how many submitted jobs hold a running slot and the
// configured cap (0 when uncapped).
func (g *Governor) RunningJobs() (inFlight, limit int64) {
	return g.running.InFlight(), g.running.Limit()
}

// RateLimiter returns the rate limiter.
func (g *Governor) RateLimiter() *ratelimit.Limiter { return g.limiter }

// Budget returns the budget tracker.
func (g *Governor) Budget() *budget.Tracker { return g.budget }

// Breaker returns the circuit breaker.
func (g *Governor) Breaker() *circuit.Breaker { return g.breaker }

// Jobs returns the job registry.
func (g *Governor) Jobs() *jobs.Registry { return g.registry }

// Close stops accepting jobs and waits for running jobs until ctx ends.
// The shared store is not closed.
func (g *Governor) Close(ctx context.Context) error {
	return g.registry.Shutdown(ctx)
}
