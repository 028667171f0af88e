package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rkm/farm-health/internal/metrics"
)

// Outcome is the resolution of a submitted request: either a Result or an
// error, never both.
type Outcome struct {
	Result *Result
	Err    error
}

// Future is the pending outcome of a submitted request. It resolves exactly once.
type Future struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future that is already resolved with o.
func Resolved(o Outcome) *Future {
	f := NewFuture()
	f.Resolve(o)
	return f
}

// Resolve sets the outcome. Calls after the first are ignored.
func (f *Future) Resolve(o Outcome) {
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
	})
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the outcome if the future has resolved.
func (f *Future) Outcome() (Outcome, bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Orchestrator issues analysis requests. Each Submit is a single attempt;
// retrying is left to the user.
type Orchestrator struct {
	analyzer Analyzer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator. timeout bounds each request; zero
// means no bound beyond the analyzer's own.
func NewOrchestrator(analyzer Analyzer, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		analyzer: analyzer,
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the orchestrator
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Submit starts the request in the background and returns its Future.
//
// The request outlives ctx cancellation: callers typically submit from an
// HTTP handler whose context ends long before the service answers. Values
// carried by ctx are kept.
func (o *Orchestrator) Submit(ctx context.Context, req Request) *Future {
	f := NewFuture()

	go func() {
		reqCtx := context.WithoutCancel(ctx)
		if o.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(reqCtx, o.timeout)
			defer cancel()
		}

		start := time.Now()
		metrics.AnalysisInFlight.Inc()
		result, err := o.analyzer.Analyze(reqCtx, req)
		metrics.AnalysisInFlight.Dec()

		err = normalizeError(err)
		if err == nil && result == nil {
			err = &ConnectivityError{Err: errors.New("empty response from analysis service")}
		}
		if err != nil {
			result = nil
		}
		metrics.ObserveAnalysis(outcomeLabel(err), time.Since(start))

		o.logger.InfoContext(reqCtx, "analysis request resolved",
			slog.String("request_id", req.ID),
			slog.String("crop_type", string(req.CropType)),
			slog.String("outcome", outcomeLabel(err)),
			slog.Duration("duration", time.Since(start)),
		)

		f.Resolve(Outcome{Result: result, Err: err})
	}()

	return f
}

// normalizeError makes sure every failure is either a ServiceError or a
// ConnectivityError.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectivityError{Err: err}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return "service_error"
	}
	return "connectivity_error"
}
