package analysis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analyzerFunc func(ctx context.Context, req Request) (*Result, error)

func (f analyzerFunc) Analyze(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

func waitOutcome(t *testing.T, f *Future) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := f.Wait(ctx)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_SubmitSuccess(t *testing.T) {
	want := &Result{Indices: map[string]IndexValue{"NDVI": Number(0.65)}, HealthStatus: "Healthy"}
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		return want, nil
	}), time.Second)

	out := waitOutcome(t, o.Submit(context.Background(), NewRequest(testBoundary(t), Wheat)))
	require.NoError(t, out.Err)
	assert.Same(t, want, out.Result)
}

func TestOrchestrator_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		calls.Add(1)
		return nil, &ConnectivityError{Err: errors.New("connection refused")}
	}), time.Second)

	out := waitOutcome(t, o.Submit(context.Background(), NewRequest(testBoundary(t), Wheat)))
	assert.Error(t, out.Err)
	assert.Nil(t, out.Result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOrchestrator_KeepsServiceError(t *testing.T) {
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		return nil, &ServiceError{Message: "No satellite data found"}
	}), time.Second)

	out := waitOutcome(t, o.Submit(context.Background(), NewRequest(testBoundary(t), Wheat)))

	var svcErr *ServiceError
	require.ErrorAs(t, out.Err, &svcErr)
	assert.Equal(t, "No satellite data found", svcErr.Message)
}

func TestOrchestrator_WrapsUnknownErrors(t *testing.T) {
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		return nil, errors.New("boom")
	}), time.Second)

	out := waitOutcome(t, o.Submit(context.Background(), NewRequest(testBoundary(t), Wheat)))

	var connErr *ConnectivityError
	assert.ErrorAs(t, out.Err, &connErr)
}

func TestOrchestrator_NilResultIsConnectivityError(t *testing.T) {
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		return nil, nil
	}), time.Second)

	out := waitOutcome(t, o.Submit(context.Background(), NewRequest(testBoundary(t), Wheat)))

	var connErr *ConnectivityError
	assert.ErrorAs(t, out.Err, &connErr)
}

func TestOrchestrator_OutlivesCallerContext(t *testing.T) {
	release := make(chan struct{})
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Result{HealthStatus: "Moderate stress"}, nil
	}), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	f := o.Submit(ctx, NewRequest(testBoundary(t), Wheat))
	cancel()
	close(release)

	out := waitOutcome(t, f)
	require.NoError(t, out.Err)
	assert.Equal(t, "Moderate stress", out.Result.HealthStatus)
}

func TestOrchestrator_Timeout(t *testing.T) {
	o := NewOrchestrator(analyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 10*time.Millisecond)

	out := waitOutcome(t, o.Submit(context.Background(), NewRequest(testBoundary(t), Wheat)))

	var connErr *ConnectivityError
	require.ErrorAs(t, out.Err, &connErr)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestFuture_ResolvesOnce(t *testing.T) {
	f := NewFuture()
	_, ok := f.Outcome()
	assert.False(t, ok)

	f.Resolve(Outcome{Result: &Result{HealthStatus: "first"}})
	f.Resolve(Outcome{Result: &Result{HealthStatus: "second"}})

	out, ok := f.Outcome()
	require.True(t, ok)
	assert.Equal(t, "first", out.Result.HealthStatus)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFuture().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCropType(t *testing.T) {
	for _, c := range CropTypes() {
		parsed, err := ParseCropType(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
		assert.True(t, c.Valid())
	}

	_, err := ParseCropType("barley")
	assert.ErrorIs(t, err, ErrUnknownCropType)
	_, err = ParseCropType("Wheat")
	assert.ErrorIs(t, err, ErrUnknownCropType)

	assert.Equal(t, Wheat, DefaultCropType)
	assert.Equal(t, "Sugarcane", Sugarcane.Label())
	assert.Len(t, CropTypes(), 5)
}
