package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
)

func TestCircuitBreaker_Execute(t *testing.T) {
	tests := []struct {
		name           string
		setupFunc      func(*gateway.CircuitBreaker)
		cancelCtx      bool
		function       func() error
		expectedErr    error
		expectedErrMsg string
	}{
		{
			name:     "successful execution",
			function: func() error { return nil },
		},
		{
			name:           "function returns error",
			function:       func() error { return errors.New("test error") },
			expectedErrMsg: "test error",
		},
		{
			name:        "context cancelled",
			cancelCtx:   true,
			function:    func() error { return nil },
			expectedErr: context.Canceled,
		},
		{
			name: "circuit breaker open",
			setupFunc: func(cb *gateway.CircuitBreaker) {
				for i := 0; i < 10; i++ {
					_ = cb.Execute(context.Background(), func() error {
						return errors.New("failure")
					})
				}
			},
			function:    func() error { return nil },
			expectedErr: gateway.ErrCircuitOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.CircuitBreakerConfig{
				MaxRequests:      3,
				Interval:         10,
				Timeout:          60,
				FailureRatio:     0.5,
				ConsecutiveFails: 3,
			}
			cb := gateway.NewCircuitBreaker("test", cfg, zap.NewNop())

			if tt.setupFunc != nil {
				tt.setupFunc(cb)
			}

			ctx := context.Background()
			if tt.cancelCtx {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				cancel()
			}

			err := cb.Execute(ctx, tt.function)

			switch {
			case tt.expectedErr != nil:
				assert.ErrorIs(t, err, tt.expectedErr)
			case tt.expectedErrMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErrMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	cfg := &config.CircuitBreakerConfig{
		MaxRequests:      3,
		Interval:         10,
		Timeout:          1,
		FailureRatio:     0.5,
		ConsecutiveFails: 2,
	}
	cb := gateway.NewCircuitBreaker("provider", cfg, zap.NewNop())

	assert.Equal(t, "provider", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.GetState())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.New("failure")
		})
	}

	assert.Equal(t, gobreaker.StateOpen, cb.GetState())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")

	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.GetState())

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	}
	assert.Equal(t, gobreaker.StateClosed, cb.GetState())
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	cfg := &config.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		FailureRatio:     0.5,
		ConsecutiveFails: 2,
	}
	cb := gateway.NewCircuitBreaker("storage", cfg, zap.NewNop())

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func() error {
			return &gateway.StatusError{Service: "storage", StatusCode: http.StatusBadRequest}
		})
		var statusErr *gateway.StatusError
		require.ErrorAs(t, err, &statusErr)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.GetState())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return &gateway.StatusError{Service: "storage", StatusCode: http.StatusBadGateway}
		})
	}
	assert.Equal(t, gobreaker.StateClosed, cb.GetState(), "2 of 7 requests failed")
}

func TestCircuitBreaker_GetCounts(t *testing.T) {
	cfg := &config.CircuitBreakerConfig{
		MaxRequests:      10,
		Interval:         60,
		Timeout:          60,
		FailureRatio:     0.8,
		ConsecutiveFails: 10,
	}
	cb := gateway.NewCircuitBreaker("test", cfg, zap.NewNop())

	requests, failures := cb.GetCounts()
	assert.Equal(t, uint32(0), requests)
	assert.Equal(t, uint32(0), failures)

	for i := 0; i < 5; i++ {
		if i%2 == 0 {
			require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
		} else {
			require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("failure") }))
		}
	}

	requests, failures = cb.GetCounts()
	assert.Equal(t, uint32(5), requests)
	assert.Equal(t, uint32(2), failures)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{status: http.StatusBadRequest, temporary: false},
		{status: http.StatusNotFound, temporary: false},
		{status: http.StatusRequestTimeout, temporary: true},
		{status: http.StatusTooManyRequests, temporary: true},
		{status: http.StatusInternalServerError, temporary: true},
		{status: http.StatusServiceUnavailable, temporary: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &gateway.StatusError{Service: "provider", StatusCode: tt.status, Body: "boom"}
			assert.Equal(t, tt.temporary, err.Temporary())
			assert.Contains(t, err.Error(), "provider responded with status")
		})
	}
}
