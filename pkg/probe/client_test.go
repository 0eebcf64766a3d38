package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		ModelID:    "model-7",
		EngineType: "toxicity",
		Metrics:    []string{"hate_speech", "profanity"},
	}
}

func TestCollect_Success(t *testing.T) {
	var gotTrace, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("traceparent")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model_version":"2.1.0","metrics":{"hate_speech":91.5,"profanity":88},"sample_size":200}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Collect(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "2.1.0", resp.ModelVersion)
	assert.Equal(t, 200, resp.SampleSize)
	assert.InDelta(t, 91.5, resp.Metrics["hate_speech"], 1e-9)
	assert.Equal(t, "application/json", gotContentType)
	assert.NotEmpty(t, gotTrace, "probe calls must carry trace context")
}

func TestCollect_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"metrics":{"hate_speech":70},"sample_size":10}`))
	}))
	defer server.Close()

	client := NewClient(server.URL).WithRetryBase(time.Millisecond)
	resp, err := client.Collect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.InDelta(t, 70, resp.Metrics["hate_speech"], 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCollect_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL).WithRetryBase(time.Millisecond)
	_, err := client.Collect(context.Background(), testRequest())

	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, DefaultMaxRetries+1, epErr.Attempts)
	assert.Equal(t, int32(DefaultMaxRetries+1), calls.Load())
	assert.Equal(t, server.URL, epErr.Endpoint)
}

func TestCollect_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL).WithRetryBase(time.Millisecond)
	_, err := client.Collect(context.Background(), testRequest())

	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, 1, epErr.Attempts, "4xx responses are not retried")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCollect_RejectsEmptyResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Collect(context.Background(), testRequest())

	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.Contains(t, epErr.Err.Error(), "no metrics")
}

func TestCollect_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// A long backoff would follow the first failure; the context
	// deadline must cut it short.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL).WithRetryBase(10 * time.Second)
	start := time.Now()
	_, err := client.Collect(ctx, testRequest())
	elapsed := time.Since(start)

	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestCollect_BreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL).
		WithRetryBase(time.Millisecond).
		WithMaxRetries(0).
		WithBreaker(NewBreaker(server.URL, 1, time.Hour))

	_, err := client.Collect(context.Background(), testRequest())
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	_, err = client.Collect(context.Background(), testRequest())
	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, int32(1), calls.Load(), "open breaker must not touch the endpoint")
}
