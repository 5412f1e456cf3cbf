package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", Options{Model: "test-model", Temperature: 0.1}, nil)
}

func completionBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestComplete_ReturnsTrimmedText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(completionBody("  pricing \n")))
	})

	got, err := c.Complete(context.Background(), "classify this", "system msg")
	require.NoError(t, err)
	assert.Equal(t, "pricing", got)
}

func TestCompleteJSON_StripsCodeFences(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"sections\": []}\n```")))
	})

	raw, err := c.CompleteJSON(context.Background(), "analyze", "sys")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sections": []}`, string(raw))
}

func TestCompleteJSON_RejectsNonJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("sorry, I cannot help with that")))
	})

	_, err := c.CompleteJSON(context.Background(), "analyze", "sys")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestComplete_ServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.Complete(context.Background(), "p", "")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestComplete_ClientErrorIsNotRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := c.Complete(context.Background(), "p", "")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("OK")))
	})
	assert.NoError(t, c.Ping(context.Background()))

	bad := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("no idea")))
	})
	assert.Error(t, bad.Ping(context.Background()))
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("schema violation")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &RetryableError{StatusCode: 503, Message: "busy"}
			}
			return "done", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, &RetryableError{StatusCode: 500}
		})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, calls)
}

func TestStats_Snapshot(t *testing.T) {
	s := NewStats(time.Hour)
	for _, ms := range []int64{10, 20, 30, 40} {
		s.Record(ms)
	}
	snap := s.Snapshot()
	assert.Equal(t, 4, snap.Count)
	assert.Equal(t, int64(10), snap.MinMs)
	assert.Equal(t, int64(40), snap.MaxMs)
	assert.InDelta(t, 25.0, snap.AvgMs, 0.001)
	assert.InDelta(t, 25.0, snap.P50Ms, 0.001)
}

func TestStats_EmptySnapshot(t *testing.T) {
	s := NewStats(time.Hour)
	assert.Equal(t, Snapshot{}, s.Snapshot())
}
