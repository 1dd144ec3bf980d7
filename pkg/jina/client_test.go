package jina

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(srvURL string, opts ...Option) Client {
	return NewClient("test-key", append([]Option{
		WithSearchBaseURL(srvURL),
		WithRetryBackoff(time.Millisecond),
	}, opts...)...)
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "/latest AI news", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{ //nolint:errcheck
			Code: 200,
			Data: []SearchResult{
				{Title: "AI roundup", URL: "https://www.example.com/ai", Description: "New models shipped.", Date: "2026-10-01"},
				{Title: "Second", URL: "https://news.example.org/b", Content: "Body text", PublishedTime: "2026-09-30"},
			},
		})
	}))
	defer srv.Close()

	resp, err := fastClient(srv.URL).Search(context.Background(), "latest AI news")
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "New models shipped.", resp.Data[0].Snippet())
	assert.Equal(t, "2026-10-01", resp.Data[0].Published())
	assert.Equal(t, "Body text", resp.Data[1].Snippet())
	assert.Equal(t, "2026-09-30", resp.Data[1].Published())
}

func TestSearch_QueryParameters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "example.com", r.URL.Query().Get("site"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{ //nolint:errcheck
			Code: 200,
			Data: []SearchResult{{Title: "a"}, {Title: "b"}, {Title: "c"}},
		})
	}))
	defer srv.Close()

	resp, err := fastClient(srv.URL).Search(context.Background(), "q", WithSiteFilter("example.com"), WithCount(2))
	require.NoError(t, err)
	assert.Len(t, resp.Data, 2)
}

func TestSearch_NoResults422(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	resp, err := fastClient(srv.URL).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 422, resp.Code)
}

func TestSearch_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.HTTPStatus())
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal search response")
}

func TestSearch_RetryOn500(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(SearchResponse{Code: 200, Data: []SearchResult{{Title: "ok"}}}) //nolint:errcheck
	}))
	defer srv.Close()

	resp, err := fastClient(srv.URL).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_RetryExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(maxAttempts), calls.Load())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestSearch_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(ctx, "q")
	require.Error(t, err)
}

func TestRetryableStatusCode(t *testing.T) {
	t.Parallel()

	for code, want := range map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusOK:                  false,
	} {
		assert.Equalf(t, want, retryableStatusCode(code), "status %d", code)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	hc := NewClient("my-key").(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, "https://s.jina.ai", hc.searchBaseURL)
	assert.Equal(t, time.Second, hc.backoff)
	assert.Nil(t, hc.limiter)

	limited := NewClient("k", WithRateLimit(2), WithHTTPClient(&http.Client{})).(*httpClient)
	assert.NotNil(t, limited.limiter)
}
