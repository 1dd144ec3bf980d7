package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/answer-router/internal/config"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/provider"
	"github.com/sells-group/answer-router/internal/router"
)

const simpleClassification = `{"complexity": "simple", "intent": "factual", "domain": "general", "requires_search": false, "reasoning": "lookup", "confidence": 0.95}`

// stubProvider answers classification prompts with a fixed JSON label and
// everything else with text.
type stubProvider struct {
	id   string
	text string
}

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) Invoke(_ context.Context, req provider.Request) (*provider.Completion, error) {
	if strings.Contains(req.Prompt, "You classify incoming questions") {
		return &provider.Completion{Text: simpleClassification, PromptTokens: 100, CompletionTokens: 50}, nil
	}
	return &provider.Completion{Text: s.text, PromptTokens: 200, CompletionTokens: 300}, nil
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.Server.Port = 8000
	c.Server.CORSOrigins = []string{"*"}
	c.Server.HeartbeatSecs = 60
	c.Models = config.ModelsConfig{
		Cheap:     "claude-haiku-4-5-20251001",
		Mid:       "claude-sonnet-4-5-20250929",
		Best:      "claude-opus-4-6",
		Synthesis: "claude-sonnet-4-5-20250929",
	}
	c.Cache = config.CacheConfig{Enabled: true, ResponseTTLSecs: 3600, ClassificationTTLHours: 1, SearchTTLHours: 1}
	c.RateLimit = config.RateLimitConfig{Requests: 100, WindowSecs: 60}
	c.Resilience = config.ResilienceConfig{FailureThreshold: 5, RecoverySecs: 30, HalfOpenMaxCalls: 3, MaxRetries: 1, RequestTimeoutSecs: 5, MaxConcurrent: 10}
	c.Routing = config.RoutingConfig{TemporalMinModels: 2, KnowledgeCutoffYear: 2023, KnowledgeCutoffDisplay: "October 2023"}
	c.TimeTravel = config.TimeTravelConfig{Enabled: true, MaxSnapshots: 5, Concurrency: 5, SnapshotTimeoutSecs: 5, SimilarityThreshold: 0.85, ShallowAnswerChars: 400, ResultCacheTTLHours: 1}
	c.Monitoring = config.MonitoringConfig{LatencyP95ThresholdMs: 30000, ErrorRateThreshold: 0.25}
	return c
}

// newTestApp builds an app whose tier models are the given providers.
// Tiers without a provider are registered unconfigured.
func newTestApp(t *testing.T, c *config.Config, providers ...provider.Provider) *app {
	t.Helper()
	reg := provider.NewRegistry()
	for _, m := range []string{c.Models.Cheap, c.Models.Mid, c.Models.Best} {
		reg.Register(provider.Unconfigured(m, "anthropic.key is not set"))
	}
	for _, p := range providers {
		reg.Register(p)
	}
	a, err := buildApp(c, cost.NewCalculator(cost.DefaultRates()), sources{registry: reg})
	require.NoError(t, err)
	return a
}

func serve(t *testing.T, a *app, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	buildMux(a).ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, testConfig())

	for _, path := range []string{"/health", "/api/health"} {
		rr := serve(t, a, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, false, body["api_key_configured"])
		assert.Equal(t, true, body["cache_enabled"])
	}
}

func TestRouteAndAnswer(t *testing.T) {
	a := newTestApp(t, testConfig(), &stubProvider{id: "claude-haiku-4-5-20251001", text: "Paris."})

	rr := serve(t, a, http.MethodPost, "/api/route-and-answer", map[string]any{
		"question": "What is the capital of France?",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp router.AnswerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Paris.", resp.FinalAnswer)
	assert.Equal(t, model.ComplexitySimple, resp.Classification.Complexity)
	assert.Equal(t, []string{"claude-haiku-4-5-20251001"}, resp.ModelsUsed)

	st, ok := a.collector.Stats(opRouteAndAnswer)
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)
	assert.Zero(t, st.Errors)

	rr = serve(t, a, http.MethodGet, "/api/routing-stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Statistics model.RoutingStats `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Statistics.TotalQueries)
}

func TestRouteAndAnswer_InvalidRequest(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/route-and-answer", map[string]any{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/route-and-answer", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	buildMux(a).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestRouteAndAnswer_AllProvidersFailed(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/route-and-answer", map[string]any{
		"question": "What is the capital of France?",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	detail, ok := body["detail"].(map[string]any)
	require.True(t, ok, "failed response is attached")
	assert.Equal(t, router.NoAnswer, detail["final_answer"])
	assert.Equal(t, true, detail["fallback_used"])
}

func TestEnsemble_UnknownModel(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/ensemble", map[string]any{
		"question": "Compare Go and Rust",
		"models":   []string{"no-such-model"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSynthesize_RequiresResponses(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/synthesize", map[string]any{
		"question":  "Compare Go and Rust",
		"responses": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestModelsAndCircuits(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var models router.ModelsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &models))
	assert.Len(t, models.Models, 3)

	rr = serve(t, a, http.MethodGet, "/api/circuits", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"circuits"`)
}

func TestMetricsEndpoints(t *testing.T) {
	a := newTestApp(t, testConfig())
	a.collector.Record("claude-opus-4-6", 45*time.Second, true)

	rr := serve(t, a, http.MethodGet, "/api/metrics/performance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "claude-opus-4-6")

	rr = serve(t, a, http.MethodGet, "/api/metrics/alerts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var alerts struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alerts))
	assert.Equal(t, 1, alerts.Count)

	rr = serve(t, a, http.MethodPost, "/api/metrics/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, a.collector.Collect().Operations)
}

func TestClearClassificationCache(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/clear-classification-cache", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Classification cache cleared")
}

func TestRateLimit(t *testing.T) {
	c := testConfig()
	c.RateLimit.Requests = 1
	a := newTestApp(t, c)

	rr := serve(t, a, http.MethodPost, "/api/clear-classification-cache", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, a, http.MethodPost, "/api/clear-classification-cache", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads are not limited.
	rr = serve(t, a, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTimeTravel_Ineligible(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/time-travel", map[string]any{
		"question": "What is the capital of France?",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res model.TimeTravelResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.IsEligible)
	assert.NotEmpty(t, res.SkipReason)

	rr = serve(t, a, http.MethodPost, "/api/time-travel", map[string]any{"question": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTimeTravelStream_SSE(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodPost, "/api/time-travel-stream", map[string]any{
		"question": "What is the capital of France?",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	var types []model.EventType
	for _, frame := range strings.Split(strings.TrimSpace(rr.Body.String()), "\n\n") {
		require.True(t, strings.HasPrefix(frame, "data: "), frame)
		var ev model.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []model.EventType{model.EventStart, model.EventComplete}, types)

	st, ok := a.collector.Stats(opTimeTravel)
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)
}

func TestTimeTravelWebsocket(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(buildMux(a))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/time-travel-ws?question=" +
		url.QueryEscape("What is the capital of France?")
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	defer conn.Close()      //nolint:errcheck

	var types []model.EventType
	for {
		var ev model.Event
		err := conn.ReadJSON(&ev)
		if err != nil {
			var ce *websocket.CloseError
			require.True(t, errors.As(err, &ce), err)
			assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
			break
		}
		types = append(types, ev.Type)
	}
	assert.Equal(t, []model.EventType{model.EventStart, model.EventComplete}, types)
}

func TestTimeTravelWebsocket_MissingQuestion(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(t, a, http.MethodGet, "/api/time-travel-ws", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(router.ErrInvalidRequest))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(router.ErrAllProvidersFailed))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
