package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/pkg/anthropic"
	anthropicmocks "github.com/sells-group/answer-router/pkg/anthropic/mocks"
	"github.com/sells-group/answer-router/pkg/gemini"
	geminimocks "github.com/sells-group/answer-router/pkg/gemini/mocks"
)

type stubProvider struct{ id string }

func (s stubProvider) ID() string { return s.id }

func (s stubProvider) Invoke(context.Context, Request) (*Completion, error) {
	return &Completion{Text: s.id}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(stubProvider{id: "b"})
	r.Register(stubProvider{id: "a"})
	r.Register(Unconfigured("c", "missing key"))

	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())
	assert.Equal(t, []string{"a", "b"}, r.Configured())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("zzz"))

	p, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", p.ID())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_ReplaceSameID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(Unconfigured("a", "missing key"))
	r.Register(stubProvider{id: "a"})

	assert.Equal(t, []string{"a"}, r.IDs())
	assert.Equal(t, []string{"a"}, r.Configured())
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()

	p := Unconfigured("claude-haiku-4-5-20251001", "ANTHROPIC key not set")
	_, err := p.Invoke(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Contains(t, err.Error(), "ANTHROPIC key not set")
}

type codeErr int

func (c codeErr) Error() string   { return fmt.Sprintf("status %d", int(c)) }
func (c codeErr) HTTPStatus() int { return int(c) }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"rate limited", codeErr(http.StatusTooManyRequests), KindRateLimited},
		{"unauthorized", codeErr(http.StatusUnauthorized), KindUnavailable},
		{"forbidden", codeErr(http.StatusForbidden), KindUnavailable},
		{"gateway timeout", codeErr(http.StatusGatewayTimeout), KindTimeout},
		{"server error", codeErr(http.StatusInternalServerError), KindUpstream},
		{"plain", errors.New("boom"), KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("m", tt.err)
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, "m", pe.Provider)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_NilAndAlreadyClassified(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Classify("m", nil))

	orig := Malformed("x", "empty response")
	assert.Same(t, orig, Classify("m", orig))
	assert.Equal(t, KindMalformed, KindOf(orig))
	assert.Equal(t, KindUpstream, KindOf(errors.New("raw")))
}

func TestAnthropic_Invoke(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 300 &&
			req.System == "sys" &&
			len(req.Messages) == 1 && req.Messages[0].Content == "question" &&
			req.Temperature != nil && *req.Temperature == 0.1
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "answer"}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil)

	p := NewAnthropic("claude-haiku-4-5-20251001", client, cost.NewCalculator(cost.DefaultRates()))
	assert.Equal(t, "claude-haiku-4-5-20251001", p.ID())

	got, err := p.Invoke(context.Background(), Request{System: "sys", Prompt: "question", MaxTokens: 300, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "answer", got.Text)
	assert.Equal(t, 100, got.PromptTokens)
	assert.Equal(t, 50, got.CompletionTokens)
}

func TestAnthropic_EmptyTextIsMalformed(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "  "}},
	}, nil)

	_, err := NewAnthropic("m", client, nil).Invoke(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestAnthropic_ErrorClassified(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.StatusError{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")})

	_, err := NewAnthropic("m", client, nil).Invoke(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestGemini_Invoke(t *testing.T) {
	t.Parallel()

	client := geminimocks.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.Model == "gemini-2.5-flash" && req.Prompt == "q" && req.MaxTokens == 500
	})).Return(&gemini.GenerateResponse{Text: "hello", PromptTokens: 7, CompletionTokens: 3}, nil)

	got, err := NewGemini("gemini-2.5-flash", client).Invoke(context.Background(), Request{Prompt: "q", MaxTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, 7, got.PromptTokens)
	assert.Equal(t, 3, got.CompletionTokens)
}

func TestGemini_EmptyAndError(t *testing.T) {
	t.Parallel()

	client := geminimocks.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.Prompt == "empty"
	})).Return(&gemini.GenerateResponse{FinishReason: "SAFETY"}, nil)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.Prompt == "fail"
	})).Return(nil, context.DeadlineExceeded)

	p := NewGemini("gemini-2.5-pro", client)

	_, err := p.Invoke(context.Background(), Request{Prompt: "empty"})
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
	assert.Contains(t, err.Error(), "SAFETY")

	_, err = p.Invoke(context.Background(), Request{Prompt: "fail"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}
