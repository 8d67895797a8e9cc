package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mind-weather/internal/config"
)

var conversation = []Message{
	{Role: RoleSystem, Content: "be kind"},
	{Role: RoleUser, Content: "hello"},
}

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:latest", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, conversation, req.Messages)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi there"}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "")
	got, err := p.Chat(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
}

func TestOllamaProvider_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "x").Chat(context.Background(), conversation)
	assert.EqualError(t, err, "model not found")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	_, err = NewOllamaProvider(down.URL, "x").Chat(context.Background(), conversation)
	assert.EqualError(t, err, "ollama: status 502")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  "}}`))
	}))
	defer empty.Close()
	_, err = NewOllamaProvider(empty.URL, "x").Chat(context.Background(), conversation)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenRouterProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://mind.example", r.Header.Get("HTTP-Referer"))
		assert.Empty(t, r.Header.Get("X-Title"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"routed"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "some/model", "https://mind.example", "")
	got, err := p.Chat(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "routed", got)

	_, err = NewOpenRouterProvider(srv.URL, "", "m", "", "").Chat(context.Background(), conversation)
	assert.Error(t, err)
	_, err = NewOpenRouterProvider(srv.URL, "k", " ", "", "").Chat(context.Background(), conversation)
	assert.Error(t, err)
}

func TestOpenRouterProvider_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	_, err := NewOpenRouterProvider(srv.URL, "k", "m", "", "").Chat(context.Background(), conversation)
	assert.EqualError(t, err, "openrouter: rate limited")
}

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultOpenAIModel, body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"from openai"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", srv.URL, "", option.WithMaxRetries(0))
	require.NoError(t, err)
	got, err := p.Chat(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "from openai", got)

	_, err = NewOpenAIProvider("", "", "")
	assert.Error(t, err)
}

func TestAnthropicProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		var body struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.System, 1)
		assert.Equal(t, "be kind", body.System[0].Text)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, anthropicMaxTokens, body.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"from "},{"type":"text","text":"claude"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider("ak-test", "", anthropicopt.WithBaseURL(srv.URL), anthropicopt.WithMaxRetries(0))
	require.NoError(t, err)
	got, err := p.Chat(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "from claude", got)
}

func TestRegistry(t *testing.T) {
	reg := NewDefaultRegistry(config.Config{OllamaBaseURL: "http://ollama:11434"})
	assert.Equal(t, []string{"anthropic", "ollama", "openai", "openrouter"}, reg.Names())

	p, err := reg.Get(context.Background(), " Ollama ", "")
	require.NoError(t, err)
	op, ok := p.(*OllamaProvider)
	require.True(t, ok)
	assert.Equal(t, "http://ollama:11434", op.BaseURL)
	assert.Equal(t, "llama3:latest", op.Model)

	_, err = reg.Get(context.Background(), "openai", "")
	assert.Error(t, err, "openai without a key cannot be built")

	_, err = reg.Get(context.Background(), "nope", "")
	assert.EqualError(t, err, "unknown ai provider: nope")

	called := errors.New("called")
	reg.Register("fake", func(ctx context.Context, model string) (Provider, error) {
		return nil, called
	})
	_, err = reg.Get(context.Background(), "FAKE", "m")
	assert.ErrorIs(t, err, called)
}
