package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

func TestElevenLabs_Narrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/text-to-speech/"+ElevenLabsDefaultVoice, r.URL.Path)
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		var body elevenLabsReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "How intense is it?", body.Text)
		assert.Equal(t, ElevenLabsDefaultModel, body.ModelID)
		assert.InDelta(t, 0.5, body.VoiceSettings["stability"], 1e-9)
		assert.InDelta(t, 0.75, body.VoiceSettings["similarity_boost"], 1e-9)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-mp3-bytes"))
	}))
	defer srv.Close()

	e := NewElevenLabs(ElevenLabsConfig{APIKey: "xi-key", BaseURL: srv.URL}, zerolog.Nop())
	audio, err := e.Narrate(context.Background(), "How intense is it?")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-mp3-bytes"), audio)
	assert.Equal(t, ElevenLabsDefaultVoice+"/"+ElevenLabsDefaultModel, e.Voice())
}

func TestElevenLabs_Errors(t *testing.T) {
	_, err := NewElevenLabs(ElevenLabsConfig{}, zerolog.Nop()).Narrate(context.Background(), "x")
	assert.ErrorIs(t, err, reflection.ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer srv.Close()
	_, err = NewElevenLabs(ElevenLabsConfig{APIKey: "bad", BaseURL: srv.URL}, zerolog.Nop()).Narrate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultWhisperModel, r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "note.webm", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "fake-audio", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  I keep thinking about it  "}`))
	}))
	defer srv.Close()

	wh := NewWhisper(WhisperConfig{APIKey: "sk-test", BaseURL: srv.URL}, zerolog.Nop(), option.WithMaxRetries(0))
	text, err := wh.Transcribe(context.Background(), strings.NewReader("fake-audio"), "note.webm")
	require.NoError(t, err)
	assert.Equal(t, "I keep thinking about it", text)
}

func TestWhisper_NotConfigured(t *testing.T) {
	_, err := NewWhisper(WhisperConfig{}, zerolog.Nop()).Transcribe(context.Background(), strings.NewReader("x"), "a.wav")
	assert.ErrorIs(t, err, reflection.ErrNotConfigured)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func (m *mapCache) GetAudio(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	b, ok := m.entries[key]
	return b, ok, nil
}

func (m *mapCache) SetAudio(ctx context.Context, key string, audio []byte, ttl time.Duration) error {
	_ = ctx
	_ = ttl
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = audio
	return nil
}

type countingNarrator struct {
	calls int
	err   error
}

func (n *countingNarrator) Narrate(ctx context.Context, text string) ([]byte, error) {
	_ = ctx
	n.calls++
	if n.err != nil {
		return nil, n.err
	}
	return []byte("audio:" + text), nil
}

func TestCachedNarrator(t *testing.T) {
	ctx := context.Background()
	next := &countingNarrator{}
	cache := &mapCache{entries: map[string][]byte{}}
	c := NewCachedNarrator(next, cache, "voice-a", time.Hour, zerolog.Nop())

	a1, err := c.Narrate(ctx, "hello")
	require.NoError(t, err)
	a2, err := c.Narrate(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, 1, next.calls)

	_, err = c.Narrate(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	assert.NotEqual(t, CacheKey("voice-a", "hello"), CacheKey("voice-b", "hello"))

	cache.getErr = errors.New("redis down")
	_, err = c.Narrate(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)

	cache.getErr = nil
	next.err = errors.New("tts down")
	_, err = c.Narrate(ctx, "never cached")
	assert.EqualError(t, err, "tts down")
}
