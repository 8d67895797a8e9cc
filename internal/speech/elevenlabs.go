// Package speech holds the narration and transcription backends.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

const (
	ElevenLabsEndpoint     = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	ElevenLabsDefaultModel = "eleven_monolingual_v1"

	maxAudioBytes = 10 << 20
)

type ElevenLabsConfig struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	Stability  float64
	Similarity float64
	// BaseURL overrides ElevenLabsEndpoint.
	BaseURL string
}

type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger zerolog.Logger
}

func NewElevenLabs(cfg ElevenLabsConfig, logger zerolog.Logger) *ElevenLabs {
	if cfg.VoiceID == "" {
		cfg.VoiceID = ElevenLabsDefaultVoice
	}
	if cfg.ModelID == "" {
		cfg.ModelID = ElevenLabsDefaultModel
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.75
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ElevenLabsEndpoint
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("provider", "elevenlabs").Logger(),
	}
}

// Voice identifies the voice and model audio is rendered with.
func (e *ElevenLabs) Voice() string { return e.cfg.VoiceID + "/" + e.cfg.ModelID }

type elevenLabsReq struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings map[string]float64 `json:"voice_settings"`
}

// Narrate renders text as MP3 audio.
func (e *ElevenLabs) Narrate(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs: %w", reflection.ErrNotConfigured)
	}
	start := time.Now()

	body, err := json.Marshal(elevenLabsReq{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: map[string]float64{
			"stability":        e.cfg.Stability,
			"similarity_boost": e.cfg.Similarity,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", strings.TrimRight(e.cfg.BaseURL, "/"), e.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}

	e.logger.Debug().
		Int("audio_bytes", len(audio)).
		Dur("took", time.Since(start)).
		Msg("narration rendered")
	return audio, nil
}
