package speech

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

const DefaultWhisperModel = "whisper-1"

type WhisperConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Whisper transcribes recordings through the OpenAI audio API.
type Whisper struct {
	client     openai.Client
	model      string
	configured bool
	logger     zerolog.Logger
}

func NewWhisper(cfg WhisperConfig, logger zerolog.Logger, opts ...option.RequestOption) *Whisper {
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	all := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		all = append(all, option.WithBaseURL(cfg.BaseURL))
	}
	all = append(all, opts...)
	return &Whisper{
		client:     openai.NewClient(all...),
		model:      cfg.Model,
		configured: strings.TrimSpace(cfg.APIKey) != "",
		logger:     logger.With().Str("provider", "whisper").Logger(),
	}
}

var audioTypes = map[string]string{
	".webm": "audio/webm",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
}

func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if !w.configured {
		return "", fmt.Errorf("whisper: %w", reflection.ErrNotConfigured)
	}
	if filename == "" {
		filename = "recording.webm"
	}
	contentType, ok := audioTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		contentType = "application/octet-stream"
	}
	start := time.Now()

	res, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, contentType),
		Model: openai.AudioModel(w.model),
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	w.logger.Debug().Int("chars", len(text)).Dur("took", time.Since(start)).Msg("recording transcribed")
	return text, nil
}
