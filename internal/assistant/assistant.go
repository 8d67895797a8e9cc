// Package assistant turns a chat provider into the reflection assistant:
// short insights and batch categorization.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/ai"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

// ErrUnreadable is returned when a categorization reply holds no JSON object.
var ErrUnreadable = errors.New("assistant: unreadable categorization reply")

type Assistant struct {
	provider ai.Provider
	logger   zerolog.Logger
}

func New(p ai.Provider, logger zerolog.Logger) *Assistant {
	return &Assistant{provider: p, logger: logger}
}

func (a *Assistant) Insight(ctx context.Context, req reflection.InsightRequest) (string, error) {
	reply, err := a.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: insightSystem},
		{Role: ai.RoleUser, Content: insightPrompt(req)},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (a *Assistant) Categorize(ctx context.Context, texts []string) (*reflection.Categorization, error) {
	reply, err := a.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: categorizeSystem},
		{Role: ai.RoleUser, Content: categorizePrompt(texts)},
	})
	if err != nil {
		return nil, err
	}
	res, err := ParseCategorization(reply)
	if err != nil {
		a.logger.Warn().Err(err).Int("reply_len", len(reply)).Msg("categorization reply rejected")
		return nil, err
	}
	if len(res.Categorized) < len(texts) {
		a.logger.Debug().Int("thoughts", len(texts)).Int("entries", len(res.Categorized)).Msg("categorization reply is partial")
	}
	return res, nil
}

type wireEntry struct {
	Index    *int   `json:"index"`
	Category string `json:"category"`
	Theme    string `json:"theme"`
}

type wireCategorization struct {
	Categorized       []wireEntry `json:"categorized"`
	OverallReflection string      `json:"overallReflection"`
}

// ParseCategorization reads a model reply. Markdown fences and prose around
// the JSON object are tolerated. Entries without an index take their
// position; categories outside the closed set become other.
func ParseCategorization(reply string) (*reflection.Categorization, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, ErrUnreadable
	}

	var w wireCategorization
	if err := json.Unmarshal([]byte(reply[start:end+1]), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	out := &reflection.Categorization{
		Categorized:       make([]reflection.CategorizedEntry, 0, len(w.Categorized)),
		OverallReflection: strings.TrimSpace(w.OverallReflection),
	}
	for i, e := range w.Categorized {
		idx := i
		if e.Index != nil {
			idx = *e.Index
		}
		theme := strings.ToLower(strings.TrimSpace(e.Theme))
		if theme == "" {
			theme = reflection.ThemeOther
		}
		out.Categorized = append(out.Categorized, reflection.CategorizedEntry{
			Index:    idx,
			Category: reflection.ParseCategory(e.Category),
			Theme:    theme,
		})
	}
	return out, nil
}
