package reflection

import (
	"context"
	"io"
)

type InsightRequest struct {
	ThoughtText string `json:"thoughtText"`
	Feeling     string `json:"feeling"`
	Reflection  string `json:"reflection"`
}

// CategorizedEntry is one validated classification. Index refers to the
// position of the thought in the request.
type CategorizedEntry struct {
	Index    int      `json:"index"`
	Category Category `json:"category"`
	Theme    string   `json:"theme"`
}

type Categorization struct {
	Categorized       []CategorizedEntry `json:"categorized"`
	OverallReflection string             `json:"overallReflection"`
}

// Assistant is the text-completion collaborator.
type Assistant interface {
	Insight(ctx context.Context, req InsightRequest) (string, error)
	// Categorize returns an error when the reply could not be read at all;
	// a readable reply with missing entries is not an error.
	Categorize(ctx context.Context, thoughtTexts []string) (*Categorization, error)
}

// Narrator turns text into playable audio.
type Narrator interface {
	Narrate(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Dispatcher hands a session over to an out-of-process categorization worker.
type Dispatcher interface {
	PublishCategorizeJob(ctx context.Context, sessionID string) error
}

const FallbackInsight = "Thank you for sharing this thought."
