package reflection

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNoThoughts           = errors.New("session has no thoughts")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrInvalidOption        = errors.New("invalid option")
	ErrInvalidWeather       = errors.New("invalid mind weather")
	ErrCategoryWithoutTheme = errors.New("category and theme must be set together")
	ErrDraftIndex           = errors.New("draft index out of range")
	ErrAnswerRequired       = errors.New("answer required")
	ErrNotConfigured        = errors.New("not configured")
)

// Store persists sessions and thoughts. Lookups and writes against an
// unknown id return ErrNotFound; implementations never create on update.
// Concurrent writers to one record are last-write-wins.
type Store interface {
	CreateSession(ctx context.Context, weather MindWeather, startedAt time.Time) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, id string, patch SessionPatch) (*Session, error)

	// CreateThoughts inserts one thought per non-empty (trimmed) text and
	// returns them in input order.
	CreateThoughts(ctx context.Context, sessionID string, texts []string) ([]Thought, error)
	// GetThoughtsBySession returns the session's thoughts in creation order.
	GetThoughtsBySession(ctx context.Context, sessionID string) ([]Thought, error)
	UpdateThought(ctx context.Context, id string, patch ThoughtPatch) (*Thought, error)

	// ClearAll removes every session and thought.
	ClearAll(ctx context.Context) error
}
