package reflection

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/mind-weather/internal/common"
)

// NormalizeTexts trims every text and drops the empty ones.
func NormalizeTexts(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// MemStore is an in-process Store.
type MemStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	sessions map[string]*Session
	thoughts map[string]*Thought
	// thought ids per session, in creation order
	bySession map[string][]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		now:       time.Now,
		sessions:  make(map[string]*Session),
		thoughts:  make(map[string]*Thought),
		bySession: make(map[string][]string),
	}
}

func (m *MemStore) CreateSession(ctx context.Context, weather MindWeather, startedAt time.Time) (*Session, error) {
	_ = ctx
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, MindWeather: weather, StartedAt: startedAt}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return cloneSession(s), nil
}

func (m *MemStore) GetSession(ctx context.Context, id string) (*Session, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemStore) UpdateSession(ctx context.Context, id string, patch SessionPatch) (*Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(s)
	return cloneSession(s), nil
}

func (m *MemStore) CreateThoughts(ctx context.Context, sessionID string, texts []string) ([]Thought, error) {
	_ = ctx
	texts = NormalizeTexts(texts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	createdAt := m.now().UTC()
	out := make([]Thought, 0, len(texts))
	for _, text := range texts {
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		t := &Thought{ID: id, SessionID: sessionID, ThoughtText: text, CreatedAt: createdAt}
		m.thoughts[id] = t
		m.bySession[sessionID] = append(m.bySession[sessionID], id)
		out = append(out, *cloneThought(t))
	}
	return out, nil
}

func (m *MemStore) GetThoughtsBySession(ctx context.Context, sessionID string) ([]Thought, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.bySession[sessionID]
	out := make([]Thought, 0, len(ids))
	for _, id := range ids {
		out = append(out, *cloneThought(m.thoughts[id]))
	}
	return out, nil
}

func (m *MemStore) UpdateThought(ctx context.Context, id string, patch ThoughtPatch) (*Thought, error) {
	_ = ctx
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.thoughts[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(t)
	return cloneThought(t), nil
}

func (m *MemStore) ClearAll(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
	m.thoughts = make(map[string]*Thought)
	m.bySession = make(map[string][]string)
	return nil
}

func cloneSession(s *Session) *Session {
	out := *s
	SessionPatch{CompletedAt: s.CompletedAt, AverageIntensity: s.AverageIntensity, OverallReflection: s.OverallReflection}.Apply(&out)
	return &out
}

func cloneThought(t *Thought) *Thought {
	out := *t
	ThoughtPatch{
		CanChange:      t.CanChange,
		HelpsOrHurts:   t.HelpsOrHurts,
		PrimaryFeeling: t.PrimaryFeeling,
		Reflection:     t.Reflection,
		Intensity:      t.Intensity,
		Category:       t.Category,
		Theme:          t.Theme,
	}.Apply(&out)
	return &out
}
