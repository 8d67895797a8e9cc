package reflection

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/mind-weather/internal/metrics"
)

// Service owns the live flows, one per session, and the operations that
// read finished sessions.
type Service struct {
	deps *Deps

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NarrationTimeout <= 0 {
		deps.NarrationTimeout = 20 * time.Second
	}
	return &Service{deps: &deps, flows: make(map[string]*Flow)}
}

func (s *Service) Store() Store { return s.deps.Store }

// Start opens a new session with the chosen weather and returns its flow in
// capture.
func (s *Service) Start(ctx context.Context, weather MindWeather) (*Flow, error) {
	f := NewFlow(s.deps)
	if err := f.SelectWeather(ctx, weather); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.flows[f.SessionID()] = f
	s.mu.Unlock()
	s.deps.Logger.Info().Str("session_id", f.SessionID()).Str("mind_weather", string(weather)).Msg("session started")
	return f, nil
}

// Flow returns the live flow for a session, rebuilding it from storage when
// this process has none.
func (s *Service) Flow(ctx context.Context, sessionID string) (*Flow, error) {
	s.mu.Lock()
	f, ok := s.flows[sessionID]
	s.mu.Unlock()
	if ok {
		return f, nil
	}

	f, err := resumeFlow(ctx, s.deps, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.flows[sessionID]; ok {
		f.Exit()
		return existing, nil
	}
	s.flows[sessionID] = f
	return f, nil
}

// View snapshots a flow. A flow waiting on the worker is settled first so
// its result shows up without an explicit complete.
func (s *Service) View(ctx context.Context, sessionID string) (FlowView, error) {
	f, err := s.Flow(ctx, sessionID)
	if err != nil {
		return FlowView{}, err
	}
	if f.State() == StateCategorizing && s.deps.Dispatcher != nil {
		if err := f.Complete(ctx); err != nil {
			s.deps.Logger.Debug().Err(err).Str("session_id", sessionID).Msg("categorizing flow not settled")
		}
	}
	return f.View(), nil
}

// Exit abandons the session's flow. Persisted records stay.
func (s *Service) Exit(sessionID string) FlowView {
	s.mu.Lock()
	f, ok := s.flows[sessionID]
	delete(s.flows, sessionID)
	s.mu.Unlock()
	if !ok {
		return FlowView{State: StateWeatherSelect, TotalSteps: TotalSteps}
	}
	f.Exit()
	return f.View()
}

func (s *Service) Session(ctx context.Context, sessionID string) (*Session, error) {
	return s.deps.Store.GetSession(ctx, sessionID)
}

func (s *Service) Thoughts(ctx context.Context, sessionID string) ([]Thought, error) {
	if _, err := s.deps.Store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.deps.Store.GetThoughtsBySession(ctx, sessionID)
}

// Results is the completed-session view.
type Results struct {
	Session  *Session             `json:"session"`
	Filter   string               `json:"filter"`
	Thoughts []Thought            `json:"thoughts"`
	Counts   map[string]int       `json:"counts"`
	ByTheme  map[string][]Thought `json:"by_theme"`
	Themes   []string             `json:"themes"`
}

// FilterAll selects every category in Results.
const FilterAll = "all"

// Results loads a session for display. If its first thought was never
// categorized the assistant is asked once; on failure the thoughts are shown
// as stored. Counts cover every thought; the listing and theme groups follow
// filter.
func (s *Service) Results(ctx context.Context, sessionID, filter string) (*Results, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = FilterAll
	}
	if filter != FilterAll && ParseCategory(filter) != Category(filter) {
		return nil, fmt.Errorf("%w: filter %q", ErrInvalidOption, filter)
	}

	sess, err := s.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	thoughts, err := s.deps.Store.GetThoughtsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(thoughts) == 0 {
		return nil, ErrNoThoughts
	}

	if thoughts[0].Category == nil {
		res, err := callCategorize(ctx, s.deps.Assistant, thoughts)
		if err != nil {
			metrics.CategorizationFallbacks.Inc()
			s.deps.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("results categorization failed")
		} else if t, ss, err := applyCategorization(ctx, s.deps.Store, sessionID, thoughts, res); err != nil {
			return nil, err
		} else {
			thoughts, sess = t, ss
		}
	}

	out := &Results{
		Session: sess,
		Filter:  filter,
		Counts:  make(map[string]int, len(Categories)+1),
		ByTheme: make(map[string][]Thought),
	}
	out.Counts[FilterAll] = len(thoughts)
	for _, c := range Categories {
		out.Counts[string(c)] = 0
	}
	for _, t := range thoughts {
		if t.Category != nil {
			out.Counts[string(*t.Category)]++
		}
		if filter != FilterAll && (t.Category == nil || string(*t.Category) != filter) {
			continue
		}
		out.Thoughts = append(out.Thoughts, t)
		theme := ThemeOther
		if t.Theme != nil && *t.Theme != "" {
			theme = *t.Theme
		}
		if _, ok := out.ByTheme[theme]; !ok {
			out.Themes = append(out.Themes, theme)
		}
		out.ByTheme[theme] = append(out.ByTheme[theme], t)
	}
	if out.Thoughts == nil {
		out.Thoughts = []Thought{}
	}
	sort.Strings(out.Themes)
	return out, nil
}

// Insight is a short supportive reply to the session's first thought. It
// never fails because of the assistant; the fallback text stands in.
func (s *Service) Insight(ctx context.Context, sessionID string) (string, error) {
	thoughts, err := s.Thoughts(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(thoughts) == 0 {
		return "", ErrNoThoughts
	}
	t := thoughts[0]
	req := InsightRequest{ThoughtText: t.ThoughtText}
	if t.PrimaryFeeling != nil {
		req.Feeling = *t.PrimaryFeeling
	}
	if t.Reflection != nil {
		req.Reflection = *t.Reflection
	}
	return s.Analyze(ctx, req), nil
}

// Analyze asks the assistant for an insight, returning FallbackInsight when
// it is unavailable or replies with nothing.
func (s *Service) Analyze(ctx context.Context, req InsightRequest) string {
	if s.deps.Assistant == nil {
		return FallbackInsight
	}
	text, err := s.deps.Assistant.Insight(ctx, req)
	metrics.ObserveCall(metrics.ServiceAssistant, err)
	if err != nil {
		s.deps.Logger.Warn().Err(err).Msg("insight failed, using fallback")
		return FallbackInsight
	}
	if text = strings.TrimSpace(text); text == "" {
		return FallbackInsight
	}
	return text
}

// Categorize classifies free-standing thought texts without touching
// storage. Every input gets exactly one entry.
func (s *Service) Categorize(ctx context.Context, texts []string) (*Categorization, error) {
	texts = NormalizeTexts(texts)
	if len(texts) == 0 {
		return nil, ErrNoThoughts
	}
	if s.deps.Assistant == nil {
		return nil, fmt.Errorf("assistant: %w", ErrNotConfigured)
	}
	res, err := s.deps.Assistant.Categorize(ctx, texts)
	metrics.ObserveCall(metrics.ServiceAssistant, err)
	if err != nil {
		return nil, err
	}
	return &Categorization{Categorized: Assignments(len(texts), res), OverallReflection: res.OverallReflection}, nil
}

func (s *Service) Narrate(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text", ErrAnswerRequired)
	}
	if s.deps.Narrator == nil {
		return nil, fmt.Errorf("narration: %w", ErrNotConfigured)
	}
	audio, err := s.deps.Narrator.Narrate(ctx, text)
	metrics.ObserveCall(metrics.ServiceNarration, err)
	return audio, err
}

func (s *Service) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if s.deps.Transcriber == nil {
		return "", fmt.Errorf("transcription: %w", ErrNotConfigured)
	}
	text, err := s.deps.Transcriber.Transcribe(ctx, audio, filename)
	metrics.ObserveCall(metrics.ServiceTranscription, err)
	return text, err
}

// FinishSession categorizes and completes a session outside any flow. It is
// what the categorization worker runs, and is safe to repeat.
func (s *Service) FinishSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CompletedAt != nil {
		return sess, nil
	}
	thoughts, err := s.deps.Store.GetThoughtsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(thoughts) == 0 {
		return nil, ErrNoThoughts
	}

	if sess.OverallReflection == nil {
		res, err := callCategorize(ctx, s.deps.Assistant, thoughts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.CategorizationFallbacks.Inc()
			s.deps.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("categorization failed, keeping answer-derived categories")
		} else {
			thoughts, sess, err = applyCategorization(ctx, s.deps.Store, sessionID, thoughts, res)
			if err != nil {
				return nil, err
			}
		}
	}
	return completeSession(ctx, s.deps.Store, sess, thoughts, s.deps.Now().UTC())
}

// ClearAll drops every live flow and deletes all stored data.
func (s *Service) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	flows := s.flows
	s.flows = make(map[string]*Flow)
	s.mu.Unlock()
	for _, f := range flows {
		f.Exit()
	}
	if err := s.deps.Store.ClearAll(ctx); err != nil {
		return err
	}
	s.deps.Logger.Warn().Int("flows", len(flows)).Msg("all data cleared")
	return nil
}
