package reflection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/metrics"
)

type State string

const (
	StateWeatherSelect State = "weather_select"
	StateCapture       State = "capture"
	StateQuestion      State = "question"
	StateCategorizing  State = "categorizing"
	StateComplete      State = "complete"
)

// ErrStale is returned when an external call settles after the flow moved on;
// its result has been dropped.
var ErrStale = errors.New("flow changed while waiting")

// Deps are the collaborators shared by every flow of a service.
type Deps struct {
	Store     Store
	Assistant Assistant

	// optional
	Narrator    Narrator
	Transcriber Transcriber
	Dispatcher  Dispatcher

	Logger           zerolog.Logger
	Now              func() time.Time
	NarrationTimeout time.Duration
}

type narration struct {
	epoch uint64
	audio []byte
}

// Flow walks one session from weather selection to completion.
// Every transition bumps epoch; the result of an external call is applied
// only if the epoch it started under is still current.
type Flow struct {
	mu   sync.Mutex
	deps *Deps

	state   State
	session *Session

	drafts []string

	thoughts     []Thought
	thoughtIndex int
	step         int
	answers      Answers

	epoch      uint64
	dispatched bool
	// inflight is closed when the running categorization call returns
	inflight chan struct{}

	narration       *narration
	cancelNarration context.CancelFunc
}

func NewFlow(deps *Deps) *Flow {
	return &Flow{deps: deps, state: StateWeatherSelect}
}

// FlowView is a point-in-time snapshot for rendering.
type FlowView struct {
	State        State       `json:"state"`
	SessionID    string      `json:"session_id,omitempty"`
	MindWeather  MindWeather `json:"mind_weather,omitempty"`
	Drafts       []string    `json:"drafts,omitempty"`
	ThoughtIndex int         `json:"thought_index"`
	ThoughtCount int         `json:"thought_count"`
	Step         int         `json:"step"`
	TotalSteps   int         `json:"total_steps"`
	Thought      *Thought    `json:"thought,omitempty"`
	Question     *Question   `json:"question,omitempty"`
	Prompt       string      `json:"prompt,omitempty"`
	Answers      Answers     `json:"answers,omitempty"`
	CanProceed   bool        `json:"can_proceed"`
	CanGoBack    bool        `json:"can_go_back"`
	Narration    bool        `json:"narration_ready"`
}

func (f *Flow) View() FlowView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Flow) viewLocked() FlowView {
	v := FlowView{
		State:        f.state,
		ThoughtIndex: f.thoughtIndex,
		ThoughtCount: len(f.thoughts),
		Step:         f.step,
		TotalSteps:   TotalSteps,
	}
	if f.session != nil {
		v.SessionID = f.session.ID
		v.MindWeather = f.session.MindWeather
	}
	switch f.state {
	case StateCapture:
		v.Drafts = append([]string(nil), f.drafts...)
		v.CanProceed = len(NormalizeTexts(f.drafts)) > 0
	case StateQuestion:
		t := f.thoughts[f.thoughtIndex]
		q := Questions[f.step]
		v.Thought = &t
		v.Question = &q
		v.Prompt = q.Prompt(t.ThoughtText)
		v.Answers = make(Answers, len(f.answers))
		for k, a := range f.answers {
			v.Answers[k] = a
		}
		v.CanProceed = strings.TrimSpace(f.answers[q.ID]) != ""
		v.CanGoBack = f.step > 0
		v.Narration = f.narration != nil && f.narration.epoch == f.epoch
	}
	return v
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return ""
	}
	return f.session.ID
}

func (f *Flow) logger() *zerolog.Logger {
	l := f.deps.Logger.With().Str("state", string(f.state))
	if f.session != nil {
		l = l.Str("session_id", f.session.ID)
	}
	logger := l.Logger()
	return &logger
}

func (f *Flow) now() time.Time {
	if f.deps.Now != nil {
		return f.deps.Now().UTC()
	}
	return time.Now().UTC()
}

func (f *Flow) transition(to State) {
	f.epoch++
	if f.cancelNarration != nil {
		f.cancelNarration()
		f.cancelNarration = nil
	}
	f.narration = nil
	f.state = to
	metrics.Transitions.WithLabelValues(string(to)).Inc()
}

func (f *Flow) require(s State) error {
	if f.state != s {
		return fmt.Errorf("%w: flow is %s, want %s", ErrInvalidTransition, f.state, s)
	}
	return nil
}

// SelectWeather creates the session and opens thought capture.
func (f *Flow) SelectWeather(ctx context.Context, w MindWeather) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateWeatherSelect); err != nil {
		return err
	}
	if _, err := ParseMindWeather(string(w)); err != nil {
		return err
	}
	sess, err := f.deps.Store.CreateSession(ctx, w, f.now())
	if err != nil {
		return err
	}
	f.session = sess
	f.drafts = []string{""}
	f.thoughts = nil
	f.transition(StateCapture)
	return nil
}

func (f *Flow) AddDraft(text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateCapture); err != nil {
		return 0, err
	}
	f.drafts = append(f.drafts, text)
	return len(f.drafts) - 1, nil
}

func (f *Flow) SetDraft(i int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.draftLocked(i); err != nil {
		return err
	}
	f.drafts[i] = text
	return nil
}

// RemoveDraft refuses to remove the last remaining draft.
func (f *Flow) RemoveDraft(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.draftLocked(i); err != nil {
		return err
	}
	if len(f.drafts) == 1 {
		return fmt.Errorf("%w: cannot remove the only draft", ErrInvalidTransition)
	}
	f.drafts = append(f.drafts[:i], f.drafts[i+1:]...)
	return nil
}

func (f *Flow) draftLocked(i int) error {
	if err := f.require(StateCapture); err != nil {
		return err
	}
	if i < 0 || i >= len(f.drafts) {
		return fmt.Errorf("%w: %d", ErrDraftIndex, i)
	}
	return nil
}

// TranscribeInto transcribes audio and appends the text to draft i. On
// failure the draft is left as it was and the error is returned.
func (f *Flow) TranscribeInto(ctx context.Context, i int, audio io.Reader, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.draftLocked(i); err != nil {
		return "", err
	}
	if f.deps.Transcriber == nil {
		return "", fmt.Errorf("transcription: %w", ErrNotConfigured)
	}

	epoch := f.epoch
	f.mu.Unlock()
	text, err := f.deps.Transcriber.Transcribe(ctx, audio, filename)
	metrics.ObserveCall(metrics.ServiceTranscription, err)
	f.mu.Lock()

	if err != nil {
		return "", err
	}
	if f.epoch != epoch || i >= len(f.drafts) {
		metrics.ExternalCalls.WithLabelValues(metrics.ServiceTranscription, metrics.OutcomeDiscarded).Inc()
		return "", ErrStale
	}
	f.drafts[i] = strings.TrimSpace(f.drafts[i] + " " + text)
	return f.drafts[i], nil
}

// BeginQuestions persists the captured thoughts and starts the question flow
// on the first one. texts, when non-nil, replaces the drafts.
func (f *Flow) BeginQuestions(ctx context.Context, texts []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateCapture); err != nil {
		return err
	}
	if texts == nil {
		texts = f.drafts
	}
	valid := NormalizeTexts(texts)
	if len(valid) == 0 {
		return ErrNoThoughts
	}

	created, err := f.deps.Store.CreateThoughts(ctx, f.session.ID, valid)
	if err != nil {
		return err
	}
	n := len(created)
	sess, err := f.deps.Store.UpdateSession(ctx, f.session.ID, SessionPatch{ThoughtsExplored: &n})
	if err != nil {
		return err
	}
	f.session = sess
	f.drafts = nil
	f.thoughts = created
	f.enterQuestionLocked(0, 0)
	return nil
}

func (f *Flow) enterQuestionLocked(thoughtIndex, step int) {
	if thoughtIndex != f.thoughtIndex || f.state != StateQuestion {
		f.answers = Answers{}
	}
	f.thoughtIndex = thoughtIndex
	f.step = step
	f.transition(StateQuestion)
	f.narrateLocked()
}

// Answer records the answer to the active question.
func (f *Flow) Answer(value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateQuestion); err != nil {
		return err
	}
	q := Questions[f.step]
	if !q.Accepts(value) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidOption, value, q.ID)
	}
	f.answers[q.ID] = value
	return nil
}

// Next advances one step. After the last step the thought's answers are
// persisted and the flow moves to the next thought, or to categorization
// after the last thought.
func (f *Flow) Next(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateQuestion); err != nil {
		return err
	}
	if f.step+1 < TotalSteps {
		f.enterQuestionLocked(f.thoughtIndex, f.step+1)
		return nil
	}
	return f.completeThoughtLocked(ctx)
}

func (f *Flow) completeThoughtLocked(ctx context.Context) error {
	// the results view may have categorized the session meanwhile
	if err := f.refreshThoughtsLocked(ctx); err != nil {
		return err
	}
	t := f.thoughts[f.thoughtIndex]
	patch := f.answers.patch()
	if t.Category == nil {
		c, theme := f.answers.heuristicCategory()
		patch.Category, patch.Theme = &c, &theme
	}
	updated, err := f.deps.Store.UpdateThought(ctx, t.ID, patch)
	if err != nil {
		return err
	}
	f.thoughts[f.thoughtIndex] = *updated

	if f.thoughtIndex+1 < len(f.thoughts) {
		f.enterQuestionLocked(f.thoughtIndex+1, 0)
		return nil
	}
	f.transition(StateCategorizing)
	return f.categorizeLocked(ctx)
}

// refreshThoughtsLocked reloads the stored categories of the flow's thoughts.
func (f *Flow) refreshThoughtsLocked(ctx context.Context) error {
	stored, err := f.deps.Store.GetThoughtsBySession(ctx, f.session.ID)
	if err != nil {
		return err
	}
	byID := make(map[string]Thought, len(stored))
	for _, t := range stored {
		byID[t.ID] = t
	}
	for i, t := range f.thoughts {
		if st, ok := byID[t.ID]; ok {
			f.thoughts[i].Category, f.thoughts[i].Theme = st.Category, st.Theme
		}
	}
	return nil
}

// Back returns to the previous step, keeping every answer given so far.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateQuestion); err != nil {
		return err
	}
	if f.step == 0 {
		return fmt.Errorf("%w: already at the first question", ErrInvalidTransition)
	}
	f.enterQuestionLocked(f.thoughtIndex, f.step-1)
	return nil
}

// Restart discards the current thought's answers and returns to its first
// question.
func (f *Flow) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.require(StateQuestion); err != nil {
		return err
	}
	f.answers = Answers{}
	f.enterQuestionLocked(f.thoughtIndex, 0)
	return nil
}

// Exit abandons anything not yet persisted and returns to weather selection.
func (f *Flow) Exit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	f.drafts = nil
	f.thoughts = nil
	f.answers = nil
	f.thoughtIndex, f.step = 0, 0
	f.dispatched = false
	f.transition(StateWeatherSelect)
}

// Complete settles a flow waiting in categorization: it retries an
// interrupted inline categorization or picks up a worker's result. A call
// made while categorization is running waits for it instead of asking the
// assistant again.
func (f *Flow) Complete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.inflight != nil {
		done := f.inflight
		f.mu.Unlock()
		select {
		case <-done:
			f.mu.Lock()
		case <-ctx.Done():
			f.mu.Lock()
			return ctx.Err()
		}
	}
	switch f.state {
	case StateComplete:
		return nil
	case StateCategorizing:
		return f.categorizeLocked(ctx)
	}
	return f.require(StateCategorizing)
}

func (f *Flow) categorizeLocked(ctx context.Context) error {
	sess, err := f.deps.Store.GetSession(ctx, f.session.ID)
	if err != nil {
		return err
	}
	if sess.CompletedAt != nil {
		return f.finishLocked(ctx, sess)
	}

	if d := f.deps.Dispatcher; d != nil {
		if f.dispatched {
			return nil
		}
		err := d.PublishCategorizeJob(ctx, sess.ID)
		if err == nil {
			f.dispatched = true
			return nil
		}
		f.logger().Warn().Err(err).Msg("categorize job publish failed, categorizing inline")
	}

	if sess.OverallReflection == nil {
		epoch := f.epoch
		thoughts := append([]Thought(nil), f.thoughts...)

		done := make(chan struct{})
		f.inflight = done
		f.mu.Unlock()
		res, callErr := callCategorize(ctx, f.deps.Assistant, thoughts)
		f.mu.Lock()
		f.inflight = nil
		close(done)

		if f.epoch != epoch {
			metrics.ExternalCalls.WithLabelValues(metrics.ServiceAssistant, metrics.OutcomeDiscarded).Inc()
			return ErrStale
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if callErr != nil {
			metrics.CategorizationFallbacks.Inc()
			f.logger().Warn().Err(callErr).Msg("categorization failed, keeping answer-derived categories")
		} else {
			updated, s, err := applyCategorization(ctx, f.deps.Store, sess.ID, thoughts, res)
			if err != nil {
				return err
			}
			f.thoughts = updated
			sess = s
		}
	}

	sess, err = completeSession(ctx, f.deps.Store, sess, f.thoughts, f.now())
	if err != nil {
		return err
	}
	return f.finishLocked(ctx, sess)
}

func (f *Flow) finishLocked(ctx context.Context, sess *Session) error {
	thoughts, err := f.deps.Store.GetThoughtsBySession(ctx, sess.ID)
	if err != nil {
		return err
	}
	f.session = sess
	f.thoughts = thoughts
	f.dispatched = false
	f.transition(StateComplete)
	return nil
}

// narrateLocked voices the active question in the background. Failures are
// dropped; so is audio that arrives after the flow moved on.
func (f *Flow) narrateLocked() {
	n := f.deps.Narrator
	if n == nil {
		return
	}
	text := Questions[f.step].Prompt(f.thoughts[f.thoughtIndex].ThoughtText)
	epoch := f.epoch

	timeout := f.deps.NarrationTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	f.cancelNarration = cancel
	logger := f.logger()

	go func() {
		defer cancel()
		audio, err := n.Narrate(ctx, text)
		metrics.ObserveCall(metrics.ServiceNarration, err)
		if err != nil {
			logger.Debug().Err(err).Msg("narration skipped")
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.epoch != epoch {
			metrics.ExternalCalls.WithLabelValues(metrics.ServiceNarration, metrics.OutcomeDiscarded).Inc()
			return
		}
		f.narration = &narration{epoch: epoch, audio: audio}
	}()
}

// Narration returns the audio for the active question once it is ready.
func (f *Flow) Narration() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateQuestion || f.narration == nil || f.narration.epoch != f.epoch {
		return nil, false
	}
	return f.narration.audio, true
}

// resumeFlow rebuilds a flow for a stored session.
func resumeFlow(ctx context.Context, deps *Deps, sessionID string) (*Flow, error) {
	sess, err := deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	thoughts, err := deps.Store.GetThoughtsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	f := NewFlow(deps)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = sess
	f.thoughts = thoughts

	switch {
	case sess.CompletedAt != nil:
		f.transition(StateComplete)
	case len(thoughts) == 0:
		f.drafts = []string{""}
		f.transition(StateCapture)
	default:
		next := -1
		for i, t := range thoughts {
			if t.Category == nil {
				next = i
				break
			}
		}
		if next < 0 {
			f.transition(StateCategorizing)
		} else {
			f.enterQuestionLocked(next, 0)
		}
	}
	return f, nil
}
