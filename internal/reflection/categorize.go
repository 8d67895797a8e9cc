package reflection

import (
	"context"
	"time"

	"github.com/suPer8Hu/mind-weather/internal/metrics"
)

// Assignments lines a categorization up with n thoughts. Entries are matched
// by index; out-of-range and duplicate indexes are ignored and unmatched
// thoughts default to other/other.
func Assignments(n int, res *Categorization) []CategorizedEntry {
	out := make([]CategorizedEntry, n)
	seen := make([]bool, n)
	if res != nil {
		for _, e := range res.Categorized {
			if e.Index < 0 || e.Index >= n || seen[e.Index] {
				continue
			}
			seen[e.Index] = true
			out[e.Index] = CategorizedEntry{Index: e.Index, Category: ParseCategory(string(e.Category)), Theme: e.Theme}
		}
	}
	for i := range out {
		out[i].Index = i
		if !seen[i] {
			out[i].Category = CategoryOther
		}
		if out[i].Theme == "" {
			out[i].Theme = ThemeOther
		}
	}
	return out
}

func thoughtTexts(thoughts []Thought) []string {
	texts := make([]string, len(thoughts))
	for i, t := range thoughts {
		texts[i] = t.ThoughtText
	}
	return texts
}

// callCategorize asks the assistant to classify the thoughts.
func callCategorize(ctx context.Context, a Assistant, thoughts []Thought) (*Categorization, error) {
	if a == nil {
		return nil, ErrNotConfigured
	}
	res, err := a.Categorize(ctx, thoughtTexts(thoughts))
	metrics.ObserveCall(metrics.ServiceAssistant, err)
	return res, err
}

// applyCategorization persists the assistant's classification over any
// answer-derived values, and the session's overall reflection.
func applyCategorization(ctx context.Context, store Store, sessionID string, thoughts []Thought, res *Categorization) ([]Thought, *Session, error) {
	entries := Assignments(len(thoughts), res)
	updated := make([]Thought, len(thoughts))
	for i, t := range thoughts {
		nt, err := store.UpdateThought(ctx, t.ID, CategorizedAs(entries[i].Category, entries[i].Theme))
		if err != nil {
			return nil, nil, err
		}
		updated[i] = *nt
	}
	overall := ""
	if res != nil {
		overall = res.OverallReflection
	}
	sess, err := store.UpdateSession(ctx, sessionID, SessionPatch{OverallReflection: &overall})
	if err != nil {
		return nil, nil, err
	}
	return updated, sess, nil
}

// completeSession stamps completed_at and the average intensity. A session
// that already carries completed_at is returned unchanged.
func completeSession(ctx context.Context, store Store, sess *Session, thoughts []Thought, now time.Time) (*Session, error) {
	if sess.CompletedAt != nil {
		return sess, nil
	}
	patch := SessionPatch{CompletedAt: &now}
	if avg, ok := averageIntensity(thoughts); ok {
		patch.AverageIntensity = &avg
	}
	return store.UpdateSession(ctx, sess.ID, patch)
}

func averageIntensity(thoughts []Thought) (float64, bool) {
	sum, n := 0, 0
	for _, t := range thoughts {
		if t.Intensity != nil {
			sum += *t.Intensity
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}
