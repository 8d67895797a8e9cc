// Package storetest is the behavioural suite every reflection.Store backend
// must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

// Run exercises newStore against the Store contract. Each subtest gets a
// fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) reflection.Store) {
	t.Helper()
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	t.Run("CreateSession", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherStormy, started)
		require.NoError(t, err)
		assert.NotEmpty(t, sess.ID)
		assert.Equal(t, reflection.WeatherStormy, sess.MindWeather)
		assert.True(t, sess.StartedAt.Equal(started))
		assert.Zero(t, sess.ThoughtsExplored)
		assert.Nil(t, sess.CompletedAt)
		assert.Nil(t, sess.AverageIntensity)
		assert.Nil(t, sess.OverallReflection)

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.True(t, got.StartedAt.Equal(started))

		other, err := s.CreateSession(ctx, reflection.WeatherSunny, started)
		require.NoError(t, err)
		assert.NotEqual(t, sess.ID, other.ID)
	})

	t.Run("GetSessionUnknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSession(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.ErrorIs(t, err, reflection.ErrNotFound)
	})

	t.Run("UpdateSessionPartial", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherCloudy, started)
		require.NoError(t, err)

		n := 3
		updated, err := s.UpdateSession(ctx, sess.ID, reflection.SessionPatch{ThoughtsExplored: &n})
		require.NoError(t, err)
		assert.Equal(t, 3, updated.ThoughtsExplored)
		assert.Nil(t, updated.CompletedAt)

		done := started.Add(10 * time.Minute)
		overall := "You carried a lot today."
		avg := 6.5
		_, err = s.UpdateSession(ctx, sess.ID, reflection.SessionPatch{
			CompletedAt:       &done,
			AverageIntensity:  &avg,
			OverallReflection: &overall,
		})
		require.NoError(t, err)

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.ThoughtsExplored)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, got.CompletedAt.Equal(done))
		require.NotNil(t, got.AverageIntensity)
		assert.InDelta(t, 6.5, *got.AverageIntensity, 1e-9)
		require.NotNil(t, got.OverallReflection)
		assert.Equal(t, overall, *got.OverallReflection)
		assert.Equal(t, reflection.WeatherCloudy, got.MindWeather)
	})

	t.Run("UpdateSessionUnknown", func(t *testing.T) {
		s := newStore(t)
		n := 1
		_, err := s.UpdateSession(ctx, "missing", reflection.SessionPatch{ThoughtsExplored: &n})
		assert.ErrorIs(t, err, reflection.ErrNotFound)
		_, err = s.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, reflection.ErrNotFound)
	})

	t.Run("EmptyOverallReflectionIsPresent", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherFoggy, started)
		require.NoError(t, err)
		empty := ""
		_, err = s.UpdateSession(ctx, sess.ID, reflection.SessionPatch{OverallReflection: &empty})
		require.NoError(t, err)
		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, got.OverallReflection)
		assert.Equal(t, "", *got.OverallReflection)
	})

	t.Run("CreateThoughtsNormalizes", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherStormy, started)
		require.NoError(t, err)

		created, err := s.CreateThoughts(ctx, sess.ID, []string{"  I failed the exam ", "", "   ", "They ignore me"})
		require.NoError(t, err)
		require.Len(t, created, 2)
		assert.Equal(t, "I failed the exam", created[0].ThoughtText)
		assert.Equal(t, "They ignore me", created[1].ThoughtText)
		for _, th := range created {
			assert.NotEmpty(t, th.ID)
			assert.Equal(t, sess.ID, th.SessionID)
			assert.Nil(t, th.Category)
			assert.Nil(t, th.Theme)
			assert.Nil(t, th.Intensity)
		}
		assert.NotEqual(t, created[0].ID, created[1].ID)

		none, err := s.CreateThoughts(ctx, sess.ID, []string{" ", ""})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("CreateThoughtsUnknownSession", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateThoughts(ctx, "missing", []string{"a"})
		assert.ErrorIs(t, err, reflection.ErrNotFound)
	})

	t.Run("ThoughtsKeepCreationOrder", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherStormy, started)
		require.NoError(t, err)
		other, err := s.CreateSession(ctx, reflection.WeatherSunny, started)
		require.NoError(t, err)

		texts := []string{"one", "two", "three", "four", "five"}
		_, err = s.CreateThoughts(ctx, sess.ID, texts[:3])
		require.NoError(t, err)
		_, err = s.CreateThoughts(ctx, other.ID, []string{"elsewhere"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		_, err = s.CreateThoughts(ctx, sess.ID, texts[3:])
		require.NoError(t, err)

		got, err := s.GetThoughtsBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got, len(texts))
		for i, th := range got {
			assert.Equal(t, texts[i], th.ThoughtText)
		}

		none, err := s.GetThoughtsBySession(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UpdateThoughtPartial", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherStormy, started)
		require.NoError(t, err)
		created, err := s.CreateThoughts(ctx, sess.ID, []string{"I said the wrong thing"})
		require.NoError(t, err)
		id := created[0].ID

		canChange, feeling, intensity := "accept", "guilty", 7
		_, err = s.UpdateThought(ctx, id, reflection.ThoughtPatch{
			CanChange:      &canChange,
			PrimaryFeeling: &feeling,
			Intensity:      &intensity,
		})
		require.NoError(t, err)

		updated, err := s.UpdateThought(ctx, id, reflection.CategorizedAs(reflection.CategoryRumination, "social"))
		require.NoError(t, err)
		require.NotNil(t, updated.Category)
		assert.Equal(t, reflection.CategoryRumination, *updated.Category)

		got, err := s.GetThoughtsBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		th := got[0]
		assert.Equal(t, "I said the wrong thing", th.ThoughtText)
		require.NotNil(t, th.CanChange)
		assert.Equal(t, "accept", *th.CanChange)
		require.NotNil(t, th.PrimaryFeeling)
		assert.Equal(t, "guilty", *th.PrimaryFeeling)
		require.NotNil(t, th.Intensity)
		assert.Equal(t, 7, *th.Intensity)
		assert.Nil(t, th.HelpsOrHurts)
		assert.Nil(t, th.Reflection)
		require.NotNil(t, th.Category)
		assert.Equal(t, reflection.CategoryRumination, *th.Category)
		require.NotNil(t, th.Theme)
		assert.Equal(t, "social", *th.Theme)
	})

	t.Run("UpdateThoughtRejectsLoneCategory", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherStormy, started)
		require.NoError(t, err)
		created, err := s.CreateThoughts(ctx, sess.ID, []string{"x"})
		require.NoError(t, err)

		c := reflection.CategoryWorry
		_, err = s.UpdateThought(ctx, created[0].ID, reflection.ThoughtPatch{Category: &c})
		assert.ErrorIs(t, err, reflection.ErrCategoryWithoutTheme)

		got, err := s.GetThoughtsBySession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Nil(t, got[0].Category)
	})

	t.Run("UpdateThoughtUnknown", func(t *testing.T) {
		s := newStore(t)
		n := 2
		_, err := s.UpdateThought(ctx, "missing", reflection.ThoughtPatch{Intensity: &n})
		assert.ErrorIs(t, err, reflection.ErrNotFound)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherSunny, started)
		require.NoError(t, err)
		sess.ThoughtsExplored = 99
		created, err := s.CreateThoughts(ctx, sess.ID, []string{"kept"})
		require.NoError(t, err)
		created[0].ThoughtText = "changed"

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Zero(t, got.ThoughtsExplored)
		thoughts, err := s.GetThoughtsBySession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "kept", thoughts[0].ThoughtText)
	})

	t.Run("ClearAll", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.CreateSession(ctx, reflection.WeatherStormy, started)
		require.NoError(t, err)
		_, err = s.CreateThoughts(ctx, sess.ID, []string{"a", "b"})
		require.NoError(t, err)

		require.NoError(t, s.ClearAll(ctx))
		_, err = s.GetSession(ctx, sess.ID)
		assert.ErrorIs(t, err, reflection.ErrNotFound)
		thoughts, err := s.GetThoughtsBySession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, thoughts)

		require.NoError(t, s.ClearAll(ctx))
		_, err = s.CreateSession(ctx, reflection.WeatherSunny, started)
		assert.NoError(t, err)
	})
}
