package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a trimmed name", func(t *testing.T) {
		s := openStore(t)

		sp, err := s.Register(ctx, "  Juan ", "Male")
		require.NoError(t, err)
		assert.Equal(t, "Juan", sp.Name)
		assert.NotEmpty(t, sp.ID)

		got, err := s.Speaker(ctx, sp.ID)
		require.NoError(t, err)
		assert.Equal(t, sp.Name, got.Name)
		assert.Equal(t, "Male", got.Gender)
		assert.True(t, sp.RegisteredAt.Equal(got.RegisteredAt))
	})

	t.Run("name is required", func(t *testing.T) {
		s := openStore(t)

		_, err := s.Register(ctx, "   ", "Female")
		assert.ErrorIs(t, err, ErrNameRequired)
	})

	t.Run("gender must be one of the options", func(t *testing.T) {
		s := openStore(t)

		_, err := s.Register(ctx, "Maria", "female")
		assert.ErrorIs(t, err, ErrInvalidGender)

		for _, g := range GenderOptions {
			_, err := s.Register(ctx, "Maria", g)
			assert.NoError(t, err, g)
		}
	})
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	sp, err := s.Register(ctx, "Ana", "Rather not say")
	require.NoError(t, err)

	first, err := s.Record(ctx, Result{Label: "aso", Confidence: 0.8, Baybayin: "ᜀᜐᜓ", SpeakerID: sp.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.Record(ctx, Result{Label: "bata", Confidence: 0.6, RTF: 0.02})
	require.NoError(t, err)

	results, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "bata", results[0].Label)
	assert.Empty(t, results[0].SpeakerID)
	assert.InDelta(t, 0.02, results[0].RTF, 1e-9)
	assert.Equal(t, "aso", results[1].Label)
	assert.Equal(t, sp.ID, results[1].SpeakerID)
	assert.InDelta(t, 0.8, results[1].Confidence, 1e-6)

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecentOrdersSubSecondTimes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Record(ctx, Result{Label: "older", CreatedAt: base.Add(500 * time.Millisecond)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Result{Label: "newer", CreatedAt: base.Add(520 * time.Millisecond)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Result{Label: "newest", CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)

	results, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "newest", results[0].Label)
	assert.Equal(t, "newer", results[1].Label)
	assert.Equal(t, "older", results[2].Label)
	assert.True(t, results[2].CreatedAt.Equal(base.Add(500*time.Millisecond)))
}

func TestSpeakerNotRegistered(t *testing.T) {
	s := openStore(t)

	_, err := s.Speaker(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSpeaker)
}

func TestRecordUnknownSpeaker(t *testing.T) {
	s := openStore(t)

	_, err := s.Record(context.Background(), Result{Label: "aso", SpeakerID: "missing"})
	assert.Error(t, err, "foreign keys are enforced")
}
