package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeHelpers(t *testing.T) {
	t.Run("HasCode finds wrapped domain errors", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeConflict, "taken"))
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Empty(t, TypeOf(errors.New("boom")))
	})

	t.Run("WithType does not mutate the receiver", func(t *testing.T) {
		base := New(CodeValidation, "bad name")
		typed := base.WithType("INVALID_NAME")
		assert.Empty(t, base.Type)
		assert.Equal(t, "INVALID_NAME", TypeOf(typed))
	})

	t.Run("Wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeInternal, "failed to save")
		require.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("Is compares code, type and message", func(t *testing.T) {
		err := New(CodeConflict, "taken").WithType("DUPLICATE_TWITTER")
		require.ErrorIs(t, err, New(CodeConflict, "taken").WithType("DUPLICATE_TWITTER"))
		assert.NotErrorIs(t, err, New(CodeConflict, "taken"))
	})
}
