package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lingua/pkg/models"
	"lingua/pkg/validation"
)

func TestFlashcardArgs(t *testing.T) {
	got, err := validation.FlashcardArgs(map[string]any{
		"text":  "  la manzana ",
		"note":  "the apple",
		"extra": 42, // unknown keys are ignored
	})
	require.NoError(t, err)
	require.Equal(t, "la manzana", got.Text)
	require.Equal(t, "the apple", got.Note)
}

func TestFlashcardArgsRejected(t *testing.T) {
	cases := map[string]map[string]any{
		"missing text":    {"note": "n"},
		"missing note":    {"text": "t"},
		"empty text":      {"text": "   ", "note": "n"},
		"non-string text": {"text": 7, "note": "n"},
		"text too long":   {"text": strings.Repeat("a", 1025), "note": "n"},
		"note too long":   {"text": "t", "note": strings.Repeat("b", 2049)},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := validation.FlashcardArgs(args)
			require.ErrorIs(t, err, models.ErrValidationFailed)
		})
	}
}
