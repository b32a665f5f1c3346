// Package validation holds the fixed argument schemas for gated actions.
// Tool payloads arrive as loosely typed maps from the model; each
// supported action has its own closed, validated variant.
package validation

import (
	"fmt"
	"strings"

	"lingua/pkg/models"
)

const (
	maxFlashcardTextLen = 1024
	maxFlashcardNoteLen = 2048
)

// FlashcardArgs validates the create_flashcard argument payload: both
// text and note must be non-empty strings within bounds. Unknown keys are
// ignored; missing or empty required fields fail.
func FlashcardArgs(args map[string]any) (models.FlashcardArgs, error) {
	text, err := requiredString(args, "text", maxFlashcardTextLen)
	if err != nil {
		return models.FlashcardArgs{}, err
	}
	note, err := requiredString(args, "note", maxFlashcardNoteLen)
	if err != nil {
		return models.FlashcardArgs{}, err
	}
	return models.FlashcardArgs{Text: text, Note: note}, nil
}

func requiredString(args map[string]any, key string, max int) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", models.ErrValidationFailed, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", models.ErrValidationFailed, key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", models.ErrValidationFailed, key)
	}
	if len(s) > max {
		return "", fmt.Errorf("%w: %s too long (%d > %d)", models.ErrValidationFailed, key, len(s), max)
	}
	return s, nil
}
