package handlers

import (
	"net/http"

	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/utils"
)

// listFlashcards handles GET /flashcards, returning the caller's deck.
func listFlashcards(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	cards, err := store.ListFlashcards(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Flashcards []models.Flashcard `json:"flashcards"`
	}{Flashcards: cards})
}
