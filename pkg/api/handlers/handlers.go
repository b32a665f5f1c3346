// Package handlers implements the learner-facing v1 endpoints. Every
// handler resolves the acting user from the verified signature (or a
// trusted backend header) before touching any state.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"lingua/pkg/auth"
	"lingua/pkg/genjob"
	"lingua/pkg/models"
	"lingua/pkg/speech"
	"lingua/pkg/streamer"
	"lingua/pkg/utils"
)

// Deps carries the long-lived collaborators handlers need.
type Deps struct {
	Scheduler   *genjob.Scheduler
	Streamer    *streamer.Streamer
	Transcriber speech.Transcriber
}

var deps Deps

// Register wires all v1 routes onto the provided (already prefixed) router.
func Register(r *mux.Router, d Deps) {
	deps = d

	r.HandleFunc("/threads", createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads", listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", updateThread).Methods(http.MethodPut)

	r.HandleFunc("/threads/{threadID}/messages", createThreadMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/messages", listThreadMessages).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/messages/{id}", getThreadMessage).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/deltas", streamDeltas).Methods(http.MethodGet)

	r.HandleFunc("/threads/{threadID}/messages/{id}/approvals", listMessageApprovals).Methods(http.MethodGet)
	r.HandleFunc("/approvals/{id}/approve", approveApproval).Methods(http.MethodPost)
	r.HandleFunc("/approvals/{id}/reject", rejectApproval).Methods(http.MethodPost)

	r.HandleFunc("/flashcards", listFlashcards).Methods(http.MethodGet)

	r.HandleFunc("/artifacts/audio", getAudioArtifact).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/audio", putAudioArtifact).Methods(http.MethodPut)
	r.HandleFunc("/artifacts/translations", getTranslationArtifact).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/translations", putTranslationArtifact).Methods(http.MethodPut)
}

// requireUser resolves the acting user or writes the failure response,
// returning ok=false.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return "", false
	}
	return id, true
}

// writeErr maps domain errors onto HTTP statuses. Missing and not-owned
// resources are indistinguishable to callers.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, models.ErrNotFoundOrForbidden):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrValidationFailed):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrGenerationInProgress):
		w.Header().Set("Retry-After", "2")
		utils.JSONError(w, http.StatusConflict, "a reply is already being generated for this thread")
	case errors.Is(err, models.ErrAlreadyResolved):
		utils.JSONError(w, http.StatusConflict, "approval already resolved")
	case errors.Is(err, genjob.ErrQueueFull), errors.Is(err, genjob.ErrQueueClosed):
		w.Header().Set("Retry-After", "5")
		utils.JSONError(w, http.StatusServiceUnavailable, "generation capacity exhausted")
	case errors.Is(err, models.ErrUpstreamFailure):
		utils.JSONError(w, http.StatusBadGateway, "upstream model failure")
	default:
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
