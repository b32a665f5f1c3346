package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"lingua/pkg/models"
	"lingua/pkg/threads"
	"lingua/pkg/utils"
)

// createThread handles POST /threads. The owner is always the verified
// caller; an owner supplied in the body is ignored.
func createThread(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := threads.CreateThread(user, body.Title)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, t)
}

// listThreads handles GET /threads, returning only the caller's threads.
func listThreads(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ts, err := threads.ListOwnedThreads(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []models.Thread `json:"threads"`
	}{Threads: ts})
}

// getThread handles GET /threads/{id}.
func getThread(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	t, err := threads.GetOwnedThread(mux.Vars(r)["id"], user)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

// updateThread handles PUT /threads/{id}; only title and summary move.
func updateThread(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := threads.UpdateTitle(mux.Vars(r)["id"], user, body.Title, body.Summary)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}
