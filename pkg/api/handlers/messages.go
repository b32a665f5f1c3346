package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lingua/pkg/ledger"
	"lingua/pkg/models"
	"lingua/pkg/utils"
)

// createThreadMessage handles POST /threads/{threadID}/messages. The body
// carries either text or a base64 audio clip; audio is transcribed before
// it enters the ledger. On success the message is appended and exactly one
// generation job is enqueued for it; the reply arrives via the delta
// stream.
func createThreadMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	threadID := mux.Vars(r)["threadID"]

	var body struct {
		Text     string `json:"text"`
		Audio    string `json:"audio,omitempty"`
		MimeType string `json:"mime_type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	text := body.Text
	if text == "" && body.Audio != "" {
		if deps.Transcriber == nil {
			utils.JSONError(w, http.StatusNotImplemented, "audio input not configured")
			return
		}
		raw, err := base64.StdEncoding.DecodeString(body.Audio)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid base64 audio")
			return
		}
		text, err = deps.Transcriber.Transcribe(r.Context(), raw, body.MimeType)
		if err != nil {
			writeErr(w, err)
			return
		}
	}

	m, err := deps.Scheduler.SubmitMessage(threadID, user, func() (models.Message, error) {
		return ledger.AppendUserMessage(threadID, user, text)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

// listThreadMessages handles GET /threads/{threadID}/messages with
// cursor-based pagination in (order, step) order.
func listThreadMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	threadID := mux.Vars(r)["threadID"]
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	page, err := ledger.ListMessages(threadID, user, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

// getThreadMessage handles GET /threads/{threadID}/messages/{id}.
func getThreadMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	m, err := ledger.GetMessage(vars["threadID"], user, vars["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}
