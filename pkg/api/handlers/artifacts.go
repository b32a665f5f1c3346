package handlers

import (
	"encoding/json"
	"net/http"

	"lingua/pkg/artifacts"
	"lingua/pkg/utils"
)

// getArtifact serves GET /artifacts/{kind}?text=...&language=... with a
// cache-aside contract: 404 simply means the caller should produce the
// artifact and PUT it back.
func getArtifact(kind artifacts.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		q := r.URL.Query()
		e, found, err := artifacts.Lookup(kind, q.Get("text"), q.Get("language"))
		if err != nil {
			writeErr(w, err)
			return
		}
		if !found {
			utils.JSONError(w, http.StatusNotFound, "artifact not cached")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, e)
	}
}

// putArtifact serves PUT /artifacts/{kind}. Entries are immutable: a
// concurrent duplicate PUT returns the first writer's entry.
func putArtifact(kind artifacts.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireUser(w, r); !ok {
			return
		}
		var body struct {
			Text     string `json:"text"`
			Language string `json:"language"`
			Value    string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		e, err := artifacts.Put(kind, body.Text, body.Language, body.Value)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, e)
	}
}

var (
	getAudioArtifact       = getArtifact(artifacts.Audio)
	putAudioArtifact       = putArtifact(artifacts.Audio)
	getTranslationArtifact = getArtifact(artifacts.Translation)
	putTranslationArtifact = putArtifact(artifacts.Translation)
)
