package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"go.uber.org/zap"

	"lingua/pkg/auth"
	"lingua/pkg/logger"
	"lingua/pkg/utils"
)

// RegisterSigning mounts the signing endpoint. It sits outside the v1
// subtree because it authenticates by backend API key, not user signature.
func RegisterSigning(r *mux.Router) {
	r.HandleFunc("/_sign", signHandler).Methods(http.MethodPost)
}

// signHandler mints the X-User-Signature a client must present for a user
// id, using the caller's own backend API key as the signing secret. Only
// backend roles may call it.
func signHandler(w http.ResponseWriter, r *http.Request) {
	role := r.Header.Get("X-Role-Name")
	if role != "backend" {
		logger.Log.Warn("sign_forbidden", zap.String("role", role), zap.String("remote", r.RemoteAddr))
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	a := r.Header.Get("Authorization")
	var key string
	if len(a) > 7 && (a[:7] == "Bearer " || a[:7] == "bearer ") {
		key = a[7:]
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	sig := auth.Sign(key, payload.UserID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"userId": payload.UserID, "signature": sig})
}
