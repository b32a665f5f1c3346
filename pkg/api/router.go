// Package api assembles the HTTP surface: the learner-facing v1 routes
// behind the gateway and signature middleware, plus the ops endpoints.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"lingua/pkg/api/handlers"
	"lingua/pkg/auth"
	"lingua/pkg/security"
	"lingua/pkg/store"
	"lingua/pkg/utils"
)

// NewRouter builds the service router. Ops mounts (metrics, docs) are
// attached by the caller so this package stays free of wiring concerns.
func NewRouter(sec security.SecConfig, deps handlers.Deps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedUser)
	handlers.Register(v1, deps)

	handlers.RegisterSigning(r)

	return security.AuthenticateRequestMiddleware(sec)(r)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
