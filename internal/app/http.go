package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"lingua/pkg/api"
	"lingua/pkg/api/handlers"
	"lingua/pkg/banner"
	"lingua/pkg/security"
	"lingua/pkg/store"
	"lingua/pkg/telemetry"
	"lingua/pkg/utils"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.cfg, a.addr, a.dbPath, a.source, verStr)
}

// buildHandler assembles the full HTTP surface: the gated v1 API plus the
// ops mounts that bypass the gateway.
func (a *App) buildHandler() http.Handler {
	secCfg := security.SecConfig{
		AllowedOrigins: append([]string{}, a.cfg.Security.CORS.AllowedOrigins...),
		RPS:            a.cfg.Security.RateLimit.RPS,
		Burst:          a.cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, a.cfg.Security.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range a.cfg.Security.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range a.cfg.Security.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range a.cfg.Security.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	apiHandler := api.NewRouter(secCfg, handlers.Deps{
		Scheduler:   a.sched,
		Streamer:    a.st,
		Transcriber: a.trans,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/", telemetry.Middleware("api", apiHandler))
	return mux
}

// readyzHandler reports readiness for deployment probes.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}

// serve blocks on the listener until shutdown or a fatal error.
func (a *App) serve() error {
	cert := a.cfg.Server.TLS.CertFile
	key := a.cfg.Server.TLS.KeyFile
	if cert != "" && key != "" {
		return a.srv.ListenAndServeTLS(cert, key)
	}
	return a.srv.ListenAndServe()
}
