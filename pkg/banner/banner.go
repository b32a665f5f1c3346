package banner

import (
	"fmt"

	"lingua/pkg/config"
)

const banner = `
██╗     ██╗███╗   ██╗ ██████╗ ██╗   ██╗ █████╗
██║     ██║████╗  ██║██╔════╝ ██║   ██║██╔══██╗
██║     ██║██╔██╗ ██║██║  ███╗██║   ██║███████║
██║     ██║██║╚██╗██║██║   ██║██║   ██║██╔══██║
███████╗██║██║ ╚████║╚██████╔╝╚██████╔╝██║  ██║
╚══════╝╚═╝╚═╝  ╚═══╝ ╚═════╝  ╚═════╝ ╚═╝  ╚═╝
`

// Print writes the startup banner and quick production-readiness checks.
func Print(cfg *config.Config, addr, dbPath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:   %s\n", source)
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/threads' -d '{\"title\": \"Spanish practice\"}'")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/threads/<id>/messages' -d '{\"text\": \"Como se dice...?\"}'")
	fmt.Println("curl -N 'http://<host>:<port>/v1/threads/<id>/deltas?after=0'")

	fmt.Println("\n== Production? ================================================")
	if n := len(cfg.Security.APIKeys.Backend); n > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for signing user identities)")
	}
	if n := len(cfg.Security.APIKeys.Frontend); n > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if cfg.Generation.APIKey != "" {
		fmt.Printf("- Generation: %s (%s)\n", providerName(cfg), modelName(cfg))
	} else if cfg.Generation.Provider == "scripted" {
		fmt.Println("- Generation: scripted (local development only)")
	} else {
		fmt.Println("- Generation: MISSING API key (set LINGUA_GEMINI_API_KEY)")
	}
	if cfg.Retention.Enabled {
		cron := cfg.Retention.Cron
		if cron == "" {
			cron = "*/5 * * * *"
		}
		fmt.Printf("- Stale sweeper: enabled (cron=%s)\n", cron)
	} else {
		fmt.Println("- Stale sweeper: disabled")
	}

	fmt.Println("\n== Logs =======================================================")
}

func providerName(cfg *config.Config) string {
	if cfg.Generation.Provider == "" {
		return "gemini"
	}
	return cfg.Generation.Provider
}

func modelName(cfg *config.Config) string {
	if cfg.Generation.Model == "" {
		return "gemini-2.0-flash"
	}
	return cfg.Generation.Model
}
