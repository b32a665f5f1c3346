package app

import (
	"fmt"
	"os"

	"lingua/pkg/config"
)

// validateConfig performs quick, fail-fast checks before starting
// long-running services.
func validateConfig(cfg *config.Config, dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, LINGUA_DB_PATH env, or storage.db_path in config")
	}

	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	switch cfg.Generation.Provider {
	case "", "gemini":
		if cfg.Generation.APIKey == "" {
			return fmt.Errorf("generation api key missing: set LINGUA_GEMINI_API_KEY or generation.api_key")
		}
	case "scripted":
	default:
		return fmt.Errorf("unknown generation provider: %s", cfg.Generation.Provider)
	}

	return nil
}
