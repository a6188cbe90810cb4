package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Env is an explicit key/value view of the process environment. Library code
// reads configuration from an Env passed to it, never from os.Getenv, so a
// caller can scope environment per request or inject it in tests.
type Env map[string]string

// EnvFromOS snapshots os.Environ into an Env.
func EnvFromOS() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Get returns the trimmed value of key, or "" when unset.
func (e Env) Get(key string) string {
	return strings.TrimSpace(e[key])
}

func (e Env) getDefault(key, def string) string {
	if v := e.Get(key); v != "" {
		return v
	}
	return def
}

func (e Env) getBool(key string, def bool) bool {
	if v := e.Get(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func (e Env) getList(key string) []string {
	if v := e.Get(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}

// Config holds the server-level settings read once at startup.
type Config struct {
	ListenAddr string

	DB struct {
		DSN string
	}

	OIDC struct {
		IssuerURL    string
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}

	StatusToken       string
	BookingPolicyPath string
	PrometheusEnabled bool
	TrustedProxies    []string
}

// Load reads the server configuration from env. The database is optional:
// when no DSN and no APP_DB_* variables are set, the submission ledger is
// disabled. A partial APP_DB_* set is an error.
func Load(env Env) (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = env.getDefault("APP_LISTEN_ADDR", ":8080")
	cfg.DB.DSN = env.Get("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := env.Get("APP_DB_HOST")
		name := env.Get("APP_DB_NAME")
		user := env.Get("APP_DB_USER")
		password := env.Get("APP_DB_PASSWORD")
		port := env.getDefault("APP_DB_PORT", "5432")
		sslmode := env.getDefault("APP_DB_SSLMODE", "disable")

		var missing []string
		if host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if user == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}

		switch len(missing) {
		case 0:
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		case 4:
			// ledger disabled
		default:
			return nil, &Error{Missing: missing}
		}
	}

	cfg.OIDC.IssuerURL = env.Get("APP_OIDC_ISSUER_URL")
	cfg.OIDC.ClientID = env.Get("APP_OIDC_CLIENT_ID")
	cfg.OIDC.ClientSecret = env.Get("APP_OIDC_CLIENT_SECRET")
	cfg.OIDC.RedirectURL = env.Get("APP_OIDC_REDIRECT_URL")
	cfg.StatusToken = env.Get("APP_STATUS_TOKEN")
	cfg.BookingPolicyPath = env.Get("APP_BOOKING_POLICY")
	cfg.PrometheusEnabled = env.getBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = env.getList("APP_TRUSTED_PROXIES")

	if cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID == "" {
		return nil, &Error{Missing: []string{"APP_OIDC_CLIENT_ID"}}
	}
	if cfg.StatusToken != "" && len(cfg.StatusToken) < 16 {
		return nil, &Error{Invalid: []string{"APP_STATUS_TOKEN"}}
	}

	if len(cfg.TrustedProxies) == 0 {
		log.Println("[WARN] No APP_TRUSTED_PROXIES configured. Rate limits key on the peer address and ignore forwarded headers.")
	}

	return cfg, nil
}
