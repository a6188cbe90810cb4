package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConnEnv() Env {
	return Env{
		"ODOO_URL":      "https://crm.example.com/",
		"ODOO_DB":       "prod",
		"ODOO_USERNAME": "bot@example.com",
		"ODOO_PASSWORD": "s3cret",
	}
}

func TestLoadConnectionDefaults(t *testing.T) {
	c, err := LoadConnection(validConnEnv())
	if err != nil {
		t.Fatalf("LoadConnection: %v", err)
	}
	if c.URL != "https://crm.example.com" {
		t.Errorf("URL = %q, want trailing slash removed", c.URL)
	}
	if c.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.Timeout)
	}
	if c.PhoneField != "phone" || c.SalesUserID != 2 || c.DefaultTag != "Footer-Website" {
		t.Errorf("unexpected defaults: %+v", c)
	}
}

func TestLoadConnectionOverrides(t *testing.T) {
	env := validConnEnv()
	env["ODOO_TIMEOUT"] = "5s"
	env["ODOO_PHONE_FIELD"] = "x_studio_celular"
	env["ODOO_SALES_USER_ID"] = "7"
	env["ODOO_DEFAULT_TAG"] = "Landing"

	c, err := LoadConnection(env)
	if err != nil {
		t.Fatalf("LoadConnection: %v", err)
	}
	if c.Timeout != 5*time.Second || c.PhoneField != "x_studio_celular" || c.SalesUserID != 7 || c.DefaultTag != "Landing" {
		t.Errorf("overrides not applied: %+v", c)
	}
}

func TestLoadConnectionPublicFallback(t *testing.T) {
	env := validConnEnv()
	delete(env, "ODOO_URL")
	delete(env, "ODOO_DB")
	env["PUBLIC_ODOO_URL"] = "http://odoo.local:8069"
	env["PUBLIC_ODOO_DB"] = "staging"

	c, err := LoadConnection(env)
	if err != nil {
		t.Fatalf("LoadConnection: %v", err)
	}
	if c.URL != "http://odoo.local:8069" || c.Database != "staging" {
		t.Errorf("fallback not used: %+v", c)
	}
}

func TestLoadConnectionErrors(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(Env)
		wantMissing []string
		wantInvalid []string
	}{
		{
			name:        "missing credentials",
			mutate:      func(e Env) { delete(e, "ODOO_USERNAME"); e["ODOO_PASSWORD"] = "   " },
			wantMissing: []string{"ODOO_USERNAME", "ODOO_PASSWORD"},
		},
		{
			name:        "relative url",
			mutate:      func(e Env) { e["ODOO_URL"] = "crm.example.com" },
			wantInvalid: []string{"ODOO_URL"},
		},
		{
			name:        "bad timeout",
			mutate:      func(e Env) { e["ODOO_TIMEOUT"] = "soon" },
			wantInvalid: []string{"ODOO_TIMEOUT"},
		},
		{
			name:        "bad sales user",
			mutate:      func(e Env) { e["ODOO_SALES_USER_ID"] = "-1" },
			wantInvalid: []string{"ODOO_SALES_USER_ID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validConnEnv()
			tt.mutate(env)
			_, err := LoadConnection(env)
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cfgErr.Code() != "CONFIG_ERROR" {
				t.Errorf("Code() = %q", cfgErr.Code())
			}
			if strings.Join(cfgErr.Missing, ",") != strings.Join(tt.wantMissing, ",") {
				t.Errorf("Missing = %v, want %v", cfgErr.Missing, tt.wantMissing)
			}
			if strings.Join(cfgErr.Invalid, ",") != strings.Join(tt.wantInvalid, ",") {
				t.Errorf("Invalid = %v, want %v", cfgErr.Invalid, tt.wantInvalid)
			}
		})
	}
}

func TestConfigErrorNeverLeaksValues(t *testing.T) {
	env := validConnEnv()
	env["ODOO_URL"] = "not a url"
	delete(env, "ODOO_DB")
	_, err := LoadConnection(env)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, secret := range []string{"s3cret", "bot@example.com", "not a url"} {
		if strings.Contains(err.Error(), secret) {
			t.Errorf("error %q leaks %q", err.Error(), secret)
		}
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     Env
		wantDSN string
		wantErr bool
	}{
		{
			name: "no database",
			env:  Env{},
		},
		{
			name:    "dsn",
			env:     Env{"APP_DB_DSN": "postgres://u:p@h/db"},
			wantDSN: "postgres://u:p@h/db",
		},
		{
			name: "components",
			env: Env{
				"APP_DB_HOST":     "db",
				"APP_DB_NAME":     "odoolink",
				"APP_DB_USER":     "app",
				"APP_DB_PASSWORD": "pw",
			},
			wantDSN: "postgres://app:pw@db:5432/odoolink?sslmode=disable",
		},
		{
			name:    "partial components",
			env:     Env{"APP_DB_HOST": "db"},
			wantErr: true,
		},
		{
			name:    "oidc without client",
			env:     Env{"APP_OIDC_ISSUER_URL": "https://id.example.com"},
			wantErr: true,
		},
		{
			name:    "short status token",
			env:     Env{"APP_STATUS_TOKEN": "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.env)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.DB.DSN != tt.wantDSN {
				t.Errorf("DSN = %q, want %q", cfg.DB.DSN, tt.wantDSN)
			}
			if cfg.ListenAddr != ":8080" {
				t.Errorf("ListenAddr = %q", cfg.ListenAddr)
			}
		})
	}
}

func TestLoadOIDC(t *testing.T) {
	cfg, err := Load(Env{
		"APP_OIDC_ISSUER_URL":    "https://id.example.com",
		"APP_OIDC_CLIENT_ID":     "odoolink",
		"APP_OIDC_CLIENT_SECRET": "shh",
		"APP_OIDC_REDIRECT_URL":  "https://odoolink.example.com/auth/callback",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	o := cfg.OIDC
	if o.IssuerURL != "https://id.example.com" || o.ClientID != "odoolink" || o.ClientSecret != "shh" || o.RedirectURL != "https://odoolink.example.com/auth/callback" {
		t.Errorf("OIDC = %+v", o)
	}
}

func TestEnvHelpers(t *testing.T) {
	env := Env{
		"FLAG":  "Yes",
		"OFF":   "off",
		"JUNK":  "maybe",
		"LIST":  " 10.0.0.0/8, ,127.0.0.1 ",
		"SPACE": "  padded  ",
	}
	if !env.getBool("FLAG", false) || env.getBool("OFF", true) || !env.getBool("JUNK", true) {
		t.Error("getBool mismatch")
	}
	if got := env.getList("LIST"); len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "127.0.0.1" {
		t.Errorf("getList = %v", got)
	}
	if env.Get("SPACE") != "padded" {
		t.Errorf("Get should trim, got %q", env.Get("SPACE"))
	}
	if env.getDefault("NOPE", "d") != "d" {
		t.Error("getDefault fallback")
	}
}
