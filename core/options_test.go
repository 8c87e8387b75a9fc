package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validRaw() map[string]any {
	return map[string]any{
		"refresh_token": "1000.refresh",
		"client_id":     "client",
		"client_secret": "secret",
	}
}

func TestLayeredConfigProvider_Precedence(t *testing.T) {
	raw := validRaw()
	raw["modules"] = "Leads, Deals,Leads"
	raw["rate_burst"] = "4"
	raw["log"] = map[string]any{"level": "debug"}

	provider := NewLayeredConfigProvider(mapRawLoader{values: raw})
	cfg, err := provider.Load(context.Background(), Config{RateBurst: 9})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.BaseURL)
	}
	if len(cfg.Modules) != 2 || cfg.Modules[0] != "Leads" || cfg.Modules[1] != "Deals" {
		t.Fatalf("unexpected modules %#v", cfg.Modules)
	}
	if cfg.RateBurst != 9 {
		t.Fatalf("expected runtime override, got %d", cfg.RateBurst)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected loaded log level, got %q", cfg.Log.Level)
	}
	if cfg.TokenValidity != DefaultTokenValidity {
		t.Fatalf("expected default validity, got %s", cfg.TokenValidity)
	}
}

func TestLayeredConfigProvider_MissingSecretsIsConfigError(t *testing.T) {
	provider := NewLayeredConfigProvider(mapRawLoader{values: map[string]any{"client_id": "client"}})
	_, err := provider.Load(context.Background(), Config{})
	if err == nil {
		t.Fatalf("expected config error")
	}
	if !IsConfigError(err) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestConfigValidate_ReportsEachMissingField(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	rich := MapError(err)
	fields := map[string]bool{}
	for _, fe := range rich.ValidationErrors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"refresh_token", "client_id", "client_secret"} {
		if !fields[want] {
			t.Fatalf("expected %s in %+v", want, rich.ValidationErrors)
		}
	}
}

func TestConfigValidate_RejectsRelativeURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshToken, cfg.ClientID, cfg.ClientSecret = "r", "c", "s"
	cfg.BaseURL = "/crm/v2"
	if err := cfg.Validate(); !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestEnvConfigLoader_ProcessEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "ZOHO_CLIENT_ID=from-file\nZOHO_CLIENT_SECRET=file-secret\nCRMBRIDGE_TOKEN_VALIDITY=30m\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	env := map[string]string{
		"ZOHO_CLIENT_ID":              "from-env",
		"ZOHO_MODULES":                "Leads,Contacts",
		"CRMBRIDGE_REQUEST_TIMEOUT":   "5",
		"CRMBRIDGE_RATE_LIMIT":        "2.5",
		"CRMBRIDGE_LOG_FORMAT":        "text",
		"CRMBRIDGE_UNRELATED_SETTING": "ignored",
	}
	loader := &EnvConfigLoader{
		Files: []string{envFile, filepath.Join(dir, "missing.env")},
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}

	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if raw["client_id"] != "from-env" {
		t.Fatalf("expected env to win, got %v", raw["client_id"])
	}
	if raw["client_secret"] != "file-secret" {
		t.Fatalf("expected file value, got %v", raw["client_secret"])
	}
	if raw["token_validity"] != 30*time.Minute {
		t.Fatalf("expected parsed duration, got %#v", raw["token_validity"])
	}
	if raw["request_timeout"] != 5*time.Second {
		t.Fatalf("expected bare seconds, got %#v", raw["request_timeout"])
	}
	if raw["rate_limit"] != 2.5 {
		t.Fatalf("expected float, got %#v", raw["rate_limit"])
	}
	modules, ok := raw["modules"].([]string)
	if !ok || len(modules) != 2 {
		t.Fatalf("expected module list, got %#v", raw["modules"])
	}
	logLayer, ok := raw["log"].(map[string]any)
	if !ok || logLayer["format"] != "text" {
		t.Fatalf("expected nested log format, got %#v", raw["log"])
	}
	if _, ok := raw["unrelated_setting"]; ok {
		t.Fatalf("unexpected key leaked into config")
	}
}

func TestEnvConfigLoader_RejectsBadDuration(t *testing.T) {
	loader := &EnvConfigLoader{Lookup: func(key string) (string, bool) {
		if key == "CRMBRIDGE_TOKEN_VALIDITY" {
			return "soon", true
		}
		return "", false
	}}
	if _, err := loader.LoadRaw(context.Background()); !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestFileConfigLoader_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crmbridge.yaml")
	content := `
base_url: https://www.zohoapis.com/crm/v2
modules: [Leads, Deals]
fanout_concurrency: 3
token_validity: 45m
log:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	raw, err := FileConfigLoader{Path: path}.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if raw["fanout_concurrency"] != 3 {
		t.Fatalf("unexpected concurrency %#v", raw["fanout_concurrency"])
	}
	if raw["token_validity"] != 45*time.Minute {
		t.Fatalf("unexpected validity %#v", raw["token_validity"])
	}
	modules, _ := raw["modules"].([]string)
	if len(modules) != 2 {
		t.Fatalf("unexpected modules %#v", raw["modules"])
	}

	if _, err := (FileConfigLoader{Path: filepath.Join(dir, "none.yaml")}).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected missing required file to fail")
	}
	if _, err := (FileConfigLoader{Path: filepath.Join(dir, "none.yaml"), Optional: true}).LoadRaw(context.Background()); err != nil {
		t.Fatalf("expected optional file to be skipped: %v", err)
	}
}

func TestLoadCredentialSet(t *testing.T) {
	cfg := Config{
		RefreshToken: " r ",
		ClientID:     "c",
		ClientSecret: "s",
		AccountsURL:  "https://accounts.zoho.com/",
	}
	creds, err := LoadCredentialSet(cfg)
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds.TokenURL() != "https://accounts.zoho.com/oauth/v2/token" {
		t.Fatalf("unexpected token url %q", creds.TokenURL())
	}
	if creds.RefreshToken() != "r" {
		t.Fatalf("expected trimmed refresh token")
	}
	modules := creds.Modules()
	modules[0] = "mutated"
	if creds.Modules()[0] == "mutated" {
		t.Fatalf("credential modules must be immutable")
	}
	if _, err := LoadCredentialSet(Config{}); !IsConfigError(err) {
		t.Fatalf("expected config error for empty config, got %v", err)
	}
}
