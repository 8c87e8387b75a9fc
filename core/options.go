package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RawConfigLoader returns one configuration layer as a generic map keyed by
// the Config koanf tags.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type ConfigProvider interface {
	Load(ctx context.Context, runtime Config) (Config, error)
}

var envKeys = map[string]string{
	"ZOHO_BASE_API_URL":            "base_url",
	"ZOHO_ACCOUNTS_URL":            "accounts_url",
	"ZOHO_REFRESH_TOKEN":           "refresh_token",
	"ZOHO_CLIENT_ID":               "client_id",
	"ZOHO_CLIENT_SECRET":           "client_secret",
	"ZOHO_MODULES":                 "modules",
	"CRMBRIDGE_TOKEN_SCHEME":       "token_scheme",
	"CRMBRIDGE_TOKEN_VALIDITY":     "token_validity",
	"CRMBRIDGE_REQUEST_TIMEOUT":    "request_timeout",
	"CRMBRIDGE_RATE_LIMIT":         "rate_limit",
	"CRMBRIDGE_RATE_BURST":         "rate_burst",
	"CRMBRIDGE_FANOUT_CONCURRENCY": "fanout_concurrency",
	"CRMBRIDGE_ACTIVITY_DSN":       "activity_dsn",
	"CRMBRIDGE_ACTIVITY_TTL":       "activity_ttl",
	"CRMBRIDGE_ACTIVITY_ROW_CAP":   "activity_row_cap",
	"CRMBRIDGE_LOG_LEVEL":          "log.level",
	"CRMBRIDGE_LOG_FORMAT":         "log.format",
}

// EnvConfigLoader reads dotenv files and then the process environment;
// process values win over file values.
type EnvConfigLoader struct {
	Files  []string
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader(files ...string) *EnvConfigLoader {
	if len(files) == 0 {
		files = []string{".env"}
	}
	return &EnvConfigLoader{Files: files, Lookup: os.LookupEnv}
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	values := map[string]string{}
	if l != nil {
		for _, file := range l.Files {
			file = strings.TrimSpace(file)
			if file == "" {
				continue
			}
			if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			read, err := godotenv.Read(file)
			if err != nil {
				return nil, fmt.Errorf("core: read env file %q: %w", file, err)
			}
			for key, value := range read {
				values[key] = value
			}
		}
	}
	lookup := os.LookupEnv
	if l != nil && l.Lookup != nil {
		lookup = l.Lookup
	}
	for key := range envKeys {
		if value, ok := lookup(key); ok {
			values[key] = value
		}
	}

	raw := map[string]any{}
	for envKey, value := range values {
		configKey, ok := envKeys[envKey]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		setPath(raw, configKey, strings.TrimSpace(value))
	}
	return normalizeRawConfig(raw)
}

// FileConfigLoader reads a YAML file. A missing optional file yields an
// empty layer.
type FileConfigLoader struct {
	Path     string
	Optional bool
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file %q: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: decode config file %q: %w", path, err)
	}
	return normalizeRawConfig(raw)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return normalizeRawConfig(cloneFields(l.Values))
}

// StaticConfigLoader serves a fixed layer, mostly useful in tests.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

// LayeredConfigProvider folds its loaders in order into one config layer,
// stacks it between defaults and runtime overrides with go-options, then
// decodes and validates through cfgx.
type LayeredConfigProvider struct {
	Loaders []RawConfigLoader
}

func NewLayeredConfigProvider(loaders ...RawConfigLoader) *LayeredConfigProvider {
	return &LayeredConfigProvider{Loaders: loaders}
}

func (p *LayeredConfigProvider) Load(ctx context.Context, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	loaded := map[string]any{}
	if p != nil {
		for _, loader := range p.Loaders {
			if loader == nil {
				continue
			}
			raw, err := loader.LoadRaw(ctx)
			if err != nil {
				return Config{}, asConfigError(err)
			}
			mergeLayer(loaded, raw)
		}
	}

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loaded,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, asConfigError(fmt.Errorf("core: options stack build failed: %w", err))
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, asConfigError(fmt.Errorf("core: options merge failed: %w", err))
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, asConfigError(err)
	}
	resolved = resolved.Normalized()
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// mergeLayer folds src into dst; later loaders win key by key and nested
// maps are merged rather than replaced.
func mergeLayer(dst, src map[string]any) {
	for key, value := range src {
		nested, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		mergeLayer(existing, nested)
	}
}

// LoadConfig is the default startup path: optional YAML file, dotenv, then
// the process environment, then runtime overrides.
func LoadConfig(ctx context.Context, file string, runtime Config) (Config, error) {
	loaders := []RawConfigLoader{}
	if strings.TrimSpace(file) != "" {
		loaders = append(loaders, FileConfigLoader{Path: file})
	}
	loaders = append(loaders, NewEnvConfigLoader())
	return NewLayeredConfigProvider(loaders...).Load(ctx, runtime)
}

func asConfigError(err error) error {
	if err == nil || IsConfigError(err) {
		return err
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && len(rich.ValidationErrors) > 0 {
		return NewConfigError(rich.ValidationErrors...)
	}
	return NewConfigError(goerrors.FieldError{Field: "config", Message: err.Error()})
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setString("base_url", cfg.BaseURL)
	setString("accounts_url", cfg.AccountsURL)
	setString("refresh_token", cfg.RefreshToken)
	setString("client_id", cfg.ClientID)
	setString("client_secret", cfg.ClientSecret)
	setString("token_scheme", cfg.TokenScheme)
	setString("activity_dsn", cfg.ActivityDSN)
	if includeZero || len(cfg.Modules) > 0 {
		layer["modules"] = append([]string(nil), cfg.Modules...)
	}
	if includeZero || cfg.TokenValidity > 0 {
		layer["token_validity"] = cfg.TokenValidity
	}
	if includeZero || cfg.RequestTimeout > 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}
	if includeZero || cfg.RateLimit > 0 {
		layer["rate_limit"] = cfg.RateLimit
	}
	if includeZero || cfg.RateBurst > 0 {
		layer["rate_burst"] = cfg.RateBurst
	}
	if includeZero || cfg.FanOutConcurrency > 0 {
		layer["fanout_concurrency"] = cfg.FanOutConcurrency
	}
	if includeZero || cfg.ActivityTTL > 0 {
		layer["activity_ttl"] = cfg.ActivityTTL
	}
	if includeZero || cfg.ActivityRowCap > 0 {
		layer["activity_row_cap"] = cfg.ActivityRowCap
	}
	logLayer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Log.Level) != "" {
		logLayer["level"] = cfg.Log.Level
	}
	if includeZero || strings.TrimSpace(cfg.Log.Format) != "" {
		logLayer["format"] = cfg.Log.Format
	}
	if len(logLayer) > 0 {
		layer["log"] = logLayer
	}
	return layer
}

// normalizeRawConfig coerces string values from env and YAML into the Go
// types cfgx decodes into.
func normalizeRawConfig(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	for _, key := range []string{"token_validity", "request_timeout", "activity_ttl"} {
		value, ok := raw[key]
		if !ok {
			continue
		}
		parsed, err := toDuration(value)
		if err != nil {
			return nil, NewConfigError(goerrors.FieldError{Field: key, Message: err.Error(), Value: value})
		}
		raw[key] = parsed
	}
	if value, ok := raw["rate_limit"]; ok {
		parsed, err := toFloat(value)
		if err != nil {
			return nil, NewConfigError(goerrors.FieldError{Field: "rate_limit", Message: err.Error(), Value: value})
		}
		raw["rate_limit"] = parsed
	}
	for _, key := range []string{"rate_burst", "fanout_concurrency", "activity_row_cap"} {
		value, ok := raw[key]
		if !ok {
			continue
		}
		parsed, err := toInt(value)
		if err != nil {
			return nil, NewConfigError(goerrors.FieldError{Field: key, Message: err.Error(), Value: value})
		}
		raw[key] = parsed
	}
	if value, ok := raw["modules"]; ok {
		raw["modules"] = toStringSlice(value)
	}
	if logValue, ok := raw["log"].(map[string]any); ok {
		raw["log"] = logValue
	}
	return raw, nil
}

func setPath(target map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func toDuration(value any) (time.Duration, error) {
	switch typed := value.(type) {
	case time.Duration:
		return typed, nil
	case int:
		return time.Duration(typed) * time.Second, nil
	case int64:
		return time.Duration(typed) * time.Second, nil
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if seconds, err := strconv.Atoi(trimmed); err == nil {
			return time.Duration(seconds) * time.Second, nil
		}
		parsed, err := time.ParseDuration(trimmed)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

func toFloat(value any) (float64, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported number type %T", value)
	}
}

func toInt(value any) (int, error) {
	switch typed := value.(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", typed.String())
		}
		return int(parsed), nil
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		return int(typed), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported integer type %T", value)
	}
}

func toStringSlice(value any) []string {
	switch typed := value.(type) {
	case []string:
		return normalizeModules(typed)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, fmt.Sprint(item))
		}
		return normalizeModules(out)
	case string:
		return normalizeModules(strings.Split(typed, ","))
	default:
		return nil
	}
}
