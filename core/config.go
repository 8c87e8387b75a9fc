package core

import (
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultBaseURL           = "https://www.zohoapis.eu/crm/v2"
	DefaultAccountsURL       = "https://accounts.zoho.eu"
	DefaultTokenPath         = "/oauth/v2/token"
	DefaultTokenScheme       = "Zoho-oauthtoken"
	DefaultTokenValidity     = 3600 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRateLimit         = 10.0
	DefaultRateBurst         = 10
	DefaultFanOutConcurrency = 1
)

var DefaultModules = []string{"Leads", "Accounts", "Contacts", "Deals"}

type LogConfig struct {
	Level  string `koanf:"level" mapstructure:"level"`
	Format string `koanf:"format" mapstructure:"format"`
}

type Config struct {
	BaseURL           string        `koanf:"base_url" mapstructure:"base_url"`
	AccountsURL       string        `koanf:"accounts_url" mapstructure:"accounts_url"`
	RefreshToken      string        `koanf:"refresh_token" mapstructure:"refresh_token"`
	ClientID          string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret      string        `koanf:"client_secret" mapstructure:"client_secret"`
	Modules           []string      `koanf:"modules" mapstructure:"modules"`
	TokenScheme       string        `koanf:"token_scheme" mapstructure:"token_scheme"`
	TokenValidity     time.Duration `koanf:"token_validity" mapstructure:"token_validity"`
	RequestTimeout    time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	RateLimit         float64       `koanf:"rate_limit" mapstructure:"rate_limit"`
	RateBurst         int           `koanf:"rate_burst" mapstructure:"rate_burst"`
	FanOutConcurrency int           `koanf:"fanout_concurrency" mapstructure:"fanout_concurrency"`
	ActivityDSN       string        `koanf:"activity_dsn" mapstructure:"activity_dsn"`
	ActivityTTL       time.Duration `koanf:"activity_ttl" mapstructure:"activity_ttl"`
	ActivityRowCap    int           `koanf:"activity_row_cap" mapstructure:"activity_row_cap"`
	Log               LogConfig     `koanf:"log" mapstructure:"log"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		AccountsURL:       DefaultAccountsURL,
		Modules:           append([]string(nil), DefaultModules...),
		TokenScheme:       DefaultTokenScheme,
		TokenValidity:     DefaultTokenValidity,
		RequestTimeout:    DefaultRequestTimeout,
		RateLimit:         DefaultRateLimit,
		RateBurst:         DefaultRateBurst,
		FanOutConcurrency: DefaultFanOutConcurrency,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate fails with a CONFIG_ERROR when a required secret is absent or a
// URL cannot be parsed.
func (c *Config) Validate() error {
	if c == nil {
		return NewConfigError(goerrors.FieldError{Field: "config", Message: "is required"})
	}
	var fields []goerrors.FieldError
	if strings.TrimSpace(c.RefreshToken) == "" {
		fields = append(fields, goerrors.FieldError{Field: "refresh_token", Message: "is required (ZOHO_REFRESH_TOKEN)"})
	}
	if strings.TrimSpace(c.ClientID) == "" {
		fields = append(fields, goerrors.FieldError{Field: "client_id", Message: "is required (ZOHO_CLIENT_ID)"})
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		fields = append(fields, goerrors.FieldError{Field: "client_secret", Message: "is required (ZOHO_CLIENT_SECRET)"})
	}
	for _, candidate := range []struct {
		field string
		value string
	}{
		{field: "base_url", value: c.BaseURL},
		{field: "accounts_url", value: c.AccountsURL},
	} {
		if strings.TrimSpace(candidate.value) == "" {
			continue
		}
		parsed, err := url.Parse(strings.TrimSpace(candidate.value))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			fields = append(fields, goerrors.FieldError{Field: candidate.field, Message: "must be an absolute url", Value: candidate.value})
		}
	}
	if c.TokenValidity < 0 {
		fields = append(fields, goerrors.FieldError{Field: "token_validity", Message: "must not be negative"})
	}
	if c.RateLimit < 0 {
		fields = append(fields, goerrors.FieldError{Field: "rate_limit", Message: "must not be negative"})
	}
	if c.FanOutConcurrency < 0 {
		fields = append(fields, goerrors.FieldError{Field: "fanout_concurrency", Message: "must not be negative"})
	}
	if c.ActivityTTL < 0 {
		fields = append(fields, goerrors.FieldError{Field: "activity_ttl", Message: "must not be negative"})
	}
	if c.ActivityRowCap < 0 {
		fields = append(fields, goerrors.FieldError{Field: "activity_row_cap", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return NewConfigError(fields...)
	}
	return nil
}

// Normalized fills defaults for optional fields and trims values.
func (c Config) Normalized() Config {
	defaults := DefaultConfig()
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	c.AccountsURL = strings.TrimRight(strings.TrimSpace(c.AccountsURL), "/")
	if c.AccountsURL == "" {
		c.AccountsURL = defaults.AccountsURL
	}
	c.RefreshToken = strings.TrimSpace(c.RefreshToken)
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.Modules = normalizeModules(c.Modules)
	if len(c.Modules) == 0 {
		c.Modules = defaults.Modules
	}
	c.TokenScheme = strings.TrimSpace(c.TokenScheme)
	if c.TokenScheme == "" {
		c.TokenScheme = defaults.TokenScheme
	}
	if c.TokenValidity <= 0 {
		c.TokenValidity = defaults.TokenValidity
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = defaults.RateBurst
	}
	if c.FanOutConcurrency <= 0 {
		c.FanOutConcurrency = defaults.FanOutConcurrency
	}
	c.ActivityDSN = strings.TrimSpace(c.ActivityDSN)
	return c
}

// CredentialSet is the immutable view of the static credentials the token
// manager and the dispatcher read.
type CredentialSet struct {
	baseURL      string
	tokenURL     string
	refreshToken string
	clientID     string
	clientSecret string
	modules      []string
}

// LoadCredentialSet validates cfg once and freezes the credential fields.
func LoadCredentialSet(cfg Config) (CredentialSet, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return CredentialSet{}, err
	}
	return CredentialSet{
		baseURL:      cfg.BaseURL,
		tokenURL:     cfg.AccountsURL + DefaultTokenPath,
		refreshToken: cfg.RefreshToken,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		modules:      append([]string(nil), cfg.Modules...),
	}, nil
}

func (c CredentialSet) BaseURL() string      { return c.baseURL }
func (c CredentialSet) TokenURL() string     { return c.tokenURL }
func (c CredentialSet) RefreshToken() string { return c.refreshToken }
func (c CredentialSet) ClientID() string     { return c.clientID }
func (c CredentialSet) ClientSecret() string { return c.clientSecret }

func (c CredentialSet) Modules() []string {
	return append([]string(nil), c.modules...)
}

func normalizeModules(modules []string) []string {
	if len(modules) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(modules))
	out := make([]string, 0, len(modules))
	for _, module := range modules {
		module = strings.TrimSpace(module)
		if module == "" {
			continue
		}
		if _, ok := seen[module]; ok {
			continue
		}
		seen[module] = struct{}{}
		out = append(out, module)
	}
	return out
}
