package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-crmbridge/core"
	"golang.org/x/oauth2"
)

const defaultExchangeTimeout = 30 * time.Second

type RefreshTokenExchangerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Now          func() time.Time
}

// RefreshTokenExchanger mints access tokens with the refresh_token grant.
// Client credentials travel as form fields, not basic auth.
type RefreshTokenExchanger struct {
	config RefreshTokenExchangerConfig
}

func NewRefreshTokenExchanger(cfg RefreshTokenExchangerConfig) *RefreshTokenExchanger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RefreshTokenExchanger{
		config: RefreshTokenExchangerConfig{
			TokenURL:     strings.TrimSpace(cfg.TokenURL),
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RefreshToken: strings.TrimSpace(cfg.RefreshToken),
			HTTPClient:   client,
			Timeout:      timeout,
			Now:          now,
		},
	}
}

// NewRefreshTokenExchangerFromCredentials reads the static credential set.
func NewRefreshTokenExchangerFromCredentials(creds core.CredentialSet, client *http.Client, timeout time.Duration) *RefreshTokenExchanger {
	return NewRefreshTokenExchanger(RefreshTokenExchangerConfig{
		TokenURL:     creds.TokenURL(),
		ClientID:     creds.ClientID(),
		ClientSecret: creds.ClientSecret(),
		RefreshToken: creds.RefreshToken(),
		HTTPClient:   client,
		Timeout:      timeout,
	})
}

func (e *RefreshTokenExchanger) Exchange(ctx context.Context) (core.IssuedToken, error) {
	if e == nil {
		return core.IssuedToken{}, core.NewAuthError(fmt.Errorf("auth: refresh token exchanger is not configured"), 0)
	}
	if err := e.validate(); err != nil {
		return core.IssuedToken{}, core.NewAuthError(err, 0)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.config.HTTPClient)

	conf := &oauth2.Config{
		ClientID:     e.config.ClientID,
		ClientSecret: e.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  e.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: e.config.RefreshToken}).Token()
	if err != nil {
		return core.IssuedToken{}, core.NewAuthError(err, retrieveStatus(err))
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return core.IssuedToken{}, core.NewAuthError(fmt.Errorf("auth: token response missing access_token"), 0)
	}

	issued := core.IssuedToken{
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
	}
	switch {
	case token.ExpiresIn > 0:
		issued.ExpiresIn = time.Duration(token.ExpiresIn) * time.Second
	case !token.Expiry.IsZero():
		issued.ExpiresIn = token.Expiry.Sub(e.config.Now())
	}
	return issued, nil
}

func (e *RefreshTokenExchanger) validate() error {
	switch {
	case e.config.TokenURL == "":
		return fmt.Errorf("auth: token url is required")
	case e.config.ClientID == "":
		return fmt.Errorf("auth: client_id is required")
	case e.config.ClientSecret == "":
		return fmt.Errorf("auth: client_secret is required")
	case e.config.RefreshToken == "":
		return fmt.Errorf("auth: refresh_token is required")
	}
	return nil
}

// retrieveStatus returns the identity provider status, or zero when the
// failure happened before a response arrived.
func retrieveStatus(err error) int {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		if retrieveErr.Response.StatusCode >= http.StatusBadRequest {
			return retrieveErr.Response.StatusCode
		}
	}
	return 0
}
