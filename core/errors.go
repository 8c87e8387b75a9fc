package core

import (
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorConfig     = "CONFIG_ERROR"
	ErrorAuth       = "AUTH_ERROR"
	ErrorUpstream   = "UPSTREAM_ERROR"
	ErrorValidation = "VALIDATION_ERROR"
	ErrorTransport  = "TRANSPORT_ERROR"
	ErrorInternal   = "INTERNAL_ERROR"
)

// NewConfigError reports missing or malformed startup configuration.
func NewConfigError(fields ...goerrors.FieldError) *goerrors.Error {
	return goerrors.NewValidation("core: invalid configuration", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorConfig).
		WithSeverity(goerrors.SeverityCritical)
}

// NewAuthError wraps a failed token refresh. status is the identity
// provider status when one was received.
func NewAuthError(source error, status int) *goerrors.Error {
	message := "core: access token refresh failed"
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryAuth)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryAuth, message)
		err.Category = goerrors.CategoryAuth
	}
	if status <= 0 {
		status = http.StatusUnauthorized
	}
	return err.WithCode(status).WithTextCode(ErrorAuth)
}

// NewUpstreamError carries a non-2xx CRM response. The body is kept verbatim.
func NewUpstreamError(status int, body string) *goerrors.Error {
	if strings.TrimSpace(body) == "" {
		body = http.StatusText(status)
		if body == "" {
			body = "upstream status " + strconv.Itoa(status)
		}
	}
	return goerrors.New(body, goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(ErrorUpstream)
}

// NewValidationError reports a local precondition failure. A zero code
// leaves the envelope code unset.
func NewValidationError(message string, code int) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(ErrorValidation)
	if code > 0 {
		err = err.WithCode(code)
	}
	return err
}

// NewTransportError wraps a network level failure talking to the CRM.
func NewTransportError(source error, message string, metadata map[string]any) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryExternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
		err.Category = goerrors.CategoryExternal
	}
	err = err.WithTextCode(ErrorTransport)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// IsAuthError reports whether err is a refresh failure.
func IsAuthError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == ErrorAuth || rich.Category == goerrors.CategoryAuth
}

// IsConfigError reports whether err is a startup configuration failure.
func IsConfigError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == ErrorConfig
}

// MapError converts any error into a rich error with a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if strings.TrimSpace(rich.TextCode) == "" {
			rich.TextCode = defaultTextCode(rich.Category)
		}
		return rich
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth2"), strings.Contains(msg, "access_token"), strings.Contains(msg, "refresh"):
		return NewAuthError(err, 0)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "exceeds"):
		return NewValidationError(err.Error(), http.StatusBadRequest)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return NewTransportError(err, "core: crm request failed", nil)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
		WithTextCode(ErrorInternal)
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuth
	case goerrors.CategoryExternal:
		return ErrorUpstream
	default:
		return ErrorInternal
	}
}
