package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// RequestDescriptor is one CRM call. Path is relative to the configured base
// URL; Body, when set, is JSON encoded.
type RequestDescriptor struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any
}

func (d RequestDescriptor) NormalizedMethod() string {
	method := strings.ToUpper(strings.TrimSpace(d.Method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

// RawResponse is the unparsed CRM reply handed to the normalizer.
type RawResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// IssuedToken is the result of one identity provider exchange.
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// TokenExchanger mints a new access token from the long lived refresh
// credential.
type TokenExchanger interface {
	Exchange(ctx context.Context) (IssuedToken, error)
}

// TokenSource hands out a token that is valid for the next dispatched call.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
	Invalidate()
}

// Dispatcher sends one request to the CRM carrying token.
type Dispatcher interface {
	Send(ctx context.Context, req RequestDescriptor, token string) (RawResponse, error)
}

type ActivityStatus string

const (
	ActivityStatusOK    ActivityStatus = "ok"
	ActivityStatusError ActivityStatus = "error"
)

// ActivityEntry records one catalog operation invocation.
type ActivityEntry struct {
	ID         string         `json:"id"`
	Operation  string         `json:"operation"`
	Module     string         `json:"module,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Status     ActivityStatus `json:"status"`
	Code       int            `json:"code,omitempty"`
	ErrorType  string         `json:"error_type,omitempty"`
	Message    string         `json:"message,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

type ActivityFilter struct {
	Operation string
	Module    string
	Status    ActivityStatus
	Page      int
	PerPage   int
}

type ActivityPage struct {
	Items   []ActivityEntry `json:"items"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Total   int             `json:"total"`
	HasNext bool            `json:"has_next"`
}

type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type ActivityReader interface {
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}
