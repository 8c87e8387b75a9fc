package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-crmbridge/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB
const defaultPacerBucket = "crm"

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pacer is consulted around every dispatched call.
type Pacer interface {
	BeforeCall(ctx context.Context, bucket string) error
	AfterCall(ctx context.Context, bucket string, res core.RawResponse) error
}

// RESTDispatcher sends one CRM request per Send. It never retries.
type RESTDispatcher struct {
	Client               HTTPDoer
	BaseURL              string
	TokenScheme          string
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Timeout              time.Duration
	Pacer                Pacer
	Now                  func() time.Time
}

type Option func(*RESTDispatcher)

func WithTokenScheme(scheme string) Option {
	return func(d *RESTDispatcher) {
		if scheme = strings.TrimSpace(scheme); scheme != "" {
			d.TokenScheme = scheme
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *RESTDispatcher) {
		if timeout > 0 {
			d.Timeout = timeout
		}
	}
}

func WithPacer(pacer Pacer) Option {
	return func(d *RESTDispatcher) {
		d.Pacer = pacer
	}
}

func WithResponseBodyLimit(limit int64) Option {
	return func(d *RESTDispatcher) {
		if limit > 0 {
			d.MaxResponseBodyBytes = limit
		}
	}
}

func NewRESTDispatcher(baseURL string, client HTTPDoer, opts ...Option) *RESTDispatcher {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	d := &RESTDispatcher{
		Client:               client,
		BaseURL:              strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		TokenScheme:          core.DefaultTokenScheme,
		DefaultHeaders:       map[string]string{"Accept": "application/json"},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
		Now:                  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (*RESTDispatcher) Kind() string {
	return KindREST
}

func (d *RESTDispatcher) Send(ctx context.Context, req core.RequestDescriptor, token string) (core.RawResponse, error) {
	if d == nil || d.Client == nil {
		return core.RawResponse{}, transportError(
			"transport: rest dispatcher requires an http client",
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := req.NormalizedMethod()
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return core.RawResponse{}, core.NewValidationError("transport: unsupported method "+method, http.StatusBadRequest)
	}

	target, err := d.resolveURL(req)
	if err != nil {
		return core.RawResponse{}, err
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return core.RawResponse{}, core.NewValidationError("transport: encode request body: "+err.Error(), http.StatusBadRequest)
		}
		body = bytes.NewReader(payload)
	}

	if d.Pacer != nil {
		if err := d.Pacer.BeforeCall(ctx, defaultPacerBucket); err != nil {
			return core.RawResponse{}, err
		}
	}

	requestCtx := ctx
	cancel := func() {}
	if d.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, d.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, target, body)
	if err != nil {
		return core.RawResponse{}, transportWrapError(
			err,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method, "url": target},
		)
	}
	for key, value := range d.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", strings.TrimSpace(d.TokenScheme)+" "+strings.TrimSpace(token))

	startedAt := d.now()
	httpRes, err := d.Client.Do(httpReq)
	if err != nil {
		return core.RawResponse{}, transportWrapError(
			err,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "method": method, "url": target},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := d.MaxResponseBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultRESTResponseBodyLimit
	}
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.RawResponse{}, transportWrapError(
			err,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(payload)) > maxBodyBytes {
		return core.RawResponse{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			http.StatusBadGateway,
			map[string]any{
				"adapter":          KindREST,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	res := core.RawResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Duration:   d.now().Sub(startedAt),
	}
	if d.Pacer != nil {
		// Pacer bookkeeping never fails the call it observed.
		_ = d.Pacer.AfterCall(ctx, defaultPacerBucket, res)
	}
	return res, nil
}

func (d *RESTDispatcher) resolveURL(req core.RequestDescriptor) (string, error) {
	path := strings.TrimSpace(req.Path)
	raw := d.BaseURL + "/" + strings.TrimLeft(path, "/")
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		raw = path
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", transportWrapError(
			err,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "url": raw},
		)
	}
	query := parsed.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (d *RESTDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.Dispatcher = (*RESTDispatcher)(nil)
