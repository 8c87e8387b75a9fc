package operations

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-crmbridge/core"
)

// Tokens is the token manager surface the catalog needs.
type Tokens interface {
	core.TokenSource
	Refresh(ctx context.Context) (core.RefreshResult, error)
}

// Catalog executes CRM operations. It is safe for concurrent use; the only
// shared mutable state is owned by the token manager.
type Catalog struct {
	tokens      Tokens
	dispatcher  core.Dispatcher
	modules     []string
	concurrency int
	observer    *core.Observer
	now         func() time.Time
}

type Option func(*Catalog)

// WithModules sets the modules fanned out to when no module is given.
func WithModules(modules []string) Option {
	return func(c *Catalog) {
		if len(modules) > 0 {
			c.modules = append([]string(nil), modules...)
		}
	}
}

// WithFanOutConcurrency bounds parallel module requests. One keeps the
// fan-out sequential.
func WithFanOutConcurrency(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(c *Catalog) {
		c.observer = observer
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCatalog(tokens Tokens, dispatcher core.Dispatcher, opts ...Option) *Catalog {
	c := &Catalog{
		tokens:      tokens,
		dispatcher:  dispatcher,
		modules:     append([]string(nil), core.DefaultModules...),
		concurrency: core.DefaultFanOutConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.observer == nil {
		c.observer = core.NewObserver(glog.Nop(), nil)
	}
	return c
}

// Modules returns the configured fan-out modules.
func (c *Catalog) Modules() []string {
	return append([]string(nil), c.modules...)
}

type call struct {
	spec    OperationSpec
	params  params
	query   map[string]string
	body    any
	page    *core.PageRequest
	message string
}

// invoke runs one declared call: ensure a valid token, dispatch once, and
// normalize.
func (c *Catalog) invoke(ctx context.Context, in call) core.Envelope {
	module, recordID := in.params.module, in.params.id
	if missing := in.params.missing(in.spec); missing != "" {
		return core.FailureFromError(module, recordID, requiredError(missing))
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return core.FailureFromError(module, recordID, err)
	}
	return c.dispatch(ctx, in, token)
}

// accessToken checks the token once for the whole invocation. A failed
// refresh ends the invocation before anything is dispatched.
func (c *Catalog) accessToken(ctx context.Context) (string, error) {
	if c.tokens == nil || c.dispatcher == nil {
		return "", errCatalogNotConfigured
	}
	return c.tokens.EnsureValid(ctx)
}

// dispatch sends one declared call with token and normalizes the response.
// A CRM 401 marks the token stale for the next invocation.
func (c *Catalog) dispatch(ctx context.Context, in call, token string) core.Envelope {
	module, recordID := in.params.module, in.params.id
	res, err := c.dispatcher.Send(ctx, core.RequestDescriptor{
		Method: in.spec.Method,
		Path:   in.spec.path(in.params),
		Query:  in.query,
		Body:   in.body,
	}, token)
	if err != nil {
		return core.FailureFromError(module, recordID, err)
	}
	if res.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	return core.Normalize(core.NormalizeInput{
		Kind:           in.spec.Kind,
		Module:         module,
		RecordID:       recordID,
		Page:           in.page,
		SuccessMessage: in.message,
	}, res)
}

// observe times fn and reports the envelope it returns.
func (c *Catalog) observe(ctx context.Context, operation string, fn func() core.Envelope) core.Envelope {
	startedAt := c.now()
	env := fn()
	c.observer.Observe(ctx, startedAt, operation, env, nil)
	return env
}
