package crmbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-logger/glog"

	gocmd "github.com/goliatone/go-crmbridge/adapters/gocommand"
	"github.com/goliatone/go-crmbridge/adapters/gologger"
	"github.com/goliatone/go-crmbridge/auth"
	crmcommand "github.com/goliatone/go-crmbridge/command"
	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/mcp"
	"github.com/goliatone/go-crmbridge/operations"
	crmquery "github.com/goliatone/go-crmbridge/query"
	"github.com/goliatone/go-crmbridge/ratelimit"
	sqlstore "github.com/goliatone/go-crmbridge/store/sql"
	"github.com/goliatone/go-crmbridge/transport"
)

const serverInstructions = "Tools proxy the Zoho CRM REST API. Every result is an envelope with status success or error."

// rateLimitStateCacheTTL bounds how long another process's throttle write
// can go unseen.
const rateLimitStateCacheTTL = 5 * time.Second

// ActivityStore records operation activity and lists it back.
type ActivityStore = core.ActivityStore

type Option func(*setupOptions)

type setupOptions struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	httpClient     *http.Client
	exchanger      core.TokenExchanger
	dispatcher     core.Dispatcher
	activity       ActivityStore
	version        string
	subscribe      bool
	now            func() time.Time
}

func WithLogger(logger glog.Logger) Option {
	return func(o *setupOptions) { o.logger = logger }
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *setupOptions) { o.loggerProvider = provider }
}

// WithHTTPClient shares one client between the token exchange and the CRM
// dispatcher.
func WithHTTPClient(client *http.Client) Option {
	return func(o *setupOptions) { o.httpClient = client }
}

func WithTokenExchanger(exchanger core.TokenExchanger) Option {
	return func(o *setupOptions) { o.exchanger = exchanger }
}

func WithDispatcher(dispatcher core.Dispatcher) Option {
	return func(o *setupOptions) { o.dispatcher = dispatcher }
}

// WithActivityStore replaces the store opened from Config.ActivityDSN. The
// store is still wrapped with the queued writer and retention policy.
func WithActivityStore(store ActivityStore) Option {
	return func(o *setupOptions) { o.activity = store }
}

func WithVersion(version string) Option {
	return func(o *setupOptions) { o.version = strings.TrimSpace(version) }
}

// WithDispatcherSubscriptions subscribes every handler to the process wide
// go-command dispatcher. Close removes the subscriptions.
func WithDispatcherSubscriptions() Option {
	return func(o *setupOptions) { o.subscribe = true }
}

func WithClock(now func() time.Time) Option {
	return func(o *setupOptions) { o.now = now }
}

// Bridge is a wired CRM proxy: credentials, token manager, dispatcher,
// operation catalog, handlers and tool host.
type Bridge struct {
	config   Config
	logger   glog.Logger
	tokens   *core.TokenManager
	catalog  *operations.Catalog
	facade   *Facade
	registry *gocmd.RegistryAdapter
	tools    *mcp.Toolset
	server   *mcp.Server
	activity ActivityStore

	closers       []func() error
	subscriptions []commanddispatcher.Subscription
}

func Setup(ctx context.Context, cfg Config, opts ...Option) (*Bridge, error) {
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	provider, logger := gologger.Resolve("crmbridge", options.loggerProvider, options.logger)
	logger = glog.Ensure(logger)
	named := func(name string) glog.Logger {
		if provider != nil {
			if l := provider.GetLogger(name); l != nil {
				return l
			}
		}
		return logger
	}

	cfg = cfg.Normalized()
	creds, err := core.LoadCredentialSet(cfg)
	if err != nil {
		return nil, err
	}

	bridge := &Bridge{config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = bridge.Close()
		}
	}()

	store := options.activity
	var rateState ratelimit.StateStore
	if cfg.ActivityDSN != "" {
		client, err := sqlstore.Open(ctx, cfg.ActivityDSN)
		if err != nil {
			return nil, fmt.Errorf("crmbridge: open activity ledger: %w", err)
		}
		bridge.closers = append(bridge.closers, client.Close)
		if store == nil {
			store, err = sqlstore.NewActivityStoreFromPersistence(client)
			if err != nil {
				return nil, fmt.Errorf("crmbridge: activity ledger: %w", err)
			}
		}
		rateState, err = openRateLimitState(client)
		if err != nil {
			return nil, err
		}
	}
	if store != nil {
		policy := core.ActivityRetentionPolicy{TTL: cfg.ActivityTTL, RowCap: cfg.ActivityRowCap}
		ledger, err := core.NewOperationalActivitySink(store, core.NewLoggerActivitySink(named("activity")), policy, 0)
		if err != nil {
			return nil, err
		}
		bridge.closers = append(bridge.closers, func() error {
			ledger.Close()
			return nil
		})
		deleted, err := ledger.EnforceRetention(ctx)
		if err != nil {
			logger.Warn("activity retention failed", "error", err)
		} else if deleted > 0 {
			logger.Info("activity retention applied", "deleted", deleted)
		}
		bridge.activity = ledger
	}

	var sink core.ActivitySink
	if bridge.activity != nil {
		sink = bridge.activity
	}
	observer := core.NewObserver(named("operations"), sink)
	if options.now != nil {
		observer.WithClock(options.now)
	}

	exchanger := options.exchanger
	if exchanger == nil {
		exchanger = auth.NewRefreshTokenExchangerFromCredentials(creds, options.httpClient, cfg.RequestTimeout)
	}
	tokenOpts := []core.TokenManagerOption{
		core.WithTokenValidity(cfg.TokenValidity),
		core.WithTokenObserver(observer),
	}
	if options.now != nil {
		tokenOpts = append(tokenOpts, core.WithTokenClock(options.now))
	}
	bridge.tokens = core.NewTokenManager(exchanger, tokenOpts...)

	dispatcher := options.dispatcher
	if dispatcher == nil {
		var client transport.HTTPDoer
		if options.httpClient != nil {
			client = options.httpClient
		}
		dispatcher = transport.NewRESTDispatcher(creds.BaseURL(), client,
			transport.WithTokenScheme(cfg.TokenScheme),
			transport.WithTimeout(cfg.RequestTimeout),
			transport.WithPacer(ratelimit.NewAdaptivePolicy(rateState, cfg.RateLimit, cfg.RateBurst)),
		)
	}

	catalogOpts := []operations.Option{
		operations.WithModules(creds.Modules()),
		operations.WithFanOutConcurrency(cfg.FanOutConcurrency),
		operations.WithObserver(observer),
	}
	if options.now != nil {
		catalogOpts = append(catalogOpts, operations.WithClock(options.now))
	}
	bridge.catalog = operations.NewCatalog(bridge.tokens, dispatcher, catalogOpts...)

	facadeOpts := []FacadeOption{}
	if bridge.activity != nil {
		facadeOpts = append(facadeOpts, WithActivityReader(bridge.activity))
	}
	bridge.facade, err = NewFacade(bridge.catalog, facadeOpts...)
	if err != nil {
		return nil, err
	}

	bridge.registry = gocmd.NewRegistryAdapter(nil)
	if err := bridge.registry.Register(bridge.facade.handlers()...); err != nil {
		return nil, fmt.Errorf("crmbridge: register handlers: %w", err)
	}
	if err := bridge.registry.Initialize(); err != nil {
		return nil, fmt.Errorf("crmbridge: initialize registry: %w", err)
	}
	if options.subscribe {
		bridge.subscribe()
	}

	bridge.tools, err = mcp.NewCatalogToolset(bridge.facade.ToolHandlers())
	if err != nil {
		return nil, err
	}
	bridge.server, err = mcp.NewServer(bridge.tools,
		mcp.WithServerInfo("crmbridge", options.version),
		mcp.WithInstructions(serverInstructions),
		mcp.WithLogger(named("mcp")),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("crmbridge ready",
		"base_url", creds.BaseURL(),
		"modules", strings.Join(creds.Modules(), ","),
		"activity", bridge.activity != nil,
		"tools", len(bridge.tools.Names()),
	)
	ok = true
	return bridge, nil
}

func (b *Bridge) subscribe() {
	q, c := b.facade.queries, b.facade.commands
	b.subscriptions = append(b.subscriptions,
		gocmd.SubscribeCommand[crmcommand.CreateRecordMessage](c.CreateRecord),
		gocmd.SubscribeCommand[crmcommand.UpdateRecordMessage](c.UpdateRecord),
		gocmd.SubscribeCommand[crmcommand.DeleteRecordMessage](c.DeleteRecord),
		gocmd.SubscribeCommand[crmcommand.BulkCreateRecordsMessage](c.BulkCreateRecords),
		gocmd.SubscribeCommand[crmcommand.CreateLeadFromFormMessage](c.CreateLeadFromForm),
		gocmd.SubscribeCommand[crmcommand.RefreshTokenMessage](c.RefreshToken),
		gocmd.SubscribeQuery[crmquery.GetModuleDataMessage, core.Envelope](q.GetModuleData),
		gocmd.SubscribeQuery[crmquery.GetAvailableModulesMessage, core.Envelope](q.GetAvailableModules),
		gocmd.SubscribeQuery[crmquery.SearchRecordsMessage, core.Envelope](q.SearchRecords),
		gocmd.SubscribeQuery[crmquery.GetRecordByIDMessage, core.Envelope](q.GetRecordByID),
		gocmd.SubscribeQuery[crmquery.GetModuleFieldsMessage, core.Envelope](q.GetModuleFields),
		gocmd.SubscribeQuery[crmquery.ListActivityMessage, core.ActivityPage](q.ListActivity),
	)
}

func (b *Bridge) Config() Config               { return b.config }
func (b *Bridge) Tokens() *core.TokenManager   { return b.tokens }
func (b *Bridge) Catalog() *operations.Catalog { return b.catalog }
func (b *Bridge) Facade() *Facade              { return b.facade }
func (b *Bridge) Tools() *mcp.Toolset          { return b.tools }
func (b *Bridge) Server() *mcp.Server          { return b.server }

// Activity is nil when no ledger is configured. Writes through it are
// queued; List waits for them.
func (b *Bridge) Activity() ActivityStore { return b.activity }

func (b *Bridge) Registry() *gocmd.RegistryAdapter { return b.registry }

// Prune applies policy to the activity ledger.
func (b *Bridge) Prune(ctx context.Context, policy core.ActivityRetentionPolicy) (int, error) {
	pruner, ok := b.activity.(core.ActivityRetentionPruner)
	if !ok {
		return 0, errors.New("crmbridge: activity ledger is not configured")
	}
	return pruner.Prune(ctx, policy)
}

// Close releases subscriptions and the activity ledger connection.
func (b *Bridge) Close() error {
	if b == nil {
		return nil
	}
	for _, sub := range b.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openRateLimitState persists throttle state next to the activity ledger and
// caches reads.
func openRateLimitState(client any) (ratelimit.StateStore, error) {
	base, err := sqlstore.NewRateLimitStateStoreFromPersistence(client)
	if err != nil {
		return nil, fmt.Errorf("crmbridge: rate-limit state: %w", err)
	}
	cache, err := sqlstore.NewRateLimitCacheService(rateLimitStateCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("crmbridge: rate-limit state: %w", err)
	}
	cached, err := sqlstore.NewCachedRateLimitStateStore(base, cache)
	if err != nil {
		return nil, fmt.Errorf("crmbridge: rate-limit state: %w", err)
	}
	return cached, nil
}
