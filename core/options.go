package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	storeProvider     StoreProvider
	inboxStore        InboxStore
	identityStore     IdentityStore
	conversationStore ConversationStore
	messageStore      MessageStore
	profileFetcher    ProfileFetcher
	activity          map[ActorKind]ActivityContentStrategy
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithStores wires every store from one provider. Individually set stores
// take precedence.
func WithStores(provider StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.storeProvider = provider
	}
}

func WithInboxStore(store InboxStore) Option {
	return func(b *serviceBuilder) {
		b.inboxStore = store
	}
}

func WithIdentityStore(store IdentityStore) Option {
	return func(b *serviceBuilder) {
		b.identityStore = store
	}
}

func WithConversationStore(store ConversationStore) Option {
	return func(b *serviceBuilder) {
		b.conversationStore = store
	}
}

func WithMessageStore(store MessageStore) Option {
	return func(b *serviceBuilder) {
		b.messageStore = store
	}
}

func WithProfileFetcher(fetcher ProfileFetcher) Option {
	return func(b *serviceBuilder) {
		b.profileFetcher = fetcher
	}
}

// WithActivityStrategy overrides the activity text strategy for one actor kind.
func WithActivityStrategy(kind ActorKind, strategy ActivityContentStrategy) Option {
	return func(b *serviceBuilder) {
		if strategy == nil {
			return
		}
		if b.activity == nil {
			b.activity = defaultActivityStrategies()
		}
		b.activity[kind] = strategy
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("inbox", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     inboxErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		activity:        defaultActivityStrategies(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver layers defaults < loaded config < runtime config.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.RegistrationAttempts > 0 {
		layer["registration_attempts"] = cfg.RegistrationAttempts
	}

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver, includeZero)
	putString(database, "dsn", cfg.Database.DSN, includeZero)
	putBool(database, "debug", cfg.Database.Debug, includeZero)
	putSection(layer, "database", database)

	httpLayer := map[string]any{}
	putString(httpLayer, "addr", cfg.HTTP.Addr, includeZero)
	putSection(layer, "http", httpLayer)

	webhooks := map[string]any{}
	putInt(webhooks, "max_attempts", cfg.Webhooks.MaxAttempts, includeZero)
	putInt(webhooks, "claim_lease_seconds", cfg.Webhooks.ClaimLeaseSeconds, includeZero)
	putInt(webhooks, "retry_initial_seconds", cfg.Webhooks.RetryInitialSeconds, includeZero)
	putInt(webhooks, "retry_max_seconds", cfg.Webhooks.RetryMaxSeconds, includeZero)
	putSection(layer, "webhooks", webhooks)

	profile := map[string]any{}
	putBool(profile, "enabled", cfg.Profile.Enabled, includeZero)
	putInt(profile, "timeout_seconds", cfg.Profile.TimeoutSeconds, includeZero)
	putSection(layer, "profile", profile)

	cache := map[string]any{}
	putInt(cache, "inbox_ttl_seconds", cfg.Cache.InboxTTLSeconds, includeZero)
	putSection(layer, "cache", cache)
	return layer
}

func putString(dst map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		dst[key] = value
	}
}

func putInt(dst map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		dst[key] = value
	}
}

func putBool(dst map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		dst[key] = value
	}
}

func putSection(dst map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		dst[key] = section
	}
}
