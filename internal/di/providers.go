package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"PortDelta/internal/domain/models"
	"PortDelta/internal/domain/repository"
	dsvc "PortDelta/internal/domain/service"
	"PortDelta/internal/handler/api"
	mid "PortDelta/internal/middleware"
	internalrepo "PortDelta/internal/repository"
	"PortDelta/internal/service/alpaca"
	icache "PortDelta/internal/service/cache"
	"PortDelta/internal/service/calendar"
	"PortDelta/internal/service/eodhd"
	"PortDelta/internal/service/finnhub"
	"PortDelta/internal/service/livequote"
	"PortDelta/internal/service/presenter"
	"PortDelta/internal/service/ratelimit"
	"PortDelta/internal/usecase"
	pkgcache "PortDelta/pkg/cache"
	pkgch "PortDelta/pkg/clickhouse"
	"PortDelta/pkg/config"
	xhttp "PortDelta/pkg/http"
	pkgkafka "PortDelta/pkg/kafka"
	applogger "PortDelta/pkg/logger"
	"PortDelta/pkg/metrics"
	"PortDelta/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		NoColor: cfg.Log.NoColor,
	})
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

func ProvideLocation(cfg *config.Config) *time.Location {
	return cfg.Location()
}

// ProvidePortfolio loads the holdings file. A missing or invalid file is fatal.
func ProvidePortfolio(cfg *config.Config, logger *applogger.Logger) (models.Portfolio, error) {
	loader := internalrepo.NewFileLoader(config.ExpandPath(cfg.Portfolio.Path))
	p, err := loader.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}
	logger.Info("portfolio loaded",
		applogger.String("path", loader.Path()),
		applogger.Strings("symbols", p.Symbols()))
	return p, nil
}

// ProvideAlpacaClient returns nil unless Alpaca serves prices or the calendar.
func ProvideAlpacaClient(cfg *config.Config, loc *time.Location, logger *applogger.Logger) *alpaca.Client {
	if cfg.Prices.Provider != "alpaca" && cfg.Calendar.Provider != "alpaca" {
		return nil
	}
	// The transport deadline sits past the per-call one so the engine's
	// context reports the timeout.
	httpTimeout := cfg.Valuation.FetchTimeout + 2*time.Second
	return alpaca.New(alpaca.Config{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
		DataURL:   cfg.Alpaca.DataURL,
		Feed:      cfg.Alpaca.Feed,
		Timeout:   httpTimeout,
	}, loc, alpaca.WithLogger(logger))
}

func ProvideSessionSource(cfg *config.Config, loc *time.Location, ac *alpaca.Client) (repository.SessionSource, error) {
	if cfg.Calendar.Provider == "alpaca" {
		return ac, nil
	}
	extra := make([]models.Date, 0, len(cfg.Calendar.ExtraHolidays))
	for _, s := range cfg.Calendar.ExtraHolidays {
		d, err := models.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("calendar.extra_holidays: %w", err)
		}
		extra = append(extra, d)
	}
	return calendar.NewNYSERules(loc, calendar.WithExtraHolidays(extra...)), nil
}

func ProvideCalendar(cfg *config.Config, src repository.SessionSource, logger *applogger.Logger) *calendar.Calendar {
	return calendar.New(src,
		calendar.WithMaxLookback(cfg.Calendar.MaxLookback),
		calendar.WithMemoTTL(cfg.Calendar.MemoTTL),
		calendar.WithLogger(logger),
	)
}

// ProvideClickHouseClient connects only when a component needs ClickHouse.
func ProvideClickHouseClient(cfg *config.Config, logger *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.NeedsClickHouse() {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.TickSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	logger.Info("clickhouse ready", applogger.String("database", client.Database()))

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideTickStorage returns nil without ClickHouse.
func ProvideTickStorage(ch *pkgch.Client, logger *applogger.Logger) repository.TickStorage {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHTickStorage(ch, logger)
}

func ProvideQuoteBook() *livequote.Book {
	return livequote.NewBook()
}

// ProvidePriceSource picks the configured provider and, with streaming
// enabled, lets fresh streamed trades answer latest-quote requests.
func ProvidePriceSource(
	cfg *config.Config,
	loc *time.Location,
	ac *alpaca.Client,
	ticks repository.TickStorage,
	cal *calendar.Calendar,
	book *livequote.Book,
	logger *applogger.Logger,
) (repository.PriceSource, error) {
	var src repository.PriceSource
	switch cfg.Prices.Provider {
	case "alpaca":
		src = ac
	case "eodhd":
		src = eodhd.NewClient(cfg.EODHD.APIKey, loc,
			eodhd.WithBaseURL(cfg.EODHD.BaseURL),
			eodhd.WithExchange(cfg.EODHD.Exchange),
			eodhd.WithRateLimit(cfg.EODHD.RateLimit),
			eodhd.WithTimeout(cfg.EODHD.Timeout),
			eodhd.WithLogger(logger),
		)
	case "clickhouse":
		if ticks == nil {
			return nil, fmt.Errorf("prices.provider=clickhouse needs a clickhouse connection")
		}
		src = internalrepo.NewCHPriceSource(ticks, cal)
	default:
		return nil, fmt.Errorf("unknown prices.provider %q", cfg.Prices.Provider)
	}

	if cfg.Finnhub.Enabled {
		src = livequote.NewOverlay(src, book, cfg.Finnhub.MaxQuoteAge)
	}
	logger.Info("price source ready",
		applogger.String("provider", cfg.Prices.Provider),
		applogger.Bool("live_overlay", cfg.Finnhub.Enabled))
	return src, nil
}

// ProvideCacheStore builds the key-value backend of the price cache.
func ProvideCacheStore(cfg *config.Config, logger *applogger.Logger) (pkgcache.Service, func(), error) {
	var store pkgcache.Service
	switch cfg.Cache.Backend {
	case "memory":
		store = pkgcache.NewMemoryCache()
	case "redis", "layered":
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			pkgcache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
			pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
			pkgcache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		store = rc
		if cfg.Cache.Backend == "layered" {
			// L1 may evict; Redis keeps every close
			store = pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(cfg.Cache.MemorySize))
		}
	default:
		return nil, nil, fmt.Errorf("unknown cache.backend %q", cfg.Cache.Backend)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("cache close error", applogger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvidePriceCache wraps store. A shared Redis backend is emptied at start
// when reset_on_start is set, so closes never outlive the process.
func ProvidePriceCache(cfg *config.Config, store pkgcache.Service, logger *applogger.Logger) (repository.PriceCache, error) {
	pc := icache.NewPriceCache(store)
	if cfg.Cache.Backend != "memory" && cfg.Cache.Redis.ResetOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pc.Clear(ctx); err != nil {
			return nil, fmt.Errorf("reset price cache: %w", err)
		}
		logger.Info("price cache reset", applogger.String("backend", cfg.Cache.Backend))
	}
	return pc, nil
}

func ProvideEngine(
	cfg *config.Config,
	portfolio models.Portfolio,
	cal *calendar.Calendar,
	prices repository.PriceSource,
	cache repository.PriceCache,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.ValuationEngine {
	return usecase.NewValuationEngine(portfolio, cal, prices, cache,
		usecase.WithFetchTimeout(cfg.Valuation.FetchTimeout),
		usecase.WithConcurrency(cfg.Valuation.Concurrency),
		usecase.WithStrictReferenceDates(cfg.Valuation.StrictReferenceDates),
		usecase.WithMetrics(m),
		usecase.WithLogger(logger),
	)
}

func ProvideFormatter(cfg *config.Config) (*presenter.Formatter, error) {
	return presenter.NewFormatter(cfg.Valuation.Currency)
}

func ProvideLatestStore() *presenter.LatestStore {
	return presenter.NewLatestStore()
}

// ProvideKafkaProducer returns nil unless kafka.enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(cfg.Kafka.AutoCreateTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePresenter fans each round out to the HTTP store, the console and
// Kafka, depending on configuration.
func ProvidePresenter(
	cfg *config.Config,
	f *presenter.Formatter,
	latest *presenter.LatestStore,
	producer *pkgkafka.Producer,
	logger *applogger.Logger,
) (dsvc.Presenter, func()) {
	multi := presenter.Multi{latest}
	if cfg.Valuation.Console {
		multi = append(multi, presenter.NewConsolePresenter(os.Stdout, f, cfg.Valuation.Color))
	}
	cleanup := func() {}
	if producer != nil {
		pub := presenter.NewPublisherPresenter(internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), logger)
		multi = append(multi, pub)
		cleanup = func() {
			if err := pub.Close(); err != nil {
				logger.Warn("kafka producer close error", applogger.Error(err))
			}
		}
	}
	return multi, cleanup
}

func ProvideScheduler(
	cfg *config.Config,
	engine *usecase.ValuationEngine,
	p dsvc.Presenter,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.Scheduler {
	return usecase.NewScheduler(engine, p,
		usecase.WithInterval(cfg.Scheduler.Interval),
		usecase.WithRunOnStart(cfg.Scheduler.RunOnStart),
		usecase.WithSchedulerMetrics(m),
		usecase.WithSchedulerLogger(logger),
	)
}

// ProvideQuoteCollector streams trades for the portfolio symbols into book.
// It returns nil unless finnhub.enabled.
func ProvideQuoteCollector(
	cfg *config.Config,
	portfolio models.Portfolio,
	book *livequote.Book,
	ticks repository.TickStorage,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.QuoteCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	stream := finnhub.New(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, portfolio.Symbols(),
		finnhub.WithReconnectDelay(cfg.Finnhub.ReconnectDelay),
		finnhub.WithPingInterval(cfg.Finnhub.PingInterval),
		finnhub.WithLogger(logger),
	)
	opts := []usecase.TickOption{usecase.WithTickLogger(logger)}
	if cfg.Finnhub.StoreTicks && ticks != nil {
		opts = append(opts, usecase.WithTickStorage(ticks, cfg.Finnhub.TickBatchSize, cfg.Finnhub.TickFlush))
	}
	proc := usecase.NewTickProcessor(book, m, opts...)
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Finnhub.MaxRPS),
		mid.WithBufferSize(cfg.Finnhub.BufferSize),
		mid.WithPipelineLogger(logger),
	)
	return usecase.NewQuoteCollector(stream, proc, pipe, m, logger)
}

func ProvideHTTPHandler(
	cfg *config.Config,
	logger *applogger.Logger,
	engine *usecase.ValuationEngine,
	sched *usecase.Scheduler,
	latest *presenter.LatestStore,
	f *presenter.Formatter,
	ch *pkgch.Client,
	store pkgcache.Service,
) *api.ValuationEchoHandler {
	opts := []api.HandlerOption{
		api.WithRefreshLimiter(ratelimit.New(float64(cfg.Server.RefreshBurst), cfg.Server.RefreshPerSec)),
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	if cfg.Cache.Backend != "memory" {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			_, err := store.Exists(ctx, "healthz")
			return err
		}))
	}
	return api.NewValuationEchoHandler(logger, engine, sched, latest, f, opts...)
}

// ProvideHTTPServer returns nil when server.enabled is false.
func ProvideHTTPServer(
	cfg *config.Config,
	h *api.ValuationEchoHandler,
	reg *prometheus.Registry,
	logger *applogger.Logger,
) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(metricsPath, reg),
		xhttp.WithLogger(logger),
	)
}

func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	sched *usecase.Scheduler,
	collector *usecase.QuoteCollector,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, logger, sched, collector, srv)
}
