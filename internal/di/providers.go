package di

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"FinSense/internal/domain/repository"
	"FinSense/internal/handler/api"
	mid "FinSense/internal/middleware"
	internalrepo "FinSense/internal/repository"
	"FinSense/internal/service/quotes"
	"FinSense/internal/service/ratelimit"
	"FinSense/internal/services/features"
	"FinSense/internal/services/learner"
	"FinSense/internal/services/ml"
	"FinSense/internal/services/modelmgr"
	"FinSense/internal/services/sentiment"
	"FinSense/internal/services/tracker"
	"FinSense/internal/usecase"
	"FinSense/pkg/badgerdb"
	"FinSense/pkg/cache"
	pkgch "FinSense/pkg/clickhouse"
	"FinSense/pkg/config"
	xhttp "FinSense/pkg/http"
	pkgkafka "FinSense/pkg/kafka"
	applogger "FinSense/pkg/logger"
	"FinSense/pkg/metrics"
	"FinSense/pkg/postgres"
	"FinSense/pkg/queue"
	"FinSense/pkg/server"
)

const initTimeout = 15 * time.Second

func noop() {}

// ProvideKafkaProducer creates the shared producer. It is nil when neither
// event publishing nor log shipping is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled && !cfg.Logging.Collector.Enabled {
		return nil, noop, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithBatchSize(p.BatchSize),
		pkgkafka.WithBatchTimeout(p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.WriteTimeout),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the zerolog logger and, when enabled, the collector
// that ships aggregated errors to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if !cfg.Logging.Collector.Enabled || producer == nil {
		return l, noop, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Logging.Collector.FlushInterval,
		CountThreshold: cfg.Logging.Collector.BatchSize,
		Topic:          cfg.Kafka.Topics.Logs,
		Source:         "finsense",
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEventPublisher returns nil when Kafka is disabled so that the
// tracker and learner skip publishing.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if !cfg.Kafka.Enabled || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Predictions, cfg.Kafka.Topics.ModelEvents)
}

func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, noop, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideBarCache puts an in-process layer in front of Redis, or uses the
// in-process cache alone when Redis is off.
func ProvideBarCache(rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		// the Redis client is closed by its own cleanup
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(2000), cache.WithLayeredL1TTL(10*time.Second)), noop
	}
	mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(2000), cache.WithMemoryCleanup(time.Minute))
	return mc, func() { _ = mc.Close() }
}

// ProvideLocker returns the Redis lock when available. A nil locker makes the
// learner fall back to its in-process lock.
func ProvideLocker(rc *cache.RedisCache) repository.Locker {
	if rc == nil {
		return nil
	}
	return rc
}

func usesClickHouse(cfg *config.Config) bool {
	return cfg.Storage.Backend == "clickhouse" || cfg.Feed.Type == "clickhouse"
}

func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !usesClickHouse(cfg) {
		return nil, noop, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideBadgerDB(cfg *config.Config, l *applogger.Logger) (*badger.DB, func(), error) {
	if cfg.Storage.Backend != "badger" {
		return nil, noop, nil
	}
	bc := badgerdb.DefaultConfig()
	bc.Path = cfg.Storage.Badger.Path
	bc.InMemory = cfg.Storage.Badger.InMemory
	bc.GCInterval = cfg.Storage.Badger.GCInterval
	db, err := badgerdb.Open(bc, l)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	if cfg.Storage.Backend != "postgres" {
		return nil, noop, nil
	}
	pg := cfg.Storage.Postgres
	client, err := postgres.NewClient(
		postgres.WithDSN(pg.DSN),
		postgres.WithMaxConnections(pg.MaxOpenConns, pg.MaxOpenConns/2),
		postgres.WithConnMaxLifetime(30*time.Minute),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePredictionStore selects the persistence backend. The underlying
// clients are owned by their providers, so the store has no cleanup.
func ProvidePredictionStore(
	cfg *config.Config,
	db *badger.DB,
	pg *postgres.Client,
	ch *pkgch.Client,
	locker repository.Locker,
	l *applogger.Logger,
) (repository.PredictionStore, error) {
	var store repository.PredictionStore
	switch cfg.Storage.Backend {
	case "badger":
		store = internalrepo.NewBadgerStore(db, l)
	case "postgres":
		store = internalrepo.NewPostgresStore(pg, l)
	case "clickhouse":
		store = internalrepo.NewCHPredictionStore(ch, l, internalrepo.WithVerifyLocker(locker))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Storage.Backend, err)
	}
	l.Info("prediction store ready", applogger.String("backend", cfg.Storage.Backend))
	return store, nil
}

func ProvideModelRegistry(store repository.PredictionStore) repository.ModelRegistry {
	if r, ok := store.(repository.ModelRegistry); ok {
		return r
	}
	return nil
}

// SourceBarFeed is the bar feed without the cache layer. Training reads it
// so a retrain never fits on bars cached for the analyze path.
type SourceBarFeed interface {
	repository.BarFeed
}

// ProvideSourceBarFeed reads bars over HTTP or from ClickHouse.
func ProvideSourceBarFeed(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) SourceBarFeed {
	switch cfg.Feed.Type {
	case "clickhouse":
		return internalrepo.NewCHBarFeed(ch, l)
	default:
		client := xhttp.NewClient(
			xhttp.WithTimeout(cfg.Feed.Timeout),
			xhttp.WithRetries(cfg.Feed.Retries, 500*time.Millisecond),
		)
		return internalrepo.NewHTTPBarFeed(cfg.Feed.HTTPURL, client, l)
	}
}

// ProvideBarFeed caches the source feed for the request paths.
func ProvideBarFeed(cfg *config.Config, src SourceBarFeed, c cache.Service, l *applogger.Logger) repository.BarFeed {
	if cfg.Feed.CacheTTL <= 0 || c == nil {
		return src
	}
	return internalrepo.NewCachedBarFeed(src, c, cfg.Feed.CacheTTL, l)
}

func ProvideEngineer(l *applogger.Logger) *features.Engineer {
	return features.NewEngineer(l)
}

func ProvideTrainer(cfg *config.Config, l *applogger.Logger) *ml.Trainer {
	t := cfg.Trainer
	bp := ml.DefaultBoostingParams()
	bp.NEstimators = t.GBT.NEstimators
	bp.MaxDepth = t.GBT.MaxDepth
	bp.LearningRate = t.GBT.LearningRate
	bp.Lambda = t.GBT.Lambda
	bp.MinChildWeight = t.GBT.MinChildWeight

	fp := ml.DefaultForestParams()
	fp.NEstimators = t.RF.NEstimators
	fp.MaxDepth = t.RF.MaxDepth
	fp.MinSamplesLeaf = t.RF.MinSamplesLeaf
	fp.Seed = t.Seed

	return ml.NewTrainer(l,
		ml.WithTestSize(t.TestSize),
		ml.WithSeed(t.Seed),
		ml.WithCVFolds(t.CVFolds),
		ml.WithChronologicalSplit(t.ChronologicalSplit),
		ml.WithMinRows(cfg.Learning.MinTrainingRows),
		ml.WithBoosting(bp),
		ml.WithForest(fp),
		ml.WithWeights(t.Weights.Boosting, t.Weights.Forest),
	)
}

// ProvideModelManager loads the active model, if any, before serving.
func ProvideModelManager(
	cfg *config.Config,
	trainer *ml.Trainer,
	registry repository.ModelRegistry,
	m repository.Metrics,
	l *applogger.Logger,
) (*modelmgr.Manager, error) {
	opts := []modelmgr.Option{modelmgr.WithMetrics(m)}
	if registry != nil {
		opts = append(opts, modelmgr.WithRegistry(registry))
	}
	mgr, err := modelmgr.New(cfg.Models.Dir, trainer, l, opts...)
	if err != nil {
		return nil, fmt.Errorf("model manager: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := mgr.Init(ctx); err != nil {
		return nil, fmt.Errorf("init model manager: %w", err)
	}
	return mgr, nil
}

func ProvideTracker(
	cfg *config.Config,
	store repository.PredictionStore,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *tracker.Tracker {
	opts := []tracker.Option{
		tracker.WithThreshold(cfg.Tracker.OutcomeThresholdPct),
		tracker.WithWindows(cfg.Tracker.VerificationWindows),
		tracker.WithUnverifiedThreshold(cfg.Tracker.UnverifiedThreshold),
		tracker.WithMetrics(m),
	}
	if pub != nil {
		opts = append(opts, tracker.WithPublisher(pub))
	}
	return tracker.New(store, l, opts...)
}

func ProvideLearner(
	cfg *config.Config,
	t *tracker.Tracker,
	mgr *modelmgr.Manager,
	feed SourceBarFeed,
	engineer *features.Engineer,
	locker repository.Locker,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *learner.Learner {
	lc := learner.DefaultConfig()
	lc.AutoRetrain = cfg.Learning.AutoRetrain
	lc.CheckInterval = cfg.Learning.CheckInterval
	lc.MinAccuracy = cfg.Learning.MinAccuracy
	lc.MinPredictions = cfg.Learning.MinPredictions
	lc.CheckDays = cfg.Learning.CheckDays
	lc.MaxModelAge = cfg.Learning.MaxModelAge
	lc.Symbol = cfg.Learning.Symbol
	lc.Timeframe = cfg.Learning.Timeframe
	lc.NumBars = cfg.Learning.NumBars
	lc.MinTrainingRows = cfg.Learning.MinTrainingRows
	lc.TrainTimeout = cfg.Learning.TrainTimeout
	lc.Tuning = cfg.Learning.Tuning

	opts := []learner.Option{
		learner.WithConfig(lc),
		learner.WithLocker(locker),
		learner.WithMetrics(m),
	}
	if pub != nil {
		opts = append(opts, learner.WithPublisher(pub))
	}
	return learner.New(t, mgr, feed, engineer, l, opts...)
}

func ProvideSentimentEngine(
	cfg *config.Config,
	engineer *features.Engineer,
	mgr *modelmgr.Manager,
	m repository.Metrics,
	l *applogger.Logger,
) *sentiment.Engine {
	return sentiment.NewEngine(engineer, mgr, m, l, sentiment.WithThreshold(cfg.Sentiment.Threshold))
}

func ProvideAnalyzeUseCase(feed repository.BarFeed, engine *sentiment.Engine, t *tracker.Tracker, l *applogger.Logger) *usecase.AnalyzeUseCase {
	return usecase.NewAnalyzeUseCase(feed, engine, t, l)
}

func ProvideBarsUseCase(feed repository.BarFeed) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(feed)
}

func ProvideTaskRunner(cfg *config.Config, ln *learner.Learner, l *applogger.Logger) *usecase.TaskRunner {
	return usecase.NewTaskRunner(ln, cfg.Learning.TrainTimeout, l)
}

func ProvidePriceBook() *usecase.PriceBook {
	return usecase.NewPriceBook()
}

func ProvideQuoteProcessor(
	cfg *config.Config,
	book *usecase.PriceBook,
	t *tracker.Tracker,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.QuoteProcessor {
	return usecase.NewQuoteProcessor(book, t, m, l, cfg.Tracker.Lookback, cfg.Tracker.VerifyEvery)
}

// ProvideQuotePipeline is nil when no quote source is enabled.
func ProvideQuotePipeline(cfg *config.Config, proc *usecase.QuoteProcessor, m repository.Metrics) *mid.QuotePipeline {
	if !cfg.Stream.Enabled && !(cfg.Kafka.Enabled && cfg.Kafka.Consumer.Enabled) {
		return nil
	}
	return mid.NewQuotePipeline(proc, m,
		mid.WithMaxRPS(cfg.Stream.MaxRPS),
		mid.WithBufferSize(cfg.Stream.BufferSize),
	)
}

func ProvideQuoteCollector(
	cfg *config.Config,
	pipe *mid.QuotePipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.QuoteCollector {
	if !cfg.Stream.Enabled || pipe == nil {
		return nil
	}
	s := cfg.Stream
	stream := quotes.New(s.APIKey, s.WebSocketURL, s.Symbols, s.ReconnectDelay, s.PingInterval, l)
	return usecase.NewQuoteCollector(stream, pipe, m, l)
}

// ProvideKafkaConsumer reads quote ticks published by other services into
// the same pipeline as the WebSocket stream.
func ProvideKafkaConsumer(
	cfg *config.Config,
	pipe *mid.QuotePipeline,
	m repository.Metrics,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled || pipe == nil {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewQuoteTicksHandler(cfg.Kafka.Topics.Quotes, pipe, m))
	return consumer, nil
}

func ProvideVerificationSweep(cfg *config.Config, book *usecase.PriceBook, t *tracker.Tracker, l *applogger.Logger) *usecase.VerificationSweep {
	return usecase.NewVerificationSweep(book, t, cfg.Tracker.Lookback, cfg.Tracker.SweepInterval, l)
}

// ProvideJobQueue consumes retrain jobs enqueued by finsensectl.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, ln *learner.Learner, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.Size,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	jobs := []queue.Job{usecase.NewRetrainJob(ln, l)}
	return queue.NewRedisConsumer(l, qc, rc.Client(), jobs, queue.WithKeyPrefix(cfg.Redis.Prefix))
}

func ProvideHealthChecks(store repository.PredictionStore, ch *pkgch.Client, rc *cache.RedisCache) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{"store": store.Health}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if rc != nil {
		checks["redis"] = rc.Ping
	}
	return checks
}

func ProvideHandlers(
	cfg *config.Config,
	analyze *usecase.AnalyzeUseCase,
	bars *usecase.BarsUseCase,
	t *tracker.Tracker,
	ln *learner.Learner,
	tasks *usecase.TaskRunner,
	mgr *modelmgr.Manager,
	checks map[string]api.HealthCheck,
	l *applogger.Logger,
) []xhttp.Handler {
	rl := ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	return []xhttp.Handler{
		api.NewHealthHandler(l, checks, mgr.ActiveVersion),
		api.NewSentimentHandler(l, analyze, bars, rl),
		api.NewPredictionsHandler(l, t),
		api.NewLearningHandler(l, ln, tasks, mgr),
	}
}

func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	s := cfg.Server
	return xhttp.NewServer(l, handlers,
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithCORS(s.CORS),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
		xhttp.WithSlowThreshold(cfg.Metrics.SlowThreshold),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	mgr *modelmgr.Manager,
	ln *learner.Learner,
	tasks *usecase.TaskRunner,
	sweep *usecase.VerificationSweep,
	pipe *mid.QuotePipeline,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	jobs *queue.RedisQueue,
	db *badger.DB,
) *server.App {
	return server.New(cfg, l, server.Components{
		HTTP:      httpServer,
		Manager:   mgr,
		Learner:   ln,
		Tasks:     tasks,
		Sweep:     sweep,
		Pipeline:  pipe,
		Collector: collector,
		Consumer:  consumer,
		Jobs:      jobs,
		Badger:    db,
	})
}
