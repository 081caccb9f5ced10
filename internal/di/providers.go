package di

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	segkafka "github.com/segmentio/kafka-go"

	"ClientPulse/internal/domain/repository"
	domsvc "ClientPulse/internal/domain/service"
	"ClientPulse/internal/handler/api"
	mid "ClientPulse/internal/middleware"
	internalrepo "ClientPulse/internal/repository"
	icache "ClientPulse/internal/service/cache"
	"ClientPulse/internal/service/oms"
	"ClientPulse/internal/services/estimator"
	"ClientPulse/internal/usecase"
	pkgcache "ClientPulse/pkg/cache"
	pkgch "ClientPulse/pkg/clickhouse"
	"ClientPulse/pkg/config"
	pkgkafka "ClientPulse/pkg/kafka"
	applogger "ClientPulse/pkg/logger"
	"ClientPulse/pkg/metrics"
	pkgqueue "ClientPulse/pkg/queue"
	"ClientPulse/pkg/server"
	"ClientPulse/pkg/util"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured. Downstream providers treat a nil producer as "Kafka disabled".
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideLogger builds the application logger. When an ops collect topic is
// configured and Kafka is available, deduped warn/error entries are shipped
// there as well.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if producer != nil && cfg.Logging.CollectTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.CollectFlush,
			CountThreshold: cfg.Logging.CollectUnique,
			Topic:          cfg.Logging.CollectTopic,
			Publisher:      producer,
		})
	}

	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	return client, nil
}

// ProvideHistoryStore creates the ClickHouse read repository.
func ProvideHistoryStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.TradeHistory {
	store := internalrepo.NewCHHistoryStore(chClient, cfg.ClickHouse.Database)
	store.SetLogger(l)
	return store
}

// ProvideTradeSink creates the ClickHouse write repository and prepares the
// schema.
func ProvideTradeSink(chClient *pkgch.Client, cfg *config.Config) (repository.TradeSink, error) {
	sink := internalrepo.NewCHTradeSink(chClient, cfg.ClickHouse.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sink.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return sink, nil
}

// ProvideTradePublisher creates the Kafka trade publisher, or nil when Kafka
// is disabled.
func ProvideTradePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.TradesTopic)
}

// ProvideAlertPublisher fans alerts out to every configured sink: the Kafka
// alerts topic, a webhook URL, or both. Nil when alerting is off.
func ProvideAlertPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.AlertPublisher {
	if !cfg.Alerts.Enabled {
		return nil
	}

	var sinks []repository.AlertPublisher
	if producer != nil && cfg.Kafka.AlertsTopic != "" {
		sinks = append(sinks, internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic))
	}
	if cfg.Alerts.WebhookURL != "" {
		sinks = append(sinks, internalrepo.NewWebhookAlertPublisher(cfg.Alerts.WebhookURL, cfg.Alerts.WebhookTimeout))
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return internalrepo.NewFanoutAlertPublisher(sinks...)
	}
}

// ProvideTradeStream creates the OMS execution feed, or nil when no feed URL
// is configured (which disables the realtime collector).
func ProvideTradeStream(cfg *config.Config) repository.TradeStream {
	if cfg.Feed.URL == "" {
		return nil
	}
	return oms.New(
		cfg.Feed.APIKey,
		cfg.Feed.URL,
		cfg.Feed.Books,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideCache returns a layered cache when Redis is enabled, otherwise an
// in-process LRU.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}

	host, port := redisHostPort(cfg.Redis.Addr)
	opts := []pkgcache.RedisOption{
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	}
	if cfg.Environment != "" {
		// Namespace per environment so staging and prod can share an instance.
		opts = append(opts, pkgcache.WithRedisPrefix("clientpulse:"+cfg.Environment))
	}
	rc, err := pkgcache.NewRedisCache(opts...)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}

	return pkgcache.NewLayeredCache(rc), nil
}

func redisHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	return host, util.ParseIntDefault(portStr, 6379)
}

// ProvideEstimator creates the switch probability calculator.
func ProvideEstimator(cfg *config.Config, l *applogger.Logger) domsvc.SwitchEstimator {
	return estimator.NewCalculator(estimator.Config{
		LookbackDays: cfg.Estimator.LookbackDays,
		WindowDays:   cfg.Estimator.WindowDays,
		Baseline:     cfg.Estimator.Baseline,
	}, l)
}

// ProvideSwitchUsecase creates the estimation use case.
func ProvideSwitchUsecase(
	history repository.TradeHistory,
	est domsvc.SwitchEstimator,
	cache pkgcache.Service,
	alerts repository.AlertPublisher,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.SwitchUsecase {
	return usecase.NewSwitchUsecase(history, est, cache, alerts, m, l,
		cfg.Estimator.CacheTTL,
		usecase.AlertConfig{
			Enabled:   cfg.Alerts.Enabled,
			Threshold: cfg.Alerts.Threshold,
			MinJump:   cfg.Alerts.MinJump,
		})
}

// ProvideAnalyzeJob creates the background analysis job.
func ProvideAnalyzeJob(uc *usecase.SwitchUsecase, l *applogger.Logger) *usecase.AnalyzeJob {
	return usecase.NewAnalyzeJob(uc, l)
}

// ProvideQueue creates the Redis-backed job queue with the analyze job
// registered. Nil when the queue is disabled.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, job *usecase.AnalyzeJob) *pkgqueue.RedisQueue {
	if !cfg.Queue.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	q := pkgqueue.NewRedisQueue(l, &pkgqueue.QueueConfig{
		Workers:     cfg.Queue.Workers,
		RetryLimit:  cfg.Queue.MaxRetries,
		RetryDelay:  cfg.Queue.RetryDelay,
		JobTimeout:  cfg.Queue.JobTimeout,
		PollTimeout: cfg.Queue.PollTimeout,
	}, client, pkgqueue.ModeProducerConsumer)
	q.RegisterJob(job)

	return q
}

// ProvideTradeIngest creates the ingest path shared by the realtime feed.
func ProvideTradeIngest(
	pub repository.Publisher,
	sink repository.TradeSink,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TradeIngest {
	return usecase.NewTradeIngest(
		pub,
		sink,
		m,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideTradeCollector creates the trade collector use case.
func ProvideTradeCollector(
	stream repository.TradeStream,
	ingest *usecase.TradeIngest,
	m repository.Metrics,
) *usecase.TradeCollector {
	if stream == nil {
		return nil
	}
	// Build middleware pipeline between WebSocket and the ingest path
	pipe := mid.NewRealtimePipeline(ingest, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTradeCollector(stream, ingest, m, pipe)
}

// ProvideKafkaTradesHandler registers handler for the trades topic.
func ProvideKafkaTradesHandler(sink repository.TradeSink, m repository.Metrics, cfg *config.Config) *usecase.KafkaTradesHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.TradesTopic, sink, m)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML. Nil
// when brokers or a consumer group are not configured.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Consumer.GroupID == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(consumerHooks(l))
	return consumer, nil
}

// consumerHooks threads trace ids from message headers into handler context
// and records handler failures.
func consumerHooks(l *applogger.Logger) *pkgkafka.HookChain {
	tracing := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km))
			return ctx, km, data, nil
		},
	}
	failures := pkgkafka.HookFuncs{
		Err: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			fields := []applogger.Field{
				applogger.String("topic", topic),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			}
			if start, ok := pkgkafka.StartTimeFrom(ctx); ok {
				fields = append(fields, applogger.Duration("elapsed", time.Since(start)))
			}
			if id, ok := pkgkafka.TraceIDFrom(ctx); ok {
				fields = append(fields, applogger.String("trace_id", id))
			}
			l.Warn("consumer handler failed", fields...)
		},
	}
	return pkgkafka.NewHookChain(tracing, failures)
}

// ProvideClientsHandler creates the clients API handler. With Redis enabled
// the response micro-cache is shared across instances, otherwise it lives
// in process memory.
func ProvideClientsHandler(cfg *config.Config, l *applogger.Logger, uc *usecase.SwitchUsecase, q *pkgqueue.RedisQueue) *api.ClientsEchoHandler {
	var jobs pkgqueue.QueueService
	if q != nil {
		jobs = q
	}
	h := api.NewClientsEchoHandler(l, uc, jobs)
	if cfg.Redis.Enabled {
		h.SetCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		h.SetCache(icache.NewTTLCache())
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.TradeCollector,
	ingest *usecase.TradeIngest,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTradesHandler,
	q *pkgqueue.RedisQueue,
	chClient *pkgch.Client,
	handler *api.ClientsEchoHandler,
) *server.App {
	return server.New(cfg, l, collector, ingest, consumer, kh, q, chClient, handler)
}
