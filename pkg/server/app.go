package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ClientPulse/internal/usecase"
	pkgch "ClientPulse/pkg/clickhouse"
	"ClientPulse/pkg/config"
	xhttp "ClientPulse/pkg/http"
	pkgkafka "ClientPulse/pkg/kafka"
	applogger "ClientPulse/pkg/logger"
	pkgqueue "ClientPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// App encapsulates the entire application lifecycle. Every component except
// the HTTP server and the ClickHouse client is optional and skipped when nil.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	collector  *usecase.TradeCollector
	ingest     *usecase.TradeIngest
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	queue      *pkgqueue.RedisQueue
	chClient   *pkgch.Client
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.TradeCollector,
	ingest *usecase.TradeIngest,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	queue *pkgqueue.RedisQueue,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		ingest:    ingest,
		consumer:  consumer,
		kh:        kh,
		queue:     queue,
		chClient:  chClient,
		handler:   handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
		xhttp.WithRequestLogger(a.log),
	)
	a.httpServer.Echo().GET("/healthz", a.healthz)

	// Size/timeout batcher for the ingest path
	if a.ingest != nil {
		a.ingest.Start(ctx)
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.log.Error("queue start error", applogger.Error(err))
			return err
		}
		a.log.Info("job queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("collector error", applogger.Error(err))
			}
		}()
		a.log.Info("collector started", applogger.Strings("books", a.cfg.Feed.Books))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// healthz reports readiness. ClickHouse is the one hard dependency; Kafka,
// Redis and the feed degrade to reduced functionality without failing the
// probe.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if a.chClient != nil {
		if err := a.chClient.Health(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":     "unhealthy",
				"clickhouse": err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// shutdown gracefully stops all services. Intake stops first, then the
// consumers drain, then buffered writes flush, and storage closes last.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	// Flush pending warn/error aggregates while the producer is still open.
	a.log.RemoveCollector()

	if a.ingest != nil {
		a.ingest.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
