// Package scheduler собирает процесс периодических задач: перевод истёкших подписок,
// напоминания, сверку оплат и учёт брошенных заказов.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	schedulerservice "github.com/magabrotheeeer/paywall/internal/services/scheduler"
	subservice "github.com/magabrotheeeer/paywall/internal/services/subscription"
	"github.com/magabrotheeeer/paywall/internal/storage/postgresql"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Service
	db               *postgresql.Storage
	conn             *amqp.Connection
	ch               *amqp.Channel
	metrics          *http.Server
	logger           *slog.Logger
}

func waitForDB(ctx context.Context, dsn string) (*postgresql.Storage, error) {
	var err error
	for range 10 {
		var db *postgresql.Storage
		db, err = postgresql.New(ctx, dsn)
		if err == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, fmt.Errorf("database not ready after retries: %w", err)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := waitForDB(ctx, cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	// Планировщик только переводит строки в expired, статус кэша истечёт по TTL.
	subscriptionService := subservice.NewService(db, cache.Noop{}, cfg.StatusTTL, logger)
	schedulerService := schedulerservice.NewService(db, subscriptionService, rabbitmq.NewPublisher(ch), cfg.Scheduler, cfg.OrderTTL, logger).
		WithReplay(subscriptionService)

	app := &App{
		schedulerService: schedulerService,
		db:               db,
		conn:             conn,
		ch:               ch,
		logger:           logger,
	}
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		app.metrics = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return app, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.metrics != nil {
		go func() {
			a.logger.Info("metrics server starting on", slog.String("address", a.metrics.Addr))
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", sl.Err(err))
			}
		}()
	}

	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")

	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to stop metrics server", sl.Err(err))
		}
	}
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
