// Package paywall собирает HTTP-приложение: хранилище, кэш, брокер, сервисы и маршруты.
package paywall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/health"
	"github.com/magabrotheeeer/paywall/internal/lib/jwt"
	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/migrations"
	"github.com/magabrotheeeer/paywall/internal/paymentprovider"
	authservice "github.com/magabrotheeeer/paywall/internal/services/auth"
	deviceservice "github.com/magabrotheeeer/paywall/internal/services/device"
	orderservice "github.com/magabrotheeeer/paywall/internal/services/order"
	paymentservice "github.com/magabrotheeeer/paywall/internal/services/payment"
	subservice "github.com/magabrotheeeer/paywall/internal/services/subscription"
	"github.com/magabrotheeeer/paywall/internal/storage"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
	"github.com/magabrotheeeer/paywall/internal/storage/postgresql"
)

// App HTTP-приложение paywall.
type App struct {
	server *http.Server
	logger *slog.Logger
	store  storage.Storage
	redis  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// Services сервисы, которые используют маршруты.
type Services struct {
	Auth         *authservice.Service
	Devices      *deviceservice.Service
	Orders       *orderservice.Service
	Payments     *paymentservice.Processor
	Subscription *subservice.Service
	DB           health.Pinger
}

// openStorage открывает хранилище по cfg.Driver. Для postgres применяются миграции,
// второе значение нужно проверке живости.
func openStorage(ctx context.Context, cfg config.Storage) (storage.Storage, health.Pinger, error) {
	const op = "app.paywall.openStorage"

	switch cfg.Driver {
	case "memory":
		return memory.New(), nil, nil
	case "postgres", "":
		db, err := postgresql.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(db.DB(), cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return db, db.DB(), nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
}

// New создает приложение. Без redis статус не кэшируется, без брокера события
// об оплате не публикуются: оба случая только логируются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, pinger, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	app := &App{logger: logger, store: store}

	var statusCache subservice.Cache = cache.Noop{}
	if cfg.AddressRedis != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			logger.Warn("redis unavailable, status cache disabled", sl.Err(err))
		} else {
			app.redis = redisCache
			statusCache = redisCache
		}
	}

	var publisher paymentservice.Publisher
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			logger.Warn("rabbitmq unavailable, payment notifications disabled", sl.Err(err))
		} else {
			ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
			if err != nil {
				_ = conn.Close()
				logger.Warn("failed to setup rabbitmq channel, payment notifications disabled", sl.Err(err))
			} else {
				app.conn, app.ch = conn, ch
				publisher = rabbitmq.NewPublisher(ch)
			}
		}
	}

	subscriptionService := subservice.NewService(store, statusCache, cfg.StatusTTL, logger)
	deviceService := deviceservice.NewService(store, logger)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := authservice.NewService(store, deviceService, jwtMaker, cfg.AdminEmails, logger)
	gateway := paymentprovider.NewClient(cfg.Gateway)
	orderService := orderservice.NewService(store, gateway, subscriptionService, cfg.TradeNoPrefix, logger)
	processor := paymentservice.NewProcessor(orderService, store, publisher, cfg.AppSecret, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg.HTTPServer, Services{
		Auth:         authService,
		Devices:      deviceService,
		Orders:       orderService,
		Payments:     processor,
		Subscription: subscriptionService,
		DB:           pinger,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Handler корневой обработчик приложения.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
