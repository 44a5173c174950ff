package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bloodlink/blood-donor-backend/internal/config"
	"github.com/bloodlink/blood-donor-backend/internal/database"
	"github.com/bloodlink/blood-donor-backend/internal/handler"
	"github.com/bloodlink/blood-donor-backend/internal/jobs"
	"github.com/bloodlink/blood-donor-backend/internal/logging"
	"github.com/bloodlink/blood-donor-backend/internal/mail"
	"github.com/bloodlink/blood-donor-backend/internal/middleware"
	"github.com/bloodlink/blood-donor-backend/internal/queue"
	"github.com/bloodlink/blood-donor-backend/internal/repository"
	"github.com/bloodlink/blood-donor-backend/internal/router"
	"github.com/bloodlink/blood-donor-backend/internal/service"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Mail goes through RabbitMQ when a broker is configured, otherwise it
	// is sent straight to SMTP from the dispatcher goroutine.
	mailer, err := mail.NewMailer(cfg.SMTP)
	if err != nil {
		slog.Error("mail templates", "error", err)
		os.Exit(1)
	}
	var notifier service.Notifier = mail.DirectNotifier{Sender: mailer}
	if cfg.RabbitMQURL != "" {
		notifier = mail.QueueNotifier{Publisher: &queue.Publisher{URL: cfg.RabbitMQURL}}
		go queue.StartMailConsumer(ctx, cfg.RabbitMQURL, mailer)
	}
	dispatcher := service.NewDispatcher(notifier, service.DefaultDispatchTimeout)

	users := repository.NewUserRepo(db)
	bloodTypes := repository.NewBloodTypeRepo(db)
	requests := repository.NewRequestRepo(db)
	donations := repository.NewDonationRepo(db)
	requestService := service.NewRequestService(db, dispatcher, cfg.FrontendURL)

	sweeper := jobs.NewTokenSweeper(users, cfg.TokenSweep)
	if err := sweeper.Start(); err != nil {
		slog.Error("token sweeper", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewValidator()

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				slog.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	rl := config.LoadRateLimitConfig()
	e.Use(middleware.NewTokenBucket(rl, rdb))
	authLimiter := middleware.NewTokenBucket(rl.WithCapacity(rl.AuthCapacity, rl.Prefix+"-auth"), rdb)
	cacheCfg := config.LoadCacheConfig()
	cache := middleware.NewRedisCache(cacheCfg, rdb)

	requestHandler := handler.NewRequestHandler(requestService, requests)
	requestHandler.OnChange = func(ctx context.Context) {
		if err := middleware.PurgeCache(ctx, cacheCfg, rdb); err != nil {
			slog.Warn("cache purge failed", "error", err)
		}
	}

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, dispatcher), cfg.JWTSecret, authLimiter)
	router.RegisterPublic(e, handler.NewPublicHandler(bloodTypes, requests), cache)
	router.RegisterRequests(e, requestHandler, handler.NewDonationHandler(donations), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		slog.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	sweeper.Stop()
	dispatcher.Wait()
	slog.Info("server stopped")
}
