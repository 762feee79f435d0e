package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/auth"
	"github.com/frahmantamala/client-portal/internal/core/events"
	"github.com/frahmantamala/client-portal/internal/notification"
	notificationpg "github.com/frahmantamala/client-portal/internal/notification/postgres"
	"github.com/frahmantamala/client-portal/internal/payment"
	paymentpg "github.com/frahmantamala/client-portal/internal/payment/postgres"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
	"github.com/frahmantamala/client-portal/internal/transport/rest"
	"github.com/frahmantamala/client-portal/internal/transport/swagger"
	"github.com/frahmantamala/client-portal/internal/user"
	userpg "github.com/frahmantamala/client-portal/internal/user/postgres"
	"github.com/frahmantamala/client-portal/pkg/logger"
	"github.com/frahmantamala/client-portal/pkg/ratelimit"
)

const shutdownTimeout = 30 * time.Second

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and gateway webhooks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer(cmd.Context())
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Gorm       *gorm.DB
	Bus        *events.EventBus
	LimitStore *ratelimit.Store
	Router     *chi.Mux
	Logger     *slog.Logger
}

func startHTTPServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.close()

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting HTTP server", "address", addr, "env", deps.Config.Env)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("server shutdown error", "error", err)
	}
	// settlement emails still in flight
	if err := deps.Bus.Drain(shutdownCtx); err != nil {
		deps.Logger.Warn("event handlers did not finish before shutdown", "error", err)
	}

	deps.Logger.Info("server stopped")
	return nil
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(cfg)
	log := logger.L()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := initGorm(db, cfg.Env)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config: cfg,
		DB:     db,
		Gorm:   gdb,
		Bus:    events.NewEventBus(log),
		Router: chi.NewRouter(),
		Logger: log,
	}

	handlers, err := buildHandlers(ctx, deps)
	if err != nil {
		deps.close()
		return nil, err
	}
	rest.RegisterAllRoutes(deps.Router, *handlers, log)

	return deps, nil
}

func buildHandlers(ctx context.Context, deps *Dependencies) (*rest.Handlers, error) {
	cfg, log := deps.Config, deps.Logger

	userRepo := userpg.NewUserRepository(deps.Gorm)
	paymentRepo := paymentpg.NewPaymentRepository(deps.Gorm)
	webhookRepo := paymentpg.NewWebhookEventRepository(deps.Gorm)
	statsRepo := paymentpg.NewStatsRepository(deps.DB)
	notificationRepo := notificationpg.NewNotificationRepository(deps.Gorm)

	userService := user.NewService(userRepo)
	authService := auth.NewService(userRepo, auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration), log)
	notificationService := notification.NewService(notificationRepo, log)

	mail := newMailer(cfg, log)
	notification.NewEmailNotifier(userService, mail, log).Register(deps.Bus)

	if cfg.Payment.WebhookSecret == "" {
		log.Warn("payment webhook secret is empty, every webhook delivery will be rejected")
	}
	gateway := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:        cfg.Payment.BaseURL,
		CheckoutURL:    cfg.Payment.CheckoutURL,
		SecretKey:      cfg.Payment.SecretKey,
		PublishableKey: cfg.Payment.PublishableKey,
		Timeout:        cfg.Payment.GatewayTimeout(),
	}, log)
	reconciler := payment.NewReconciler(payment.ReconcilerDeps{
		Repository: paymentRepo,
		Verifier:   payment.NewHMACVerifier(cfg.Payment.WebhookSecret, cfg.Payment.SignatureTolerance),
		Notifier:   notificationService,
		Publisher:  deps.Bus,
		WebhookLog: webhookRepo,
		Logger:     log,
	})
	paymentService := payment.NewService(paymentRepo, statsRepo, gateway, payment.ServiceConfig{
		SuccessURL:      cfg.Payment.SuccessURL,
		CancelURL:       cfg.Payment.CancelURL,
		GatewayTimeout:  cfg.Payment.GatewayTimeout(),
		DefaultCurrency: cfg.Payment.Currency(),
	}, log).WithWebhookHistory(webhookRepo)

	docs, err := swagger.Load(ctx)
	if err != nil {
		return nil, err
	}

	handlers := &rest.Handlers{
		Health: rest.NewHealthHandler(map[string]rest.Checker{
			"postgres": deps.DB,
		}),
		Auth:         auth.NewHandler(authService, log),
		User:         user.NewHandler(userService, log),
		Payment:      payment.NewHandler(paymentService, reconciler, log),
		Webhook:      payment.NewWebhookHandler(reconciler, log),
		Notification: notification.NewHandler(notificationService, log),
		Docs:         docs,
	}

	if cfg.RateLimit.Enabled {
		store, err := ratelimit.NewStore(ctx, ratelimit.Config{
			RedisAddr: cfg.RateLimit.RedisAddr,
			RedisDB:   cfg.RateLimit.RedisDB,
			Prefix:    cfg.RateLimit.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limit store: %w", err)
		}
		deps.LimitStore = store

		if handlers.LoginLimiter, err = ratelimit.New(store, orDefault(cfg.RateLimit.Login, "10-M")); err != nil {
			return nil, err
		}
		if handlers.WebhookLimiter, err = ratelimit.New(store, orDefault(cfg.RateLimit.Webhook, "120-M")); err != nil {
			return nil, err
		}
		if cfg.RateLimit.RedisAddr != "" {
			handlers.Health = rest.NewHealthHandler(map[string]rest.Checker{
				"postgres": deps.DB,
				"redis":    rest.CheckerFunc(store.Ping),
			})
		}
	}

	return handlers, nil
}

func (d *Dependencies) close() {
	if d.LimitStore != nil {
		if err := d.LimitStore.Close(); err != nil {
			d.Logger.Error("rate limit store close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(db *sqlx.DB, env string) (*gorm.DB, error) {
	level := gormlogger.Warn
	if env == "production" {
		level = gormlogger.Error
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
