package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/cinebook-io/cinebook/internal/gateway"
	"github.com/cinebook-io/cinebook/internal/mailer"
	"github.com/cinebook-io/cinebook/internal/repository"
	"github.com/cinebook-io/cinebook/internal/sweeper"
	appvalidator "github.com/cinebook-io/cinebook/internal/validator"
	"github.com/cinebook-io/cinebook/internal/vcs"
	"github.com/exaring/otelpgx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riandyrn/otelchi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var (
	version = vcs.Version()
)

type Application struct {
	config    Config
	logger    *slog.Logger
	db        *pgxpool.Pool
	redis     redis.UniversalClient
	validator *validator.Validate
	mailer    mailer.Mailer
	wg        sync.WaitGroup

	userRepo    domain.UserRepository
	showRepo    domain.ShowRepository
	holdRepo    domain.HoldRepository
	bookingRepo domain.BookingRepository
	paymentRepo domain.PaymentRepository

	gateway domain.PaymentGateway
	sweeper *sweeper.Sweeper
}

type Config struct {
	Port             int
	Env              string
	DB               DBConfig
	Redis            RedisConfig
	SMTP             SMTPConfig
	Payment          PaymentConfig
	OtelCollectorUrl string
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type PaymentConfig struct {
	WebhookSecret string
	CheckoutURL   string
}

func Run() error {
	var cfg Config

	flag.IntVar(&cfg.Port, "port", envInt("PORT", 3000), "server port")
	flag.StringVar(&cfg.Env, "env", envString("ENV", "dev"), "Environment (dev|staging|prod)")

	flag.StringVar(&cfg.DB.DSN, "db-dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
	flag.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.Redis.URL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL")
	flag.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.StringVar(&cfg.SMTP.Host, "smtp-host", envString("SMTP_HOST", "sandbox.smtp.mailtrap.io"), "SMTP host")
	flag.IntVar(&cfg.SMTP.Port, "smtp-port", envInt("SMTP_PORT", 2525), "SMTP port")
	flag.StringVar(&cfg.SMTP.Username, "smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	flag.StringVar(&cfg.SMTP.Password, "smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	flag.StringVar(&cfg.SMTP.Sender, "smtp-sender", "CineBook <no-reply@cinebook.io>", "SMTP sender")

	flag.StringVar(&cfg.Payment.WebhookSecret, "payment-webhook-secret", os.Getenv("PAYMENT_WEBHOOK_SECRET"), "Payment webhook signing secret")
	flag.StringVar(&cfg.Payment.CheckoutURL, "payment-checkout-url", envString("PAYMENT_CHECKOUT_URL", "http://localhost:3000/payments/fake-checkout"), "Payment gateway checkout page base URL")

	flag.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", os.Getenv("OTEL_COLLECTOR_URL"), "OpenTelemetry collector URL")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, nil)
	if cfg.OtelCollectorUrl != "" {
		logHandler = NewMultiHandler(logHandler, otelslog.NewHandler(serviceName))
	}
	logger := slog.New(logHandler)

	app, err := New(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	shutdownTelemetry, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	return app.run()
}

func New(cfg Config, logger *slog.Logger) (*Application, error) {
	db, err := NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	bookingRepo := repository.NewPostgresBookingRepository(db)
	holdRepo := repository.NewPostgresHoldRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)
	showRepo := repository.NewPostgresShowRepository(db)
	userRepo := repository.NewPostgresUserRepository(db)

	paymentGateway := gateway.NewFakeGateway(redisClient, logger, cfg.Payment.WebhookSecret, cfg.Payment.CheckoutURL)
	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)

	return NewApp(cfg, logger, db, redisClient, smtpMailer,
		userRepo, showRepo, holdRepo, bookingRepo, paymentRepo, paymentGateway), nil
}

// NewApp wires an Application from already constructed dependencies. Tests
// use it to swap in mocks for the mailer and gateway.
func NewApp(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	redisClient redis.UniversalClient,
	appMailer mailer.Mailer,
	userRepo domain.UserRepository,
	showRepo domain.ShowRepository,
	holdRepo domain.HoldRepository,
	bookingRepo domain.BookingRepository,
	paymentRepo domain.PaymentRepository,
	paymentGateway domain.PaymentGateway) *Application {

	return &Application{
		config:      cfg,
		logger:      logger,
		db:          db,
		redis:       redisClient,
		validator:   appvalidator.NewValidator(),
		mailer:      appMailer,
		userRepo:    userRepo,
		showRepo:    showRepo,
		holdRepo:    holdRepo,
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		gateway:     paymentGateway,
		sweeper:     sweeper.New(bookingRepo, holdRepo, sweeper.NewRedisLocker(redisClient), logger),
	}
}

func (app *Application) Close() {
	app.db.Close()
	app.redis.Close()
}

// Sweeper exposes the expiry sweeper, mainly so tests can drive ticks
// deterministically.
func (app *Application) Sweeper() *sweeper.Sweeper {
	return app.sweeper
}

func NewRedisClient(cfg Config) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go app.sweeper.Run(sweepCtx)

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		stopSweeper()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err != nil {
			shutdownError <- err
			return
		}

		// Wait for in-flight background tasks (confirmation mails) to drain.
		app.wg.Wait()

		shutdownError <- nil
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)

	r.Use(middleware.RequestID)
	r.Use(otelchi.Middleware("cinebook-api", otelchi.WithChiRoutes(r)))
	r.Use(app.recoverPanic)
	r.Use(app.requestLogger)

	r.Get("/health", app.GetHealthHandler)

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", app.CreateBookingHandler)
		r.Post("/hold-seats", app.HoldSeatsHandler)
		r.Delete("/holds/{userId}", app.ReleaseHoldsHandler)
		r.Get("/user/{userId}", app.GetUserBookingsHandler)
		r.Get("/{id}", app.GetBookingHandler)
		r.Patch("/{id}/cancel", app.CancelBookingHandler)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/initiate", app.InitiatePaymentHandler)
		r.Post("/webhook", app.WebhookHandler)
		r.Post("/simulate/{sessionId}", app.SimulatePaymentHandler)
		r.Post("/refund/{bookingId}", app.RefundHandler)
		r.Get("/status/{bookingId}", app.PaymentStatusHandler)
	})

	r.Get("/shows/{id}/seats", app.GetShowSeatAvailabilityHandler)

	return r
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}
