package integration_test

import (
	"log/slog"
	"os"

	"github.com/cinebook-io/cinebook/internal/app"
	"github.com/cinebook-io/cinebook/internal/gateway"
	"github.com/cinebook-io/cinebook/internal/mailer"
	"github.com/cinebook-io/cinebook/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type TestApp struct {
	App     *app.Application
	DB      *pgxpool.Pool
	Redis   redis.UniversalClient
	Gateway *gateway.FakeGateway
	Mailer  *mailer.MockMailer
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	userRepo := repository.NewPostgresUserRepository(db)
	showRepo := repository.NewPostgresShowRepository(db)
	holdRepo := repository.NewPostgresHoldRepository(db)
	bookingRepo := repository.NewPostgresBookingRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)

	paymentGateway := gateway.NewFakeGateway(redisClient, logger, cfg.Payment.WebhookSecret, cfg.Payment.CheckoutURL)
	mockMailer := &mailer.MockMailer{}

	application := app.NewApp(
		cfg,
		logger,
		db,
		redisClient,
		mockMailer,
		userRepo,
		showRepo,
		holdRepo,
		bookingRepo,
		paymentRepo,
		paymentGateway,
	)

	return &TestApp{
		App:     application,
		DB:      db,
		Redis:   redisClient,
		Gateway: paymentGateway,
		Mailer:  mockMailer,
	}, nil
}
