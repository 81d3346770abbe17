// Command server runs the LifeLink blood request matching service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"lifelink/db"
	"lifelink/internal/donation"
	"lifelink/internal/donor"
	donorhandler "lifelink/internal/donor/handler"
	"lifelink/internal/jwttoken"
	"lifelink/internal/matching"
	matchingmetrics "lifelink/internal/matching/metrics"
	"lifelink/internal/notification"
	notificationhandler "lifelink/internal/notification/handler"
	"lifelink/internal/platform/config"
	"lifelink/internal/platform/httpserver"
	"lifelink/internal/platform/logger"
	"lifelink/internal/platform/metrics"
	platformredis "lifelink/internal/platform/redis"
	"lifelink/internal/request"
	requesthandler "lifelink/internal/request/handler"
	requestmetrics "lifelink/internal/request/metrics"
	"lifelink/internal/stats"
	transporthttp "lifelink/internal/transport/http"
	txcontext "lifelink/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	healthChecks := map[string]func() error{}

	// Stores: PostgreSQL when configured, in-memory otherwise. The in-memory
	// mode exists for local development and keeps identical semantics.
	var (
		donorStore        donor.Store
		requestStore      request.Store
		donationStore     donation.Store
		notificationStore notification.Store
		txRunner          txcontext.Runner = txcontext.NoopRunner{}
	)
	if cfg.DatabaseURL != "" {
		conn, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		conn.SetMaxOpenConns(25)
		conn.SetConnMaxIdleTime(5 * time.Minute)
		if err := conn.PingContext(ctx); err != nil {
			return err
		}
		if err := db.Apply(ctx, conn); err != nil {
			return err
		}
		donorStore = donor.NewPostgresStore(conn)
		requestStore = request.NewPostgresStore(conn)
		donationStore = donation.NewPostgresStore(conn)
		notificationStore = notification.NewPostgresStore(conn)
		txRunner = &txcontext.SQLRunner{DB: conn}
		healthChecks["postgres"] = conn.Ping
		log.Info("using postgres storage")
	} else {
		donorStore = donor.NewInMemoryStore()
		requestStore = request.NewInMemoryStore()
		donationStore = donation.NewInMemoryStore()
		notificationStore = notification.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Notification pipeline. Kafka is optional; without brokers the
	// dispatcher persists for the in-app feed only.
	var dispatcherOpts []notification.DispatcherOption
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := notification.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		dispatcherOpts = append(dispatcherOpts, notification.WithPublisher(publisher))
		log.Info("kafka notification publisher enabled", "topic", cfg.Kafka.Topic)
	}
	dispatcher := notification.NewChannelDispatcher(notificationStore, log, dispatcherOpts...)

	// Services.
	donorService := donor.NewService(donorStore, log, donor.WithSearchLimit(cfg.SearchLimit))
	selector := matching.NewSelector(donorStore, matching.WithMetrics(matchingmetrics.New()))
	requestOpts := []request.Option{
		request.WithMatchLimit(cfg.MatchLimit),
		request.WithTTL(cfg.RequestTTL),
		request.WithMetrics(requestmetrics.New()),
		request.WithTxRunner(txRunner),
	}
	if redisClient != nil {
		requestOpts = append(requestOpts, request.WithExpiryIndex(request.NewRedisExpiryIndex(redisClient)))
	}
	requestService := request.NewService(
		requestStore, donorStore, donationStore, selector, dispatcher, log, requestOpts...,
	)
	notificationService := notification.NewService(notificationStore, log)
	statsService := stats.NewService(donorStore, requestStore, donationStore, log)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "lifelink")
	httpMetrics := metrics.New()

	router := transporthttp.NewRouter(transporthttp.Deps{
		Logger:        log,
		Metrics:       httpMetrics,
		JWTValidator:  jwtService,
		Donors:        donorhandler.New(donorService, log),
		Requests:      requesthandler.New(requestService, log),
		Notifications: notificationhandler.New(notificationService, log),
		Stats:         stats.NewHandler(statsService),
		HealthChecks:  healthChecks,
	})
	server := httpserver.New(cfg.Addr, router, cfg.WriteTimeout, cfg.IdleTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return request.NewSweeper(requestService, log, cfg.SweepInterval).Run(ctx)
	})

	return g.Wait()
}
