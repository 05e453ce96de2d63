package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"table-booking-backend/config"
	"table-booking-backend/internal/api"
	"table-booking-backend/internal/auth"
	"table-booking-backend/internal/availability"
	"table-booking-backend/internal/db"
	"table-booking-backend/internal/events"
	"table-booking-backend/internal/lock"
	"table-booking-backend/internal/notification"
	"table-booking-backend/internal/occupancy"
	"table-booking-backend/internal/registry"
	"table-booking-backend/internal/scheduler"
	"table-booking-backend/internal/slot"
	"table-booking-backend/internal/store"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reservation sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *logrus.Logger) error {
	if !cfg.Auth.Disabled && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set unless auth.disabled is true")
	}
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		log.Warn("VAPID keys are not configured; staff push notifications are disabled")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	policy, err := slot.NewPolicy(&cfg.Booking)
	if err != nil {
		return err
	}

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locker, closeLocker, err := newLocker(ctx, cfg.Lock, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, err := newPublisher(cfg.Events, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, &webpushOptions, publisher, log)
	pool.Start(ctx)

	lockWait := time.Duration(cfg.Lock.WaitMillis) * time.Millisecond
	occ := occupancy.New(appStore, locker,
		occupancy.WithNotifier(pool),
		occupancy.WithLockWait(lockWait),
		occupancy.WithLogger(log),
	)
	engine := availability.New(appStore, policy)
	sched := scheduler.New(appStore, engine, occ, locker, &cfg.Booking,
		scheduler.WithNotifier(pool),
		scheduler.WithLockWait(lockWait),
		scheduler.WithLogger(log),
	)

	if cfg.Sweeper.Disabled {
		log.Warn("reservation sweeper is disabled; imminent bookings and no-shows are not processed")
	} else {
		go sched.Run(ctx, cfg.Sweeper.Interval)
	}

	var authSvc *auth.Service
	if cfg.Auth.Disabled {
		log.Warn("authentication is disabled; every caller is treated as admin")
	} else {
		authSvc = auth.New(appStore, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	}

	h := api.NewHandler(api.Deps{
		Store:        appStore,
		Registry:     registry.New(appStore, time.Minute),
		Occupancy:    occ,
		Availability: engine,
		Scheduler:    sched,
		Auth:         authSvc,
		WebPush:      &webpushOptions,
		Log:          log,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(h, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}

func newLocker(ctx context.Context, cfg config.LockConfig, log logrus.FieldLogger) (lock.Locker, func(), error) {
	switch cfg.Backend {
	case "local":
		return lock.NewLocal(), func() {}, nil
	case "redis":
		client, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("using redis table locks")
		closeFn := func() { _ = client.Close() }
		return lock.NewRedis(client, time.Duration(cfg.TTLMillis)*time.Millisecond), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("lock.backend %q is not one of local, redis", cfg.Backend)
	}
}

func newPublisher(cfg config.EventsConfig, log logrus.FieldLogger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.Log{Logger: log}, nil
	}
	pub, err := events.NewAMQP(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	log.WithField("exchange", cfg.Exchange).Info("publishing guest events to AMQP")
	return pub, nil
}
