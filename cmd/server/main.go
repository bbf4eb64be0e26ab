// main wires high-level dependencies, exposes the HTTP router and runs the
// server, dispatcher and approval sweeper under one lifecycle. Business
// logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cardhandler "loyaltycore/internal/card/handler"
	cardmetrics "loyaltycore/internal/card/metrics"
	cardservice "loyaltycore/internal/card/service"
	cardstore "loyaltycore/internal/card/store"
	enrollhandler "loyaltycore/internal/enrollment/handler"
	enrollmetrics "loyaltycore/internal/enrollment/metrics"
	enrollservice "loyaltycore/internal/enrollment/service"
	enrollstore "loyaltycore/internal/enrollment/store"
	"loyaltycore/internal/idempotency"
	ledgerhandler "loyaltycore/internal/ledger/handler"
	ledgermetrics "loyaltycore/internal/ledger/metrics"
	ledgerservice "loyaltycore/internal/ledger/service"
	ledgerstore "loyaltycore/internal/ledger/store"
	"loyaltycore/internal/notify"
	notifymetrics "loyaltycore/internal/notify/metrics"
	"loyaltycore/internal/platform/config"
	"loyaltycore/internal/platform/httpserver"
	"loyaltycore/internal/platform/logger"
	"loyaltycore/internal/platform/postgres"
	platformredis "loyaltycore/internal/platform/redis"
	programhandler "loyaltycore/internal/program/handler"
	programservice "loyaltycore/internal/program/service"
	programstore "loyaltycore/internal/program/store"
	"loyaltycore/internal/qr"
	httptransport "loyaltycore/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		cardSt    cardstore.Store
		ledgerSt  ledgerstore.Store
		enrollSt  enrollstore.Store
		programSt programstore.Store
		atomic    enrollstore.Atomic
		checks    []httptransport.Check
	)
	if cfg.PostgresURL != "" {
		db, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("ensure schema", "error", err)
			os.Exit(1)
		}
		cardSt = cardstore.NewPostgres(db)
		ledgerSt = ledgerstore.NewPostgres(db)
		enrollSt = enrollstore.NewPostgres(db)
		programSt = programstore.NewPostgres(db)
		atomic = enrollstore.NewPostgresAtomic(db)
		checks = append(checks, httptransport.Check{Name: "postgres", Probe: db.PingContext})
	} else {
		log.Warn("no postgres url configured, using in-memory stores")
		cardMem := cardstore.NewMemory()
		cardSt = cardMem
		ledgerSt = ledgerstore.NewMemory(cardMem)
		enrollSt = enrollstore.NewMemory()
		programSt = programstore.NewMemory()
		atomic = enrollstore.NewMemoryAtomic()
	}

	// Idempotency guard: Redis when configured, in-memory otherwise.
	var guard idempotency.Guard = idempotency.NewMemoryGuard()
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		guard = idempotency.NewRedisGuard(redisClient.Client)
		checks = append(checks, httptransport.Check{Name: "redis", Probe: redisClient.Health})
	}

	// Notification dispatcher, optionally fanning out to Kafka.
	dispatcherOpts := []notify.Option{
		notify.WithLogger(log),
		notify.WithMetrics(notifymetrics.New()),
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaCh, err := notify.NewKafkaChannel(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaCh.Close()
		dispatcherOpts = append(dispatcherOpts, notify.WithChannel(kafkaCh))
	}
	dispatcher := notify.New(cfg.CoalesceWindow, dispatcherOpts...)

	// QR signing and validation share one key and audience.
	signer := qr.NewSigner(cfg.QRSigningKey, cfg.QRAudience, cfg.QRMaxAge)
	validator := qr.NewValidator(cfg.QRSigningKey, cfg.QRAudience, cfg.QRMaxAge, guard)

	// Services.
	cardSvc := cardservice.New(cardSt, cardmetrics.New())
	ledgerSvc := ledgerservice.New(ledgerSt, dispatcher, ledgermetrics.New())
	programSvc := programservice.New(programSt)
	enrollSvc := enrollservice.New(enrollSt, atomic, cardSvc, programSvc, cfg.ApprovalTTL,
		enrollservice.WithLogger(log),
		enrollservice.WithMetrics(enrollmetrics.New()),
		enrollservice.WithPublisher(dispatcher),
	)
	sweeper := enrollservice.NewSweeper(enrollSvc, cfg.SweepInterval, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Features: []httptransport.FeatureHandler{
			programhandler.New(programSvc, log),
			enrollhandler.New(enrollSvc, validator, signer, log),
			cardhandler.New(cardSvc, signer, log),
			ledgerhandler.New(ledgerSvc, validator, log),
		},
		Events: httptransport.NewEventsHandler(dispatcher, log),
		Health: httptransport.NewHealthHandler(checks...),
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting loyalty core", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := dispatcher.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		err := sweeper.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
