// Command server runs the compliance self-assessment API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"corecompliance/internal/audit"
	catalogstore "corecompliance/internal/catalog/store"
	evidencehandler "corecompliance/internal/evidence/handler"
	evidenceservice "corecompliance/internal/evidence/service"
	evidencestore "corecompliance/internal/evidence/store"
	"corecompliance/internal/jwttoken"
	"corecompliance/internal/platform/config"
	"corecompliance/internal/platform/httpserver"
	"corecompliance/internal/platform/logger"
	"corecompliance/internal/platform/metrics"
	"corecompliance/internal/platform/redis"
	httptransport "corecompliance/internal/transport/http"
	"corecompliance/internal/verification/deliverability"
	"corecompliance/internal/verification/deliverability/sendgrid"
	"corecompliance/internal/verification/freshness"
	verificationhandler "corecompliance/internal/verification/handler"
)

const auditBufferSize = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when a database is configured, in-memory otherwise so
	// the service can run locally without infrastructure.
	var (
		catalog  catalogstore.Store
		evidence evidencestore.Store
		auditDB  audit.Store
		db       *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		catalog = catalogstore.NewPostgres(db)
		evidence = evidencestore.NewPostgres(db)
		auditDB = audit.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		catalog = catalogstore.NewInMemory()
		evidence = evidencestore.NewInMemory()
		auditDB = audit.NewInMemoryStore()
	}

	cache, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	var auditSink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("failed to build kafka sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditSink = kafkaSink
	}

	publisher, inbox := audit.NewPublisher(auditBufferSize, log)
	auditWorker := audit.NewWorker(auditDB, auditSink, inbox, log)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "corecompliance")
	jwtValidator := jwttoken.NewJWTServiceAdapter(jwtService)

	var statsProvider deliverability.StatsProvider
	var sender deliverability.Sender
	if cfg.Mail.Configured() {
		client := sendgrid.NewClient(cfg.Mail)
		statsProvider = client
		sender = client
	} else {
		log.Warn("mail provider not configured, email verification disabled")
	}

	emailService := deliverability.NewService(
		evidence, statsProvider, sender, cfg.Mail.FromEmail,
		publisher, deliverability.New(), log,
	)
	fileService := freshness.NewService(evidence, catalog, publisher, freshness.New(), log)
	assessmentService := evidenceservice.NewService(catalog, evidence, cache, cfg.DashboardCacheTTL, log)

	var health []httptransport.HealthChecker
	if cache != nil {
		health = append(health, cache)
	}

	router := httptransport.NewRouter(log, metrics.New(), health,
		evidencehandler.New(assessmentService, log, jwtValidator),
		verificationhandler.New(emailService, fileService, log, jwtValidator),
	)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return auditWorker.Run(groupCtx)
	})
	group.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
