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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account"
	accountrepo "github.com/ovaphlow/pitchfork/service-account/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-account/internal/activity"
	activityrepo "github.com/ovaphlow/pitchfork/service-account/internal/activity/repo"
	"github.com/ovaphlow/pitchfork/service-account/internal/config"
	"github.com/ovaphlow/pitchfork/service-account/internal/resetcode"
	"github.com/ovaphlow/pitchfork/service-account/internal/router"
	"github.com/ovaphlow/pitchfork/service-account/internal/session"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

func main() {
	// best-effort: a missing .env falls back to the real environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Infow("starting service-account", "addr", cfg.HTTPAddr, "db_driver", cfg.Database.Driver)

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(cfg config.Config, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	accounts := accountrepo.NewAccountRepo(db)
	events := activityrepo.NewEventRepo(db)
	if err := accounts.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure accounts table: %w", err)
	}
	if err := events.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure activity table: %w", err)
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		sugar.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	issuer, err := session.NewIssuer(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL)
	if err != nil {
		return err
	}

	recorder := activity.NewRecorder(events, ids, sugar.Named("audit"), activity.DispatchConfig{
		Async:      cfg.Audit.Async,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	})
	defer func() {
		recorder.Close()
		if n := recorder.Dropped(); n > 0 {
			sugar.Warnw("audit events dropped", "count", n)
		}
	}()

	auth, err := account.NewAuthService(accounts, recorder, account.BcryptHasher{Cost: cfg.BcryptCost}, issuer, ids, sugar.Named("auth"))
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis not reachable at startup", "addr", cfg.Redis.Addr, "err", err)
		}
		cancel()
		codes := resetcode.NewStore(rdb, resetcode.Config{TTL: cfg.Reset.CodeTTL, MaxAttempts: cfg.Reset.MaxAttempts})
		auth.WithResetCodes(codes, resetcode.LogSender{Logger: sugar.Named("resetcode")}, cfg.Reset.RequireCode)
		sugar.Infow("reset codes enabled", "required", cfg.Reset.RequireCode)
	}

	query := account.NewQueryService(accounts, activity.NewService(events), sugar.Named("query"))
	handler := router.RegisterRoutes(sugar, account.NewHandler(auth, query, sugar), router.Options{
		CORSOrigin: cfg.CORSOrigin,
		TrustProxy: cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := db.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}
	return nil
}
