package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"CoopLedgerSaas/api"
	"CoopLedgerSaas/api/bankstatement"
	"CoopLedgerSaas/internal/ai"
	"CoopLedgerSaas/internal/appmanager"
	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/directory"
	"CoopLedgerSaas/internal/extraction"
	"CoopLedgerSaas/internal/ingestion"
	"CoopLedgerSaas/internal/ledger"
	"CoopLedgerSaas/internal/lock"
	"CoopLedgerSaas/internal/logger"
	"CoopLedgerSaas/internal/matching"
	"CoopLedgerSaas/internal/posting"
	"CoopLedgerSaas/internal/resource"
	"CoopLedgerSaas/internal/review"
	"CoopLedgerSaas/internal/storage"
	"CoopLedgerSaas/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the pipeline schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.envPath, opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database url is not configured")
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()
			return store.Migrate(cfg.Database.URL, log)
		},
	}
}

func loadSequence(path string) ([]appmanager.ServiceConfig, error) {
	seq, err := appmanager.LoadServiceSequence(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(seq) == 0) {
		return appmanager.DefaultServiceSequence(), nil
	}
	return seq, err
}

func serve(ctx context.Context, opts *options) (err error) {
	cfg, err := config.Load(opts.envPath, opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("database url is not configured (DATABASE_URL or DB_*)")
	}
	seq, err := loadSequence(opts.configPath)
	if err != nil {
		return fmt.Errorf("load service sequence: %w", err)
	}

	manager := appmanager.NewAppManager()
	if err := manager.Bootstrap(seq); err != nil {
		return err
	}
	defer func() {
		if stopErr := manager.StopAll(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()
	log := logger.L()

	if opts.migrate {
		if err := store.Migrate(cfg.Database.URL, log.Named("migrate")); err != nil {
			return err
		}
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	st := store.New(pool)

	memberDB, err := directory.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer memberDB.Close()
	members := directory.New(memberDB)

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open blob storage: %w", err)
	}

	var aiClient extraction.AI
	if cfg.AI.APIKey != "" {
		c, err := ai.New(ctx, cfg.AI, log.Named("ai"))
		if err != nil {
			return err
		}
		defer c.Close()
		aiClient = c
	} else {
		log.Warn("no AI key configured; document and image statements will fail extraction")
	}

	resources := map[string]resource.Pinger{
		"postgres":  st,
		"directory": resource.PingFunc(memberDB.PingContext),
	}
	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.URL != "" {
		rc, err := lock.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rc.Close()
		locker = lock.NewRedis(rc, cfg.Redis.LockTTL)
		resources["redis"] = resource.PingFunc(func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}

	uploads := ingestion.NewGateway(st, blobs, cfg.Upload, log.Named("ingestion"))
	extractor := extraction.NewEngine(st, blobs, aiClient, cfg.Extraction.Parallelism, log.Named("extraction"))
	matcher := matching.NewEngine(st, members, cfg.Matching.ActiveStatuses, log.Named("matching"))
	poster := posting.NewEngine(st, ledger.New(), locker, log.Named("posting"))

	err = manager.AutoRegisterServices(seq, appmanager.Deps{
		Config: cfg,
		Routes: bankstatement.Routes(bankstatement.Deps{
			Uploads:   uploads,
			Extractor: extractor,
			Matcher:   matcher,
			Poster:    poster,
			Review:    review.New(st, members),
			Threshold: cfg.Matching.Threshold,
		}),
		Resources: resources,
		Pending:   st,
		Extractor: extractor,
		Matcher:   matcher,
	})
	if err != nil {
		return err
	}
	if err := manager.StartAll(); err != nil {
		_ = manager.StopAll()
		return err
	}

	var serveErr <-chan error
	if gw, ok := manager.GetServiceByName("gateway").(*api.GatewayService); ok {
		serveErr = gw.Err()
	}
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serveErr:
		err = fmt.Errorf("gateway: %w", err)
	}
	// Services stop before the pools and clients they use are closed.
	if stopErr := manager.StopAll(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
