package jobs

import (
	"context"
	"fmt"
	"time"

	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/extraction"
	"CoopLedgerSaas/internal/logger"
	"CoopLedgerSaas/internal/matching"
	"CoopLedgerSaas/internal/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Pending interface {
	StatementIDsByStatus(ctx context.Context, status model.StatementStatus, limit int) ([]int64, error)
}

type Extractor interface {
	Run(ctx context.Context, ids []int64, onResult func(extraction.Result)) []extraction.Result
}

type Matcher interface {
	Run(ctx context.Context, threshold float64) ([]matching.Result, error)
}

// CronService sweeps statements left in uploaded through extraction and then
// auto-matches the extracted rows with the configured default threshold.
type CronService struct {
	cfg       config.JobsConfig
	threshold float64
	batchSize int
	pending   Pending
	extractor Extractor
	matcher   Matcher
	cron      *cron.Cron
	log       *zap.Logger
}

func NewCronService(cfg config.JobsConfig, threshold float64, pending Pending, extractor Extractor, matcher Matcher, log *zap.Logger) *CronService {
	return &CronService{
		cfg:       cfg,
		threshold: threshold,
		batchSize: config.SweepBatchSize,
		pending:   pending,
		extractor: extractor,
		matcher:   matcher,
		log:       log,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	if !s.cfg.Enabled {
		s.log.Info("cron service disabled")
		return nil
	}
	schedule := s.cfg.ExtractionSchedule
	if schedule == "" {
		schedule = config.DefaultExtractionSchedule
	}
	tz := s.cfg.TimeZone
	if tz == "" {
		tz = config.DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	s.cron = cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			logger.Audit("statement sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("unable to schedule statement sweep: %v", err)
	}
	s.cron.Start()
	logger.Audit("statement sweep scheduled", zap.String("schedule", schedule), zap.String("time_zone", loc.String()))
	return nil
}

func (s *CronService) Stop() error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn("statement sweep still running at shutdown")
	}
	return nil
}

// Sweep runs one extraction batch and one matching pass.
func (s *CronService) Sweep(ctx context.Context) error {
	ids, err := s.pending.StatementIDsByStatus(ctx, model.StatementUploaded, s.batchSize)
	if err != nil {
		return fmt.Errorf("list pending statements: %w", err)
	}
	if len(ids) > 0 {
		failed := 0
		for _, r := range s.extractor.Run(ctx, ids, nil) {
			if !r.OK() {
				failed++
			}
		}
		s.log.Info("swept pending statements", zap.Int("statements", len(ids)), zap.Int("failed", failed))
	}

	results, err := s.matcher.Run(ctx, s.threshold)
	if err != nil {
		return fmt.Errorf("auto-match: %w", err)
	}
	if len(results) > 0 {
		s.log.Info("auto-matched extracted rows", zap.Int("rows", len(results)))
	}
	return nil
}
