package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/repository"
	"github.com/ppopeskul/wa-ingest/internal/scheduler"
)

const sweepTimeoutReason = "media processing timed out"

// sweeperService fails media messages whose task was lost before it could finish.
type sweeperService struct {
	scheduler  *scheduler.Scheduler
	repo       repository.Repository
	staleAfter time.Duration
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

func NewSweeperService(
	cfg *config.Config,
	repo repository.Repository,
	logger *zap.Logger,
) SweeperService {
	svc := &sweeperService{
		repo:       repo,
		staleAfter: cfg.Sweeper.StaleAfter,
		batchSize:  cfg.Sweeper.BatchSize,
		logger:     logger,
		now:        time.Now,
	}

	svc.scheduler = scheduler.NewScheduler(logger, "media-sweeper", cfg.Sweeper.Interval, svc.sweep)
	return svc
}

func (s *sweeperService) Start() error {
	ctx := context.Background()
	return s.scheduler.Start(ctx)
}

func (s *sweeperService) Stop() error {
	return s.scheduler.Stop()
}

func (s *sweeperService) IsRunning() bool {
	return s.scheduler.IsRunning()
}

func (s *sweeperService) sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.staleAfter)

	stale, err := s.repo.Message().ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list stale media: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	failed := 0
	for _, msg := range stale {
		updated, err := s.repo.Message().MarkMediaFailed(ctx, msg.ID, sweepTimeoutReason, map[string]any{
			models.MetaPendingDownload: false,
			models.MetaDownloadError:   sweepTimeoutReason,
		})
		if err != nil {
			s.logger.Error("Failed to fail stale media", zap.String("messageID", msg.ID), zap.Error(err))
			continue
		}
		if updated {
			failed++
		}
	}

	s.logger.Info("Stale media swept",
		zap.Int("found", len(stale)),
		zap.Int("failed", failed),
		zap.Time("cutoff", cutoff))

	return nil
}
