package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/observability"
	"github.com/noah-isme/siswa-progress-api/internal/repository"
)

const (
	defaultOpenSweepInterval   = 10 * time.Minute
	defaultExpireSweepInterval = time.Hour
	defaultExpireLookBack      = 7 * 24 * time.Hour
)

// SweeperService runs the background reconciliation jobs: flipping scheduled
// periods to in-progress once their window opens, and marking periods
// incomplete once their deadline has passed. Both jobs are idempotent; they
// re-derive from the record state and skip anything already settled.
type SweeperService struct {
	repo        repository.PeriodRepository
	invalidator *InvalidationService
	scheduler   *gocron.Scheduler
	logger      zerolog.Logger
	now         func() time.Time

	openInterval   time.Duration
	expireInterval time.Duration
	expireLookBack time.Duration
}

// NewSweeperService builds the sweeper. Zero intervals fall back to the
// defaults: window opening every ten minutes, expiry marking hourly with a
// seven-day look-back.
func NewSweeperService(repo repository.PeriodRepository, invalidator *InvalidationService, openInterval, expireInterval time.Duration, logger zerolog.Logger) *SweeperService {
	if openInterval <= 0 {
		openInterval = defaultOpenSweepInterval
	}
	if expireInterval <= 0 {
		expireInterval = defaultExpireSweepInterval
	}

	return &SweeperService{
		repo:           repo,
		invalidator:    invalidator,
		scheduler:      gocron.NewScheduler(time.UTC),
		logger:         logger.With().Str("component", "sweeper_service").Logger(),
		now:            time.Now,
		openInterval:   openInterval,
		expireInterval: expireInterval,
		expireLookBack: defaultExpireLookBack,
	}
}

// Start registers both jobs and runs the scheduler asynchronously.
func (s *SweeperService) Start() error {
	if _, err := s.scheduler.Every(s.openInterval).Do(s.runOpenSweep); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(s.expireInterval).Do(s.runExpireSweep); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().
		Dur("open_interval", s.openInterval).
		Dur("expire_interval", s.expireInterval).
		Msg("sweeper started")

	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *SweeperService) Stop() {
	s.scheduler.Stop()
}

func (s *SweeperService) runOpenSweep() {
	count, err := s.OpenDueWindows(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("window open sweep failed")
		return
	}
	if count > 0 {
		s.logger.Info().Int("opened", count).Msg("window open sweep finished")
	}
}

func (s *SweeperService) runExpireSweep() {
	count, err := s.MarkExpiredIncomplete(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if count > 0 {
		s.logger.Info().Int("marked", count).Msg("expiry sweep finished")
	}
}

// OpenDueWindows flips scheduled periods whose assessment window has started
// to in-progress. Periods whose deadline has already passed are left for the
// expiry sweep. Returns how many records changed.
func (s *SweeperService) OpenDueWindows(ctx context.Context) (int, error) {
	now := s.now().UTC()

	candidates, err := s.repo.ListWindowOpenCandidates(ctx, now)
	if err != nil {
		return 0, err
	}

	opened := 0
	for i := range candidates {
		record := candidates[i]
		if deadline := record.EffectiveGraceEnd(); deadline != nil && now.After(*deadline) {
			continue
		}

		record.Status = models.PeriodStatusInProgress
		if err := s.repo.Update(ctx, &record); err != nil {
			s.logger.Error().Err(err).Uint("progress_id", record.ProgressID).Msg("failed to open window")
			continue
		}

		opened++
		observability.SweepTransitions().WithLabelValues("opened").Inc()
		s.notifyChange(ctx, record)
	}

	return opened, nil
}

// MarkExpiredIncomplete marks pending periods whose deadline passed as
// incomplete, deriving the reason from the record. Records older than the
// look-back horizon are ignored; anything the sweep missed for a week is a
// data repair problem, not a live transition.
func (s *SweeperService) MarkExpiredIncomplete(ctx context.Context) (int, error) {
	now := s.now().UTC()

	expired, err := s.repo.ListExpired(ctx, now, s.expireLookBack)
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range expired {
		record := expired[i]
		record.Status = models.PeriodStatusIncomplete
		record.IncompleteReason = ClassifyReason(record, now)
		record.AutoMarkedIncompleteAt = &now
		record.CanStillComplete = record.IncompleteReason != models.IncompleteReasonMissedGrace

		if err := s.repo.Update(ctx, &record); err != nil {
			s.logger.Error().Err(err).Uint("progress_id", record.ProgressID).Msg("failed to mark incomplete")
			continue
		}

		marked++
		observability.SweepTransitions().WithLabelValues("marked_incomplete").Inc()
		s.notifyChange(ctx, record)
	}

	return marked, nil
}

func (s *SweeperService) notifyChange(ctx context.Context, record models.PeriodRecord) {
	if s.invalidator != nil {
		s.invalidator.RecordChanged(ctx, record.StudentID, record.ProgressID)
	}
}
