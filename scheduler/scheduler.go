package scheduler

import (
	"context"
	"time"

	"stockscreener/services/orchestrator"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the daily refresh job in-process.
type Scheduler struct {
	cron         *gocron.Scheduler
	orchestrator *orchestrator.Orchestrator
	symbolsFile  string
}

// NewScheduler creates a scheduler around an orchestrator.
func NewScheduler(orch *orchestrator.Orchestrator, symbolsFile string) *Scheduler {
	return &Scheduler{
		cron:         gocron.NewScheduler(time.UTC),
		orchestrator: orch,
		symbolsFile:  symbolsFile,
	}
}

// Start schedules the daily refresh at the given "HH:MM" UTC time.
func (s *Scheduler) Start(at string) error {
	_, err := s.cron.Every(1).Day().At(at).Do(s.runRefresh)
	if err != nil {
		return err
	}
	s.cron.StartAsync()
	log.Info().Str("at", at).Msg("Daily refresh scheduled")
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runRefresh() {
	log.Info().Msg("Scheduled refresh triggered")

	universe, err := orchestrator.LoadUniverse(s.symbolsFile)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled refresh could not load universe")
		return
	}

	result, err := s.orchestrator.Run(context.Background(), universe)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled refresh failed to start")
		return
	}
	log.Info().
		Str("status", result.Status).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("Scheduled refresh completed")
}
