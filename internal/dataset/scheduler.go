package dataset

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/openvoices/insights-backend/internal/platform/logger"
)

// Scheduler reloads every registered campaign on a fixed cadence. The
// default cadence is every 12th hour, matching the warehouse export rhythm.
type Scheduler struct {
	log   *logger.Logger
	cache *Cache
	cron  *cron.Cron
}

func NewScheduler(log *logger.Logger, cache *Cache, cronSpec string) (*Scheduler, error) {
	s := &Scheduler{
		log:   log.With("service", "ReloadScheduler"),
		cache: cache,
		cron:  cron.New(),
	}
	if _, err := s.cron.AddFunc(cronSpec, s.reloadAll); err != nil {
		return nil, fmt.Errorf("dataset: invalid reload cron spec %q: %w", cronSpec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Reload scheduler started")
}

// Stop halts scheduling. An in-flight reload runs to completion.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Reload scheduler stopped")
}

func (s *Scheduler) reloadAll() {
	for _, campaignCode := range s.cache.Campaigns() {
		if _, err := s.cache.Reload(context.Background(), campaignCode); err != nil {
			s.log.Error("Scheduled reload failed", "campaign", campaignCode, "error", err)
		}
	}
}
