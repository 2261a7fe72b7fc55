package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// UsagePurger removes usage events left behind by deleted keys.
type UsagePurger interface {
	PurgeOrphanedUsage(ctx context.Context) (int64, error)
}

// CachePurger drops expired cache entries.
type CachePurger interface {
	Purge()
}

// Specs holds the cron expressions for each job.
type Specs struct {
	OrphanPurge string
	CachePurge  string
}

type Scheduler struct {
	usage  UsagePurger
	cache  CachePurger
	specs  Specs
	logger *slog.Logger
	c      *cron.Cron
}

// NewScheduler creates a Scheduler. A nil cache skips the cache job.
func NewScheduler(usage UsagePurger, cache CachePurger, specs Specs, logger *slog.Logger) *Scheduler {
	if specs.OrphanPurge == "" {
		specs.OrphanPurge = "@daily"
	}
	if specs.CachePurge == "" {
		specs.CachePurge = "@hourly"
	}
	return &Scheduler{
		usage:  usage,
		cache:  cache,
		specs:  specs,
		logger: logger.With("component", "scheduler"),
		c:      cron.New(),
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.specs.OrphanPurge, s.PurgeOrphanedUsage); err != nil {
		return fmt.Errorf("error scheduling orphan purge job: %w", err)
	}
	if s.cache != nil {
		if _, err := s.c.AddFunc(s.specs.CachePurge, s.PurgeCache); err != nil {
			return fmt.Errorf("error scheduling cache purge job: %w", err)
		}
	}
	s.c.Start()
	s.logger.Info("Scheduler started", "orphan_purge", s.specs.OrphanPurge, "cache_purge", s.specs.CachePurge)
	return nil
}

// Stop stops the runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// PurgeOrphanedUsage runs the orphan purge job once.
func (s *Scheduler) PurgeOrphanedUsage() {
	s.logger.Info("Running job: purging usage events of deleted keys.")
	purged, err := s.usage.PurgeOrphanedUsage(context.Background())
	if err != nil {
		s.logger.Error("Error purging orphaned usage events", "error", err)
		return
	}
	s.logger.Info("Orphaned usage events purged", "count", purged)
}

// PurgeCache runs the cache purge job once.
func (s *Scheduler) PurgeCache() {
	if s.cache == nil {
		return
	}
	s.cache.Purge()
	s.logger.Debug("Summary cache purged")
}
