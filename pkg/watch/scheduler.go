package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/models"
)

// RunFunc performs one complete crawl run under runID
type RunFunc func(ctx context.Context, runID string) (*models.RunMetadata, error)

// Scheduler re-runs the crawl on a fixed interval. Runs never overlap: a
// run that outlasts the interval delays the next one.
type Scheduler struct {
	interval     time.Duration
	run          RunFunc
	stateManager *StateManager
	log          *logrus.Entry

	tick     time.Duration // How often due-ness is checked
	newRunID func() string
}

// NewScheduler creates a scheduler persisting its state under stateDir
func NewScheduler(stateDir string, interval time.Duration, run RunFunc, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		interval:     interval,
		run:          run,
		stateManager: NewStateManager(stateDir),
		log:          log,
		tick:         calculateTickInterval(interval),
		newRunID:     func() string { return uuid.NewString() },
	}
}

// Run blocks until ctx is done, starting a crawl whenever one is due.
// A crawl already in progress when ctx ends is left to wind down through
// its own context handling before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", s.interval)
	}
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode with interval %s", FormatInterval(s.interval))
	s.logLastRun()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if s.stateManager.ShouldRun(s.interval, time.Now()) {
			s.runOnce(ctx)
			s.logNextRun()
		}
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce performs a crawl and records its outcome
func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runID := s.newRunID()
	started := time.Now()
	s.log.WithField("run_id", runID).Info("Scheduled crawl starting")

	md, err := s.run(ctx, runID)
	run := s.stateManager.RecordRun(runID, started, md, err)
	runLog := s.log.WithFields(logrus.Fields{
		"run_id":   runID,
		"articles": run.ArticlesEmitted,
		"duration": run.EndTime.Sub(run.StartTime).Round(time.Second).String(),
	})
	if err != nil {
		runLog.Errorf("Scheduled crawl failed: %v", err)
	} else {
		runLog.Info("Scheduled crawl finished")
	}

	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
}

// calculateTickInterval returns how often to check whether a run is due
func calculateTickInterval(interval time.Duration) time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

func (s *Scheduler) logLastRun() {
	last, ok := s.stateManager.LastRun()
	if !ok {
		s.log.Info("No previous run recorded, crawling immediately")
		return
	}
	status := "success"
	if !last.Success {
		status = "failed"
	}
	s.log.Infof("Last run %s at %s (%s, %d articles)",
		last.RunID, last.StartTime.Format(time.RFC3339), status, last.ArticlesEmitted)
}

func (s *Scheduler) logNextRun() {
	next := s.stateManager.NextRunTime(s.interval)
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next crawl in %v (at %s)", until.Round(time.Second), next.Format("15:04:05"))
}

// Status summarizes the scheduler for display
type Status struct {
	LastRun     RunState
	NeverRun    bool
	NextRunTime time.Time
}

// GetStatus returns the current schedule status
func (s *Scheduler) GetStatus() Status {
	last, ok := s.stateManager.LastRun()
	return Status{LastRun: last, NeverRun: !ok, NextRunTime: s.stateManager.NextRunTime(s.interval)}
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for a day suffix
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 6h, 24h, 7d)", s)
}
