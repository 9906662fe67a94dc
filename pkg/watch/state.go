package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/utils"
)

const (
	stateFileName = "watch_state.yaml"
	// maxHistory is how many past runs the state file keeps
	maxHistory = 20
)

// RunState records the outcome of one scheduled crawl run
type RunState struct {
	RunID           string    `yaml:"run_id"`
	StartTime       time.Time `yaml:"start_time"`
	EndTime         time.Time `yaml:"end_time"`
	Success         bool      `yaml:"success"`
	DeadlineReached bool      `yaml:"deadline_reached"`
	ListingsFetched int64     `yaml:"listings_fetched"`
	ArticlesEmitted int64     `yaml:"articles_emitted"`
	ErrorMessage    string    `yaml:"error_message,omitempty"`
}

// WatchState is the persistent state of the watch scheduler, newest run first
type WatchState struct {
	Runs      []RunState `yaml:"runs"`
	UpdatedAt time.Time  `yaml:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
	}
}

// Load loads the state from disk. A missing file is a fresh start.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.state = WatchState{}
			return nil
		}
		return fmt.Errorf("%w: reading watch state: %w", utils.ErrFilesystem, err)
	}

	var state WatchState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("%w: watch state '%s': %w", utils.ErrParsing, m.statePath, err)
	}
	m.state = state
	return nil
}

// Save writes the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: creating state directory: %w", utils.ErrFilesystem, err)
	}
	data, err := yaml.Marshal(&m.state)
	if err != nil {
		return fmt.Errorf("marshaling watch state: %w", err)
	}
	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("%w: writing watch state: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// RecordRun prepends the outcome of a finished run. md may be nil when the
// run failed before producing metadata.
func (m *StateManager) RecordRun(runID string, started time.Time, md *models.RunMetadata, runErr error) RunState {
	run := RunState{RunID: runID, StartTime: started, EndTime: time.Now(), Success: runErr == nil}
	if md != nil {
		run.EndTime = md.EndTime
		run.DeadlineReached = md.DeadlineReached
		run.ListingsFetched = md.ListingsFetched
		run.ArticlesEmitted = md.ArticlesEmitted
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Runs = append([]RunState{run}, m.state.Runs...)
	if len(m.state.Runs) > maxHistory {
		m.state.Runs = m.state.Runs[:maxHistory]
	}
	return run
}

// LastRun returns the most recent run, if any
func (m *StateManager) LastRun() (RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.state.Runs) == 0 {
		return RunState{}, false
	}
	return m.state.Runs[0], true
}

// History returns a copy of the recorded runs, newest first
func (m *StateManager) History() []RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RunState(nil), m.state.Runs...)
}

// NextRunTime returns when the next run is due; zero if one is due now
// because nothing ran yet. Intervals are measured from the last run's start.
func (m *StateManager) NextRunTime(interval time.Duration) time.Time {
	last, ok := m.LastRun()
	if !ok {
		return time.Time{}
	}
	return last.StartTime.Add(interval)
}

// ShouldRun reports whether a run is due at now
func (m *StateManager) ShouldRun(interval time.Duration, now time.Time) bool {
	return !now.Before(m.NextRunTime(interval))
}
