package core

import (
	"sync"
	"time"
)

// Stats aggregates process-wide processing counters. Initialized empty at
// startup; all mutation goes through the pipeline, never ad hoc.
type Stats struct {
	mu sync.Mutex

	processed     int
	duplicates    int
	spam          int
	skipped       int
	failed        int
	replayed      int
	fallbacks     int
	perLabel      map[Label]int
	perAction     map[Action]int
	lastProcessed time.Time
}

// StatsSnapshot is a read-only copy of the counters for reporting
type StatsSnapshot struct {
	Processed     int
	Duplicates    int
	Spam          int
	Skipped       int
	Failed        int
	Replayed      int
	Fallbacks     int
	PerLabel      map[Label]int
	PerAction     map[Action]int
	LastProcessed time.Time
}

// NewStats creates zeroed counters
func NewStats() *Stats {
	return &Stats{
		perLabel:  make(map[Label]int),
		perAction: make(map[Action]int),
	}
}

func (s *Stats) recordDecision(decision *ActionDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.perLabel[decision.Classification.Label]++
	for _, a := range decision.Actions {
		s.perAction[a]++
	}
	if decision.Classification.Fallback {
		s.fallbacks++
	}
	s.lastProcessed = time.Now().UTC()
}

func (s *Stats) recordDuplicate() { s.bump(&s.duplicates) }
func (s *Stats) recordSpam()      { s.bump(&s.spam) }
func (s *Stats) recordSkipped()   { s.bump(&s.skipped) }
func (s *Stats) recordFailed()    { s.bump(&s.failed) }
func (s *Stats) recordReplayed()  { s.bump(&s.replayed) }

func (s *Stats) bump(counter *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter++
}

// Snapshot returns a copy of the current counters
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	perLabel := make(map[Label]int, len(s.perLabel))
	for k, v := range s.perLabel {
		perLabel[k] = v
	}
	perAction := make(map[Action]int, len(s.perAction))
	for k, v := range s.perAction {
		perAction[k] = v
	}
	return StatsSnapshot{
		Processed:     s.processed,
		Duplicates:    s.duplicates,
		Spam:          s.spam,
		Skipped:       s.skipped,
		Failed:        s.failed,
		Replayed:      s.replayed,
		Fallbacks:     s.fallbacks,
		PerLabel:      perLabel,
		PerAction:     perAction,
		LastProcessed: s.lastProcessed,
	}
}
