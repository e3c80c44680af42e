// Package autosave decides when edited content is persisted. A Scheduler
// tracks one document: every content change re-arms a debounce timer, an
// independent interval timer fires regardless of typing, and either timer
// saves the pending content unless it matches what was last saved.
//
// Time only advances through Tick, so the state machine can be driven by a
// fake Clock in tests; Run drives it from a real ticker.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/report-vault/internal/metrics"
	"github.com/report-vault/internal/versions"
)

const (
	DefaultDebounce   = 3 * time.Second
	DefaultInterval   = 30 * time.Second
	DefaultResolution = 250 * time.Millisecond
)

// Saver persists a version. *versions.Store satisfies it.
type Saver interface {
	Append(ctx context.Context, documentID, content string, meta versions.Metadata) (*versions.ReportVersion, error)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// State of a scheduler
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateSaving:
		return "saving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "debouncing":
		*s = StateDebouncing
	case "saving":
		*s = StateSaving
	default:
		return fmt.Errorf("unknown auto-save state %q", text)
	}
	return nil
}

// Options configures a Scheduler
type Options struct {
	Debounce   time.Duration
	Interval   time.Duration
	Resolution time.Duration
	// Author is recorded on every auto-saved version
	Author  versions.Author
	Clock   Clock
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	return o
}

// Status is a point-in-time view of a scheduler
type Status struct {
	DocumentID  string    `json:"document_id"`
	State       State     `json:"state"`
	Paused      bool      `json:"paused"`
	Dirty       bool      `json:"dirty"`
	LastSavedAt time.Time `json:"last_saved_at,omitempty"`
	LastVersion int       `json:"last_version,omitempty"`
	Saves       int       `json:"saves"`
	Skipped     int       `json:"skipped"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
}

// Scheduler is the auto-save state machine for one document
type Scheduler struct {
	mu         sync.Mutex
	documentID string
	saver      Saver
	opts       Options
	log        zerolog.Logger

	state  State
	paused bool

	pending    string
	hasPending bool
	lastSaved  string
	hasSaved   bool

	// zero when not armed
	debounceAt time.Time
	intervalAt time.Time

	lastSavedAt time.Time
	lastVersion int
	saves       int
	skipped     int
	failures    int
	lastErr     error
}

// New creates an idle scheduler for documentID
func New(documentID string, saver Saver, opts Options) *Scheduler {
	opts = opts.withDefaults()
	s := &Scheduler{
		documentID: documentID,
		saver:      saver,
		opts:       opts,
		log:        opts.Logger.With().Str("document_id", documentID).Logger(),
	}
	s.intervalAt = opts.Clock.Now().Add(opts.Interval)
	return s
}

// Seed records content as already persisted, typically the current head
func (s *Scheduler) Seed(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSaved = content
	s.hasSaved = true
}

// ContentChanged records the latest content and re-arms the debounce timer
func (s *Scheduler) ContentChanged(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = content
	s.hasPending = true
	if s.paused {
		return
	}

	s.debounceAt = s.opts.Clock.Now().Add(s.opts.Debounce)
	if s.state == StateIdle {
		s.state = StateDebouncing
	}
}

// Tick advances both timers to the current time and saves if one is due
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	if s.paused || s.state == StateSaving {
		s.mu.Unlock()
		return nil
	}

	now := s.opts.Clock.Now()
	due := false
	if s.state == StateDebouncing && !s.debounceAt.IsZero() && !now.Before(s.debounceAt) {
		due = true
	}
	if !s.intervalAt.IsZero() && !now.Before(s.intervalAt) {
		s.intervalAt = now.Add(s.opts.Interval)
		if s.dirty() {
			due = true
		}
	}
	if !due {
		s.mu.Unlock()
		return nil
	}

	_, err := s.save(ctx)
	return err
}

// SaveNow saves pending content immediately, ignoring timers and pause. It
// returns nil without error when there is nothing new to save.
func (s *Scheduler) SaveNow(ctx context.Context) (*versions.ReportVersion, error) {
	s.mu.Lock()
	if s.state == StateSaving {
		s.mu.Unlock()
		return nil, fmt.Errorf("save already in progress for %s", s.documentID)
	}
	return s.save(ctx)
}

// save must be called with mu held; it releases it
func (s *Scheduler) save(ctx context.Context) (*versions.ReportVersion, error) {
	if !s.dirty() {
		if s.hasPending {
			s.skipped++
			s.log.Debug().Msg("pending content matches last save, skipping")
		}
		s.state = StateIdle
		s.debounceAt = time.Time{}
		s.mu.Unlock()
		return nil, nil
	}

	content := s.pending
	s.state = StateSaving
	s.debounceAt = time.Time{}
	s.mu.Unlock()

	v, err := s.saver.Append(ctx, s.documentID, content, versions.Metadata{
		CreatedBy:  s.opts.Author,
		IsAutoSave: true,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failures++
		s.lastErr = err
		// keep the content pending and retry after another debounce
		s.state = StateDebouncing
		if s.debounceAt.IsZero() {
			s.debounceAt = s.opts.Clock.Now().Add(s.opts.Debounce)
		}
		s.opts.Metrics.RecordAutosaveFailure()
		s.log.Error().Err(err).Int("failures", s.failures).Msg("auto-save failed")
		return nil, fmt.Errorf("auto-save %s: %w", s.documentID, err)
	}

	s.lastSaved = content
	s.hasSaved = true
	s.lastErr = nil
	s.saves++
	s.lastSavedAt = s.opts.Clock.Now()
	if v != nil {
		s.lastVersion = v.VersionNumber
	}

	// content that arrived while saving is still pending
	if s.dirty() && !s.paused {
		s.state = StateDebouncing
		if s.debounceAt.IsZero() {
			s.debounceAt = s.opts.Clock.Now().Add(s.opts.Debounce)
		}
	} else {
		s.state = StateIdle
	}

	s.log.Debug().Int("version", s.lastVersion).Msg("auto-saved")
	return v, nil
}

// Pause stops both timers. Content keeps being recorded.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = true
}

// Resume restarts both timers from now
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}
	s.paused = false

	now := s.opts.Clock.Now()
	s.intervalAt = now.Add(s.opts.Interval)
	if s.state != StateSaving {
		if s.dirty() {
			s.state = StateDebouncing
			s.debounceAt = now.Add(s.opts.Debounce)
		} else {
			s.state = StateIdle
			s.debounceAt = time.Time{}
		}
	}
}

// Cancel discards pending content. A save already in flight completes as a
// whole or not at all.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = ""
	s.hasPending = false
	s.debounceAt = time.Time{}
	if s.state == StateDebouncing {
		s.state = StateIdle
	}
}

// Status returns the current state
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		DocumentID:  s.documentID,
		State:       s.state,
		Paused:      s.paused,
		Dirty:       s.dirty(),
		LastSavedAt: s.lastSavedAt,
		LastVersion: s.lastVersion,
		Saves:       s.saves,
		Skipped:     s.skipped,
		Failures:    s.failures,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// LastError returns the error of the most recent failed save, cleared by the
// next successful one
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Run ticks the scheduler until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("auto-save stopping")
			return
		case <-ticker.C:
			// failures are recorded in Status and logged by save
			_ = s.Tick(ctx)
		}
	}
}

func (s *Scheduler) dirty() bool {
	return s.hasPending && (!s.hasSaved || s.pending != s.lastSaved)
}
