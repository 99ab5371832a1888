package smart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/smarttherm/fglair-smart/internal/schedule"
)

// Store persists the engine state as a single JSON document. Writes are
// asynchronous and last-write-wins: Save hands the encoded document to a
// writer goroutine and returns immediately; a pending write is superseded by
// the next Save. Before overwriting, the previous file content is copied to
// a .bak sibling when it differs.
type Store struct {
	path   string
	logger *slog.Logger
	queue  chan []byte

	lock     sync.Mutex
	lastSeen []byte // normalized form of the last saved state
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
		queue:  make(chan []byte, 1),
	}
}

// Load reads the persisted state, falling back to defaults when the file is
// missing or unparsable. Schedules are normalized on the way in, so invalid
// entries written by older versions are dropped rather than fatal.
func (s *Store) Load() State {
	state := defaultState()

	data, err := os.ReadFile(s.path)
	if err == nil {
		err = json.Unmarshal(data, &state)
	}
	if err != nil {
		s.logger.Warn("using default state", slog.String("path", s.path), slog.Any("err", err))
		state = defaultState()
	}

	if state.Schedule.Schedules == nil {
		state.Schedule.Schedules = make(map[string][]schedule.Entry)
	}
	for _, name := range []string{ScheduleNormal, ScheduleVacation, ScheduleAway} {
		if _, ok := state.Schedule.Schedules[name]; !ok {
			state.Schedule.Schedules[name] = []schedule.Entry{}
		}
	}
	for name, entries := range state.Schedule.Schedules {
		state.Schedule.Schedules[name] = schedule.Normalize(entries, s.logger)
	}
	if _, ok := state.Schedule.Schedules[state.Schedule.Selected]; !ok {
		state.Schedule.Selected = ScheduleNormal
	}

	if normalized, err := json.Marshal(normalize(state)); err == nil {
		s.lock.Lock()
		s.lastSeen = normalized
		s.lock.Unlock()
	}
	return state
}

// Save queues the state for writing. Nothing is written when the state is
// unchanged; trigger timestamps do not count as changes but are persisted
// when a write happens anyway.
func (s *Store) Save(state State) {
	normalized, err := json.Marshal(normalize(state))
	if err != nil {
		s.logger.Error("failed to encode state", slog.Any("err", err))
		return
	}

	s.lock.Lock()
	unchanged := bytes.Equal(normalized, s.lastSeen)
	if !unchanged {
		s.lastSeen = normalized
	}
	s.lock.Unlock()
	if unchanged {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("failed to encode state", slog.Any("err", err))
		return
	}

	// last write wins: drop a pending write in favour of this one
	for {
		select {
		case s.queue <- data:
			return
		default:
			select {
			case <-s.queue:
			default:
			}
		}
	}
}

// Run drains the write queue until the context is canceled.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Debug("started")
	defer s.logger.Debug("stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-s.queue:
			if err := s.write(data); err != nil {
				s.logger.Error("failed to save state", slog.String("path", s.path), slog.Any("err", err))
			}
		}
	}
}

func (s *Store) write(data []byte) error {
	previous, err := os.ReadFile(s.path)
	if err == nil {
		if bytes.Equal(previous, data) {
			return nil
		}
		if err = os.WriteFile(s.path+".bak", previous, 0o644); err != nil {
			s.logger.Error("failed to write backup", slog.Any("err", err))
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// normalize returns a deep copy with trigger timestamps cleared, the basis
// for change detection.
func normalize(state State) State {
	schedules := make(map[string][]schedule.Entry, len(state.Schedule.Schedules))
	for name, entries := range state.Schedule.Schedules {
		cleaned := make([]schedule.Entry, len(entries))
		for i, e := range entries {
			e.Triggered = nil
			cleaned[i] = e
		}
		schedules[name] = cleaned
	}
	state.Schedule.Schedules = schedules
	return state
}
