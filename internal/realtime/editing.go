package realtime

import (
	"sort"
	"sync"
	"time"
)

// EditTracker issues strictly increasing versions per (incident, field).
// Receivers discard anything at or below the version they last applied;
// the tracker only guarantees monotonic issuance.
type EditTracker struct {
	mu       sync.Mutex
	versions map[editKey]int64
}

type editKey struct {
	incidentID string
	field      string
}

// NewEditTracker creates an empty tracker.
func NewEditTracker() *EditTracker {
	return &EditTracker{versions: make(map[editKey]int64)}
}

// Next advances and returns the version for (incidentID, field).
func (t *EditTracker) Next(incidentID, field string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := editKey{incidentID: incidentID, field: field}
	t.versions[k]++
	return t.versions[k]
}

// Current returns the last issued version, 0 if none.
func (t *EditTracker) Current(incidentID, field string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.versions[editKey{incidentID: incidentID, field: field}]
}

// autoSaveSession owns the debounced auto-save timer for one client editing
// one incident. The ticker fires every AutoSaveInterval until Stop, which is
// guaranteed on edit stop, room leave and disconnect.
type autoSaveSession struct {
	incidentID string
	interval   time.Duration
	emit       func(incidentID string, fields []string)

	mu     sync.Mutex
	fields map[string]struct{}
	stop   chan struct{}
	once   sync.Once
}

func newAutoSaveSession(incidentID string, interval time.Duration, emit func(incidentID string, fields []string)) *autoSaveSession {
	s := &autoSaveSession{
		incidentID: incidentID,
		interval:   interval,
		emit:       emit,
		fields:     make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *autoSaveSession) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			fields := s.drainFields()
			if len(fields) > 0 {
				s.emit(s.incidentID, fields)
			}
		}
	}
}

// AddField records a field as dirty for the next auto-save tick.
func (s *autoSaveSession) AddField(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[field] = struct{}{}
}

// RemoveField clears a field and reports whether any dirty fields remain.
func (s *autoSaveSession) RemoveField(field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fields, field)
	return len(s.fields) > 0
}

func (s *autoSaveSession) drainFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fields) == 0 {
		return nil
	}
	fields := make([]string, 0, len(s.fields))
	for f := range s.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Stop cancels the session timer. Safe to call more than once.
func (s *autoSaveSession) Stop() {
	s.once.Do(func() { close(s.stop) })
}
