package scheduler

import (
	"sort"
	"time"

	"cadence/internal/domain"
)

// Slot identifies one occurrence of a definition on the current day.
// Unscheduled tasks use an empty HHMM.
type Slot struct {
	DefinitionID int64  `yaml:"definition_id"`
	HHMM         string `yaml:"hhmm"`
}

// State is the whole client-side model. It is only changed through Reduce.
type State struct {
	Now         time.Time
	Day         string
	Definitions []domain.TaskDefinition

	Completed map[Slot]bool
	Skipped   map[Slot]bool
	// Acked holds created entries not yet seen in a log listing.
	Acked map[int64][]domain.LogEntry
	// Seen holds the entry ids the last reload applied, per definition.
	// The inner sets are replaced, never mutated.
	Seen map[int64]map[int64]bool

	LastCompletedAt map[int64]time.Time
	CategoryPointer map[int64]int
	Cursor          int
}

// NewState returns an empty state positioned at now.
func NewState(now time.Time) State {
	return State{
		Now:             now,
		Day:             DayKey(now),
		Completed:       map[Slot]bool{},
		Skipped:         map[Slot]bool{},
		Acked:           map[int64][]domain.LogEntry{},
		Seen:            map[int64]map[int64]bool{},
		LastCompletedAt: map[int64]time.Time{},
		CategoryPointer: map[int64]int{},
	}
}

func (s State) definition(id int64) (domain.TaskDefinition, bool) {
	for _, d := range s.Definitions {
		if d.ID == id {
			return d, true
		}
	}
	return domain.TaskDefinition{}, false
}

func (s State) lastCompletedAt(id int64) *time.Time {
	t, ok := s.LastCompletedAt[id]
	if !ok {
		return nil
	}
	return &t
}

func (s State) clone() State {
	out := s
	out.Definitions = append([]domain.TaskDefinition(nil), s.Definitions...)
	out.Completed = make(map[Slot]bool, len(s.Completed))
	for k, v := range s.Completed {
		out.Completed[k] = v
	}
	out.Skipped = make(map[Slot]bool, len(s.Skipped))
	for k, v := range s.Skipped {
		out.Skipped[k] = v
	}
	out.Acked = make(map[int64][]domain.LogEntry, len(s.Acked))
	for k, v := range s.Acked {
		out.Acked[k] = append([]domain.LogEntry(nil), v...)
	}
	out.Seen = make(map[int64]map[int64]bool, len(s.Seen))
	for k, v := range s.Seen {
		out.Seen[k] = v
	}
	out.LastCompletedAt = make(map[int64]time.Time, len(s.LastCompletedAt))
	for k, v := range s.LastCompletedAt {
		out.LastCompletedAt[k] = v
	}
	out.CategoryPointer = make(map[int64]int, len(s.CategoryPointer))
	for k, v := range s.CategoryPointer {
		out.CategoryPointer[k] = v
	}
	return out
}

// Event is an input to Reduce.
type Event interface{ event() }

// Tick advances the clock. Crossing a day boundary clears the day's sets.
type Tick struct{ Now time.Time }

// Midnight forces the daily reset.
type Midnight struct{ Now time.Time }

// Reload replaces definitions and derived history with a fresh fetch.
// Degraded lists definitions whose log fetch failed.
type Reload struct {
	Now         time.Time
	Definitions []domain.TaskDefinition
	Logs        map[int64][]domain.LogEntry
	Degraded    map[int64]bool
}

// Completed records an acknowledged log entry for the task.
type Completed struct {
	Task  Current
	Entry domain.LogEntry
	At    time.Time
}

// Skipped dismisses the task for this session without logging.
type Skipped struct{ Task Current }

func (Tick) event()      {}
func (Midnight) event()  {}
func (Reload) event()    {}
func (Completed) event() {}
func (Skipped) event()   {}

// Reduce applies ev to s and returns the next state. s is not modified.
func Reduce(s State, ev Event) State {
	next := s.clone()
	switch e := ev.(type) {
	case Tick:
		next.advance(e.Now)
	case Midnight:
		next.advance(e.Now)
		next.resetDay()
	case Reload:
		next.advance(e.Now)
		next.reload(e)
	case Completed:
		next.complete(e)
	case Skipped:
		if e.Task.Kind == KindScheduled {
			next.Completed[e.Task.Slot()] = true
			next.Skipped[e.Task.Slot()] = true
		} else {
			next.Cursor++
		}
	}
	return next
}

func (s *State) advance(now time.Time) {
	if day := DayKey(now); day != s.Day {
		s.resetDay()
		s.Day = day
	}
	s.Now = now
}

func (s *State) resetDay() {
	s.Completed = map[Slot]bool{}
	s.Skipped = map[Slot]bool{}
}

func (s *State) reload(e Reload) {
	s.Definitions = append([]domain.TaskDefinition(nil), e.Definitions...)
	sort.SliceStable(s.Definitions, func(i, j int) bool { return s.Definitions[i].ID < s.Definitions[j].ID })

	completed := map[Slot]bool{}
	last := map[int64]time.Time{}
	pointers := map[int64]int{}
	acked := map[int64][]domain.LogEntry{}
	seen := map[int64]map[int64]bool{}

	for _, d := range s.Definitions {
		server := e.Logs[d.ID]
		if e.Degraded[d.ID] {
			server = nil
		}
		entries, pending := mergeAcked(server, s.Acked[d.ID])
		if len(pending) > 0 {
			acked[d.ID] = pending
		}
		ids := make(map[int64]bool, len(entries))
		for _, entry := range entries {
			if entry.ID != 0 {
				ids[entry.ID] = true
			}
		}
		seen[d.ID] = ids

		for _, slot := range completedSlots(d, entries, s.Now) {
			completed[slot] = true
		}
		if t, ok := lastCompleted(entries); ok {
			last[d.ID] = t
		}
		if p, ok := s.CategoryPointer[d.ID]; ok && e.Degraded[d.ID] {
			pointers[d.ID] = clampPointer(p, len(d.Categories))
			continue
		}
		pointers[d.ID] = initialPointer(d, entries)
	}
	for slot := range s.Skipped {
		completed[slot] = true
	}

	s.Completed = completed
	s.LastCompletedAt = last
	s.CategoryPointer = pointers
	s.Acked = acked
	s.Seen = seen
}

func (s *State) complete(e Completed) {
	id := e.Task.DefinitionID
	if e.Task.Kind == KindScheduled && DayKey(e.Task.ScheduledAt.In(s.Now.Location())) == s.Day {
		s.Completed[e.Task.Slot()] = true
	}
	if e.Task.Kind == KindUnscheduled {
		s.Cursor++
	}
	s.LastCompletedAt[id] = e.At
	// A reload that ran while the write was in flight may already have
	// derived the pointer from this entry.
	if e.Entry.ID != 0 && s.Seen[id][e.Entry.ID] {
		return
	}
	if e.Entry.ID != 0 {
		s.Acked[id] = append(s.Acked[id], e.Entry)
	}
	if e.Task.Category != "" {
		if def, ok := s.definition(id); ok && len(def.Categories) > 0 {
			s.CategoryPointer[id] = clampPointer(s.CategoryPointer[id]+1, len(def.Categories))
		}
	}
}

// Snapshot is the persisted subset of session state. Skips only survive
// within the same day; the loop cursor always survives.
type Snapshot struct {
	Day     string `yaml:"day"`
	Skipped []Slot `yaml:"skipped,omitempty"`
	Cursor  int    `yaml:"cursor"`
}

func (s State) Snapshot() Snapshot {
	snap := Snapshot{Day: s.Day, Cursor: s.Cursor}
	for slot := range s.Skipped {
		snap.Skipped = append(snap.Skipped, slot)
	}
	sort.Slice(snap.Skipped, func(i, j int) bool {
		if snap.Skipped[i].DefinitionID != snap.Skipped[j].DefinitionID {
			return snap.Skipped[i].DefinitionID < snap.Skipped[j].DefinitionID
		}
		return snap.Skipped[i].HHMM < snap.Skipped[j].HHMM
	})
	return snap
}

// Restore applies a snapshot to s and returns the result.
func Restore(s State, snap Snapshot) State {
	next := s.clone()
	next.Cursor = snap.Cursor
	if snap.Day != next.Day {
		return next
	}
	for _, slot := range snap.Skipped {
		next.Skipped[slot] = true
		next.Completed[slot] = true
	}
	return next
}
