package scheduler

import (
	"sort"
	"time"

	"cadence/internal/domain"
)

type Kind int

const (
	KindScheduled Kind = iota + 1
	KindUnscheduled
)

func (k Kind) String() string {
	switch k {
	case KindScheduled:
		return "scheduled"
	case KindUnscheduled:
		return "unscheduled"
	default:
		return "none"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Current is the single task presented to the user.
type Current struct {
	Kind         Kind
	DefinitionID int64
	Name         string
	Priority     int
	// HHMM and ScheduledAt are set for scheduled tasks only.
	HHMM        string
	ScheduledAt time.Time
	// Category is the label the next completion will attach, if any.
	Category        string
	LastCompletedAt *time.Time
}

func (c Current) Slot() Slot {
	return Slot{DefinitionID: c.DefinitionID, HHMM: c.HHMM}
}

func occurrenceLess(a, b Occurrence) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	if a.DefinitionID != b.DefinitionID {
		return a.DefinitionID < b.DefinitionID
	}
	return a.HHMM < b.HHMM
}

// pickScheduled returns the highest-priority released slot not yet done.
func pickScheduled(released []Occurrence, completed map[Slot]bool) (Occurrence, bool) {
	var best Occurrence
	found := false
	for _, o := range released {
		if completed[o.Slot()] {
			continue
		}
		if !found || occurrenceLess(o, best) {
			best = o
			found = true
		}
	}
	return best, found
}

// daysSince counts calendar days between t and now in now's location.
func daysSince(t, now time.Time) int {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}

// rankUnscheduled orders loop tasks: never completed first, then the longest
// gap in days, then priority, then id.
func rankUnscheduled(defs []domain.TaskDefinition, last map[int64]time.Time, now time.Time) []domain.TaskDefinition {
	var out []domain.TaskDefinition
	for _, d := range defs {
		if d.Active && !d.Scheduled() {
			out = append(out, d)
		}
	}
	gap := func(d domain.TaskDefinition) (int, bool) {
		t, ok := last[d.ID]
		if !ok {
			return 0, true
		}
		return daysSince(t, now), false
	}
	sort.SliceStable(out, func(i, j int) bool {
		gi, ni := gap(out[i])
		gj, nj := gap(out[j])
		if ni != nj {
			return ni
		}
		if gi != gj {
			return gi > gj
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Select returns the current task for s, or false when idle. Released
// scheduled work always preempts the unscheduled loop.
func Select(s State) (Current, bool) {
	released := Released(Occurrences(s.Definitions, s.Now), s.Now)
	if o, ok := pickScheduled(released, s.Completed); ok {
		def, _ := s.definition(o.DefinitionID)
		return Current{
			Kind:            KindScheduled,
			DefinitionID:    o.DefinitionID,
			Name:            o.Name,
			Priority:        o.Priority,
			HHMM:            o.HHMM,
			ScheduledAt:     o.ScheduledAt,
			Category:        categoryAt(def, s.CategoryPointer[def.ID]),
			LastCompletedAt: s.lastCompletedAt(def.ID),
		}, true
	}

	ranked := rankUnscheduled(s.Definitions, s.LastCompletedAt, s.Now)
	if len(ranked) == 0 {
		return Current{}, false
	}
	def := ranked[clampPointer(s.Cursor, len(ranked))]
	return Current{
		Kind:            KindUnscheduled,
		DefinitionID:    def.ID,
		Name:            def.Name,
		Priority:        def.Priority,
		Category:        categoryAt(def, s.CategoryPointer[def.ID]),
		LastCompletedAt: s.lastCompletedAt(def.ID),
	}, true
}
