package scheduler

import (
	"time"

	"cadence/internal/domain"
)

// Occurrence is one slot of a scheduled definition on the current day.
type Occurrence struct {
	DefinitionID int64
	Name         string
	Priority     int
	HHMM         string
	ScheduledAt  time.Time
}

func (o Occurrence) Slot() Slot {
	return Slot{DefinitionID: o.DefinitionID, HHMM: o.HHMM}
}

// Occurrences expands the active scheduled definitions into slots for the
// calendar day of now, in now's location.
func Occurrences(defs []domain.TaskDefinition, now time.Time) []Occurrence {
	weekday := now.Weekday()
	var out []Occurrence
	for _, d := range defs {
		if !d.Active || !d.Scheduled() {
			continue
		}
		for _, hhmm := range d.TimesOn(weekday) {
			at, err := domain.At(now, hhmm)
			if err != nil {
				// rejected at the editing boundary; never expected here
				continue
			}
			out = append(out, Occurrence{
				DefinitionID: d.ID,
				Name:         d.Name,
				Priority:     d.Priority,
				HHMM:         hhmm,
				ScheduledAt:  at,
			})
		}
	}
	return out
}

// Released keeps the occurrences whose trigger time is at or before now.
func Released(occ []Occurrence, now time.Time) []Occurrence {
	out := make([]Occurrence, 0, len(occ))
	for _, o := range occ {
		if !o.ScheduledAt.After(now) {
			out = append(out, o)
		}
	}
	return out
}
