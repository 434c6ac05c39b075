package scheduler

import (
	"sort"
	"time"

	"cadence/internal/domain"
)

// DayKey identifies the calendar day of t in t's location.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// dayBounds returns [start, end) of now's calendar day.
func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// countToday counts entries created during now's local calendar day.
func countToday(entries []domain.LogEntry, now time.Time) int {
	start, end := dayBounds(now)
	n := 0
	for _, e := range entries {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			n++
		}
	}
	return n
}

// completedSlots marks the earliest n of today's sorted slot times as done,
// where n is the number of entries logged today. Which slot an entry was
// for is not recorded, so earlier slots are assumed first.
func completedSlots(def domain.TaskDefinition, entries []domain.LogEntry, now time.Time) []Slot {
	times := def.TimesOn(now.Weekday())
	n := countToday(entries, now)
	if n > len(times) {
		n = len(times)
	}
	out := make([]Slot, 0, n)
	for _, t := range times[:n] {
		out = append(out, Slot{DefinitionID: def.ID, HHMM: t})
	}
	return out
}

// lastCompleted returns the newest entry time, if any.
func lastCompleted(entries []domain.LogEntry) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range entries {
		if !found || e.CreatedAt.After(last) {
			last = e.CreatedAt
			found = true
		}
	}
	return last, found
}

// newestFirst orders entries by creation time then id, newest first.
func newestFirst(entries []domain.LogEntry) []domain.LogEntry {
	out := append([]domain.LogEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// mergeAcked adds locally acknowledged entries that the server listing does
// not include yet. It returns the merged list and the acked entries still
// pending visibility.
func mergeAcked(server, acked []domain.LogEntry) ([]domain.LogEntry, []domain.LogEntry) {
	if len(acked) == 0 {
		return server, nil
	}
	seen := make(map[int64]bool, len(server))
	for _, e := range server {
		seen[e.ID] = true
	}
	merged := append([]domain.LogEntry(nil), server...)
	var pending []domain.LogEntry
	for _, e := range acked {
		if seen[e.ID] {
			continue
		}
		merged = append(merged, e)
		pending = append(pending, e)
	}
	return merged, pending
}
