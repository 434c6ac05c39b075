package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var hhmmRE = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)

// ValidationError rejects malformed definitions at the editing boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseHHMM returns the hour and minute of a 24h "HH:MM" string.
func ParseHHMM(s string) (int, int, error) {
	if !hhmmRE.MatchString(s) {
		return 0, 0, ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not HH:MM", s)}
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), int(s[3]-'0')*10 + int(s[4]-'0'), nil
}

// At places an "HH:MM" time on the calendar day of ref, in ref's location.
func At(ref time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, h, m, 0, 0, ref.Location()), nil
}

// ValidateSchedules checks weekdays and time strings. A nil or empty list is
// valid and means unscheduled.
func ValidateSchedules(in []ScheduleEntry) error {
	for _, s := range in {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			return ValidationError{Field: "schedules", Reason: fmt.Sprintf("day_of_week %d out of range 0..6", s.DayOfWeek)}
		}
		for _, t := range s.Times {
			if !hhmmRE.MatchString(t) {
				return ValidationError{Field: "schedules", Reason: fmt.Sprintf("%q is not a 24h HH:MM time", t)}
			}
		}
	}
	return nil
}

// NormalizeSchedules merges entries for the same weekday, removes duplicate
// times and sorts everything. Weekdays without times are dropped.
func NormalizeSchedules(in []ScheduleEntry) []ScheduleEntry {
	byDay := map[int]map[string]bool{}
	for _, s := range in {
		for _, t := range s.Times {
			if byDay[s.DayOfWeek] == nil {
				byDay[s.DayOfWeek] = map[string]bool{}
			}
			byDay[s.DayOfWeek][t] = true
		}
	}
	out := make([]ScheduleEntry, 0, len(byDay))
	for day, set := range byDay {
		times := make([]string, 0, len(set))
		for t := range set {
			times = append(times, t)
		}
		sort.Strings(times)
		out = append(out, ScheduleEntry{DayOfWeek: day, Times: times})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out
}

// SanitizeCategories trims names, drops blanks and case-insensitive
// duplicates, and keeps the first spelling in order.
func SanitizeCategories(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, c := range in {
		v := strings.TrimSpace(c)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// ValidateDefinition checks a definition before it is stored.
func ValidateDefinition(d TaskDefinition) error {
	if strings.TrimSpace(d.UserID) == "" {
		return ValidationError{Field: "user_id", Reason: "required"}
	}
	if len(strings.TrimSpace(d.Name)) < 2 {
		return ValidationError{Field: "name", Reason: "must be at least 2 characters"}
	}
	if d.Priority < 1 || d.Priority > 10 {
		return ValidationError{Field: "priority", Reason: "must be an integer between 1 and 10"}
	}
	if strings.TrimSpace(d.TrackBy) == "" {
		return ValidationError{Field: "track_by", Reason: "required"}
	}
	if err := ValidateSchedules(d.Schedules); err != nil {
		return err
	}
	goals := []struct {
		field string
		value int
	}{
		{"goals.daily", d.Goals.Daily},
		{"goals.weekly", d.Goals.Weekly},
		{"goals.monthly", d.Goals.Monthly},
		{"goals.yearly", d.Goals.Yearly},
	}
	for _, g := range goals {
		if g.value < 0 {
			return ValidationError{Field: g.field, Reason: "must be >= 0"}
		}
	}
	return nil
}

// Normalize returns the canonical stored shape of d.
func Normalize(d TaskDefinition) TaskDefinition {
	d.Name = strings.TrimSpace(d.Name)
	d.TrackBy = strings.TrimSpace(d.TrackBy)
	d.Schedules = NormalizeSchedules(d.Schedules)
	d.Categories = SanitizeCategories(d.Categories)
	return d
}
