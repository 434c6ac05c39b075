package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadence/internal/domain"
	"cadence/internal/progress"
	"cadence/internal/scheduler"
)

func TestParseSchedules(t *testing.T) {
	got, err := parseSchedules([]string{"mon=08:00, 21:00", "Friday=07:30", "0=10:00,"})
	require.NoError(t, err)
	assert.Equal(t, []domain.ScheduleEntry{
		{DayOfWeek: 1, Times: []string{"08:00", "21:00"}},
		{DayOfWeek: 5, Times: []string{"07:30"}},
		{DayOfWeek: 0, Times: []string{"10:00"}},
	}, got)

	_, err = parseSchedules([]string{"mon"})
	assert.ErrorContains(t, err, "DAY=HH:MM")
	_, err = parseSchedules([]string{"someday=08:00"})
	assert.ErrorContains(t, err, "unknown weekday")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	for _, bad := range []string{"0", "-1", "x"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestScheduleSummary(t *testing.T) {
	assert.Equal(t, "loop", scheduleSummary(domain.TaskDefinition{}))
	assert.Equal(t, "Mon 08:00,21:00; Sat 09:00", scheduleSummary(domain.TaskDefinition{
		Schedules: []domain.ScheduleEntry{
			{DayOfWeek: 1, Times: []string{"08:00", "21:00"}},
			{DayOfWeek: 6, Times: []string{"09:00"}},
		},
	}))
}

func TestDescribeCurrent(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	last := now.Add(-48 * time.Hour)

	assert.Equal(t, "Pills @ 08:00 (priority 2)", describeCurrent(scheduler.Current{
		Kind: scheduler.KindScheduled, Name: "Pills", HHMM: "08:00", Priority: 2,
	}, now))
	assert.Equal(t, "Squats [Front], never done", describeCurrent(scheduler.Current{
		Kind: scheduler.KindUnscheduled, Name: "Squats", Category: "Front",
	}, now))
	assert.Equal(t, "Read, last done Sat 09:00", describeCurrent(scheduler.Current{
		Kind: scheduler.KindUnscheduled, Name: "Read", LastCompletedAt: &last,
	}, now))
}

func TestHeatmap(t *testing.T) {
	r := progress.Report{
		Today:     "2025-03-10",
		Totals:    map[string]float64{"2025-03-10": 5, "2025-03-08": 1},
		Quantiles: progress.Quantiles{Q25: 1, Q50: 2, Q75: 4},
	}
	assert.Equal(t, "[. O]", heatmap(r, 3))
	assert.Empty(t, heatmap(progress.Report{}, 3))
}
