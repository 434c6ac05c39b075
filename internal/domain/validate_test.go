package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() TaskDefinition {
	return TaskDefinition{
		UserID:   "u1",
		Name:     "Drink water",
		Priority: 3,
		TrackBy:  "count",
		Schedules: []ScheduleEntry{
			{DayOfWeek: 1, Times: []string{"07:00", "12:30"}},
		},
	}
}

func TestParseHHMM(t *testing.T) {
	h, m, err := ParseHHMM("07:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"7:05", "24:00", "12:60", "", "ab:cd", "12:5"} {
		_, _, err := ParseHHMM(bad)
		var ve ValidationError
		assert.True(t, errors.As(err, &ve), "expected validation error for %q", bad)
	}
}

func TestAtUsesReferenceDayAndLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ref := time.Date(2025, 3, 10, 15, 42, 10, 0, loc)
	got, err := At(ref, "07:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 7, 30, 0, 0, loc), got)
}

func TestValidateDefinition(t *testing.T) {
	require.NoError(t, ValidateDefinition(validDefinition()))

	cases := map[string]func(*TaskDefinition){
		"user_id":      func(d *TaskDefinition) { d.UserID = " " },
		"name":         func(d *TaskDefinition) { d.Name = "x" },
		"priority":     func(d *TaskDefinition) { d.Priority = 11 },
		"track_by":     func(d *TaskDefinition) { d.TrackBy = "" },
		"schedules":    func(d *TaskDefinition) { d.Schedules[0].Times = []string{"25:00"} },
		"goals.weekly": func(d *TaskDefinition) { d.Goals.Weekly = -1 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			d := validDefinition()
			d.Schedules = []ScheduleEntry{{DayOfWeek: 1, Times: []string{"07:00"}}}
			mutate(&d)
			err := ValidateDefinition(d)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
}

func TestValidateDefinitionReportsFirstNegativeGoal(t *testing.T) {
	d := validDefinition()
	d.Goals = Goals{Daily: 1, Weekly: -1, Monthly: -2, Yearly: -3}
	for i := 0; i < 20; i++ {
		var ve ValidationError
		require.ErrorAs(t, ValidateDefinition(d), &ve)
		assert.Equal(t, "goals.weekly", ve.Field)
	}
}

func TestValidateSchedulesRejectsWeekday(t *testing.T) {
	err := ValidateSchedules([]ScheduleEntry{{DayOfWeek: 7, Times: []string{"07:00"}}})
	require.Error(t, err)
	require.NoError(t, ValidateSchedules(nil))
}

func TestNormalizeSchedulesMergesDays(t *testing.T) {
	got := NormalizeSchedules([]ScheduleEntry{
		{DayOfWeek: 3, Times: []string{"18:00", "07:00"}},
		{DayOfWeek: 1, Times: []string{"09:00"}},
		{DayOfWeek: 3, Times: []string{"07:00", "12:00"}},
		{DayOfWeek: 5, Times: nil},
	})
	assert.Equal(t, []ScheduleEntry{
		{DayOfWeek: 1, Times: []string{"09:00"}},
		{DayOfWeek: 3, Times: []string{"07:00", "12:00", "18:00"}},
	}, got)
}

func TestSanitizeCategories(t *testing.T) {
	got := SanitizeCategories([]string{" Legs ", "legs", "", "Arms", "  ", "ARMS", "Core"})
	assert.Equal(t, []string{"Legs", "Arms", "Core"}, got)
	assert.Equal(t, []string{}, SanitizeCategories(nil))
}

func TestScheduledAndTimesOn(t *testing.T) {
	d := validDefinition()
	assert.True(t, d.Scheduled())
	assert.Equal(t, []string{"07:00", "12:30"}, d.TimesOn(time.Monday))
	assert.Empty(t, d.TimesOn(time.Tuesday))

	d.Schedules = []ScheduleEntry{{DayOfWeek: 2}}
	assert.False(t, d.Scheduled())
}
