package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadence/internal/domain"
)

func amt(v float64) *float64 { return &v }

func TestDailyTotalsUseLocalDateAndDefault(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	entries := []domain.LogEntry{
		{Amount: amt(2), CreatedAt: time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC)}, // 23:00 on the 10th in NY
		{Amount: nil, CreatedAt: time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)},
		{Amount: amt(0), CreatedAt: time.Date(2025, 3, 11, 16, 0, 0, 0, time.UTC)},
	}

	got := DailyTotals(entries, amt(1.5), ny)
	assert.Equal(t, map[string]float64{"2025-03-10": 2, "2025-03-11": 1.5}, got)

	got = DailyTotals(entries, nil, ny)
	assert.Equal(t, 0.0, got["2025-03-11"])
}

func TestStreak(t *testing.T) {
	cases := map[string]struct {
		totals map[string]float64
		want   int
	}{
		"never":          {map[string]float64{}, 0},
		"three days":     {map[string]float64{"2025-03-08": 1, "2025-03-09": 2, "2025-03-10": 1}, 3},
		"gap breaks":     {map[string]float64{"2025-03-07": 1, "2025-03-09": 2, "2025-03-10": 1}, 2},
		"idle since":     {map[string]float64{"2025-03-06": 1, "2025-03-07": 0}, -4},
		"zero days only": {map[string]float64{"2025-03-09": 0}, 0},
		"future ignored": {map[string]float64{"2025-03-12": 3}, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Streak(tc.totals, "2025-03-10"))
		})
	}
}

func TestComputePeriods(t *testing.T) {
	// Wednesday 2025-03-12; week started Sunday the 9th
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	def := domain.TaskDefinition{ID: 4, Goals: domain.Goals{Daily: 2, Weekly: 5, Monthly: 0, Yearly: 100}}
	entries := []domain.LogEntry{
		{Amount: amt(3), CreatedAt: time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)},
		{Amount: amt(1), CreatedAt: time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)},
		{Amount: amt(4), CreatedAt: time.Date(2025, 3, 8, 8, 0, 0, 0, time.UTC)},
		{Amount: amt(10), CreatedAt: time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)},
		{Amount: amt(50), CreatedAt: time.Date(2024, 12, 31, 8, 0, 0, 0, time.UTC)},
	}

	r := Compute(def, entries, now)
	assert.Equal(t, "2025-03-12", r.Today)
	assert.Equal(t, Period{Value: 3, Goal: 2, Pct: 1, Fraction: "3/2"}, r.Daily)
	assert.Equal(t, Period{Value: 4, Goal: 5, Pct: 0.8, Fraction: "4/5"}, r.Weekly)
	assert.Equal(t, Period{Value: 8, Goal: 0, Pct: 0, Fraction: "8"}, r.Monthly)
	assert.Equal(t, 18.0, r.Yearly.Value)
	assert.InDelta(t, 0.18, r.Yearly.Pct, 1e-9)
	assert.Equal(t, 1, r.Streak)
}

func TestQuantileLevels(t *testing.T) {
	q := ComputeQuantiles(map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 0})
	assert.Equal(t, Quantiles{Q25: 2, Q50: 3, Q75: 4}, q)
	assert.Equal(t, 0, q.Level(0))
	assert.Equal(t, 1, q.Level(1.5))
	assert.Equal(t, 2, q.Level(3))
	assert.Equal(t, 3, q.Level(4))
	assert.Equal(t, 4, q.Level(9))

	assert.Equal(t, Quantiles{}, ComputeQuantiles(nil))
}
