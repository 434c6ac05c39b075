// Package progress aggregates log entries into per-day totals, goal
// progress and streaks for one definition.
package progress

import (
	"sort"
	"strconv"
	"time"

	"cadence/internal/domain"
)

const dayLayout = "2006-01-02"

type Period struct {
	Value    float64 `json:"value"`
	Goal     int     `json:"goal"`
	Pct      float64 `json:"pct"`
	Fraction string  `json:"fraction"`
}

type Quantiles struct {
	Q25 float64 `json:"q25"`
	Q50 float64 `json:"q50"`
	Q75 float64 `json:"q75"`
}

type Report struct {
	DefinitionID int64              `json:"definition_id"`
	Today        string             `json:"today"`
	Daily        Period             `json:"daily"`
	Weekly       Period             `json:"weekly"`
	Monthly      Period             `json:"monthly"`
	Yearly       Period             `json:"yearly"`
	Streak       int                `json:"streak"`
	Totals       map[string]float64 `json:"totals"`
	Quantiles    Quantiles          `json:"quantiles"`
}

// DailyTotals sums entry amounts by local date. A null amount counts as
// defaultAmount, or 0 when that is unset too.
func DailyTotals(entries []domain.LogEntry, defaultAmount *float64, loc *time.Location) map[string]float64 {
	fallback := 0.0
	if defaultAmount != nil {
		fallback = *defaultAmount
	}
	totals := map[string]float64{}
	for _, e := range entries {
		add := fallback
		if e.Amount != nil {
			add = *e.Amount
		}
		totals[e.CreatedAt.In(loc).Format(dayLayout)] += add
	}
	return totals
}

func addDays(day string, n int) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, n).Format(dayLayout)
}

func daysBetween(from, to string) int {
	a, errA := time.Parse(dayLayout, from)
	b, errB := time.Parse(dayLayout, to)
	if errA != nil || errB != nil {
		return 0
	}
	return int(b.Sub(a) / (24 * time.Hour))
}

// Streak counts consecutive active days ending today. When today has no
// activity it returns minus the days since the last active day, or 0 if
// there never was one.
func Streak(totals map[string]float64, today string) int {
	n := 0
	for d := today; totals[d] > 0; d = addDays(d, -1) {
		n++
	}
	if n > 0 {
		return n
	}
	last := ""
	for day, v := range totals {
		if day <= today && v > 0 && day > last {
			last = day
		}
	}
	if last == "" {
		return 0
	}
	if since := daysBetween(last, today); since >= 1 {
		return -since
	}
	return 0
}

func sumRange(totals map[string]float64, from, to string) float64 {
	sum := 0.0
	for day, v := range totals {
		if day >= from && day <= to {
			sum += v
		}
	}
	return sum
}

func period(value float64, goal int) Period {
	if goal < 0 {
		goal = 0
	}
	p := Period{Value: value, Goal: goal, Fraction: formatAmount(value)}
	if goal > 0 {
		pct := value / float64(goal)
		if pct > 1 {
			pct = 1
		}
		if pct < 0 {
			pct = 0
		}
		p.Pct = pct
		p.Fraction = formatAmount(value) + "/" + strconv.Itoa(goal)
	}
	return p
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ComputeQuantiles picks the 25th, 50th and 75th percentile of the positive
// daily totals.
func ComputeQuantiles(totals map[string]float64) Quantiles {
	var vals []float64
	for _, v := range totals {
		if v > 0 {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return Quantiles{}
	}
	sort.Float64s(vals)
	at := func(p float64) float64 { return vals[int(float64(len(vals)-1)*p)] }
	return Quantiles{Q25: at(0.25), Q50: at(0.5), Q75: at(0.75)}
}

// Level buckets a daily total into 0..4 for heatmap rendering.
func (q Quantiles) Level(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v <= q.Q25:
		return 1
	case v <= q.Q50:
		return 2
	case v <= q.Q75:
		return 3
	default:
		return 4
	}
}

// Compute builds the progress report for def as of now, in now's location.
// Weeks start on Sunday.
func Compute(def domain.TaskDefinition, entries []domain.LogEntry, now time.Time) Report {
	totals := DailyTotals(entries, def.DefaultAmount, now.Location())
	today := now.Format(dayLayout)
	y, m, _ := now.Date()
	weekStart := addDays(today, -int(now.Weekday()))
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).Format(dayLayout)
	yearStart := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).Format(dayLayout)

	return Report{
		DefinitionID: def.ID,
		Today:        today,
		Daily:        period(totals[today], def.Goals.Daily),
		Weekly:       period(sumRange(totals, weekStart, today), def.Goals.Weekly),
		Monthly:      period(sumRange(totals, monthStart, today), def.Goals.Monthly),
		Yearly:       period(sumRange(totals, yearStart, today), def.Goals.Yearly),
		Streak:       Streak(totals, today),
		Totals:       totals,
		Quantiles:    ComputeQuantiles(totals),
	}
}
