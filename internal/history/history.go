// Package history aggregates saved session results into per-day totals and
// range summaries for the dashboard charts.
package history

import (
	"sort"
	"time"

	"github.com/nattapongd/rehab-hub/internal/db"
)

// caloriesPerRep is the estimate the dashboard has always used.
const caloriesPerRep = 0.5

// DefaultRangeDays is the trailing window applied when no range is given.
const DefaultRangeDays = 7

// DayStat is one calendar day's totals.
type DayStat struct {
	Date          string  `json:"date"`
	TotalReps     int     `json:"totalReps"`
	TotalTime     int     `json:"totalTime"`
	TotalCalories float64 `json:"totalCalories"`
}

// Summary rolls a whole range up into one row.
type Summary struct {
	TotalReps     int     `json:"totalReps"`
	TotalTime     int     `json:"totalTime"`
	TotalCalories float64 `json:"totalCalories"`
	SessionCount  int     `json:"sessionCount"`
}

// Calories returns the estimated calorie burn for a repetition count.
func Calories(reps int) float64 {
	return float64(reps) * caloriesPerRep
}

// Aggregate groups results by calendar day, ascending by date, and computes
// the range summary. Empty input yields a zero summary and no day rows.
// Results are pure reads; nothing is mutated.
func Aggregate(results []*db.SessionResult) (Summary, []DayStat) {
	var sum Summary
	byDay := make(map[string]*DayStat)

	for _, r := range results {
		sum.TotalReps += r.Reps
		sum.TotalTime += r.DurationSeconds
		sum.SessionCount++

		date := r.RecordedAt.Format("2006-01-02")
		d, ok := byDay[date]
		if !ok {
			d = &DayStat{Date: date}
			byDay[date] = d
		}
		d.TotalReps += r.Reps
		d.TotalTime += r.DurationSeconds
	}
	sum.TotalCalories = Calories(sum.TotalReps)

	days := make([]DayStat, 0, len(byDay))
	for _, d := range byDay {
		d.TotalCalories = Calories(d.TotalReps)
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return sum, days
}

// DefaultRange returns the trailing-7-day window ending just after now:
// start is the beginning of the day six days ago, end the beginning of
// tomorrow, so today's sessions are included.
func DefaultRange(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -(DefaultRangeDays - 1)), today.AddDate(0, 0, 1)
}
