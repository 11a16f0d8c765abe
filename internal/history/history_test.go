package history_test

import (
	"testing"
	"time"

	"github.com/nattapongd/rehab-hub/internal/db"
	"github.com/nattapongd/rehab-hub/internal/history"
)

func result(reps, duration int, at time.Time) *db.SessionResult {
	return &db.SessionResult{Username: "somchai", Reps: reps, DurationSeconds: duration, RecordedAt: at}
}

func TestAggregateEmpty(t *testing.T) {
	sum, days := history.Aggregate(nil)
	if sum != (history.Summary{}) {
		t.Errorf("summary: %+v", sum)
	}
	if len(days) != 0 {
		t.Errorf("days: %+v", days)
	}
}

func TestAggregateGroupsSameDay(t *testing.T) {
	day := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	results := []*db.SessionResult{
		result(5, 60, day),
		result(10, 120, day.Add(2*time.Hour)),
		result(15, 180, day.Add(5*time.Hour)),
	}

	sum, days := history.Aggregate(results)
	if len(days) != 1 {
		t.Fatalf("expected 1 day entry, got %d", len(days))
	}
	if days[0].TotalReps != 30 {
		t.Errorf("day reps: got %d want 30", days[0].TotalReps)
	}
	if days[0].TotalTime != 360 {
		t.Errorf("day time: got %d want 360", days[0].TotalTime)
	}
	if days[0].TotalCalories != 15 {
		t.Errorf("day calories: got %v want 15", days[0].TotalCalories)
	}
	if sum.SessionCount != 3 || sum.TotalReps != 30 {
		t.Errorf("summary: %+v", sum)
	}
}

func TestAggregateSortsDaysAscending(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	results := []*db.SessionResult{
		result(3, 30, base.AddDate(0, 0, 2)),
		result(1, 10, base),
		result(2, 20, base.AddDate(0, 0, 1)),
	}

	_, days := history.Aggregate(results)
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	want := []string{"2026-03-14", "2026-03-15", "2026-03-16"}
	for i, d := range days {
		if d.Date != want[i] {
			t.Errorf("days[%d]: got %s want %s", i, d.Date, want[i])
		}
	}
}

func TestCalories(t *testing.T) {
	if got := history.Calories(7); got != 3.5 {
		t.Errorf("Calories(7) = %v, want 3.5", got)
	}
}

func TestDefaultRange(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	start, end := history.DefaultRange(now)

	if got := start.Format("2006-01-02"); got != "2026-03-08" {
		t.Errorf("start: got %s want 2026-03-08", got)
	}
	if got := end.Format("2006-01-02"); got != "2026-03-15" {
		t.Errorf("end: got %s want 2026-03-15", got)
	}
	// A session later today still falls inside the window.
	tonight := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	if !tonight.Before(end) || tonight.Before(start) {
		t.Error("today's sessions fall outside the default range")
	}
}
