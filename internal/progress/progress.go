// Package progress turns saved session results into experience points,
// levels, streaks and achievement unlocks.
package progress

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nattapongd/rehab-hub/internal/db"
	"github.com/nattapongd/rehab-hub/internal/events"
)

const xpPerRep = 10

// DateLayout is the calendar-date form used for streak comparisons. Streaks
// care about days, never time of day.
const DateLayout = "2006-01-02"

// LevelForXP computes the level for a given XP total. The formula is
// monotonic, so levels never go down.
func LevelForXP(xp int) int {
	return int(math.Sqrt(float64(xp)/100)) + 1
}

// Outcome is what a single saved session earned.
type Outcome struct {
	XPGained      int
	NewLevel      int
	LevelUp       bool
	NewlyUnlocked []Achievement
}

func dateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// dayDelta returns the whole-day distance from the profile's last active
// date to today. ok is false when the profile was never active.
func dayDelta(lastActive string, today time.Time) (int, bool) {
	if lastActive == "" {
		return 0, false
	}
	last, err := time.ParseInLocation(DateLayout, lastActive, today.Location())
	if err != nil {
		return 0, false
	}
	day, _ := time.ParseInLocation(DateLayout, dateOf(today), today.Location())
	// Round so a DST shift cannot turn a 1-day gap into 0 or 2.
	return int(math.Round(day.Sub(last).Hours() / 24)), true
}

// Apply mutates profile in place with the effects of the new result and
// returns what was earned. history is every prior result for the user, NOT
// including the new one. Achievement unlocking is idempotent: entries
// already present in profile.Unlocked are never re-issued.
//
// A result dated before the profile's last active day (device clock skew)
// is treated like a same-day session: the streak is untouched and the last
// active date never moves backwards.
func Apply(profile *db.Profile, history []*db.SessionResult, result *db.SessionResult, today time.Time) Outcome {
	out := Outcome{XPGained: result.Reps * xpPerRep}

	profile.XP += out.XPGained
	out.NewLevel = LevelForXP(profile.XP)
	out.LevelUp = out.NewLevel > profile.Level
	profile.Level = out.NewLevel

	delta, active := dayDelta(profile.LastActiveDate, today)
	switch {
	case !active:
		profile.CurrentStreak = 1
	case delta == 1:
		profile.CurrentStreak++
	case delta > 1:
		profile.CurrentStreak = 1
	}
	if !active || delta >= 0 {
		profile.LastActiveDate = dateOf(today)
	}

	if result.Reps > profile.BestSessionReps {
		profile.BestSessionReps = result.Reps
	}

	todayStr := dateOf(today)
	stats := Stats{
		TotalReps:       result.Reps,
		BestSessionReps: profile.BestSessionReps,
		CurrentStreak:   profile.CurrentStreak,
		RepsToday:       result.Reps,
		SessionsToday:   1,
	}
	for _, r := range history {
		stats.TotalReps += r.Reps
		if dateOf(r.RecordedAt) == todayStr {
			stats.RepsToday += r.Reps
			stats.SessionsToday++
		}
	}

	for _, a := range Catalog {
		if profile.HasUnlocked(a.ID) {
			continue
		}
		if a.Unlocked(stats) {
			profile.Unlocked = append(profile.Unlocked, a.ID)
			out.NewlyUnlocked = append(out.NewlyUnlocked, a)
		}
	}
	return out
}

// Engine applies results against the store, serializing updates per user so
// concurrent saves cannot lose XP or double-apply streaks. Saves for
// different users run in parallel.
type Engine struct {
	store       *db.DB
	broadcaster events.Broadcaster
	logger      *slog.Logger

	mu    sync.Mutex
	users map[string]*sync.Mutex

	now func() time.Time
}

func NewEngine(store *db.DB, broadcaster events.Broadcaster, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		users:       make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

// SetNow replaces the time source. Used in tests only.
func (e *Engine) SetNow(fn func() time.Time) { e.now = fn }

func (e *Engine) userLock(username string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.users[username]
	if !ok {
		l = &sync.Mutex{}
		e.users[username] = l
	}
	return l
}

// SaveSession records a completed session for username and returns the
// resulting progress delta. Nothing is persisted if the store fails partway:
// all mutations happen on an in-memory profile copy and are committed in one
// transaction.
func (e *Engine) SaveSession(username string, reps, durationSeconds int) (*Outcome, error) {
	if reps < 0 || durationSeconds < 0 {
		return nil, fmt.Errorf("invalid session: reps=%d duration=%d", reps, durationSeconds)
	}

	lock := e.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	profile, err := e.store.GetProfile(username)
	if errors.Is(err, db.ErrNotFound) {
		profile = db.NewProfile(username)
	} else if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	history, err := e.store.ResultsByUser(username)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	now := e.now()
	result := &db.SessionResult{
		Username:        username,
		Reps:            reps,
		DurationSeconds: durationSeconds,
		RecordedAt:      now,
	}

	out := Apply(profile, history, result, now)

	ids := make([]string, 0, len(out.NewlyUnlocked))
	for _, a := range out.NewlyUnlocked {
		ids = append(ids, a.ID)
	}
	if err := e.store.SaveOutcome(result, profile, ids); err != nil {
		return nil, fmt.Errorf("save outcome: %w", err)
	}

	e.logger.Debug("session saved",
		"user", username, "reps", reps, "xp", out.XPGained,
		"level", out.NewLevel, "unlocked", len(out.NewlyUnlocked))
	e.notify(username, out)
	return &out, nil
}

func (e *Engine) notify(username string, out Outcome) {
	if e.broadcaster == nil {
		return
	}
	if out.LevelUp {
		e.broadcaster.Broadcast(events.Event{
			Type:     "levelup",
			Username: username,
			Level:    out.NewLevel,
		})
	}
	for _, a := range out.NewlyUnlocked {
		e.broadcaster.Broadcast(events.Event{
			Type:        "achievement",
			Username:    username,
			Achievement: a.ID,
			Name:        a.Name,
			Icon:        a.Icon,
		})
	}
}
