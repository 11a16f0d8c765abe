package db

import "time"

type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Avatar       string
	CreatedAt    time.Time
}

type RefreshToken struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionResult is one completed training session. Immutable once written.
type SessionResult struct {
	ID              string
	Username        string
	Reps            int
	DurationSeconds int
	RecordedAt      time.Time
}

// Profile holds a user's progression state. Mutated only through SaveOutcome
// so a store failure never leaves a half-applied update.
type Profile struct {
	Username        string
	XP              int
	Level           int
	CurrentStreak   int
	LastActiveDate  string // "2006-01-02", empty if never active
	BestSessionReps int
	Unlocked        []string // achievement ids, insertion order
}

// NewProfile returns the starting profile for a user with no history.
func NewProfile(username string) *Profile {
	return &Profile{Username: username, Level: 1}
}

// HasUnlocked reports whether the achievement id is already held.
func (p *Profile) HasUnlocked(id string) bool {
	for _, u := range p.Unlocked {
		if u == id {
			return true
		}
	}
	return false
}
