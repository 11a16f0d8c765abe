package progress

// Stats are the aggregate values achievement predicates are evaluated
// against. They describe the user's state after the triggering session has
// been applied.
type Stats struct {
	TotalReps       int // all-time repetitions, including the new session
	BestSessionReps int
	CurrentStreak   int
	RepsToday       int
	SessionsToday   int
}

// Achievement is one static catalog entry. Predicates are pure functions of
// Stats; unlocking is monotonic and handled by Apply.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Unlocked    func(Stats) bool `json:"-"`
}

// Catalog is the fixed achievement set, evaluated in this order so unlock
// sequences are deterministic.
var Catalog = []Achievement{
	{
		ID:          "first_blood",
		Name:        "First Blood",
		Description: "Complete your first repetition",
		Icon:        "🩸",
		Unlocked:    func(s Stats) bool { return s.TotalReps >= 1 },
	},
	{
		ID:          "century_club",
		Name:        "Century Club",
		Description: "Reach 100 repetitions all-time",
		Icon:        "💯",
		Unlocked:    func(s Stats) bool { return s.TotalReps >= 100 },
	},
	{
		ID:          "iron_streak",
		Name:        "Iron Streak",
		Description: "Train 5 days in a row",
		Icon:        "🔥",
		Unlocked:    func(s Stats) bool { return s.CurrentStreak >= 5 },
	},
	{
		ID:          "consistency_hero",
		Name:        "Consistency Hero",
		Description: "Train 30 days in a row",
		Icon:        "🏆",
		Unlocked:    func(s Stats) bool { return s.CurrentStreak >= 30 },
	},
	{
		ID:          "daily_grind",
		Name:        "Daily Grind",
		Description: "Do 20 repetitions in one day",
		Icon:        "⚙️",
		Unlocked:    func(s Stats) bool { return s.RepsToday >= 20 },
	},
	{
		ID:          "tier_beginner",
		Name:        "Beginner Tier",
		Description: "15 reps in a session, a 3-day streak and 100 reps all-time",
		Icon:        "🥉",
		Unlocked: func(s Stats) bool {
			return s.BestSessionReps >= 15 && s.CurrentStreak >= 3 && s.TotalReps >= 100
		},
	},
	{
		ID:          "tier_intermediate",
		Name:        "Intermediate Tier",
		Description: "30 reps in a session, 3 sessions in a day and 500 reps all-time",
		Icon:        "🥈",
		Unlocked: func(s Stats) bool {
			return s.BestSessionReps >= 30 && s.SessionsToday >= 3 && s.TotalReps >= 500
		},
	},
	{
		ID:          "tier_advanced",
		Name:        "Advanced Tier",
		Description: "50 reps in a session, a 7-day streak and 1000 reps all-time",
		Icon:        "🥇",
		Unlocked: func(s Stats) bool {
			return s.BestSessionReps >= 50 && s.CurrentStreak >= 7 && s.TotalReps >= 1000
		},
	},
}

// ByID returns the catalog entry for id, or nil.
func ByID(id string) *Achievement {
	for i := range Catalog {
		if Catalog[i].ID == id {
			return &Catalog[i]
		}
	}
	return nil
}
