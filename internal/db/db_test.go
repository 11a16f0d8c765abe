package db_test

import (
	"errors"
	"testing"
	"time"

	"github.com/nattapongd/rehab-hub/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return store
}

func TestMigrate(t *testing.T) {
	openTestDB(t)
}

func TestAccountCRUD(t *testing.T) {
	store := openTestDB(t)

	acc, err := store.CreateAccount("somchai", "somchai@example.com", "hash", "http://a/b.png")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := store.GetAccountByUsername("somchai")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.Email != "somchai@example.com" {
		t.Errorf("email: got %q", got.Email)
	}

	if _, err := store.GetAccountByEmail("somchai@example.com"); err != nil {
		t.Fatalf("get by email: %v", err)
	}

	// Login may be username or email.
	for _, login := range []string{"somchai", "somchai@example.com"} {
		if _, err := store.GetAccountByLogin(login); err != nil {
			t.Errorf("get by login %q: %v", login, err)
		}
	}

	if _, err := store.GetAccountByUsername("nobody"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountUniqueness(t *testing.T) {
	store := openTestDB(t)
	store.CreateAccount("somchai", "somchai@example.com", "hash", "")

	if _, err := store.CreateAccount("somchai", "other@example.com", "hash", ""); !errors.Is(err, db.ErrConflict) {
		t.Errorf("duplicate username: expected ErrConflict, got %v", err)
	}
	if _, err := store.CreateAccount("other", "somchai@example.com", "hash", ""); !errors.Is(err, db.ErrConflict) {
		t.Errorf("duplicate email: expected ErrConflict, got %v", err)
	}
}

func TestUpdateAccountAvatar(t *testing.T) {
	store := openTestDB(t)
	store.CreateAccount("somchai", "somchai@example.com", "hash", "")

	if err := store.UpdateAccountAvatar("somchai", "/uploads/avatar-1.png"); err != nil {
		t.Fatal(err)
	}
	acc, _ := store.GetAccountByUsername("somchai")
	if acc.Avatar != "/uploads/avatar-1.png" {
		t.Errorf("avatar: got %q", acc.Avatar)
	}

	if err := store.UpdateAccountAvatar("nobody", "x"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshTokens(t *testing.T) {
	store := openTestDB(t)
	acc, _ := store.CreateAccount("somchai", "somchai@example.com", "hash", "")

	if err := store.InsertRefreshToken("tok1", acc.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	rt, err := store.GetRefreshToken("tok1")
	if err != nil {
		t.Fatal(err)
	}
	if rt.AccountID != acc.ID {
		t.Errorf("account id: got %q", rt.AccountID)
	}

	if err := store.DeleteRefreshToken("tok1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetRefreshToken("tok1"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPruneExpiredRefreshTokens(t *testing.T) {
	store := openTestDB(t)
	acc, _ := store.CreateAccount("somchai", "somchai@example.com", "hash", "")

	store.InsertRefreshToken("live", acc.ID, time.Now().Add(time.Hour))
	store.InsertRefreshToken("dead", acc.ID, time.Now().Add(-time.Hour))

	if err := store.PruneExpiredRefreshTokens(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetRefreshToken("live"); err != nil {
		t.Errorf("live token pruned: %v", err)
	}
	if _, err := store.GetRefreshToken("dead"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected dead token pruned, got %v", err)
	}
}

func TestSaveOutcomeAndQueries(t *testing.T) {
	store := openTestDB(t)

	p := db.NewProfile("somchai")
	p.XP = 150
	p.Level = 2
	p.CurrentStreak = 1
	p.LastActiveDate = "2026-03-14"
	p.BestSessionReps = 15

	res := &db.SessionResult{
		Username:        "somchai",
		Reps:            15,
		DurationSeconds: 300,
		RecordedAt:      time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	if err := store.SaveOutcome(res, p, []string{"first_blood"}); err != nil {
		t.Fatalf("save outcome: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected generated result id")
	}

	got, err := store.GetProfile("somchai")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.XP != 150 || got.Level != 2 || got.BestSessionReps != 15 {
		t.Errorf("profile: %+v", got)
	}
	if len(got.Unlocked) != 1 || got.Unlocked[0] != "first_blood" {
		t.Errorf("unlocked: %v", got.Unlocked)
	}

	results, err := store.ResultsByUser("somchai")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Reps != 15 {
		t.Errorf("results: %+v", results)
	}
}

func TestSaveOutcomePreservesUnlockOrder(t *testing.T) {
	store := openTestDB(t)

	p := db.NewProfile("somchai")
	p.LastActiveDate = "2026-03-14"
	res := func(reps int) *db.SessionResult {
		return &db.SessionResult{Username: "somchai", Reps: reps, RecordedAt: time.Now()}
	}

	if err := store.SaveOutcome(res(1), p, []string{"first_blood", "daily_grind"}); err != nil {
		t.Fatal(err)
	}
	// Re-unlocking is a no-op; new ids append after existing ones.
	if err := store.SaveOutcome(res(2), p, []string{"first_blood", "century_club"}); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetProfile("somchai")
	want := []string{"first_blood", "daily_grind", "century_club"}
	if len(got.Unlocked) != len(want) {
		t.Fatalf("unlocked: %v", got.Unlocked)
	}
	for i := range want {
		if got.Unlocked[i] != want[i] {
			t.Errorf("unlocked[%d]: got %q want %q", i, got.Unlocked[i], want[i])
		}
	}
}

func TestResultsByUserRange(t *testing.T) {
	store := openTestDB(t)
	p := db.NewProfile("somchai")

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := &db.SessionResult{Username: "somchai", Reps: i + 1, RecordedAt: base.AddDate(0, 0, i)}
		if err := store.SaveOutcome(r, p, nil); err != nil {
			t.Fatal(err)
		}
	}

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 4)
	results, err := store.ResultsByUserRange("somchai", start, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results in range, got %d", len(results))
	}
	if results[0].Reps != 2 || results[2].Reps != 4 {
		t.Errorf("range order: %+v", results)
	}

	recent, err := store.RecentResults("somchai", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Reps != 5 {
		t.Errorf("recent: %+v", recent)
	}
}
