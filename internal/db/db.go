package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("conflict")
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			avatar        TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create accounts: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token      TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create refresh_tokens: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id               TEXT PRIMARY KEY,
			username         TEXT NOT NULL,
			reps             INTEGER NOT NULL DEFAULT 0,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			recorded_at      INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create results: %w", err)
	}
	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_results_user_time ON results(username, recorded_at)`); err != nil {
		return fmt.Errorf("index results: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			username          TEXT PRIMARY KEY,
			xp                INTEGER NOT NULL DEFAULT 0,
			level             INTEGER NOT NULL DEFAULT 1,
			current_streak    INTEGER NOT NULL DEFAULT 0,
			last_active_date  TEXT NOT NULL DEFAULT '',
			best_session_reps INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create profiles: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS achievements (
			username       TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			unlocked_at    INTEGER NOT NULL,
			seq            INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (username, achievement_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("create achievements: %w", err)
	}

	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- accounts ----

func (d *DB) CreateAccount(username, email, passwordHash, avatar string) (*Account, error) {
	acc := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Avatar:       avatar,
		CreatedAt:    time.Now(),
	}
	_, err := d.sql.Exec(`
		INSERT INTO accounts (id, username, email, password_hash, avatar, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.Email, acc.PasswordHash, acc.Avatar, acc.CreatedAt.UnixMilli())
	if isUniqueConstraintError(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

func (d *DB) scanAccount(row *sql.Row) (*Account, error) {
	var acc Account
	var createdAt int64
	err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.Avatar, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	acc.CreatedAt = time.UnixMilli(createdAt)
	return &acc, nil
}

func (d *DB) GetAccountByID(id string) (*Account, error) {
	row := d.sql.QueryRow(`
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts WHERE id = ?`, id)
	return d.scanAccount(row)
}

func (d *DB) GetAccountByUsername(username string) (*Account, error) {
	row := d.sql.QueryRow(`
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts WHERE username = ?`, username)
	return d.scanAccount(row)
}

func (d *DB) GetAccountByEmail(email string) (*Account, error) {
	row := d.sql.QueryRow(`
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts WHERE email = ?`, email)
	return d.scanAccount(row)
}

// GetAccountByLogin resolves a login form value that may be either a
// username or an email address.
func (d *DB) GetAccountByLogin(login string) (*Account, error) {
	row := d.sql.QueryRow(`
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts WHERE username = ? OR email = ?`, login, login)
	return d.scanAccount(row)
}

func (d *DB) UpdateAccountPassword(id, passwordHash string) error {
	_, err := d.sql.Exec(`UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, id)
	return err
}

func (d *DB) UpdateAccountAvatar(username, avatar string) error {
	res, err := d.sql.Exec(`UPDATE accounts SET avatar = ? WHERE username = ?`, avatar, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- refresh tokens ----

func (d *DB) InsertRefreshToken(token, accountID string, expiresAt time.Time) error {
	_, err := d.sql.Exec(`
		INSERT INTO refresh_tokens (token, account_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		token, accountID, expiresAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (d *DB) GetRefreshToken(token string) (*RefreshToken, error) {
	row := d.sql.QueryRow(`
		SELECT token, account_id, expires_at, created_at
		FROM refresh_tokens WHERE token = ?`, token)
	var rt RefreshToken
	var exp, created int64
	err := row.Scan(&rt.Token, &rt.AccountID, &exp, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rt.ExpiresAt = time.UnixMilli(exp)
	rt.CreatedAt = time.UnixMilli(created)
	return &rt, nil
}

func (d *DB) DeleteRefreshToken(token string) error {
	_, err := d.sql.Exec(`DELETE FROM refresh_tokens WHERE token = ?`, token)
	return err
}

func (d *DB) DeleteRefreshTokensByAccount(accountID string) error {
	_, err := d.sql.Exec(`DELETE FROM refresh_tokens WHERE account_id = ?`, accountID)
	return err
}

func (d *DB) PruneExpiredRefreshTokens() error {
	_, err := d.sql.Exec(`DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UnixMilli())
	return err
}

// ---- results ----

func scanResults(rows *sql.Rows) ([]*SessionResult, error) {
	defer rows.Close()
	var out []*SessionResult
	for rows.Next() {
		var r SessionResult
		var recorded int64
		if err := rows.Scan(&r.ID, &r.Username, &r.Reps, &r.DurationSeconds, &recorded); err != nil {
			return nil, err
		}
		r.RecordedAt = time.UnixMilli(recorded)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ResultsByUser returns all of a user's results ordered oldest first.
func (d *DB) ResultsByUser(username string) ([]*SessionResult, error) {
	rows, err := d.sql.Query(`
		SELECT id, username, reps, duration_seconds, recorded_at
		FROM results WHERE username = ? ORDER BY recorded_at ASC`, username)
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

// ResultsByUserRange returns results with recorded_at in [start, end),
// ordered oldest first.
func (d *DB) ResultsByUserRange(username string, start, end time.Time) ([]*SessionResult, error) {
	rows, err := d.sql.Query(`
		SELECT id, username, reps, duration_seconds, recorded_at
		FROM results WHERE username = ? AND recorded_at >= ? AND recorded_at < ?
		ORDER BY recorded_at ASC`, username, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

// RecentResults returns the newest results for a user, newest first.
func (d *DB) RecentResults(username string, limit int) ([]*SessionResult, error) {
	rows, err := d.sql.Query(`
		SELECT id, username, reps, duration_seconds, recorded_at
		FROM results WHERE username = ? ORDER BY recorded_at DESC LIMIT ?`, username, limit)
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

// ---- profiles ----

// GetProfile loads a profile with its unlocked achievements in unlock order.
// Returns ErrNotFound if the user has never saved a session.
func (d *DB) GetProfile(username string) (*Profile, error) {
	row := d.sql.QueryRow(`
		SELECT username, xp, level, current_streak, last_active_date, best_session_reps
		FROM profiles WHERE username = ?`, username)
	var p Profile
	err := row.Scan(&p.Username, &p.XP, &p.Level, &p.CurrentStreak, &p.LastActiveDate, &p.BestSessionReps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.sql.Query(`
		SELECT achievement_id FROM achievements
		WHERE username = ? ORDER BY seq ASC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.Unlocked = append(p.Unlocked, id)
	}
	return &p, rows.Err()
}

// SaveOutcome persists a completed session and the updated profile in a
// single transaction: the new result row, the profile fields, and any newly
// unlocked achievements. Either everything commits or nothing does.
func (d *DB) SaveOutcome(result *SessionResult, p *Profile, newUnlocks []string) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if _, err := tx.Exec(`
		INSERT INTO results (id, username, reps, duration_seconds, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.Username, result.Reps, result.DurationSeconds,
		result.RecordedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO profiles (username, xp, level, current_streak, last_active_date, best_session_reps)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			xp = excluded.xp,
			level = excluded.level,
			current_streak = excluded.current_streak,
			last_active_date = excluded.last_active_date,
			best_session_reps = excluded.best_session_reps`,
		p.Username, p.XP, p.Level, p.CurrentStreak, p.LastActiveDate, p.BestSessionReps); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, id := range newUnlocks {
		if _, err := tx.Exec(`
			INSERT INTO achievements (username, achievement_id, unlocked_at, seq)
			VALUES (?, ?, ?, COALESCE((SELECT MAX(seq) FROM achievements WHERE username = ?), 0) + 1)
			ON CONFLICT(username, achievement_id) DO NOTHING`,
			p.Username, id, now, p.Username); err != nil {
			return fmt.Errorf("insert achievement: %w", err)
		}
	}

	return tx.Commit()
}
