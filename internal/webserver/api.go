package webserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nattapongd/rehab-hub/internal/db"
	"github.com/nattapongd/rehab-hub/internal/events"
	"github.com/nattapongd/rehab-hub/internal/history"
	"github.com/nattapongd/rehab-hub/internal/progress"
)

type achievementView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func achievementViews(ids []string) []achievementView {
	out := make([]achievementView, 0, len(ids))
	for _, id := range ids {
		if a := progress.ByID(id); a != nil {
			out = append(out, achievementView{ID: a.ID, Name: a.Name, Description: a.Description, Icon: a.Icon})
		}
	}
	return out
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r)
	acc, err := s.store.GetAccountByUsername(username)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("User not found"))
		return
	}
	if err != nil {
		s.storeError(w, "load account", err)
		return
	}

	profile, err := s.store.GetProfile(username)
	if errors.Is(err, db.ErrNotFound) {
		profile = db.NewProfile(username)
	} else if err != nil {
		s.storeError(w, "load profile", err)
		return
	}

	avatar := acc.Avatar
	if avatar == "" {
		avatar = fmt.Sprintf(avatarURLFormat, acc.Username)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":        acc.Username,
		"email":           acc.Email,
		"avatar":          avatar,
		"xp":              profile.XP,
		"level":           profile.Level,
		"currentStreak":   profile.CurrentStreak,
		"bestSessionReps": profile.BestSessionReps,
		"achievements":    achievementViews(profile.Unlocked),
	})
}

func (s *Server) handleAvatarURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AvatarURL string `json:"avatarUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AvatarURL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("avatarUrl is required"))
		return
	}

	username := usernameFrom(r)
	if err := s.store.UpdateAccountAvatar(username, body.AvatarURL); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("User not found"))
			return
		}
		s.storeError(w, "update avatar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "avatar": body.AvatarURL})
}

// maxAvatarBytes caps uploaded avatar images at 5 MB.
const maxAvatarBytes = 5 << 20

func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("an image file is required"))
		return
	}
	defer file.Close()

	ext, err := imageExtension(file, header)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("only image files are supported"))
		return
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0755); err != nil {
		s.storeError(w, "uploads dir", err)
		return
	}
	name := fmt.Sprintf("avatar-%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	dst, err := os.Create(filepath.Join(s.cfg.UploadsDir, name))
	if err != nil {
		s.storeError(w, "create upload", err)
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		s.storeError(w, "write upload", err)
		return
	}

	fileURL := "/uploads/" + name
	username := usernameFrom(r)
	if err := s.store.UpdateAccountAvatar(username, fileURL); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("User not found"))
			return
		}
		s.storeError(w, "update avatar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "avatar": fileURL})
}

// imageExtension sniffs the upload and rejects non-images.
func imageExtension(file multipart.File, header *multipart.FileHeader) (string, error) {
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	kind := http.DetectContentType(buf[:n])
	if !strings.HasPrefix(kind, "image/") {
		return "", errors.New("not an image")
	}
	if ext := filepath.Ext(header.Filename); ext != "" {
		return ext, nil
	}
	return "." + strings.TrimPrefix(kind, "image/"), nil
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time int `json:"time"`
		Rep  int `json:"rep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
		return
	}
	if body.Rep < 0 || body.Time < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("rep and time must not be negative"))
		return
	}

	username := usernameFrom(r)
	out, err := s.engine.SaveSession(username, body.Rep, body.Time)
	if err != nil {
		s.storeError(w, "save session", err)
		return
	}

	newAchievements := make([]achievementView, 0, len(out.NewlyUnlocked))
	for _, a := range out.NewlyUnlocked {
		newAchievements = append(newAchievements, achievementView{
			ID: a.ID, Name: a.Name, Description: a.Description, Icon: a.Icon,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"xpGained":        out.XPGained,
		"newLevel":        out.NewLevel,
		"levelUp":         out.LevelUp,
		"newAchievements": newAchievements,
	})
}

type resultView struct {
	ID       string  `json:"id"`
	Reps     int     `json:"rep"`
	Time     int     `json:"time"`
	Calories float64 `json:"calories"`
	Date     string  `json:"date"`
}

func resultViews(results []*db.SessionResult) []resultView {
	out := make([]resultView, 0, len(results))
	for _, r := range results {
		out = append(out, resultView{
			ID:       r.ID,
			Reps:     r.Reps,
			Time:     r.DurationSeconds,
			Calories: history.Calories(r.Reps),
			Date:     r.RecordedAt.Format(time.RFC3339),
		})
	}
	return out
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.RecentResults(usernameFrom(r), 100)
	if err != nil {
		s.storeError(w, "load results", err)
		return
	}
	writeJSON(w, http.StatusOK, resultViews(results))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start, end := history.DefaultRange(now)

	q := r.URL.Query()
	if v := q.Get("startDate"); v != "" {
		t, err := time.ParseInLocation(progress.DateLayout, v, now.Location())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid startDate"))
			return
		}
		start = t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.ParseInLocation(progress.DateLayout, v, now.Location())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid endDate"))
			return
		}
		end = t.AddDate(0, 0, 1) // endDate is inclusive
	}

	username := usernameFrom(r)
	results, err := s.store.ResultsByUserRange(username, start, end)
	if err != nil {
		s.storeError(w, "load results", err)
		return
	}
	summary, days := history.Aggregate(results)

	recent, err := s.store.RecentResults(username, 10)
	if err != nil {
		s.storeError(w, "load recent results", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"summary":        summary,
		"dailyStats":     days,
		"recentSessions": resultViews(recent),
	})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", 500)
		return
	}

	ch := make(chan events.Event, 16)
	s.addClient(ch)
	defer s.removeClient(ch)

	writeSSE(w, flusher, events.Event{Type: "snapshot"})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			writeSSE(w, flusher, e)
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, f http.Flusher, e events.Event) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}
