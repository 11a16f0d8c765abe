package applog_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nattapongd/rehab-hub/internal/applog"
)

func TestDailyRotatorWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	defer r.Close()

	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	r.SetNow(func() time.Time { return fixed })

	if _, err := r.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "rehab-hub-2026-03-14.log"))
	if err != nil {
		t.Fatalf("expected dated log file: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("got %q", data)
	}
}

func TestDailyRotatorRotatesAcrossDays(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	defer r.Close()

	day := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	r.SetNow(func() time.Time { return day })
	r.Write([]byte("a\n"))

	day = day.Add(2 * time.Minute)
	r.Write([]byte("b\n"))

	matches, _ := filepath.Glob(filepath.Join(dir, "rehab-hub-*.log"))
	if len(matches) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(matches), matches)
	}
}

func TestDailyRotatorPrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 2)
	defer r.Close()

	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		d := day.AddDate(0, 0, i)
		r.SetNow(func() time.Time { return d })
		r.Write([]byte("x\n"))
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "rehab-hub-*.log"))
	if len(matches) != 2 {
		t.Fatalf("expected 2 files after prune, got %d: %v", len(matches), matches)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN",
		"warning": "WARN", "error": "ERROR", "bogus": "INFO",
	}
	for in, want := range cases {
		if got := applog.ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
