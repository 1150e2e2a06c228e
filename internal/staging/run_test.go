package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subtitler/internal/logging"
)

func TestNewRunCreatesLockedDirectory(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "work")
	run, err := NewRun(workDir, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(run.Dir), "run-") || !strings.HasSuffix(run.Dir, run.ID) {
		t.Fatalf("unexpected run dir %s", run.Dir)
	}
	if _, err := os.Stat(run.Dir); err != nil {
		t.Fatalf("run dir missing: %v", err)
	}

	dirs, err := ListDirectories(workDir)
	if err != nil || len(dirs) != 1 || !dirs[0].Locked {
		t.Fatalf("expected one locked run, got %+v err=%v", dirs, err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(run.Dir, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	result := CleanStale(context.Background(), workDir, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 || len(result.Skipped) != 1 {
		t.Fatalf("active run must be skipped, got %+v", result)
	}

	if err := os.WriteFile(run.Path("part_001.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty work dir after close, found %d entries", len(entries))
	}
}

func TestNewRunUniqueDirectories(t *testing.T) {
	workDir := t.TempDir()
	first, err := NewRun(workDir, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	defer first.Close()
	second, err := NewRun(workDir, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	defer second.Close()
	if first.Dir == second.Dir {
		t.Fatal("runs must not share a directory")
	}
	sub, err := second.Subdir("parts")
	if err != nil {
		t.Fatalf("Subdir: %v", err)
	}
	if filepath.Dir(sub) != second.Dir {
		t.Fatalf("unexpected subdir %s", sub)
	}
}

func TestNewRunRejectsEmptyWorkDir(t *testing.T) {
	if _, err := NewRun("  ", logging.NewNop()); err == nil {
		t.Fatal("expected error for empty work dir")
	}
}
