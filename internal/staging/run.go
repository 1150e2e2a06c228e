package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"subtitler/internal/logging"
	"subtitler/internal/services"
)

const (
	runPrefix  = "run-"
	lockSuffix = ".lock"
)

// Run owns one pipeline invocation's scratch directory. The directory is
// guarded by a lock file next to it so concurrent sweeps leave it alone.
type Run struct {
	ID  string
	Dir string

	lockPath string
	lock     *flock.Flock
	logger   *slog.Logger
}

// NewRun creates workDir/run-<uuid> and holds its lock until Close.
func NewRun(workDir string, logger *slog.Logger) (*Run, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "staging", "create run", "work_dir is empty", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "staging", "create run", workDir, err)
	}

	id := uuid.NewString()
	dir := filepath.Join(workDir, runPrefix+id)
	lockPath := dir + lockSuffix
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "staging", "lock run", lockPath, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "staging", "lock run", fmt.Sprintf("%s is held by another process", lockPath), nil)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
		return nil, services.Wrap(services.ErrTransient, "staging", "create run", dir, err)
	}

	run := &Run{
		ID:       id,
		Dir:      dir,
		lockPath: lockPath,
		lock:     lock,
		logger:   logging.NewComponentLogger(logger, "staging").With(logging.String(logging.FieldRunID, id)),
	}
	run.logger.Debug("run directory created", logging.String("path", dir))
	return run, nil
}

// Path joins name onto the run directory.
func (r *Run) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// Subdir creates and returns a directory inside the run directory.
func (r *Run) Subdir(name string) (string, error) {
	dir := r.Path(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Close removes the run directory and releases its lock. It is safe to call
// more than once.
func (r *Run) Close() error {
	if r == nil || r.lock == nil {
		return nil
	}
	var errs []error
	if err := os.RemoveAll(r.Dir); err != nil {
		errs = append(errs, err)
	}
	if err := r.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(r.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	r.lock = nil
	if err := errors.Join(errs...); err != nil {
		logging.WarnWithContext(r.logger, "run directory cleanup incomplete", "run_cleanup_failed",
			logging.String("path", r.Dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `subtitler cleanup` to sweep leftovers"),
			logging.String(logging.FieldImpact, "temporary files remain in work_dir"),
		)
		return err
	}
	r.logger.Debug("run directory removed", logging.String("path", r.Dir))
	return nil
}

// isRunDir reports whether name looks like a run directory.
func isRunDir(name string) bool {
	return strings.HasPrefix(name, runPrefix) && !strings.HasSuffix(name, lockSuffix)
}
