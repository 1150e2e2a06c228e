// Package staging manages per-run scratch directories under work_dir.
//
// Each run owns work_dir/run-<uuid>, locked with a sibling .lock file for
// its lifetime. CleanStale sweeps old run directories and never touches one
// whose lock is still held.
package staging
