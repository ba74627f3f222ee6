package syncer

import (
	"errors"
	"io/fs"
	"mirrorsync/internal/logger"
	"mirrorsync/internal/metrics"
	"mirrorsync/internal/model"
	"mirrorsync/internal/util"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

type ReconcileStats struct {
	Copied  int `json:"copied"`
	Created int `json:"created"`
	Removed int `json:"removed"`
}

type reconciler struct {
	targetRoot string
	backupRoot string
	cutoff     time.Time
	report     Reporter
	stats      ReconcileStats
	errs       []error
}

// Reconcile makes target match backup. Entries newer than cutoff in backup
// overwrite their counterparts in target, missing entries are created and
// entries absent from backup are removed. A zero cutoff compares against
// the target entry's own modification time instead.
func Reconcile(target, backup string, cutoff time.Time) (ReconcileStats, error) {
	return ReconcileWithReport(target, backup, cutoff, nil)
}

// ReconcileWithReport is Reconcile with every operation passed to report.
func ReconcileWithReport(target, backup string, cutoff time.Time, report Reporter) (ReconcileStats, error) {
	start := time.Now()
	defer func() {
		metrics.RestoreDuration.Observe(time.Since(start).Seconds())
	}()

	r := &reconciler{
		targetRoot: filepath.Clean(target),
		backupRoot: filepath.Clean(backup),
		cutoff:     cutoff,
		report:     report,
	}

	info, err := os.Stat(r.backupRoot)
	if err != nil || !info.IsDir() {
		return r.stats, &ValidationError{Path: backup, Err: ErrNotDirectory}
	}

	// Pruning the target would delete a backup below it, and copying a
	// backup into a target below it never terminates.
	if IsDescendant(r.targetRoot, r.backupRoot) || IsDescendant(r.backupRoot, r.targetRoot) {
		return r.stats, &ValidationError{Path: target, Err: ErrNestedDestination}
	}

	if err := util.CreateDirs(r.targetRoot); err != nil {
		return r.stats, &DirError{Op: "create", Path: r.targetRoot, Err: err}
	}

	r.reconcile(r.targetRoot, r.backupRoot)

	logger.Log.Info("restore finished",
		zap.String("target", r.targetRoot),
		zap.String("backup", r.backupRoot),
		zap.Int("copied", r.stats.Copied),
		zap.Int("created", r.stats.Created),
		zap.Int("removed", r.stats.Removed),
		zap.Int("errors", len(r.errs)),
		zap.Duration("elapsed", time.Since(start)))

	return r.stats, errors.Join(r.errs...)
}

func (r *reconciler) fail(op model.SyncOp, src, dst string, err error) {
	r.report.report(op, src, dst, err)
	r.errs = append(r.errs, err)
}

func (r *reconciler) reconcile(target, backup string) {
	r.restoreFrom(target, backup)
	r.prune(target, backup)
}

// restoreFrom is the first pass: bring every backup entry into target.
func (r *reconciler) restoreFrom(target, backup string) {
	entries, err := util.ReadDir(backup)
	if err != nil {
		return
	}

	for _, e := range entries {
		b := filepath.Join(backup, e.Name())
		t := filepath.Join(target, e.Name())

		bInfo, err := os.Lstat(b)
		if err != nil {
			continue
		}
		tInfo, tErr := os.Lstat(t)

		if bInfo.IsDir() {
			if tErr == nil && !tInfo.IsDir() {
				if err := util.RemoveIfExists(t); err != nil {
					r.fail(model.OpUnlink, b, t, &IoError{Op: "unlink", Path: t, Err: err})
					continue
				}
				tErr = fs.ErrNotExist
			}

			if tErr != nil {
				if err := util.CreateDirs(t); err != nil {
					r.fail(model.OpMkdir, b, t, &DirError{Op: "create dir", Path: t, Err: err})
					continue
				}
				r.stats.Created++
				r.report.report(model.OpMkdir, b, t, nil)
			}

			r.reconcile(t, b)
			continue
		}

		// An entry of a different type is always replaced.
		if tErr == nil && tInfo.Mode().Type() == bInfo.Mode().Type() && !r.newer(bInfo, tInfo) {
			continue
		}

		if tErr == nil && (tInfo.IsDir() || tInfo.Mode()&fs.ModeSymlink != 0 || bInfo.Mode()&fs.ModeSymlink != 0) {
			if err := util.RemoveTree(t); err != nil {
				r.fail(model.OpRmdir, b, t, &DirError{Op: "remove", Path: t, Err: err})
				continue
			}
		}

		if err := CopyEntry(b, t, r.backupRoot, r.targetRoot); err != nil {
			r.fail(model.OpCopy, b, t, err)
			continue
		}
		r.stats.Copied++
		r.report.report(model.OpCopy, b, t, nil)
	}
}

// prune is the second pass: drop target entries the backup does not have.
func (r *reconciler) prune(target, backup string) {
	entries, err := util.ReadDir(target)
	if err != nil {
		return
	}

	for _, e := range entries {
		b := filepath.Join(backup, e.Name())
		if _, err := os.Lstat(b); !errors.Is(err, fs.ErrNotExist) {
			continue
		}

		t := filepath.Join(target, e.Name())
		if err := util.RemoveTree(t); err != nil {
			r.fail(model.OpRmdir, "", t, &DirError{Op: "remove", Path: t, Err: err})
			continue
		}
		r.stats.Removed++
		r.report.report(model.OpRmdir, "", t, nil)
	}
}

func (r *reconciler) newer(backup, target fs.FileInfo) bool {
	if !r.cutoff.IsZero() {
		return backup.ModTime().After(r.cutoff)
	}

	return backup.ModTime().After(target.ModTime())
}
