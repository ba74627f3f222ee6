package syncer

import (
	"context"
	"errors"
	"io/fs"
	"mirrorsync/internal/logger"
	"mirrorsync/internal/metrics"
	"mirrorsync/internal/model"
	"mirrorsync/internal/util"
	"mirrorsync/internal/watch"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/phf/go-queue/queue"
	"go.uber.org/zap"
)

// State of a monitoring session.
type State int

const (
	Running State = iota
	SourceGone
)

func (s State) String() string {
	if s == SourceGone {
		return "source_gone"
	}
	return "running"
}

type MonitorOptions struct {
	// DeleteGuard is how long a file removal waits before checking whether
	// the whole source root is going away.
	DeleteGuard time.Duration
	Report      Reporter
}

// entryTask is an entry found inside a directory that appeared after the
// notifications for it could have been delivered.
type entryTask struct {
	path  string
	isDir bool
}

// Monitor applies change notifications for one source to all of its
// destinations. A Monitor is single use: Run closes the notifier.
type Monitor struct {
	src      string
	dsts     []string
	notifier watch.Notifier
	table    *watch.Table
	pending  *queue.Queue
	opts     MonitorOptions
	state    State
	session  string
	gauged   int
	log      *zap.Logger
}

func NewMonitor(src string, dsts []string, notifier watch.Notifier, opts MonitorOptions) *Monitor {
	cleaned := make([]string, len(dsts))
	for i, d := range dsts {
		cleaned[i] = filepath.Clean(d)
	}

	src = filepath.Clean(src)
	session := uuid.New().String()[:8]

	return &Monitor{
		src:      src,
		dsts:     cleaned,
		notifier: notifier,
		table:    watch.NewTable(),
		pending:  queue.New(),
		opts:     opts,
		session:  session,
		log:      logger.Log.With(zap.String("session", session), zap.String("src", src)),
	}
}

func (m *Monitor) Session() string { return m.session }

func (m *Monitor) State() State { return m.state }

// Watches returns the number of directories currently tracked.
func (m *Monitor) Watches() int { return m.table.Len() }

// RegisterTree watches root and every directory below it. Directories that
// cannot be watched are logged and skipped.
func (m *Monitor) RegisterTree(root string) {
	m.addWatch(root)

	_ = util.Visit(root, func(e util.Entry) error {
		if e.IsDir {
			m.addWatch(e.Path)
		}
		return nil
	})

	m.updateGauge()
}

func (m *Monitor) addWatch(path string) {
	id, err := m.notifier.AddWatch(path)
	if err != nil {
		m.log.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		return
	}

	m.table.Insert(id, path)
}

func (m *Monitor) updateGauge() {
	n := m.table.Len()
	metrics.WatchesActive.Add(float64(n - m.gauged))
	m.gauged = n
}

// Run processes notifications until the source root disappears, the
// notification channel fails, or ctx is cancelled. It returns ErrSourceGone,
// a *ChannelError or ctx.Err() respectively.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.close()

	stop := context.AfterFunc(ctx, func() {
		_ = m.notifier.Close()
	})
	defer stop()

	m.log.Info("monitor started",
		zap.Strings("dsts", m.dsts),
		zap.Int("watches", m.table.Len()))

	for {
		batch, err := m.notifier.ReadBatch()
		if err != nil {
			if ctx.Err() != nil {
				m.log.Info("monitor stopped")
				return ctx.Err()
			}
			m.log.Error("notification channel failed", zap.Error(err))
			return &ChannelError{Err: err}
		}

		for _, ev := range batch {
			m.pending.PushBack(ev)
		}

		for m.pending.Len() > 0 {
			switch item := m.pending.PopFront().(type) {
			case watch.Event:
				m.handle(item)
			case entryTask:
				m.handleEntry(item)
			}

			if m.state == SourceGone {
				m.pending.Init()
				m.log.Info("source removed, monitor stopping")
				return ErrSourceGone
			}
		}
	}
}

func (m *Monitor) close() {
	_ = m.notifier.Close()
	m.table = watch.NewTable()
	m.updateGauge()
}

func (m *Monitor) handle(ev watch.Event) {
	metrics.EventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	if ev.Kind == watch.Overflow {
		m.log.Warn("notification queue overflowed, resyncing")
		m.RegisterTree(m.src)
		if err := SyncTree(m.src, m.dsts, m.opts.Report); err != nil {
			m.log.Warn("resync finished with errors", zap.Error(err))
		}
		return
	}

	dir, ok := m.table.Lookup(ev.WatchID)
	if !ok {
		m.log.Debug("event for unknown watch", zap.Int("wd", ev.WatchID), zap.Stringer("kind", ev.Kind))
		return
	}

	if ev.Kind == watch.Ignored {
		m.table.Remove(ev.WatchID)
		m.updateGauge()
		return
	}

	if !ev.HasName() {
		if ev.Kind == watch.SelfDeleted && dir == m.src {
			m.state = SourceGone
		}
		return
	}

	srcPath, err := util.JoinPath(dir, ev.Name)
	if err != nil {
		m.log.Warn("event path too long", zap.String("dir", dir), zap.String("name", ev.Name))
		return
	}

	m.log.Debug("event", zap.Stringer("kind", ev.Kind), zap.String("path", srcPath), zap.Bool("dir", ev.IsDir))

	if ev.IsDir {
		m.handleDir(ev.Kind, srcPath)
	} else {
		m.handleFile(ev.Kind, srcPath)
	}
}

func (m *Monitor) handleDir(kind watch.Kind, srcPath string) {
	switch kind {
	case watch.Created, watch.MovedIn:
		for _, dstRoot := range m.dsts {
			dst, err := destPath(m.src, dstRoot, srcPath)
			if err == nil {
				if err = util.CreateDirs(dst); err != nil {
					err = &DirError{Op: "create dir", Path: dst, Err: err}
				}
			}
			m.apply(model.OpMkdir, srcPath, dst, err)
		}

		m.RegisterTree(srcPath)

		// Entries created before the watch existed produce no events.
		m.expand(srcPath)

	case watch.Deleted, watch.MovedOut:
		for _, dstRoot := range m.dsts {
			dst, err := destPath(m.src, dstRoot, srcPath)
			if err == nil {
				if err = util.RemoveTree(dst); err != nil {
					err = &DirError{Op: "remove dir", Path: dst, Err: err}
				}
			}
			m.apply(model.OpRmdir, srcPath, dst, err)
		}

		for _, id := range m.table.PruneTree(srcPath) {
			if err := m.notifier.RemoveWatch(id); err != nil {
				m.log.Debug("failed to remove watch", zap.Int("wd", id), zap.Error(err))
			}
		}
		m.updateGauge()
	}
}

// expand queues the entries of dir ahead of everything pending, so a new
// subtree is mirrored depth first before later notifications are applied.
func (m *Monitor) expand(dir string) {
	entries, err := util.ReadDir(dir)
	if err != nil {
		return
	}

	for i := len(entries) - 1; i >= 0; i-- {
		path, err := util.JoinPath(dir, entries[i].Name())
		if err != nil {
			m.log.Warn("entry path too long", zap.String("dir", dir), zap.String("name", entries[i].Name()))
			continue
		}
		m.pending.PushFront(entryTask{path: path, isDir: entries[i].IsDir()})
	}
}

func (m *Monitor) handleEntry(task entryTask) {
	if _, err := os.Lstat(task.path); err != nil {
		// Removed again; its deletion is still to come.
		return
	}

	if !task.isDir {
		m.copyToAll(task.path)
		return
	}

	for _, dstRoot := range m.dsts {
		dst, err := destPath(m.src, dstRoot, task.path)
		if err == nil {
			err = syncEntry(task.path, dst, m.src, dstRoot, true)
		}
		m.apply(model.OpMkdir, task.path, dst, err)
	}

	m.expand(task.path)
}

func (m *Monitor) handleFile(kind watch.Kind, srcPath string) {
	switch kind {
	case watch.MovedIn, watch.Written:
		m.copyToAll(srcPath)

	case watch.Created:
		// Regular files are copied on close-write; links never get one.
		info, err := os.Lstat(srcPath)
		if err == nil && info.Mode()&fs.ModeSymlink != 0 {
			m.copyToAll(srcPath)
		}

	case watch.Deleted, watch.MovedOut:
		if m.sourceVanished() {
			m.state = SourceGone
			return
		}

		for _, dstRoot := range m.dsts {
			dst, err := destPath(m.src, dstRoot, srcPath)
			if err == nil {
				if err = util.RemoveIfExists(dst); err != nil {
					err = &IoError{Op: "unlink", Path: dst, Err: err}
				}
			}
			m.apply(model.OpUnlink, srcPath, dst, err)
		}
	}
}

func (m *Monitor) copyToAll(srcPath string) {
	for _, dstRoot := range m.dsts {
		dst, err := destPath(m.src, dstRoot, srcPath)
		if err == nil {
			err = syncEntry(srcPath, dst, m.src, dstRoot, false)
		}
		m.apply(model.OpCopy, srcPath, dst, err)
	}
}

// sourceVanished waits out the delete guard and reports whether the source
// root no longer exists. A recursive removal of the root produces file
// deletions first; they must not be mirrored as individual unlinks.
func (m *Monitor) sourceVanished() bool {
	if m.opts.DeleteGuard > 0 {
		time.Sleep(m.opts.DeleteGuard)
	}

	_, err := os.Lstat(m.src)
	return errors.Is(err, fs.ErrNotExist)
}

func (m *Monitor) apply(op model.SyncOp, src, dst string, err error) {
	m.opts.Report.report(op, src, dst, err)

	if err != nil {
		m.log.Warn("sync failed", zap.String("op", string(op)), zap.String("dst", dst), zap.Error(err))
		return
	}
	m.log.Debug("synced", zap.String("op", string(op)), zap.String("dst", dst))
}
