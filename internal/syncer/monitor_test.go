package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mirrorsync/internal/model"
	"mirrorsync/internal/watch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier hands out sequential watch ids and delivers batches pushed
// by the test.
type fakeNotifier struct {
	mu        sync.Mutex
	next      int
	watched   map[int]string
	removed   []int
	batches   chan []watch.Event
	failWith  error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		watched: make(map[int]string),
		batches: make(chan []watch.Event),
		closed:  make(chan struct{}),
	}
}

func (f *fakeNotifier) AddWatch(path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, p := range f.watched {
		if p == path {
			return id, nil
		}
	}

	f.next++
	f.watched[f.next] = path
	return f.next, nil
}

func (f *fakeNotifier) RemoveWatch(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removed = append(f.removed, id)
	delete(f.watched, id)
	return nil
}

func (f *fakeNotifier) ReadBatch() ([]watch.Event, error) {
	select {
	case b, ok := <-f.batches:
		if !ok {
			return nil, f.failWith
		}
		return b, nil
	case <-f.closed:
		return nil, watch.ErrClosed
	}
}

func (f *fakeNotifier) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeNotifier) idFor(t *testing.T, path string) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, p := range f.watched {
		if p == path {
			return id
		}
	}
	t.Fatalf("%s is not watched", path)
	return 0
}

type monitorHarness struct {
	t        *testing.T
	src      string
	dsts     []string
	notifier *fakeNotifier
	monitor  *Monitor
	cancel   context.CancelFunc
	done     chan error

	mu      sync.Mutex
	results []model.SyncResult
}

func startMonitor(t *testing.T, entries map[string]string) *monitorHarness {
	t.Helper()

	h := &monitorHarness{
		t:        t,
		src:      t.TempDir(),
		dsts:     []string{t.TempDir(), t.TempDir()},
		notifier: newFakeNotifier(),
		done:     make(chan error, 1),
	}
	buildTree(t, h.src, entries)
	require.NoError(t, SyncTree(h.src, h.dsts, nil))

	h.monitor = NewMonitor(h.src, h.dsts, h.notifier, MonitorOptions{
		Report: func(r model.SyncResult) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.results = append(h.results, r)
		},
	})
	h.monitor.RegisterTree(h.src)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.monitor.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
		}
	})

	return h
}

// feed delivers events as one batch and waits until they are processed.
func (h *monitorHarness) feed(events ...watch.Event) {
	h.t.Helper()
	h.notifier.batches <- events
	// The next read only happens once the previous batch is fully handled.
	select {
	case h.notifier.batches <- nil:
	case <-h.done:
		h.t.Fatal("monitor exited")
	}
}

func (h *monitorHarness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("monitor did not exit")
		return nil
	}
}

func (h *monitorHarness) id(rel string) int {
	return h.notifier.idFor(h.t, filepath.Join(h.src, rel))
}

func TestMonitorCopiesWrittenFiles(t *testing.T) {
	h := startMonitor(t, map[string]string{"a/": ""})

	require.NoError(t, os.WriteFile(filepath.Join(h.src, "a", "new"), []byte("hello"), 0644))
	h.feed(
		watch.Event{WatchID: h.id("a"), Kind: watch.Created, Name: "new"},
		watch.Event{WatchID: h.id("a"), Kind: watch.Written, Name: "new"},
	)

	for _, dst := range h.dsts {
		data, err := os.ReadFile(filepath.Join(dst, "a", "new"))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.results, 2, "one copy per destination, creation of a regular file is ignored")
	assert.Equal(t, model.OpCopy, h.results[0].Op)
}

func TestMonitorCopiesCreatedSymlink(t *testing.T) {
	h := startMonitor(t, map[string]string{"f": "x"})

	require.NoError(t, os.Symlink(filepath.Join(h.src, "f"), filepath.Join(h.src, "l")))
	h.feed(watch.Event{WatchID: h.id(""), Kind: watch.Created, Name: "l"})

	for _, dst := range h.dsts {
		target, err := os.Readlink(filepath.Join(dst, "l"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dst, "f"), target)
	}
}

func TestMonitorNewDirectory(t *testing.T) {
	h := startMonitor(t, nil)

	// Contents that exist before the watch is added produce no events.
	buildTree(t, h.src, map[string]string{"d/inner/f": "x"})
	h.feed(watch.Event{WatchID: h.id(""), Kind: watch.Created, IsDir: true, Name: "d"})

	for _, dst := range h.dsts {
		assert.FileExists(t, filepath.Join(dst, "d", "inner", "f"))
	}
	assert.Equal(t, 3, h.monitor.Watches())

	require.NoError(t, os.WriteFile(filepath.Join(h.src, "d", "inner", "g"), []byte("y"), 0644))
	h.feed(watch.Event{WatchID: h.id("d/inner"), Kind: watch.Written, Name: "g"})

	for _, dst := range h.dsts {
		assert.FileExists(t, filepath.Join(dst, "d", "inner", "g"))
	}
}

func TestMonitorNewDirectoryBeforeLaterEvents(t *testing.T) {
	h := startMonitor(t, nil)

	buildTree(t, h.src, map[string]string{"d/inner/f": "x", "d/g": "y"})
	h.feed(
		watch.Event{WatchID: h.id(""), Kind: watch.MovedIn, IsDir: true, Name: "d"},
		watch.Event{WatchID: h.id(""), Kind: watch.MovedOut, IsDir: true, Name: "d"},
	)

	// The moved-in contents are applied before the move out, which leaves
	// nothing behind.
	for _, dst := range h.dsts {
		assert.NoDirExists(t, filepath.Join(dst, "d"))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.results)
	last := h.results[len(h.results)-1]
	assert.Equal(t, model.OpRmdir, last.Op)
	for _, r := range h.results {
		assert.NoError(t, r.Err)
	}
	assert.Len(t, h.results, 2*5, "mkdir d, d/inner and copy f, g per destination, then rmdir")
}

func TestMonitorRemovedDirectory(t *testing.T) {
	h := startMonitor(t, map[string]string{"d/sub/f": "x", "keep": "y"})
	dID, subID := h.id("d"), h.id("d/sub")

	require.NoError(t, os.RemoveAll(filepath.Join(h.src, "d")))
	h.feed(watch.Event{WatchID: h.id(""), Kind: watch.Deleted, IsDir: true, Name: "d"})

	for _, dst := range h.dsts {
		assert.NoDirExists(t, filepath.Join(dst, "d"))
		assert.FileExists(t, filepath.Join(dst, "keep"))
	}

	assert.Equal(t, 1, h.monitor.Watches())
	h.notifier.mu.Lock()
	assert.ElementsMatch(t, []int{dID, subID}, h.notifier.removed)
	h.notifier.mu.Unlock()

	// Late events for the dropped watches are ignored.
	h.feed(watch.Event{WatchID: subID, Kind: watch.Written, Name: "f"})
}

func TestMonitorDeletesFiles(t *testing.T) {
	h := startMonitor(t, map[string]string{"f": "x", "g": "y"})

	require.NoError(t, os.Remove(filepath.Join(h.src, "f")))
	require.NoError(t, os.Rename(filepath.Join(h.src, "g"), filepath.Join(t.TempDir(), "g")))
	h.feed(
		watch.Event{WatchID: h.id(""), Kind: watch.Deleted, Name: "f"},
		watch.Event{WatchID: h.id(""), Kind: watch.MovedOut, Name: "g"},
		// Already gone at the destination: still fine.
		watch.Event{WatchID: h.id(""), Kind: watch.Deleted, Name: "never-existed"},
	)

	for _, dst := range h.dsts {
		assert.NoFileExists(t, filepath.Join(dst, "f"))
		assert.NoFileExists(t, filepath.Join(dst, "g"))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.results {
		assert.NoError(t, r.Err)
	}
}

func TestMonitorUnknownWatch(t *testing.T) {
	h := startMonitor(t, map[string]string{"f": "x"})

	h.feed(watch.Event{WatchID: 999, Kind: watch.Deleted, Name: "f"})

	for _, dst := range h.dsts {
		assert.FileExists(t, filepath.Join(dst, "f"))
	}
}

func TestMonitorIgnoredDropsWatch(t *testing.T) {
	h := startMonitor(t, map[string]string{"d/": ""})

	h.feed(watch.Event{WatchID: h.id("d"), Kind: watch.Ignored})

	assert.Equal(t, 1, h.monitor.Watches())
}

func TestMonitorRootRemoved(t *testing.T) {
	h := startMonitor(t, map[string]string{"f": "x"})
	rootID := h.id("")

	h.notifier.batches <- []watch.Event{{WatchID: rootID, Kind: watch.SelfDeleted}}

	assert.ErrorIs(t, h.wait(), ErrSourceGone)
	assert.Equal(t, SourceGone, h.monitor.State())
}

func TestMonitorRecursiveRootRemoval(t *testing.T) {
	h := startMonitor(t, map[string]string{"f": "x", "g": "y"})
	rootID := h.id("")

	require.NoError(t, os.RemoveAll(h.src))
	h.notifier.batches <- []watch.Event{
		{WatchID: rootID, Kind: watch.Deleted, Name: "f"},
		{WatchID: rootID, Kind: watch.Deleted, Name: "g"},
		{WatchID: rootID, Kind: watch.SelfDeleted},
	}

	assert.ErrorIs(t, h.wait(), ErrSourceGone)

	// The mirror keeps its contents when the whole source goes away.
	for _, dst := range h.dsts {
		assert.FileExists(t, filepath.Join(dst, "f"))
		assert.FileExists(t, filepath.Join(dst, "g"))
	}
}

func TestMonitorOverflowResyncs(t *testing.T) {
	h := startMonitor(t, nil)

	buildTree(t, h.src, map[string]string{"lost/f": "x", "g": "y"})
	h.feed(watch.Event{WatchID: -1, Kind: watch.Overflow})

	for _, dst := range h.dsts {
		assert.FileExists(t, filepath.Join(dst, "lost", "f"))
		assert.FileExists(t, filepath.Join(dst, "g"))
	}
	assert.Equal(t, 2, h.monitor.Watches())
}

func TestMonitorCancel(t *testing.T) {
	h := startMonitor(t, nil)

	h.cancel()

	assert.ErrorIs(t, h.wait(), context.Canceled)
	assert.Equal(t, 0, h.monitor.Watches())
}

func TestMonitorChannelError(t *testing.T) {
	h := startMonitor(t, nil)

	h.notifier.failWith = errors.New("boom")
	close(h.notifier.batches)

	err := h.wait()
	var chErr *ChannelError
	assert.ErrorAs(t, err, &chErr)
}

func TestMonitorFanOutSurvivesBrokenDestination(t *testing.T) {
	h := startMonitor(t, map[string]string{"d/": ""})

	// A regular file where the first mirror expects a directory fails for
	// every user, root included.
	broken := filepath.Join(h.dsts[0], "d")
	require.NoError(t, os.RemoveAll(broken))
	require.NoError(t, os.WriteFile(broken, []byte("in the way"), 0644))

	require.NoError(t, os.WriteFile(filepath.Join(h.src, "d", "x.txt"), []byte("hi"), 0644))
	h.feed(watch.Event{WatchID: h.id("d"), Kind: watch.Written, Name: "x.txt"})

	data, err := os.ReadFile(filepath.Join(h.dsts[1], "d", "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	data, err = os.ReadFile(broken)
	require.NoError(t, err)
	assert.Equal(t, "in the way", string(data))

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.results, 2)
	assert.Equal(t, h.dsts[0], filepath.Dir(filepath.Dir(h.results[0].DstPath)))
	var dirErr *DirError
	assert.ErrorAs(t, h.results[0].Err, &dirErr)
	assert.NoError(t, h.results[1].Err)
}
