package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/xqflow/internal/config"
	"github.com/roach88/xqflow/internal/logging"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	d := &debouncer{
		events:   events,
		errors:   errs,
		match:    func(name string) bool { return name == "order.xml" },
		interval: 20 * time.Millisecond,
		logger:   zaptest.NewLogger(t),
	}

	var runs atomic.Int32
	ran := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.loop(ctx, func() {
			runs.Add(1)
			ran <- struct{}{}
		})
	}()

	events <- fsnotify.Event{Name: "other.xml", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "order.xml", Op: fsnotify.Chmod}
	for i := 0; i < 3; i++ {
		events <- fsnotify.Event{Name: "order.xml", Op: fsnotify.Write}
	}
	errs <- errors.New("queue overflow")

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never ran")
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	events <- fsnotify.Event{Name: "order.xml", Op: fsnotify.Create}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer did not run after second burst")
	}
	assert.Equal(t, int32(2), runs.Load())

	cancel()
	<-done
}

func TestDebouncer_StopsWhenEventsClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	events := make(chan fsnotify.Event)
	d := &debouncer{
		events:   events,
		errors:   make(chan error),
		match:    func(string) bool { return true },
		interval: time.Hour,
		logger:   zaptest.NewLogger(t),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.loop(context.Background(), func() { t.Error("unexpected run") })
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return")
	}
}

func TestWatch_RejectsBadInvocations(t *testing.T) {
	_, _, err := execute(t, "", "watch", "-", "-c", "testdata/route.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch needs a file")

	_, _, err = execute(t, "", "watch", "testdata/order.xml", "-c", "testdata/route.yaml", "--mode", "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid mode "replay"`)
}

func TestRunOnce(t *testing.T) {
	t.Setenv(logging.EnvLevel, "")
	logger := zaptest.NewLogger(t)

	var out strings.Builder
	formatter := &OutputFormatter{Format: "text", Writer: &out}

	opts := &WatchOptions{RootOptions: &RootOptions{}, Config: "testdata/route.yaml", Mode: "route"}
	def := runOnce(context.Background(), opts, "testdata/order.xml", nil, formatter, logger)
	assert.Equal(t, "--- route testdata/order.xml\norders.premium\n", out.String())
	require.NotNil(t, def)
	assert.Equal(t, filepath.Join("testdata", "route.xq"), def.QueryPath())

	out.Reset()
	opts = &WatchOptions{RootOptions: &RootOptions{}, Config: "testdata/summary.toml", Mode: "transform"}
	runOnce(context.Background(), opts, "testdata/order.xml", nil, formatter, logger)
	assert.Equal(t, "--- transform testdata/order.xml\na\nb\n", out.String())

	out.Reset()
	runOnce(context.Background(), opts, "testdata/gone.xml", nil, formatter, logger)
	assert.Contains(t, out.String(), "Error [E002]: input file not found: testdata/gone.xml")

	out.Reset()
	opts = &WatchOptions{RootOptions: &RootOptions{}, Config: "testdata/missing.yaml", Mode: "route"}
	assert.Nil(t, runOnce(context.Background(), opts, "testdata/order.xml", nil, formatter, logger))
}

func TestWatchSet_FollowsQueryFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	input := write("order.xml", "<order/>")
	cfg := write("def.yaml", "query_file: first.xq\n")
	first := write("first.xq", "1")
	second := write("queries/second.xq", "2")

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	set := newWatchSet(watcher, zaptest.NewLogger(t))

	def, err := config.Load(cfg)
	require.NoError(t, err)
	require.NoError(t, set.update(watchFiles(input, cfg, def)))
	assert.True(t, set.match(first))
	assert.True(t, set.match(input))
	assert.False(t, set.match(second))

	write("def.yaml", "query_file: queries/second.xq\n")
	def, err = config.Load(cfg)
	require.NoError(t, err)
	require.NoError(t, set.update(watchFiles(input, cfg, def)))
	assert.True(t, set.match(second))
	assert.False(t, set.match(first))
	assert.Contains(t, watcher.WatchList(), filepath.Join(dir, "queries"))
}
