package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/config"
	"github.com/roach88/xqflow/internal/message"
)

// DefaultDebounce is how long watch waits after the last change before
// re-running.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Config   string
	Mode     string // "transform" | "route"
	Debounce time.Duration
	Headers  []string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <xml-file>",
		Short: "Re-run a definition whenever its inputs change",
		Long: `Run a definition against an XML file, then run it again every time the
XML file, the definition or its query file changes. Routing happens against
in-memory channels; nothing is written to the message store.

Example:
  xqflow watch order.xml --config route.yaml --mode route`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "definition file (required)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "transform", "what to run (transform|route)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", DefaultDebounce, "quiet period before re-running")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "message header (name=value, repeatable)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runWatch(opts *WatchOptions, input string, cmd *cobra.Command) error {
	if input == "-" {
		return NewExitError(ExitCommandError, "watch needs a file, not stdin")
	}
	if opts.Mode != "transform" && opts.Mode != "route" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q: must be transform or route", opts.Mode))
	}
	formatter := opts.formatter(cmd)

	def, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Fail("failed to load definition", err)
	}
	logger, err := opts.logger(def.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create file watcher", err)
	}
	defer watcher.Close()

	tracked := newWatchSet(watcher, logger)
	if err := tracked.update(watchFiles(input, opts.Config, def)); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch inputs", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		// A definition that no longer loads keeps the previous set.
		if next := runOnce(ctx, opts, input, headers, formatter, logger); next != nil {
			if err := tracked.update(watchFiles(input, opts.Config, next)); err != nil {
				logger.Warn("failed to update watched files", zap.Error(err))
			}
		}
	}
	run()

	w := &debouncer{
		events:   watcher.Events,
		errors:   watcher.Errors,
		match:    tracked.match,
		interval: opts.Debounce,
		logger:   logger,
	}
	w.loop(ctx, run)
	return nil
}

// runOnce reloads the definition and runs it. Failures are reported and
// the watch continues. It returns the reloaded definition, or nil when it
// could not be loaded.
func runOnce(ctx context.Context, opts *WatchOptions, input string, headers message.Headers, formatter *OutputFormatter, logger *zap.Logger) *config.Definition {
	fmt.Fprintf(formatter.Writer, "--- %s %s\n", opts.Mode, input)

	def, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return nil
	}
	payload, err := readPayload(input, nil)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return def
	}
	msg := message.New(payload, headers)

	if opts.Mode == "route" {
		names, err := routeMessage(ctx, def, "", msg, logger)
		if err != nil {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return def
		}
		for _, name := range names {
			fmt.Fprintln(formatter.Writer, name)
		}
		return def
	}

	out, err := transformMessage(ctx, def, msg, logger)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return def
	}
	if out != nil {
		renderPayload(formatter.Writer, out.Payload, def.FormatOutput)
	}
	return def
}

// watchFiles lists the files a run of def depends on.
func watchFiles(input, configPath string, def *config.Definition) []string {
	files := []string{input, configPath}
	if q := def.QueryPath(); q != "" {
		files = append(files, q)
	}
	return files
}

// watchSet is the set of files a watch reacts to. Editors often replace
// files rather than write them, so the parent directories are watched and
// events are filtered by path.
type watchSet struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	dirs    map[string]bool
	files   map[string]bool
}

func newWatchSet(watcher *fsnotify.Watcher, logger *zap.Logger) *watchSet {
	return &watchSet{watcher: watcher, logger: logger, dirs: make(map[string]bool)}
}

// update replaces the tracked files. Directories are added to the watcher
// as needed and never removed.
func (s *watchSet) update(files []string) error {
	next := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f, err)
		}
		next[abs] = true

		dir := filepath.Dir(abs)
		if s.dirs[dir] {
			continue
		}
		if err := s.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		s.dirs[dir] = true
		s.logger.Debug("watching directory", zap.String("dir", dir))
	}
	s.files = next
	return nil
}

func (s *watchSet) match(name string) bool {
	abs, err := filepath.Abs(name)
	return err == nil && s.files[abs]
}

// debouncer collapses bursts of file events into single runs.
type debouncer struct {
	events   <-chan fsnotify.Event
	errors   <-chan error
	match    func(name string) bool
	interval time.Duration
	logger   *zap.Logger
}

// loop calls run once per burst of matching events, after interval has
// passed without further events. It returns when ctx is done or the event
// channels are closed.
func (d *debouncer) loop(ctx context.Context, run func()) {
	timer := time.NewTimer(d.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.events:
			if !ok {
				return
			}
			if !d.match(event.Name) || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			d.logger.Debug("file changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			timer.Reset(d.interval)

		case err, ok := <-d.errors:
			if !ok {
				return
			}
			d.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			run()
		}
	}
}
