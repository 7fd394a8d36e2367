package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/fitbind/internal/config"
	"github.com/jackzampolin/fitbind/internal/svcctx"
)

var (
	watchFlags    runFlags
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-bind whenever the source folder or configuration changes",
	Long: `Watch binds once, then re-binds whenever a source PDF, the table of
contents or the config file changes. Changes are batched for --debounce
before a run starts. Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, svc, stop, err := startSession(cmd.Context(), cmd, &watchFlags)
		if err != nil {
			return err
		}
		defer stop()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		cfg := svc.Config.Get()
		dirs := map[string]bool{cfg.SourcePath(): true, filepath.Dir(cfg.TOCPath()): true}
		for dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				return err
			}
		}

		configChanged := make(chan struct{}, 1)
		svc.Config.OnChange(func(*config.Config) {
			select {
			case configChanged <- struct{}{}:
			default:
			}
		})
		svc.Config.WatchConfig()

		return watchLoop(ctx, watcher, configChanged)
	},
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, configChanged <-chan struct{}) error {
	logger := svcctx.LoggerFrom(ctx)
	mgr := svcctx.ConfigFrom(ctx)

	runOnce := func() {
		if _, err := bind(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bind failed", "error", err)
		}
	}
	runOnce()

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
		} else {
			timer.Reset(watchDebounce)
		}
		fire = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if relevant(ev, mgr.Get()) {
				logger.Info("change detected", "file", ev.Name, "op", ev.Op.String())
				schedule()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-configChanged:
			logger.Info("configuration reloaded")
			schedule()

		case <-fire:
			fire = nil
			runOnce()
		}
	}
}

// relevant reports whether ev touches a source PDF or the table of
// contents. The run's own outputs are ignored.
func relevant(ev fsnotify.Event, cfg *config.Config) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(ev.Name)
	if filepath.Clean(ev.Name) == filepath.Clean(cfg.TOCPath()) {
		return true
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return false
	}
	return !corpusOptions(cfg).Skips(name)
}

func init() {
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a run starts")
	rootCmd.AddCommand(watchCmd)
}
