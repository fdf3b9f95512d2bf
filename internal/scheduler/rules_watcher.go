package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// DefaultRulesDebounce coalesces the burst of events editors emit on save.
const DefaultRulesDebounce = 500 * time.Millisecond

// RulesWatcher reloads the rules file when it changes on disk, hands the new
// rules to apply and requests a sync. An invalid file is logged and the
// previous rules stay in effect.
type RulesWatcher struct {
	path     string
	apply    func(*config.Rules)
	trigger  chan struct{}
	logger   logger.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewRulesWatcher creates a watcher for path. trigger may be nil.
func NewRulesWatcher(path string, apply func(*config.Rules), trigger chan struct{}, log logger.Logger) *RulesWatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &RulesWatcher{
		path:     filepath.Clean(path),
		apply:    apply,
		trigger:  trigger,
		logger:   log,
		debounce: DefaultRulesDebounce,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start watches the directory holding the rules file, so atomic
// replacements by editors are seen too.
func (rw *RulesWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(rw.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}
	rw.watcher = w

	rw.logger.Info("watching rules file", logger.String("path", rw.path))
	go rw.loop(ctx)
	return nil
}

// Stop stops watching and waits for the event loop to exit
func (rw *RulesWatcher) Stop() {
	close(rw.stopCh)
	if rw.watcher != nil {
		<-rw.done
	}
}

func (rw *RulesWatcher) loop(ctx context.Context) {
	defer close(rw.done)
	defer func() { _ = rw.watcher.Close() }()

	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(rw.debounce)
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("rules watcher error", logger.Error(err))
		case <-pending:
			pending = nil
			_ = rw.Reload()
		case <-rw.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Reload reads the rules file once and applies it on success.
func (rw *RulesWatcher) Reload() error {
	rules, err := config.LoadRules(rw.path)
	if err != nil {
		rw.logger.Error("rules reload failed, keeping previous rules",
			logger.String("path", rw.path),
			logger.Error(err))
		return err
	}

	rw.apply(rules)
	rw.logger.Info("rules reloaded",
		logger.Int("folders", len(rules.Folders)),
		logger.Int("categories", len(rules.CategoryRules())))

	if rw.trigger != nil {
		select {
		case rw.trigger <- struct{}{}:
		default:
			rw.logger.Debug("sync already pending")
		}
	}
	return nil
}
