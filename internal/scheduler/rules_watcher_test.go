package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

type rulesSink struct {
	mu    sync.Mutex
	rules []*config.Rules
}

func (s *rulesSink) apply(r *config.Rules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

func (s *rulesSink) last() (*config.Rules, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rules) == 0 {
		return nil, 0
	}
	return s.rules[len(s.rules)-1], len(s.rules)
}

func TestRulesWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("folders:\n  \"1\": reading\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &rulesSink{}
	trigger := make(chan struct{}, 1)
	rw := NewRulesWatcher(path, sink.apply, trigger, logger.Nop())

	if err := rw.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	r, n := sink.last()
	if n != 1 {
		t.Fatalf("apply called %d times, want 1", n)
	}
	if tag, _ := domain.MapFolder("1", r.Folders); tag != "reading" {
		t.Errorf("unexpected folder tag %q", tag)
	}
	select {
	case <-trigger:
	default:
		t.Error("Reload should request a sync")
	}

	// a broken file keeps the previous rules
	if err := os.WriteFile(path, []byte("folders: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := rw.Reload(); err == nil {
		t.Error("expected parse error")
	}
	if _, n := sink.last(); n != 1 {
		t.Errorf("apply must not run on invalid rules")
	}
}

func TestRulesWatcher_WatchesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("folders: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &rulesSink{}
	rw := NewRulesWatcher(path, sink.apply, nil, logger.Nop())
	rw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rw.Stop()

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("folders:\n  \"9\": later\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, _ := sink.last(); r != nil {
			if tag, _ := domain.MapFolder("9", r.Folders); tag == "later" {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("rules change was not picked up")
}
