package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Starter kicks off ingestion for a dropped metadata file.
type Starter func(ctx context.Context, csvPath string) error

type Config struct {
	Dir      string
	Pattern  string
	Debounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.Pattern == "" {
		c.Pattern = "*.csv"
	}
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	return c
}

// Watcher watches a drop directory and triggers ingestion for each metadata
// CSV that lands there. Writes are debounced per file so a slow copy fires
// once, after it settles.
type Watcher struct {
	cfg   Config
	start Starter

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(cfg Config, start Starter) *Watcher {
	return &Watcher{cfg: cfg.withDefaults(), start: start, timers: map[string]*time.Timer{}}
}

// Run blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	log.Printf("watching %s for %s", w.cfg.Dir, w.cfg.Pattern)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.matches(ev.Name) {
				continue
			}
			w.schedule(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	ok, err := doublestar.Match(w.cfg.Pattern, strings.ToLower(filepath.Base(path)))
	return err == nil && ok
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		log.Printf("metadata file settled: %s", path)
		if err := w.start(ctx, path); err != nil {
			log.Printf("start ingest for %s: %v", path, err)
		}
	})
}
