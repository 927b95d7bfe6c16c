// Package watcher delivers change notifications for the files of a single
// folder. It wraps fsnotify, filters names through a walk.Matcher and
// joins the two halves of a rename.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CZERTAINLY/symstat/internal/model"
	"github.com/CZERTAINLY/symstat/internal/stats"
	"github.com/CZERTAINLY/symstat/internal/walk"
)

const (
	DefaultQueue        = 64
	DefaultRenameWindow = 100 * time.Millisecond
)

var (
	// ErrPathNotExist indicates the watched folder does not exist.
	ErrPathNotExist = errors.New("watch path does not exist")
	// ErrPathNotDirectory indicates the watched path is not a directory.
	ErrPathNotDirectory = errors.New("watch path is not a directory")
)

type Config struct {
	Folder string
	Match  walk.Matcher
	// Queue is the capacity of the events channel. A full queue blocks the
	// watcher until the consumer catches up.
	Queue        int
	RenameWindow time.Duration
	Counter      *stats.Stats
}

type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	pair     *pairer
	events   chan model.Event
	stopOnce sync.Once
	done     chan struct{}
}

// New validates the folder and prepares a watcher. Nothing is observed
// until Start is called.
func New(cfg Config) (*Watcher, error) {
	if err := validate(cfg.Folder); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Folder, err)
	}
	if cfg.Queue <= 0 {
		cfg.Queue = DefaultQueue
	}
	if cfg.RenameWindow <= 0 {
		cfg.RenameWindow = DefaultRenameWindow
	}
	cfg.Folder = filepath.Clean(cfg.Folder)

	fsw, err := fsnotify.NewBufferedWatcher(uint(cfg.Queue))
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		pair:   newPairer(cfg.RenameWindow, cfg.Match.Match),
		events: make(chan model.Event, cfg.Queue),
		done:   make(chan struct{}),
	}, nil
}

func validate(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return ErrPathNotExist
	case err != nil:
		return err
	case !info.IsDir():
		return ErrPathNotDirectory
	}
	return nil
}

// Start begins watching. The returned channel is closed when ctx is done
// or Stop is called.
func (w *Watcher) Start(ctx context.Context) (<-chan model.Event, error) {
	if err := w.fsw.Add(w.cfg.Folder); err != nil {
		return nil, fmt.Errorf("watching %s: %w", w.cfg.Folder, err)
	}
	go w.run(ctx)
	return w.events, nil
}

// Stop closes the underlying watcher. The event channel is closed once
// the pump notices, see Done. Safe to call multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// Done is closed once the watcher stopped delivering events.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)
	defer func() {
		_ = w.Stop()
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var expire <-chan time.Time
		if at, ok := w.pair.deadline(); ok {
			timer.Reset(time.Until(at))
			expire = timer.C
		}

		var out []model.Event
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			slog.DebugContext(ctx, "fsnotify", "event", ev.String())
			var ignored int
			out, ignored = w.pair.push(ev, time.Now())
			for range ignored {
				w.cfg.Counter.IncIgnoredEvents()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.watchError(ctx, err)
		case now := <-expire:
			out = w.pair.expire(now)
		}
		timer.Stop()

		for _, ev := range out {
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) watchError(ctx context.Context, err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.cfg.Counter.IncWatcherOverflows()
		slog.WarnContext(ctx, "watcher queue overflow: events were lost", "error", err)
		return
	}
	w.cfg.Counter.IncWatcherErrors()
	slog.ErrorContext(ctx, "watcher", "error", err)
}
