package notify

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
	"hazardsync/internal/ports"
)

// FileSignals turns writes to a SQLite database file, including its -wal
// and -journal siblings, into change signals. It suits several processes
// sharing one database file on the same host.
type FileSignals struct {
	watcher *fsnotify.Watcher
	base    string
	window  time.Duration
	local   *Broadcaster

	done chan struct{}
	wg   sync.WaitGroup
}

var _ ports.ChangeSignals = (*FileSignals)(nil)

// WatchFile watches path. Events within window of the first one are
// coalesced into a single signal.
func WatchFile(ctx context.Context, path string, window time.Duration) (*FileSignals, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return nil, errs.Wrapf(err, "resolve watch path %q", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(err, "create file watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, errs.Wrapf(err, "watch directory %s", filepath.Dir(abs))
	}

	s := &FileSignals{
		watcher: watcher,
		base:    filepath.Base(abs),
		window:  window,
		local:   NewBroadcaster(),
		done:    make(chan struct{}),
	}
	loopCtx := logging.WithComponent(context.WithoutCancel(ctx), "notify.fswatch")
	s.wg.Add(1)
	go s.loop(loopCtx)
	return s, nil
}

func (s *FileSignals) matches(name string) bool {
	return strings.HasPrefix(filepath.Base(name), s.base)
}

func (s *FileSignals) loop(ctx context.Context) {
	defer s.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.matches(ev.Name) || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if s.window <= 0 {
				_ = s.local.Notify(ctx)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.window)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			_ = s.local.Notify(ctx)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn(ctx, "file watcher error", slog.Any("err", errs.Loggable(err)))
		}
	}
}

// Notify is a no-op: the database write that caused the change already
// reaches every watcher.
func (s *FileSignals) Notify(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func (s *FileSignals) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	return s.local.Subscribe(ctx)
}

func (s *FileSignals) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	_ = s.local.Close()
	if err != nil {
		return errs.Wrap(err, "close file watcher")
	}
	return nil
}
