package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sydlexius/millpond/internal/event"
)

// Service watches the library root for subdirectory creation and removal,
// triggering scans and publishing events in response.
type Service struct {
	scanFn      func(ctx context.Context) error
	libraryPath string
	eventBus    *event.Bus
	logger      *slog.Logger
	debounce    time.Duration

	mu        sync.Mutex
	knownDirs map[string]struct{} // known subdirectory names under the root
}

// NewService creates a new filesystem watcher service.
func NewService(scanFn func(ctx context.Context) error, libraryPath string, eventBus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		scanFn:      scanFn,
		libraryPath: filepath.Clean(libraryPath),
		eventBus:    eventBus,
		logger:      logger.With("component", "fs-watcher"),
		debounce:    1 * time.Second,
		knownDirs:   make(map[string]struct{}),
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Start blocks until ctx is canceled. It creates an fsnotify watcher on the
// library root and dispatches events for its direct children.
func (s *Service) Start(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("fsnotify unavailable, watcher disabled", "error", err)
		return
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(s.libraryPath); err != nil {
		s.logger.Error("failed to watch library path", "path", s.libraryPath, "error", err)
		return
	}

	// Snapshot existing subdirectories so Remove events can be verified.
	s.mu.Lock()
	s.knownDirs = readDirSnapshot(s.libraryPath)
	s.mu.Unlock()

	s.logger.Info("filesystem watcher starting", "path", s.libraryPath)

	// Debounce timer for coalescing create events into a single scan.
	// Starts stopped; reset on each create event.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	scanPending := false

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("filesystem watcher stopping")
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleFSEvent(ev, debounceTimer, &scanPending)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-debounceTimer.C:
			if scanPending {
				scanPending = false
				s.logger.Info("debounce elapsed, triggering scan")
				if err := s.scanFn(ctx); err != nil {
					s.logger.Error("scan triggered by fs watcher failed", "error", err)
				}
			}
		}
	}
}

func (s *Service) handleFSEvent(ev fsnotify.Event, debounceTimer *time.Timer, scanPending *bool) {
	// Only handle create, remove, and rename operations.
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	// Only react to direct children of the library root.
	if filepath.Dir(ev.Name) != s.libraryPath {
		return
	}

	dirName := filepath.Base(ev.Name)

	if ev.Has(fsnotify.Create) {
		// Verify the created entry is a directory.
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return
		}

		// Track the new directory so Remove events can be verified.
		s.mu.Lock()
		s.knownDirs[dirName] = struct{}{}
		s.mu.Unlock()

		s.logger.Info("directory created in library", "path", ev.Name, "name", dirName)

		s.eventBus.Publish(event.Event{
			Type: event.FSDirCreated,
			Data: map[string]any{
				"path": ev.Name,
				"name": dirName,
			},
		})

		// Reset debounce timer to coalesce rapid creates.
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.debounce)
		*scanPending = true
		return
	}

	// Remove or Rename: only emit if the entry was a known directory.
	s.mu.Lock()
	_, wasDir := s.knownDirs[dirName]
	if wasDir {
		delete(s.knownDirs, dirName)
	}
	s.mu.Unlock()

	if !wasDir {
		return
	}

	s.logger.Warn("directory removed from library", "path", ev.Name, "name", dirName)

	s.eventBus.Publish(event.Event{
		Type: event.FSDirRemoved,
		Data: map[string]any{
			"path": ev.Name,
			"name": dirName,
		},
	})

	// A removed directory leaves stale rows behind; reconcile them.
	if !debounceTimer.Stop() {
		select {
		case <-debounceTimer.C:
		default:
		}
	}
	debounceTimer.Reset(s.debounce)
	*scanPending = true
}

// readDirSnapshot reads directory entries and returns a set of subdirectory names.
func readDirSnapshot(path string) map[string]struct{} {
	snap := make(map[string]struct{})
	entries, err := os.ReadDir(path)
	if err != nil {
		return snap
	}
	for _, e := range entries {
		if e.IsDir() {
			snap[e.Name()] = struct{}{}
		}
	}
	return snap
}
