package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sydlexius/millpond/internal/event"
	"github.com/sydlexius/millpond/internal/item"
)

// File extensions the scanner turns into library items. Everything else
// (artwork, nfo sidecars, subtitles) is treated as supporting material.
var (
	audioExtensions = map[string]bool{
		".mp3": true, ".flac": true, ".m4a": true, ".aac": true,
		".ogg": true, ".opus": true, ".wav": true, ".wma": true,
	}
	videoExtensions = map[string]bool{
		".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
		".mov": true, ".webm": true, ".wmv": true, ".ts": true,
	}
)

// Service runs filesystem scans against the media library, keeping the
// item tree in sync with what is on disk.
type Service struct {
	items       *item.Store
	logger      *slog.Logger
	libraryPath string
	exclusions  map[string]bool
	eventBus    *event.Bus

	mu          sync.Mutex
	currentScan *ScanResult
}

// NewService creates a scanner service.
func NewService(items *item.Store, logger *slog.Logger, libraryPath string, exclusions []string) *Service {
	excMap := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		excMap[strings.ToLower(e)] = true
	}
	return &Service{
		items:       items,
		logger:      logger,
		libraryPath: filepath.Clean(libraryPath),
		exclusions:  excMap,
	}
}

// SetEventBus sets the event bus for publishing scan events.
func (s *Service) SetEventBus(bus *event.Bus) {
	s.eventBus = bus
}

// Run starts a filesystem scan. Only one scan runs at a time.
// Returns a snapshot of the initial scan result (safe to read without synchronization).
func (s *Service) Run(ctx context.Context) (*ScanResult, error) {
	s.mu.Lock()
	if s.currentScan != nil && s.currentScan.Status == "running" {
		s.mu.Unlock()
		return nil, fmt.Errorf("scan already in progress")
	}

	result := &ScanResult{
		ID:        uuid.New().String(),
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	s.currentScan = result
	snapshot := *result
	s.mu.Unlock()

	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: event.ScanStarted,
			Data: map[string]any{"scan_id": result.ID},
		})
	}

	go s.runScan(ctx, result)

	return &snapshot, nil
}

// Status returns a snapshot of the current or most recent scan result.
// The returned value is a copy and safe to read without synchronization.
func (s *Service) Status() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentScan == nil {
		return nil
	}
	snapshot := *s.currentScan
	return &snapshot
}

func (s *Service) runScan(ctx context.Context, result *ScanResult) {
	defer func() {
		s.mu.Lock()
		now := time.Now().UTC()
		result.CompletedAt = &now
		if result.Status == "running" {
			result.Status = "completed"
		}
		s.mu.Unlock()

		if s.eventBus != nil {
			s.eventBus.Publish(event.Event{
				Type: event.ScanCompleted,
				Data: map[string]any{
					"scan_id":           result.ID,
					"status":            result.Status,
					"total_directories": result.TotalDirectories,
					"new_items":         result.NewItems,
					"offline_items":     result.OfflineItems,
				},
			})
		}
	}()

	root, err := s.ensureRoot(ctx)
	if err != nil {
		s.fail(result, fmt.Sprintf("preparing library root: %v", err))
		return
	}

	discovered := map[string]bool{root.Path: true}

	if err := s.scanDirectory(ctx, root, result, discovered); err != nil {
		if ctx.Err() != nil {
			s.fail(result, "scan canceled")
		} else {
			s.fail(result, err.Error())
		}
		return
	}

	s.detectVanished(ctx, root.ID, discovered, result)
}

func (s *Service) fail(result *ScanResult, msg string) {
	s.mu.Lock()
	result.Status = "failed"
	result.Error = msg
	s.mu.Unlock()
	s.logger.Error("scan failed", "error", msg, "path", s.libraryPath)
}

// ensureRoot returns the library root item, creating it on first scan.
func (s *Service) ensureRoot(ctx context.Context) (*item.Item, error) {
	existing, err := s.items.GetByPath(ctx, s.libraryPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	root := &item.Item{
		Name:         filepath.Base(s.libraryPath),
		Kind:         item.KindFolder,
		LocationKind: item.LocationFileSystem,
		Path:         s.libraryPath,
	}
	if err := s.items.Create(ctx, root); err != nil {
		return nil, err
	}
	s.logger.Info("library root created", "path", s.libraryPath)
	return root, nil
}

// scanDirectory reconciles a single directory and recurses into subdirectories.
func (s *Service) scanDirectory(ctx context.Context, parent *item.Item, result *ScanResult, discovered map[string]bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	entries, err := os.ReadDir(parent.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", parent.Path, err)
	}

	s.mu.Lock()
	result.TotalDirectories++
	s.mu.Unlock()

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if s.exclusions[strings.ToLower(entry.Name())] {
			s.logger.Debug("entry excluded", "name", entry.Name(), "parent", parent.Path)
			continue
		}

		entryPath := filepath.Join(parent.Path, entry.Name())
		child, err := s.reconcileEntry(ctx, parent, entry, entryPath, result)
		if err != nil {
			s.logger.Warn("error processing entry", "path", entryPath, "error", err)
			continue
		}
		if child != nil {
			discovered[entryPath] = true
			if entry.IsDir() {
				if err := s.scanDirectory(ctx, child, result, discovered); err != nil {
					if ctx.Err() != nil {
						return err
					}
					s.logger.Warn("error scanning directory", "path", entryPath, "error", err)
				}
			}
		}
	}

	return nil
}

// reconcileEntry upserts the item for one directory entry. Returns nil for
// entries that do not map to an item (artwork, sidecar files).
func (s *Service) reconcileEntry(ctx context.Context, parent *item.Item, entry fs.DirEntry, entryPath string, result *ScanResult) (*item.Item, error) {
	kind := classifyEntry(entry)
	if kind == "" {
		return nil, nil
	}

	existing, err := s.items.GetByPath(ctx, entryPath)
	if err != nil {
		return nil, fmt.Errorf("looking up item by path: %w", err)
	}

	if existing == nil {
		it := &item.Item{
			Name:         itemName(entry),
			Kind:         kind,
			LocationKind: item.LocationFileSystem,
			Path:         entryPath,
			ParentID:     parent.ID,
		}
		if err := s.items.Create(ctx, it); err != nil {
			return nil, fmt.Errorf("creating item: %w", err)
		}
		s.mu.Lock()
		result.NewItems++
		s.mu.Unlock()
		s.logger.Debug("new item discovered", "name", it.Name, "kind", it.Kind, "path", entryPath)
		return it, nil
	}

	// An item that went offline and is back on disk is reinstated.
	if existing.LocationKind == item.LocationOffline {
		if err := s.items.SetLocationKind(ctx, existing.ID, item.LocationFileSystem); err != nil {
			return nil, fmt.Errorf("reinstating item: %w", err)
		}
		existing.LocationKind = item.LocationFileSystem
		s.mu.Lock()
		result.UpdatedItems++
		s.mu.Unlock()
		s.logger.Debug("item back online", "name", existing.Name, "path", entryPath)
	}

	return existing, nil
}

// Revalidate reconciles a folder's direct children against the directory on
// disk: rows whose backing path vanished are removed (together with their
// descendants), and new directory entries are created.
func (s *Service) Revalidate(ctx context.Context, folder *item.Item) error {
	if folder.Path == "" {
		return nil
	}

	entries, err := os.ReadDir(folder.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// The folder itself is gone; a full scan will sort out the subtree.
			s.logger.Warn("revalidate target missing", "path", folder.Path)
			return s.items.SetLocationKind(ctx, folder.ID, item.LocationOffline)
		}
		return fmt.Errorf("reading %s: %w", folder.Path, err)
	}

	onDisk := make(map[string]fs.DirEntry, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || s.exclusions[strings.ToLower(entry.Name())] {
			continue
		}
		onDisk[filepath.Join(folder.Path, entry.Name())] = entry
	}

	children, err := s.items.Children(ctx, folder.ID)
	if err != nil {
		return fmt.Errorf("listing children: %w", err)
	}

	for i := range children {
		child := &children[i]
		if child.LocationKind != item.LocationFileSystem || child.Path == "" {
			continue
		}
		if _, ok := onDisk[child.Path]; ok {
			delete(onDisk, child.Path)
			continue
		}
		if err := s.items.Remove(ctx, child.ID); err != nil {
			s.logger.Warn("failed to remove vanished item", "id", child.ID, "error", err)
			continue
		}
		s.logger.Debug("item removed during revalidation", "name", child.Name, "path", child.Path)
	}

	for path, entry := range onDisk {
		kind := classifyEntry(entry)
		if kind == "" {
			continue
		}
		it := &item.Item{
			Name:         itemName(entry),
			Kind:         kind,
			LocationKind: item.LocationFileSystem,
			Path:         path,
			ParentID:     folder.ID,
		}
		if err := s.items.Create(ctx, it); err != nil {
			s.logger.Warn("failed to create item during revalidation", "path", path, "error", err)
		}
	}

	return nil
}

// detectVanished marks filesystem items whose paths disappeared as offline.
// Rows are kept so the deletion protocol can still act on stale entries.
func (s *Service) detectVanished(ctx context.Context, rootID string, discovered map[string]bool, result *ScanResult) {
	known, err := s.items.RecursiveChildren(ctx, rootID)
	if err != nil {
		s.logger.Warn("failed to list items for offline check", "error", err)
		return
	}

	for i := range known {
		it := &known[i]
		if it.LocationKind != item.LocationFileSystem || it.Path == "" {
			continue
		}
		if discovered[it.Path] || !strings.HasPrefix(it.Path, s.libraryPath) {
			continue
		}
		if err := s.items.SetLocationKind(ctx, it.ID, item.LocationOffline); err != nil {
			s.logger.Warn("failed to mark item offline", "id", it.ID, "error", err)
			continue
		}
		s.mu.Lock()
		result.OfflineItems++
		s.mu.Unlock()
		s.logger.Debug("item marked offline (path gone)", "name", it.Name, "path", it.Path)
	}
}

// classifyEntry maps a directory entry to an item kind. Empty string means
// the entry is not an item.
func classifyEntry(entry fs.DirEntry) item.Kind {
	if entry.IsDir() {
		return item.KindFolder
	}
	ext := strings.ToLower(filepath.Ext(entry.Name()))
	switch {
	case audioExtensions[ext]:
		return item.KindSong
	case videoExtensions[ext]:
		base := strings.ToLower(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		if base == "trailer" || strings.HasSuffix(base, "-trailer") {
			return item.KindTrailer
		}
		return item.KindMovie
	default:
		return ""
	}
}

func itemName(entry fs.DirEntry) string {
	if entry.IsDir() {
		return entry.Name()
	}
	return strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
}
