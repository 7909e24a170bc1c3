package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/sydlexius/millpond/internal/event"
)

// Deletion failure modes surfaced to callers.
var (
	// ErrItemOffline rejects deletion of an item whose backing storage is
	// currently unreachable.
	ErrItemOffline = errors.New("item is currently offline")

	// ErrUnsupportedDelete rejects deletion of a rootless virtual item; there
	// is no defined removal strategy for it.
	ErrUnsupportedDelete = errors.New("unsupported deletion target")
)

// Revalidator re-checks one folder's children against its backing storage.
// The scanner implements this.
type Revalidator interface {
	Revalidate(ctx context.Context, folder *Item) error
}

// Lifecycle carries out item deletion. The removal strategy is decided once
// at entry from the item's location kind; follow-up work (parent revalidation)
// is best-effort and never surfaced to the caller.
type Lifecycle struct {
	store       *Store
	revalidator Revalidator
	bus         *event.Bus
	logger      *slog.Logger

	// tracks detached revalidation goroutines so tests can wait for them
	background sync.WaitGroup
}

// NewLifecycle creates a lifecycle manager. revalidator and bus may be nil.
func NewLifecycle(store *Store, revalidator Revalidator, bus *event.Bus, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		store:       store,
		revalidator: revalidator,
		bus:         bus,
		logger:      logger.With(slog.String("component", "item-lifecycle")),
	}
}

// Delete removes an item from the library.
//
// Offline items are rejected outright. Filesystem-backed items have their
// path removed (a missing path is a no-op; the delete operates on library
// metadata regardless of physical presence), then the parent folder is
// revalidated in the background. Virtual items are detached from their
// parent; a rootless virtual item cannot be deleted.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	it, err := l.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case it.LocationKind == LocationOffline:
		return fmt.Errorf("%s: %w", it.Name, ErrItemOffline)

	case it.LocationKind == LocationFileSystem:
		if err := removePath(it.Path); err != nil {
			return fmt.Errorf("removing path %s: %w", it.Path, err)
		}
		if it.ParentID != "" {
			l.revalidateParent(ctx, it.ParentID)
		}

	case it.ParentID != "":
		// In-memory item: ask the parent to detach it. Failure is logged and
		// swallowed; the delete still succeeds from the caller's perspective.
		if err := l.store.RemoveChild(ctx, it.ParentID, it.ID); err != nil {
			l.logger.Error("detaching item from parent",
				"item_id", it.ID, "parent_id", it.ParentID, "error", err)
		}

	default:
		return fmt.Errorf("%s: %w", it.Name, ErrUnsupportedDelete)
	}

	if l.bus != nil {
		l.bus.Publish(event.Event{
			Type: event.ItemDeleted,
			Data: map[string]any{"item_id": it.ID, "name": it.Name},
		})
	}
	return nil
}

// revalidateParent starts a detached background revalidation of the parent
// folder. The caller never sees the outcome; it is logged only.
func (l *Lifecycle) revalidateParent(ctx context.Context, parentID string) {
	if l.revalidator == nil {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	l.background.Add(1)
	go func() {
		defer l.background.Done()

		parent, err := l.store.GetByID(bgCtx, parentID)
		if err != nil {
			l.logger.Error("loading parent for revalidation", "parent_id", parentID, "error", err)
			return
		}
		if err := l.revalidator.Revalidate(bgCtx, parent); err != nil {
			l.logger.Error("revalidating parent after delete", "parent_id", parentID, "error", err)
		}
	}()
}

// WaitBackground blocks until all detached follow-up work has finished.
func (l *Lifecycle) WaitBackground() {
	l.background.Wait()
}

// removePath deletes the backing path. Directories are removed recursively,
// files with a single delete, and a missing path is a no-op.
func removePath(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}
