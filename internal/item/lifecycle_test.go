package item

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// recordingRevalidator records revalidation requests.
type recordingRevalidator struct {
	mu      sync.Mutex
	folders []string
	err     error
}

func (r *recordingRevalidator) Revalidate(_ context.Context, folder *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders = append(r.folders, folder.ID)
	return r.err
}

func (r *recordingRevalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.folders...)
}

func TestDeleteOfflineRejectedWithoutMutation(t *testing.T) {
	store := NewStore(setupTestDB(t))
	lc := NewLifecycle(store, nil, nil, discardLogger())
	ctx := context.Background()

	it := mustCreate(t, store, &Item{Name: "NAS Movie", Kind: KindMovie, LocationKind: LocationOffline})

	err := lc.Delete(ctx, it.ID)
	if !errors.Is(err, ErrItemOffline) {
		t.Fatalf("err = %v, want ErrItemOffline", err)
	}

	// No mutation occurred.
	if _, err := store.GetByID(ctx, it.ID); err != nil {
		t.Errorf("item should still exist: %v", err)
	}
}

func TestDeleteFileSystemRemovesDirAndRevalidatesParent(t *testing.T) {
	store := NewStore(setupTestDB(t))
	reval := &recordingRevalidator{}
	lc := NewLifecycle(store, reval, nil, discardLogger())
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "show")
	if err := os.MkdirAll(filepath.Join(dir, "season1"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	root := mustCreate(t, store, &Item{Name: "Library", Kind: KindFolder, LocationKind: LocationFileSystem})
	it := mustCreate(t, store, &Item{
		Name: "Show", Kind: KindFolder,
		LocationKind: LocationFileSystem, Path: dir, ParentID: root.ID,
	})

	if err := lc.Delete(ctx, it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	lc.WaitBackground()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory should be removed recursively, stat err = %v", err)
	}
	if calls := reval.calls(); len(calls) != 1 || calls[0] != root.ID {
		t.Errorf("revalidation calls = %v, want [%s]", calls, root.ID)
	}
}

func TestDeleteFileSystemRemovesSingleFile(t *testing.T) {
	store := NewStore(setupTestDB(t))
	lc := NewLifecycle(store, nil, nil, discardLogger())
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	it := mustCreate(t, store, &Item{Name: "Song", Kind: KindSong, LocationKind: LocationFileSystem, Path: file})
	if err := lc.Delete(ctx, it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("file should be removed, stat err = %v", err)
	}
}

func TestDeleteFileSystemMissingPathStillSucceeds(t *testing.T) {
	store := NewStore(setupTestDB(t))
	reval := &recordingRevalidator{}
	lc := NewLifecycle(store, reval, nil, discardLogger())
	ctx := context.Background()

	root := mustCreate(t, store, &Item{Name: "Library", Kind: KindFolder, LocationKind: LocationFileSystem})
	it := mustCreate(t, store, &Item{
		Name: "Gone", Kind: KindMovie,
		LocationKind: LocationFileSystem,
		Path:         filepath.Join(t.TempDir(), "never-existed"),
		ParentID:     root.ID,
	})

	if err := lc.Delete(ctx, it.ID); err != nil {
		t.Fatalf("Delete of missing path should be a no-op, got: %v", err)
	}
	lc.WaitBackground()

	if calls := reval.calls(); len(calls) != 1 {
		t.Errorf("revalidation still expected, calls = %v", calls)
	}
}

func TestDeleteRevalidationFailureIsSwallowed(t *testing.T) {
	store := NewStore(setupTestDB(t))
	reval := &recordingRevalidator{err: errors.New("scan broke")}
	lc := NewLifecycle(store, reval, nil, discardLogger())
	ctx := context.Background()

	root := mustCreate(t, store, &Item{Name: "Library", Kind: KindFolder, LocationKind: LocationFileSystem})
	it := mustCreate(t, store, &Item{
		Name: "Movie", Kind: KindMovie,
		LocationKind: LocationFileSystem,
		Path:         filepath.Join(t.TempDir(), "absent"),
		ParentID:     root.ID,
	})

	if err := lc.Delete(ctx, it.ID); err != nil {
		t.Fatalf("revalidation failure must never surface: %v", err)
	}
	lc.WaitBackground()
}

func TestDeleteVirtualDetachesFromParent(t *testing.T) {
	store := NewStore(setupTestDB(t))
	lc := NewLifecycle(store, nil, nil, discardLogger())
	ctx := context.Background()

	root := mustCreate(t, store, &Item{Name: "Library", Kind: KindFolder})
	it := mustCreate(t, store, &Item{Name: "Playlist", Kind: KindOther, LocationKind: LocationVirtual, ParentID: root.ID})

	if err := lc.Delete(ctx, it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetByID(ctx, it.ID); !isNotFound(err) {
		t.Errorf("virtual item should be detached and removed: %v", err)
	}
}

func TestDeleteRootlessVirtualUnsupported(t *testing.T) {
	store := NewStore(setupTestDB(t))
	lc := NewLifecycle(store, nil, nil, discardLogger())

	it := mustCreate(t, store, &Item{Name: "Orphan", Kind: KindOther, LocationKind: LocationVirtual})

	err := lc.Delete(context.Background(), it.ID)
	if !errors.Is(err, ErrUnsupportedDelete) {
		t.Fatalf("err = %v, want ErrUnsupportedDelete", err)
	}
}

func TestDeleteUnknownItem(t *testing.T) {
	store := NewStore(setupTestDB(t))
	lc := NewLifecycle(store, nil, nil, discardLogger())

	err := lc.Delete(context.Background(), "missing")
	if !isNotFound(err) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
