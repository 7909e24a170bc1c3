package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/millpond/internal/database"
	"github.com/sydlexius/millpond/internal/item"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupScanner(t *testing.T, libraryPath string, exclusions ...string) (*Service, *item.Store) {
	t.Helper()
	db := setupTestDB(t)
	items := item.NewStore(db)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(items, logger, libraryPath, exclusions), items
}

func createDir(t *testing.T, base string, parts ...string) string {
	t.Helper()
	dir := filepath.Join(append([]string{base}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	return dir
}

func createFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatalf("creating file %s: %v", path, err)
	}
	return path
}

func waitForScan(t *testing.T, svc *Service, timeout time.Duration) *ScanResult { //nolint:unparam
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status := svc.Status()
		if status != nil && status.Status != "running" {
			return status
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("scan did not complete within timeout")
	return nil
}

func TestScan_EmptyLibrary(t *testing.T) {
	libDir := t.TempDir()
	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	result, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != "running" {
		t.Errorf("initial status = %q, want running", result.Status)
	}

	final := waitForScan(t, svc, 5*time.Second)
	if final.Status != "completed" {
		t.Errorf("final status = %q, want completed", final.Status)
	}

	// The library root item is created even for an empty library.
	root, err := items.Root(ctx)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root.Path != filepath.Clean(libDir) {
		t.Errorf("root path = %q, want %q", root.Path, libDir)
	}
	if root.Kind != item.KindFolder {
		t.Errorf("root kind = %q, want folder", root.Kind)
	}
}

func TestScan_DiscoversTree(t *testing.T) {
	libDir := t.TempDir()
	movieDir := createDir(t, libDir, "Heat (1995)")
	createFile(t, movieDir, "Heat.mkv")
	createFile(t, movieDir, "Heat-trailer.mp4")
	createFile(t, movieDir, "poster.jpg")
	albumDir := createDir(t, libDir, "Music", "OK Computer")
	createFile(t, albumDir, "01 Airbag.flac")

	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := waitForScan(t, svc, 5*time.Second)

	// Heat (1995), Music, OK Computer dirs + movie + trailer + song.
	if final.NewItems != 6 {
		t.Errorf("NewItems = %d, want 6", final.NewItems)
	}

	movie, err := items.GetByPath(ctx, filepath.Join(movieDir, "Heat.mkv"))
	if err != nil || movie == nil {
		t.Fatalf("movie lookup: item=%v err=%v", movie, err)
	}
	if movie.Kind != item.KindMovie {
		t.Errorf("movie kind = %q, want movie", movie.Kind)
	}
	if movie.Name != "Heat" {
		t.Errorf("movie name = %q, want Heat", movie.Name)
	}

	trailer, _ := items.GetByPath(ctx, filepath.Join(movieDir, "Heat-trailer.mp4"))
	if trailer == nil || trailer.Kind != item.KindTrailer {
		t.Errorf("trailer = %+v, want kind trailer", trailer)
	}

	song, _ := items.GetByPath(ctx, filepath.Join(albumDir, "01 Airbag.flac"))
	if song == nil || song.Kind != item.KindSong {
		t.Errorf("song = %+v, want kind song", song)
	}

	// Artwork does not become an item.
	poster, _ := items.GetByPath(ctx, filepath.Join(movieDir, "poster.jpg"))
	if poster != nil {
		t.Error("poster.jpg should not produce an item")
	}

	// Parent chain: song -> album dir -> Music dir -> root.
	album, _ := items.GetByPath(ctx, albumDir)
	if album == nil {
		t.Fatal("album folder not found")
	}
	if song.ParentID != album.ID {
		t.Errorf("song parent = %q, want %q", song.ParentID, album.ID)
	}
}

func TestScan_MarksVanishedOffline(t *testing.T) {
	libDir := t.TempDir()
	dir := createDir(t, libDir, "Temp Show")
	filePath := createFile(t, dir, "pilot.mkv")

	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	waitForScan(t, svc, 5*time.Second)

	if err := os.Remove(filePath); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	final := waitForScan(t, svc, 5*time.Second)

	if final.OfflineItems != 1 {
		t.Errorf("OfflineItems = %d, want 1", final.OfflineItems)
	}

	// The row survives so its stale entry can still be acted on.
	it, err := items.GetByPath(ctx, filePath)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if it == nil {
		t.Fatal("vanished item should keep its row")
	}
	if it.LocationKind != item.LocationOffline {
		t.Errorf("LocationKind = %q, want offline", it.LocationKind)
	}
}

func TestScan_ReinstatesOfflineItem(t *testing.T) {
	libDir := t.TempDir()
	dir := createDir(t, libDir, "Show")
	filePath := createFile(t, dir, "pilot.mkv")

	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	waitForScan(t, svc, 5*time.Second)

	it, _ := items.GetByPath(ctx, filePath)
	if it == nil {
		t.Fatal("item not found")
	}
	if err := items.SetLocationKind(ctx, it.ID, item.LocationOffline); err != nil {
		t.Fatalf("SetLocationKind: %v", err)
	}

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	final := waitForScan(t, svc, 5*time.Second)

	if final.UpdatedItems != 1 {
		t.Errorf("UpdatedItems = %d, want 1", final.UpdatedItems)
	}
	it, _ = items.GetByPath(ctx, filePath)
	if it.LocationKind != item.LocationFileSystem {
		t.Errorf("LocationKind = %q, want filesystem", it.LocationKind)
	}
}

func TestScan_SkipsHiddenAndExcluded(t *testing.T) {
	libDir := t.TempDir()
	createDir(t, libDir, ".hidden")
	createDir(t, libDir, "extras")
	createDir(t, libDir, "Visible")

	svc, items := setupScanner(t, libDir, "extras")
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := waitForScan(t, svc, 5*time.Second)

	if final.NewItems != 1 {
		t.Errorf("NewItems = %d, want 1", final.NewItems)
	}
	hidden, _ := items.GetByPath(ctx, filepath.Join(libDir, ".hidden"))
	if hidden != nil {
		t.Error("hidden directory should be skipped")
	}
	excluded, _ := items.GetByPath(ctx, filepath.Join(libDir, "extras"))
	if excluded != nil {
		t.Error("excluded directory should be skipped")
	}
}

func TestScan_ConcurrentPrevention(t *testing.T) {
	libDir := t.TempDir()
	for i := 0; i < 20; i++ {
		createDir(t, libDir, fmt.Sprintf("Folder %d", i))
	}
	svc, _ := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run 1: %v", err)
	}

	// Either it fails because the scan is still running, or it succeeds
	// because the first finished already. It must not panic.
	if _, err := svc.Run(ctx); err != nil {
		if err.Error() != "scan already in progress" {
			t.Errorf("unexpected error: %v", err)
		}
	}

	waitForScan(t, svc, 5*time.Second)
}

func TestRevalidate_RemovesVanishedChild(t *testing.T) {
	libDir := t.TempDir()
	showDir := createDir(t, libDir, "Show")
	epPath := createFile(t, showDir, "pilot.mkv")

	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitForScan(t, svc, 5*time.Second)

	if err := os.Remove(epPath); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	folder, _ := items.GetByPath(ctx, showDir)
	if folder == nil {
		t.Fatal("folder not found")
	}
	if err := svc.Revalidate(ctx, folder); err != nil {
		t.Fatalf("Revalidate: %v", err)
	}

	ep, err := items.GetByPath(ctx, epPath)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if ep != nil {
		t.Error("vanished child should be removed during revalidation")
	}
}

func TestRevalidate_CreatesNewChild(t *testing.T) {
	libDir := t.TempDir()
	showDir := createDir(t, libDir, "Show")

	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitForScan(t, svc, 5*time.Second)

	epPath := createFile(t, showDir, "pilot.mkv")

	folder, _ := items.GetByPath(ctx, showDir)
	if err := svc.Revalidate(ctx, folder); err != nil {
		t.Fatalf("Revalidate: %v", err)
	}

	ep, err := items.GetByPath(ctx, epPath)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if ep == nil {
		t.Fatal("new on-disk child should be created during revalidation")
	}
	if ep.ParentID != folder.ID {
		t.Errorf("parent = %q, want %q", ep.ParentID, folder.ID)
	}
}

func TestRevalidate_MissingFolderGoesOffline(t *testing.T) {
	libDir := t.TempDir()
	showDir := createDir(t, libDir, "Show")

	svc, items := setupScanner(t, libDir)
	ctx := context.Background()

	if _, err := svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitForScan(t, svc, 5*time.Second)

	folder, _ := items.GetByPath(ctx, showDir)
	if err := os.RemoveAll(showDir); err != nil {
		t.Fatalf("removing dir: %v", err)
	}

	if err := svc.Revalidate(ctx, folder); err != nil {
		t.Fatalf("Revalidate: %v", err)
	}

	folder, _ = items.GetByPath(ctx, showDir)
	if folder == nil {
		t.Fatal("folder row should survive")
	}
	if folder.LocationKind != item.LocationOffline {
		t.Errorf("LocationKind = %q, want offline", folder.LocationKind)
	}
}
