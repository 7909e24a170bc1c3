package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/millpond/internal/scanner"
)

func libraryTestEnv(t *testing.T) (*testEnv, *scanner.Service) {
	t.Helper()

	env := testRouter(t)
	libDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(libDir, "Movies"), 0o750); err != nil {
		t.Fatalf("creating library dir: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := scanner.NewService(env.items, logger, libDir, nil)
	env.router.scannerService = svc
	return env, svc
}

func waitForScan(t *testing.T, svc *scanner.Service) *scanner.ScanResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := svc.Status()
		if status != nil && status.Status != "running" {
			return status
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("scan did not finish within timeout")
	return nil
}

// The scan must keep running after the handler returns, even though net/http
// cancels the request context once the response goes out.
func TestHandleLibraryRefreshSurvivesRequestCancel(t *testing.T) {
	env, svc := libraryTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/library/refresh", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.handleLibraryRefresh(w, req)
	cancel()

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	result := waitForScan(t, svc)
	if result.Status != "completed" {
		t.Fatalf("scan status = %q (error %q), want completed", result.Status, result.Error)
	}
}

func TestHandleLibraryRefreshConflictWhileRunning(t *testing.T) {
	env, svc := libraryTestEnv(t)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("starting scan: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/library/refresh", nil)
	w := httptest.NewRecorder()
	env.router.handleLibraryRefresh(w, req)

	// Either the first scan is still running (conflict) or it already
	// finished and the second is accepted; both are valid orderings, but a
	// conflict must carry the in-progress message.
	if w.Code == http.StatusConflict {
		if msg := decodeErr(t, w); msg == "" {
			t.Error("conflict without an error message")
		}
	} else if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d or %d", w.Code, http.StatusConflict, http.StatusAccepted)
	}
	waitForScan(t, svc)
}

func TestHandleScanStatusIdle(t *testing.T) {
	env := testRouter(t)
	env.router.scannerService = scanner.NewService(env.items,
		slog.New(slog.NewTextHandler(os.Stderr, nil)), t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/library/scan-status", nil)
	w := httptest.NewRecorder()
	env.router.handleScanStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
