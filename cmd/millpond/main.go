package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"
	"golang.org/x/term"

	"github.com/sydlexius/millpond/internal/api"
	"github.com/sydlexius/millpond/internal/api/middleware"
	"github.com/sydlexius/millpond/internal/auth"
	"github.com/sydlexius/millpond/internal/config"
	"github.com/sydlexius/millpond/internal/database"
	"github.com/sydlexius/millpond/internal/event"
	"github.com/sydlexius/millpond/internal/item"
	"github.com/sydlexius/millpond/internal/logging"
	"github.com/sydlexius/millpond/internal/maintenance"
	"github.com/sydlexius/millpond/internal/scanner"
	"github.com/sydlexius/millpond/internal/user"
	"github.com/sydlexius/millpond/internal/version"
	"github.com/sydlexius/millpond/internal/watcher"
)

func main() {
	// Handle subcommands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "reset-admin":
			if err := resetAdmin(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("MP_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	logManager, logger := logging.NewManager(logCfg)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Reload logging settings from DB (overrides config file values if present)
	loadDBLoggingConfig(db, logManager, logger)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize event bus
	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()

	// Log lifecycle events as they flow through the bus
	for _, t := range []event.Type{
		event.ScanStarted, event.ScanCompleted, event.ItemDeleted,
		event.UserCreated, event.UserDeleted,
		event.FSDirCreated, event.FSDirRemoved,
	} {
		eventType := t
		eventBus.Subscribe(eventType, func(e event.Event) {
			logger.Info("event", slog.String("type", string(eventType)), slog.Any("data", e.Data))
		})
	}

	// Initialize stores and services
	userStore := user.NewStore(db)
	itemStore := item.NewStore(db)
	authService := auth.NewService(db, userStore)
	themeResolver := item.NewResolver(itemStore, logger)

	scannerService := scanner.NewService(itemStore, logger, cfg.Library.Path, cfg.Scanner.Exclusions)
	scannerService.SetEventBus(eventBus)

	lifecycle := item.NewLifecycle(itemStore, scannerService, eventBus, logger)
	defer lifecycle.WaitBackground()

	maintenanceService := maintenance.NewService(db, cfg.Database.Path, authService, logger)

	logger.Info("starting millpond",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	// Set up HTTP router
	router := api.NewRouter(api.RouterDeps{
		AuthService:    authService,
		Users:          userStore,
		Items:          itemStore,
		Themes:         themeResolver,
		Lifecycle:      lifecycle,
		ScannerService: scannerService,
		Maintenance:    maintenanceService,
		LogManager:     logManager,
		LoginLimiter:   middleware.NewLoginRateLimiter(ctx),
		EventBus:       eventBus,
		DB:             db,
		Logger:         logger,
		BasePath:       cfg.Server.BasePath,
	})

	// Start scan scheduler (initial scan at boot, then a fixed interval)
	if cfg.Scanner.IntervalHours > 0 {
		go func() {
			if _, err := scannerService.Run(ctx); err != nil {
				logger.Error("initial scan failed", "error", err)
			}
			ticker := time.NewTicker(time.Duration(cfg.Scanner.IntervalHours) * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := scannerService.Run(ctx); err != nil {
						logger.Error("scheduled scan failed", "error", err)
					}
				}
			}
		}()
	}

	// Start filesystem watcher
	if cfg.Scanner.Watch {
		scanFn := func(ctx context.Context) error {
			_, err := scannerService.Run(ctx)
			return err
		}
		watcherService := watcher.NewService(scanFn, cfg.Library.Path, eventBus, logger)
		go watcherService.Start(ctx)
	}

	// Start maintenance scheduler (reads interval from DB settings, defaults to daily)
	{
		maintEnabled := getDBBoolSetting(ctx, db, "db_maintenance.enabled", true)
		maintHours := getDBIntSetting(ctx, db, "db_maintenance.interval_hours", 24)
		if maintHours <= 0 {
			maintHours = 24
		}
		if maintEnabled {
			go maintenanceService.StartScheduler(ctx, time.Duration(maintHours)*time.Hour)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	handler := router.Handler()
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// With TLS configured, serve HTTPS over TCP plus HTTP/3 over QUIC on the
	// same port, advertising the QUIC listener via Alt-Svc.
	var h3srv *http3.Server
	if cfg.Server.TLSCert != "" {
		h3srv = &http3.Server{Addr: addr, Handler: handler}
		srv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h3srv.SetQUICHeaders(w.Header()); err != nil {
				logger.Debug("setting quic headers", "error", err)
			}
			handler.ServeHTTP(w, r)
		})
		go func() {
			logger.Info("http3 server starting", slog.String("addr", addr))
			if err := h3srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error("http3 server error", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		var err error
		if cfg.Server.TLSCert != "" {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h3srv != nil {
		if err := h3srv.Close(); err != nil {
			logger.Error("closing http3 server", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}

// resetAdmin resets one account's password from the terminal and makes sure
// the account has administrator access. This is an offline recovery path for
// a lost admin password; when no accounts exist yet it creates the account.
func resetAdmin(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: millpond reset-admin <username>")
	}
	name := args[0]

	configPath := os.Getenv("MP_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	ctx := context.Background()
	userStore := user.NewStore(db)
	authService := auth.NewService(db, userStore)

	hasUsers, err := authService.HasUsers(ctx)
	if err != nil {
		return fmt.Errorf("checking accounts: %w", err)
	}
	if !hasUsers {
		if _, err := authService.Setup(ctx, name, password); err != nil {
			return fmt.Errorf("creating admin account: %w", err)
		}
		fmt.Printf("Created administrator account %q.\n", name)
		return nil
	}

	u, err := userStore.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up %q: %w", name, err)
	}

	if err := authService.ResetPassword(ctx, u.ID, password); err != nil {
		return fmt.Errorf("resetting password: %w", err)
	}

	if !u.Configuration.IsAdministrator {
		cfgUp := u.Configuration
		cfgUp.IsAdministrator = true
		cfgUp.IsDisabled = false
		if _, err := userStore.Update(ctx, u.ID, user.UpdateRequest{
			Name:          u.Name,
			Configuration: cfgUp,
		}); err != nil {
			return fmt.Errorf("granting administrator access: %w", err)
		}
	}

	fmt.Printf("Password reset for %q.\n", name)
	return nil
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Print("New password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return string(first), nil
}

// loadDBLoggingConfig reads logging settings from the DB and reconfigures the
// log manager if any are present. Called once after migrations.
func loadDBLoggingConfig(db *sql.DB, mgr *logging.Manager, logger *slog.Logger) {
	ctx := context.Background()
	level := getDBStringSetting(ctx, db, "logging.level", "")
	format := getDBStringSetting(ctx, db, "logging.format", "")
	if level == "" && format == "" {
		return // no DB overrides
	}

	cfg := mgr.Config()
	if level != "" && logging.ValidLevel(level) {
		cfg.Level = level
	}
	if format != "" && logging.ValidFormat(format) {
		cfg.Format = format
	}
	cfg.FilePath = getDBStringSetting(ctx, db, "logging.file_path", cfg.FilePath)
	if v := getDBIntSetting(ctx, db, "logging.file_max_size_mb", 0); v > 0 {
		cfg.FileMaxSizeMB = v
	}
	if v := getDBIntSetting(ctx, db, "logging.file_max_files", 0); v > 0 {
		cfg.FileMaxFiles = v
	}
	if v := getDBIntSetting(ctx, db, "logging.file_max_age_days", 0); v > 0 {
		cfg.FileMaxAgeDays = v
	}

	mgr.Reconfigure(cfg)
	logger.Info("applied DB logging overrides", "config", cfg.String())
}

// getDBStringSetting reads a string setting directly from the database.
func getDBStringSetting(ctx context.Context, db *sql.DB, key, fallback string) string {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

// getDBBoolSetting reads a boolean setting directly from the database.
func getDBBoolSetting(ctx context.Context, db *sql.DB, key string, fallback bool) bool {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return fallback
	}
	return v == "true" || v == "1"
}

// getDBIntSetting reads an integer setting directly from the database.
func getDBIntSetting(ctx context.Context, db *sql.DB, key string, fallback int) int {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil || v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
