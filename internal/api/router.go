package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/sydlexius/millpond/internal/api/middleware"
	"github.com/sydlexius/millpond/internal/auth"
	"github.com/sydlexius/millpond/internal/event"
	"github.com/sydlexius/millpond/internal/item"
	"github.com/sydlexius/millpond/internal/logging"
	"github.com/sydlexius/millpond/internal/maintenance"
	"github.com/sydlexius/millpond/internal/scanner"
	"github.com/sydlexius/millpond/internal/user"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	AuthService    *auth.Service
	Users          *user.Store
	Items          *item.Store
	Themes         *item.Resolver
	Lifecycle      *item.Lifecycle
	ScannerService *scanner.Service
	Maintenance    *maintenance.Service
	LogManager     *logging.Manager
	LoginLimiter   *middleware.LoginRateLimiter
	EventBus       *event.Bus
	DB             *sql.DB
	Logger         *slog.Logger
	BasePath       string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	authService    *auth.Service
	users          *user.Store
	items          *item.Store
	themes         *item.Resolver
	lifecycle      *item.Lifecycle
	scannerService *scanner.Service
	maintenance    *maintenance.Service
	logManager     *logging.Manager
	loginLimiter   *middleware.LoginRateLimiter
	eventBus       *event.Bus
	db             *sql.DB
	logger         *slog.Logger
	basePath       string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		authService:    deps.AuthService,
		users:          deps.Users,
		items:          deps.Items,
		themes:         deps.Themes,
		lifecycle:      deps.Lifecycle,
		scannerService: deps.ScannerService,
		maintenance:    deps.Maintenance,
		logManager:     deps.LogManager,
		loginLimiter:   deps.LoginLimiter,
		eventBus:       deps.EventBus,
		db:             deps.DB,
		logger:         deps.Logger,
		basePath:       deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	authMw := middleware.Auth(r.authService)
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes (no auth)
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.HandleFunc("POST "+bp+"/api/v1/auth/setup", r.handleSetup)
	mux.HandleFunc("POST "+bp+"/api/v1/auth/login", r.rateLimited(r.handleLogin))
	mux.HandleFunc("GET "+bp+"/api/v1/users/public", r.handlePublicUsers)
	mux.HandleFunc("POST "+bp+"/api/v1/users/{name}/authenticate-by-name", r.rateLimited(r.handleAuthenticateByName))

	// Protected routes (auth required)
	mux.HandleFunc("POST "+bp+"/api/v1/auth/logout", wrapAuth(r.handleLogout, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/auth/me", wrapAuth(r.handleMe, authMw))

	mux.HandleFunc("GET "+bp+"/api/v1/items", wrapAuth(r.handleListItems, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/items/counts", wrapAuth(r.handleItemCounts, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/items/{id}", wrapAuth(r.handleGetItem, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/items/{id}", wrapAuth(r.handleDeleteItem, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/items/{id}/reviews", wrapAuth(r.handleItemReviews, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/items/{id}/theme-songs", wrapAuth(r.handleThemeSongs, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/items/{id}/theme-videos", wrapAuth(r.handleThemeVideos, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/items/{id}/theme-media", wrapAuth(r.handleThemeMedia, authMw))

	mux.HandleFunc("GET "+bp+"/api/v1/users", wrapAuth(r.handleListUsers, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/users", wrapAuth(r.handleCreateUser, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/users/{id}", wrapAuth(r.handleGetUser, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/users/{id}", wrapAuth(r.handleUpdateUser, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/users/{id}", wrapAuth(r.handleDeleteUser, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/users/{id}/password", wrapAuth(r.handleUserPassword, authMw))
	// Kept behind auth: unlike login, this endpoint distinguishes unknown
	// accounts from bad credentials.
	mux.HandleFunc("POST "+bp+"/api/v1/users/{id}/authenticate", wrapAuth(r.handleAuthenticateUser, authMw))

	mux.HandleFunc("POST "+bp+"/api/v1/library/refresh", wrapAuth(r.handleLibraryRefresh, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/library/scan-status", wrapAuth(r.handleScanStatus, authMw))

	mux.HandleFunc("GET "+bp+"/api/v1/settings/logging", wrapAuth(r.handleGetLogging, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/settings/logging", wrapAuth(r.handleUpdateLogging, authMw))

	mux.HandleFunc("GET "+bp+"/api/v1/maintenance/status", wrapAuth(r.handleMaintenanceStatus, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/optimize", wrapAuth(r.handleMaintenanceOptimize, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/vacuum", wrapAuth(r.handleMaintenanceVacuum, authMw))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}

// rateLimited wraps a handler with the login rate limiter when configured.
func (r *Router) rateLimited(fn http.HandlerFunc) http.HandlerFunc {
	if r.loginLimiter == nil {
		return fn
	}
	return func(w http.ResponseWriter, req *http.Request) {
		r.loginLimiter.Middleware(fn).ServeHTTP(w, req)
	}
}

// wrapAuth wraps a handler function with auth middleware.
func wrapAuth(fn http.HandlerFunc, authMw func(http.Handler) http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authMw(fn).ServeHTTP(w, r)
	}
}
