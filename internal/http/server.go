package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"glassbooks/internal/cache"
	applog "glassbooks/internal/log"
	"glassbooks/internal/services"
)

// Options configures the API server.
type Options struct {
	Addr string
	// AccessPIN enables session auth on mutating routes. Empty disables
	// auth entirely (single-user local deployments).
	AccessPIN string
}

// Server is the JSON API over the ledger service.
type Server struct {
	http.Server
	svc        *services.LedgerService
	logger     *applog.Logger
	structured *applog.StructuredLogger
	sessions   *cache.LRUCache[sessionState]
	cacheMgr   *cache.Manager
	accessPIN  string
	limiter    *rateLimiter

	shutdownOnce sync.Once
}

// NewServer wires the route table and middleware around the ledger service.
func NewServer(opts Options, svc *services.LedgerService, logger *applog.Logger) *Server {
	s := &Server{
		svc:        svc,
		logger:     logger.WithComponent(applog.ComponentHTTP),
		structured: applog.NewStructuredLogger(logger),
		sessions:   cache.NewLRUCache[sessionState](maxSessions, sessionTTL),
		cacheMgr:   cache.NewManager(),
		accessPIN:  opts.AccessPIN,
		limiter:    newRateLimiter(),
	}

	// Expired sessions otherwise linger until the LRU evicts them.
	s.cacheMgr.Register(s.sessions)
	s.cacheMgr.StartCleanup(sessionTTL / 4)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/lock", s.auth(s.handleLock))

	mux.HandleFunc("GET /api/transactions", s.auth(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.auth(s.handleCreateTransaction))

	mux.HandleFunc("GET /api/projects", s.auth(s.handleListProjects))
	mux.HandleFunc("POST /api/projects", s.auth(s.handleCreateProject))
	mux.HandleFunc("DELETE /api/projects/{id}", s.auth(s.handleDeleteProject))

	mux.HandleFunc("GET /api/budgets", s.auth(s.handleListBudgets))
	mux.HandleFunc("PUT /api/budgets", s.auth(s.handleUpsertBudget))

	mux.HandleFunc("GET /api/stats/monthly", s.auth(s.handleMonthlyStats))
	mux.HandleFunc("GET /api/stats/daily", s.auth(s.handleDailyStats))
	mux.HandleFunc("GET /api/stats/categories", s.auth(s.handleCategoryStats))
	mux.HandleFunc("GET /api/stats/tags", s.auth(s.handleTagStats))

	mux.HandleFunc("GET /api/snapshot", s.auth(s.handleExportSnapshot))
	mux.HandleFunc("POST /api/snapshot/validate", s.auth(s.handleValidateSnapshot))
	mux.HandleFunc("POST /api/snapshot/import", s.auth(s.handleImportSnapshot))

	mux.HandleFunc("POST /api/scan", s.auth(s.handleScanReceipt))
	mux.HandleFunc("POST /api/reset", s.auth(s.handleReset))

	s.Addr = opts.Addr
	s.Handler = s.withMiddleware(mux)
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown drains in-flight requests and stops the limiter's cleanup
// goroutine. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		s.cacheMgr.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
