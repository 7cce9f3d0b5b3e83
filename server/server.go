// Package server exposes the sync engine over HTTP: push/pull, collection
// moves, external reconciliation, and a websocket change feed that tells
// connected devices when their cursor went stale.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/collection"
	"github.com/driftpad/driftpad/conf"
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/memos"
	"github.com/driftpad/driftpad/reconcile"
	"github.com/driftpad/driftpad/sync"
)

// UserHeader carries the caller identity. Authentication proper lives in
// front of this server; by the time a request arrives the header is
// trusted.
const UserHeader = "X-Driftpad-User"

// Server wires the sync engine, the collection tree operator, and the
// external reconciler behind one HTTP listener.
type Server struct {
	cfg    *conf.Config
	db     *sql.DB
	logger *zap.SugaredLogger

	engine     *sync.Engine
	tree       *collection.Operator
	reconciler *reconcile.Reconciler
	hub        *hub

	httpServer *http.Server
}

// New creates a server from the loaded configuration. The reconciler is
// only wired when a Memos base URL is configured; its endpoint reports
// unavailable otherwise.
func New(cfg *conf.Config, database *sql.DB) *Server {
	log := logger.ComponentLogger("server")

	tree := collection.NewOperator(log, collection.Options{
		MaxClockSkewMs: cfg.Sync.MaxClockSkewMs,
	})
	engine := sync.NewEngine(database, log, sync.Options{
		MaxClockSkewMs: cfg.Sync.MaxClockSkewMs,
		Collections:    tree,
	})
	engine.SetPullLimits(cfg.Sync.PullDefaultLimit, cfg.Sync.PullMaxLimit)

	var reconciler *reconcile.Reconciler
	if cfg.Memos.BaseURL != "" {
		client := memos.NewClient(memos.Config{
			BaseURL:           cfg.Memos.BaseURL,
			Token:             cfg.Memos.Token,
			Timeout:           time.Duration(cfg.Memos.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Memos.RequestsPerSecond,
		}, log)
		reconciler = reconcile.NewReconciler(database, client, log, reconcile.Config{
			LockTimeout: time.Duration(cfg.Reconcile.LockTimeoutMs) * time.Millisecond,
		})
	}

	s := &Server{
		cfg:        cfg,
		db:         database,
		logger:     log,
		engine:     engine,
		tree:       tree,
		reconciler: reconciler,
		hub:        newHub(log),
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sync/push", s.handlePush)
	mux.HandleFunc("/api/sync/pull", s.handlePull)
	mux.HandleFunc("/api/collections/move", s.handleMove)
	mux.HandleFunc("/api/memos/reconcile", s.handleReconcile)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Infow("server listening",
		logger.FieldAddress, s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.httpServer.Shutdown(ctx)
}

// userID resolves the caller identity, writing a 401 when absent.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
		return "", false
	}
	return userID, true
}
