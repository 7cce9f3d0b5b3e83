package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/driftpad/driftpad/collection"
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/reconcile"
	"github.com/driftpad/driftpad/sync"
	"github.com/driftpad/driftpad/version"
)

// PushRequest is the push endpoint body.
type PushRequest struct {
	Mutations []sync.Mutation `json:"mutations"`
}

// handlePush applies a mutation batch and notifies the user's other
// connected devices of the new cursor.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req PushRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if len(req.Mutations) == 0 {
		writeError(w, http.StatusBadRequest, "empty mutation batch")
		return
	}

	result, err := s.engine.Push(userID, req.Mutations)
	if err != nil {
		s.logger.Errorw("push failed",
			logger.FieldUserID, userID,
			logger.FieldError, err)
		writeErrorFor(w, err)
		return
	}

	if len(result.Applied) > 0 {
		s.hub.notifyCursor(userID, result.Cursor)
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePull serves one page of the change feed.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	cursor, err := parseInt64Param(r, "cursor", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseInt64Param(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.Pull(userID, cursor, int(limit))
	if err != nil {
		s.logger.Errorw("pull failed",
			logger.FieldUserID, userID,
			logger.FieldCursor, cursor,
			logger.FieldError, err)
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMove re-parents a batch of collection items. The batch is all or
// nothing; clients observe the result through the change feed.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var moves []collection.MoveRequest
	if err := readJSON(w, r, &moves); err != nil {
		return
	}

	if err := s.tree.Move(s.db, userID, moves); err != nil {
		s.logger.Warnw("move rejected",
			logger.FieldUserID, userID,
			logger.FieldCount, len(moves),
			logger.FieldError, err)
		writeErrorFor(w, err)
		return
	}

	cursor, err := s.engine.LatestCursor(userID)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	s.hub.notifyCursor(userID, cursor)
	writeJSON(w, http.StatusOK, map[string]interface{}{"cursor": cursor})
}

// handleReconcile runs external reconciliation. mode=preview computes
// counts without writing; direction=pull never touches the remote.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "no memos provider configured")
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "apply"
	}
	if mode != "apply" && mode != "preview" {
		writeError(w, http.StatusBadRequest, "mode must be apply or preview")
		return
	}

	opts := reconcile.Options{
		Direction: reconcile.Direction(r.URL.Query().Get("direction")),
		DryRun:    mode == "preview",
	}

	summary, err := s.reconciler.Run(r.Context(), userID, opts)
	if err != nil {
		s.logger.Warnw("reconciliation failed",
			logger.FieldUserID, userID,
			logger.FieldError, err)
		writeErrorFor(w, err)
		return
	}

	if !opts.DryRun {
		cursor, err := s.engine.LatestCursor(userID)
		if err == nil {
			s.hub.notifyCursor(userID, cursor)
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Get().Version,
	})
}

func parseInt64Param(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
