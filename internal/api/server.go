// Package api exposes the payroll core over HTTP: batch lifecycle and
// contribution submission for providers and admins, decryption request
// and callback entry points, and read-only status surfaces.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/access"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/payroll"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 1 << 20 // 1 MB
)

// Server is the HTTP API server.
type Server struct {
	addr   string                       // addr is the HTTP listen address
	core   *payroll.Core                // core is the aggregation state machine
	access *access.Control              // access resolves capability checks
	tokens map[string]payroll.Identity  // tokens maps bearer tokens to identities
	server *http.Server                 // server is the underlying HTTP server
}

// New creates a new HTTP API server. The tokens map associates bearer
// tokens with caller identities; capabilities attach to identities via
// the access registry.
func New(addr string, core *payroll.Core, ac *access.Control, tokens map[string]payroll.Identity) *Server {
	return &Server{
		addr:   addr,
		core:   core,
		access: ac,
		tokens: tokens,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Handler returns the server's HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch/open", s.handleOpenBatch)
	mux.HandleFunc("POST /batch/close", s.handleCloseBatch)
	mux.HandleFunc("POST /contribution", s.handleSubmitContribution)
	mux.HandleFunc("POST /decryption/request", s.handleRequestDecryption)
	mux.HandleFunc("POST /decryption/callback", s.handleDecryptionCallback)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("GET /batch/{id}", s.handleGetBatch)
	mux.HandleFunc("GET /decryption/{id}", s.handleGetDecryption)
	mux.HandleFunc("GET /decryption", s.handleListPending)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// callerIdentity resolves the bearer token to a caller identity.
func (s *Server) callerIdentity(r *http.Request) (payroll.Identity, bool) {
	auth := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return payroll.Identity{}, false
	}

	id, ok := s.tokens[token]

	return id, ok
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response with a stable error code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":  code,
		"error": message,
	})
}

// writeCoreError maps a named core error to an HTTP response, so
// external tooling can branch on cause.
func writeCoreError(w http.ResponseWriter, err error) {
	status, code := coreErrorStatus(err)
	writeError(w, status, code, err.Error())
}

// coreErrorStatus maps core errors to status codes and stable codes.
func coreErrorStatus(err error) (int, string) {
	switch err {
	case payroll.ErrNotAdmin:
		return http.StatusForbidden, "not_admin"
	case payroll.ErrNotProvider:
		return http.StatusForbidden, "not_provider"
	case payroll.ErrPaused:
		return http.StatusServiceUnavailable, "paused"
	case payroll.ErrCooldown:
		return http.StatusTooManyRequests, "cooldown_active"
	case payroll.ErrInvalidBatch:
		return http.StatusConflict, "invalid_batch"
	case payroll.ErrInvalidBatchState:
		return http.StatusConflict, "invalid_batch_state"
	case payroll.ErrDuplicate:
		return http.StatusConflict, "duplicate_contribution"
	case payroll.ErrUnknownRequest:
		return http.StatusNotFound, "unknown_request"
	case payroll.ErrReplay:
		return http.StatusConflict, "replay_attempt"
	case payroll.ErrStateMismatch:
		return http.StatusConflict, "state_mismatch"
	case payroll.ErrProofVerification:
		return http.StatusBadRequest, "proof_verification_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
