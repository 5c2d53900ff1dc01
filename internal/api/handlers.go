package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/access"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/payroll"
)

// decodeBody decodes a size-limited JSON request body.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))

	return dec.Decode(dst)
}

// handleOpenBatch handles POST /batch/open.
func (s *Server) handleOpenBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or unknown token")
		return
	}

	id, err := s.core.OpenBatch(caller)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"batchId": id})
}

// handleCloseBatch handles POST /batch/close.
func (s *Server) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or unknown token")
		return
	}

	id, err := s.core.CloseBatch(caller)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"batchId": id})
}

// handleSubmitContribution handles POST /contribution.
func (s *Server) handleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or unknown token")
		return
	}

	var body struct {
		Identity string `json:"identity"`
		Salary   string `json:"salary"`
		Score    string `json:"score"`
	}

	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	contributor, err := payroll.IdentityFromHex(body.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	salary, err := ciphertextFromHex(body.Salary)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("salary: %v", err))
		return
	}

	score, err := ciphertextFromHex(body.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("score: %v", err))
		return
	}

	if err := s.core.SubmitContribution(caller, contributor, salary, score); err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"identity": contributor.String(),
	})
}

// handleRequestDecryption handles POST /decryption/request.
func (s *Server) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or unknown token")
		return
	}

	var body struct {
		BatchID uint64 `json:"batchId"`
	}

	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	requestID, err := s.core.RequestBatchDecryption(r.Context(), caller, body.BatchID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"requestId": requestID.String(),
		"batchId":   body.BatchID,
	})
}

// handleDecryptionCallback handles POST /decryption/callback. Only
// identities holding the oracle capability may deliver callbacks; the
// result itself is still verified against commitment and proof.
func (s *Server) handleDecryptionCallback(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok || !s.access.Has(access.Identity(caller), access.RoleOracle) {
		writeError(w, http.StatusForbidden, "not_oracle", "caller is not an oracle")
		return
	}

	var body struct {
		RequestID  string `json:"requestId"`
		Cleartexts string `json:"cleartexts"`
		Proof      string `json:"proof"`
	}

	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	requestID, err := oracle.RequestIDFromHex(body.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	cleartexts, err := hex.DecodeString(body.Cleartexts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid cleartexts hex")
		return
	}

	proof, err := hex.DecodeString(body.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid proof hex")
		return
	}

	if err := s.core.HandleDecryptionCallback(requestID, cleartexts, proof); err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"requestId": requestID.String(),
		"status":    "finalized",
	})
}

// handlePause handles POST /pause.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok || !s.access.Has(access.Identity(caller), access.RoleAdmin) {
		writeError(w, http.StatusForbidden, "not_admin", "caller is not an admin")
		return
	}

	s.access.Pause()
	logger.Warn("system paused", "caller", caller.String()[:16])

	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// handleResume handles POST /resume.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok || !s.access.Has(access.Identity(caller), access.RoleAdmin) {
		writeError(w, http.StatusForbidden, "not_admin", "caller is not an admin")
		return
	}

	s.access.Unpause()
	logger.Info("system resumed", "caller", caller.String()[:16])

	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// handleGetBatch handles GET /batch/{id}.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid batch id")
		return
	}

	b, ok := s.core.BatchInfo(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_batch", "batch not found")
		return
	}

	contributors := make([]string, len(b.Contributors))
	for i, c := range b.Contributors {
		contributors[i] = c.String()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batchId":      b.ID,
		"open":         b.Open,
		"contributors": contributors,
	})
}

// handleGetDecryption handles GET /decryption/{id}.
func (s *Server) handleGetDecryption(w http.ResponseWriter, r *http.Request) {
	requestID, err := oracle.RequestIDFromHex(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	dc, ok := s.core.Context(requestID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_request", "decryption request not found")
		return
	}

	writeJSON(w, http.StatusOK, contextResponse(dc))
}

// handleListPending handles GET /decryption.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending := s.core.PendingRequests()

	out := make([]map[string]any, len(pending))
	for i, dc := range pending {
		out[i] = contextResponse(dc)
	}

	writeJSON(w, http.StatusOK, out)
}

// contextResponse builds the JSON view of a decryption context.
func contextResponse(dc *payroll.DecryptionContext) map[string]any {
	return map[string]any{
		"requestId":   dc.RequestID.String(),
		"batchId":     dc.BatchID,
		"commitment":  hex.EncodeToString(dc.Commitment[:]),
		"processed":   dc.Processed,
		"requestedAt": dc.RequestedAt.Format(time.RFC3339Nano),
		"lastError":   dc.LastError,
	}
}

// handleEvents handles GET /events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, _ := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	events := s.core.Events(from, limit)

	out := make([]map[string]any, len(events))
	for i, ev := range events {
		out[i] = eventResponse(ev)
	}

	writeJSON(w, http.StatusOK, out)
}

// eventResponse builds the JSON view of an audit event.
func eventResponse(ev *payroll.Event) map[string]any {
	resp := map[string]any{
		"seq":     ev.Seq,
		"type":    ev.Type.String(),
		"time":    ev.Time.Format(time.RFC3339Nano),
		"batchId": ev.BatchID,
	}

	switch ev.Type {
	case payroll.EventContributionSubmitted:
		resp["identity"] = ev.Identity.String()
		resp["salaryHandle"] = hex.EncodeToString(ev.SalaryHandle[:])
		resp["scoreHandle"] = hex.EncodeToString(ev.ScoreHandle[:])
	case payroll.EventDecryptionRequested:
		resp["requestId"] = ev.RequestID.String()
	case payroll.EventDecryptionCompleted:
		resp["requestId"] = ev.RequestID.String()
		resp["totalSalary"] = ev.TotalSalary
		resp["totalBonus"] = ev.TotalBonus
	}

	return resp
}

// handleSnapshot handles GET /snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerIdentity(r)
	if !ok || !s.access.Has(access.Identity(caller), access.RoleAdmin) {
		writeError(w, http.StatusForbidden, "not_admin", "caller is not an admin")
		return
	}

	data, err := s.core.ExportSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	instanceID := s.core.InstanceID()

	writeJSON(w, http.StatusOK, map[string]any{
		"currentBatch": s.core.CurrentBatchID(),
		"paused":       s.access.Paused(),
		"pending":      len(s.core.PendingRequests()),
		"instanceId":   hex.EncodeToString(instanceID[:]),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ciphertextFromHex parses a hex-encoded ciphertext. An empty string
// yields an uninitialized ciphertext (coerced to encrypted zero by the
// core).
func ciphertextFromHex(s string) (fhe.Ciphertext, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fhe.Ciphertext{}, fmt.Errorf("invalid hex")
	}

	return fhe.FromBytes(b)
}
