// Package client provides an HTTP client for the payroll aggregation
// service, plus provider-side encryption helpers.
package client

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/payroll"
)

// Client connects to a payroll service via HTTP.
type Client struct {
	baseURL string       // baseURL is "http://host:port"
	token   string       // token is the caller's bearer token
	http    *http.Client // http is the underlying HTTP client
}

// New creates a client for the given node address (host:port) and
// bearer token.
func New(nodeAddr, token string) *Client {
	return &Client{
		baseURL: "http://" + nodeAddr,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BatchInfo holds a batch's state as reported by the service.
type BatchInfo struct {
	BatchID      uint64   `json:"batchId"`
	Open         bool     `json:"open"`
	Contributors []string `json:"contributors"`
}

// DecryptionInfo holds a decryption request's state.
type DecryptionInfo struct {
	RequestID   string `json:"requestId"`
	BatchID     uint64 `json:"batchId"`
	Commitment  string `json:"commitment"`
	Processed   bool   `json:"processed"`
	RequestedAt string `json:"requestedAt"`
	LastError   string `json:"lastError"`
}

// Status holds the service status.
type Status struct {
	CurrentBatch uint64 `json:"currentBatch"`
	Paused       bool   `json:"paused"`
	Pending      int    `json:"pending"`
	InstanceID   string `json:"instanceId"`
}

// Event is one audit log entry.
type Event struct {
	Seq         uint64 `json:"seq"`
	Type        string `json:"type"`
	Time        string `json:"time"`
	BatchID     uint64 `json:"batchId"`
	Identity    string `json:"identity"`
	RequestID   string `json:"requestId"`
	TotalSalary uint64 `json:"totalSalary"`
	TotalBonus  uint64 `json:"totalBonus"`
}

// OpenBatch opens a new batch (admin capability required).
func (c *Client) OpenBatch() (uint64, error) {
	var resp struct {
		BatchID uint64 `json:"batchId"`
	}

	if err := c.post("/batch/open", map[string]any{}, &resp); err != nil {
		return 0, err
	}

	return resp.BatchID, nil
}

// CloseBatch closes the current batch (admin capability required).
func (c *Client) CloseBatch() (uint64, error) {
	var resp struct {
		BatchID uint64 `json:"batchId"`
	}

	if err := c.post("/batch/close", map[string]any{}, &resp); err != nil {
		return 0, err
	}

	return resp.BatchID, nil
}

// SubmitContribution submits a contributor's ciphertext pair (provider
// capability required).
func (c *Client) SubmitContribution(contributor payroll.Identity, salary, score fhe.Ciphertext) error {
	body := map[string]string{
		"identity": contributor.String(),
		"salary":   hex.EncodeToString(salary.Bytes()),
		"score":    hex.EncodeToString(score.Bytes()),
	}

	return c.post("/contribution", body, nil)
}

// SubmitPlain encrypts a plaintext (salary, score) pair with the given
// scheme and submits it.
func (c *Client) SubmitPlain(scheme *fhe.Scheme, contributor payroll.Identity, salary, score uint64) error {
	return c.SubmitContribution(contributor, scheme.Encrypt(salary), scheme.Encrypt(score))
}

// RequestDecryption requests decryption of a closed batch's aggregate
// (provider capability required). Returns the request id.
func (c *Client) RequestDecryption(batchID uint64) (string, error) {
	var resp struct {
		RequestID string `json:"requestId"`
	}

	body := map[string]uint64{"batchId": batchID}

	if err := c.post("/decryption/request", body, &resp); err != nil {
		return "", err
	}

	return resp.RequestID, nil
}

// Batch fetches a batch's state.
func (c *Client) Batch(id uint64) (*BatchInfo, error) {
	var resp BatchInfo

	if err := c.get("/batch/"+strconv.FormatUint(id, 10), &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Decryption fetches a decryption request's state.
func (c *Client) Decryption(requestID string) (*DecryptionInfo, error) {
	var resp DecryptionInfo

	if err := c.get("/decryption/"+requestID, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// PendingDecryptions lists all unprocessed decryption requests.
func (c *Client) PendingDecryptions() ([]DecryptionInfo, error) {
	var resp []DecryptionInfo

	if err := c.get("/decryption", &resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// Status fetches the service status.
func (c *Client) Status() (*Status, error) {
	var resp Status

	if err := c.get("/status", &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Events fetches audit events starting at fromSeq.
func (c *Client) Events(fromSeq uint64, limit int) ([]Event, error) {
	var resp []Event

	path := "/events?from=" + strconv.FormatUint(fromSeq, 10) + "&limit=" + strconv.Itoa(limit)

	if err := c.get(path, &resp); err != nil {
		return nil, err
	}

	return resp, nil
}
