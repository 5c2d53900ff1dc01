package oracle

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

const (
	// alpnProtocol is the ALPN protocol identifier for the oracle link.
	alpnProtocol = "payroll-oracle/1"

	// requestTimeout is the timeout for the request/response exchange.
	requestTimeout = 30 * time.Second
)

// Remote is an oracle client connected to a standalone oracle server
// over QUIC. Requests travel on bidirectional streams; callbacks arrive
// later on server-initiated unidirectional streams.
type Remote struct {
	conn     *quic.Conn   // conn is the QUIC connection to the oracle
	callback CallbackFunc // callback receives decryption results

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex // mu serializes request streams
}

// DialRemote connects to an oracle server and starts the callback reader.
func DialRemote(ctx context.Context, addr string, privateKey ed25519.PrivateKey, callback CallbackFunc) (*Remote, error) {
	cert, err := generateCertificate(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // the BLS proof, not the transport, authenticates results
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial oracle %s:\n%w", addr, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	r := &Remote{
		conn:     conn,
		callback: callback,
		ctx:      runCtx,
		cancel:   cancel,
	}

	r.wg.Add(1)
	go r.acceptCallbacks()

	return r, nil
}

// RequestDecryption sends a request frame and reads the oracle-issued
// request id from the response.
func (r *Remote) RequestDecryption(ctx context.Context, batchID uint64, cts []fhe.Ciphertext) (RequestID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	stream, err := r.conn.OpenStreamSync(reqCtx)
	if err != nil {
		return RequestID{}, fmt.Errorf("open request stream:\n%w", err)
	}
	defer stream.Close()

	frame := EncodeRequest(&DecryptionRequest{BatchID: batchID, Ciphertexts: cts})

	if err := wire.WriteFrame(stream, frame); err != nil {
		return RequestID{}, fmt.Errorf("send request:\n%w", err)
	}

	resp, err := wire.ReadFrame(stream)
	if err != nil {
		return RequestID{}, fmt.Errorf("read response:\n%w", err)
	}

	var id RequestID
	if len(resp) != len(id) {
		return RequestID{}, fmt.Errorf("invalid response size: %d", len(resp))
	}

	copy(id[:], resp)

	return id, nil
}

// acceptCallbacks reads callback frames from server-initiated streams.
func (r *Remote) acceptCallbacks() {
	defer r.wg.Done()

	for {
		stream, err := r.conn.AcceptUniStream(r.ctx)
		if err != nil {
			if r.ctx.Err() == nil {
				logger.Warn("oracle callback stream error", "error", err)
			}
			return
		}

		frame, err := wire.ReadFrame(stream)
		if err != nil {
			logger.Warn("read oracle callback", "error", err)
			continue
		}

		cb, err := DecodeCallback(frame)
		if err != nil {
			logger.Warn("decode oracle callback", "error", err)
			continue
		}

		r.callback(cb.RequestID, cb.BatchID, cb.Cleartexts, cb.Proof)
	}
}

// Close shuts down the connection and the callback reader.
func (r *Remote) Close() error {
	r.cancel()
	err := r.conn.CloseWithError(0, "closed")
	r.wg.Wait()

	return err
}
