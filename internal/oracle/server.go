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

// Server is the standalone decryption oracle daemon. It accepts QUIC
// connections from aggregation services, answers request streams with a
// fresh request id, and later pushes the signed result back on a
// unidirectional stream.
type Server struct {
	listener *quic.Listener
	scheme   *fhe.Scheme // scheme decrypts submitted ciphertexts
	key      *KeyPair    // key signs correctness proofs

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates and starts an oracle server listening on addr.
func NewServer(addr string, privateKey ed25519.PrivateKey, scheme *fhe.Scheme, key *KeyPair) (*Server, error) {
	cert, err := generateCertificate(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	listener, err := quic.ListenAddr(addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("listen on %s:\n%w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		listener: listener,
		scheme:   scheme,
		key:      key,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("oracle server listening", "addr", addr)

	return s, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Error("oracle accept error", "error", err)
			}
			return
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection serves request streams on one connection.
func (s *Server) handleConnection(conn *quic.Conn) {
	defer s.wg.Done()

	logger.Info("oracle client connected", "remote", conn.RemoteAddr().String())

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Debug("oracle client disconnected", "remote", conn.RemoteAddr().String())
			}
			return
		}

		s.wg.Add(1)
		go s.handleStream(conn, stream)
	}
}

// handleStream processes one decryption request stream.
func (s *Server) handleStream(conn *quic.Conn, stream *quic.Stream) {
	defer s.wg.Done()
	defer stream.Close()

	frame, err := wire.ReadFrame(stream)
	if err != nil {
		logger.Warn("read decryption request", "error", err)
		return
	}

	req, err := DecodeRequest(frame)
	if err != nil {
		logger.Warn("decode decryption request", "error", err)
		return
	}

	id, err := newRequestID()
	if err != nil {
		logger.Error("issue request id", "error", err)
		return
	}

	if err := wire.WriteFrame(stream, id[:]); err != nil {
		logger.Warn("send request id", "error", err)
		return
	}

	logger.Info("decryption requested",
		"request", id.String()[:16],
		"batch", req.BatchID,
		"ciphertexts", len(req.Ciphertexts),
	)

	// Decrypt and push the callback asynchronously; the request stream
	// is already answered.
	s.wg.Add(1)
	go s.deliverResult(conn, id, req)
}

// deliverResult decrypts, signs, and pushes the callback frame.
func (s *Server) deliverResult(conn *quic.Conn, id RequestID, req *DecryptionRequest) {
	defer s.wg.Done()

	values := make([]uint64, len(req.Ciphertexts))

	for i, ct := range req.Ciphertexts {
		v, err := s.scheme.Decrypt(ct)
		if err != nil {
			logger.Error("decrypt ciphertext", "request", id.String()[:16], "index", i, "error", err)
			return
		}

		values[i] = v
	}

	cleartexts := EncodeCleartexts(values)
	proof := s.key.Sign(id, req.BatchID, cleartexts)

	stream, err := conn.OpenUniStreamSync(s.ctx)
	if err != nil {
		logger.Warn("open callback stream", "error", err)
		return
	}
	defer stream.Close()

	cb := &DecryptionCallback{
		RequestID:  id,
		BatchID:    req.BatchID,
		Cleartexts: cleartexts,
		Proof:      proof,
	}

	if err := wire.WriteFrame(stream, EncodeCallback(cb)); err != nil {
		logger.Warn("send callback", "error", err)
		return
	}

	logger.Info("decryption completed", "request", id.String()[:16], "batch", req.BatchID)
}

// Close stops the server and waits for in-flight handlers.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()

	return err
}
