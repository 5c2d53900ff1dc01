package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zeebo/blake3"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/access"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/api"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/payroll"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/storage"
)

// Node represents a running payroll node.
type Node struct {
	cfg     *Config
	storage *storage.Storage
	access  *access.Control
	scheme  *fhe.Scheme
	core    *payroll.Core
	oracle  oracle.Client
	api     *api.Server
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initScheme(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initCore(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initOracle(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	dbPath := n.cfg.DataPath + "/db"

	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(dbPath)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initScheme loads or generates the encryption scheme key.
func (n *Node) initScheme() error {
	scheme, err := fhe.LoadScheme(n.cfg.SchemeKeyPath)
	if err != nil {
		return fmt.Errorf("init scheme:\n%w", err)
	}

	n.scheme = scheme

	return nil
}

// initCore creates the capability registry and the aggregation core.
// Bearer tokens map to identities by hashing; capabilities attach to
// the hashed identities.
func (n *Node) initCore() error {
	n.access = access.NewControl()

	for _, tok := range n.cfg.AdminTokens {
		n.access.Grant(tokenIdentity(tok), access.RoleAdmin)
	}

	for _, tok := range n.cfg.ProviderTokens {
		n.access.Grant(tokenIdentity(tok), access.RoleProvider)
	}

	for _, tok := range n.cfg.OracleTokens {
		n.access.Grant(tokenIdentity(tok), access.RoleOracle)
	}

	core, err := payroll.New(n.storage, n.access, n.scheme, payroll.Config{
		SubmitCooldown:  n.cfg.SubmitCooldown,
		RequestCooldown: n.cfg.RequestCooldown,
	})
	if err != nil {
		return fmt.Errorf("init core:\n%w", err)
	}

	n.core = core

	return nil
}

// initOracle wires the decryption oracle: a remote QUIC oracle when an
// address is configured, an in-process one otherwise.
func (n *Node) initOracle() error {
	if n.cfg.OracleAddr != "" {
		return n.initRemoteOracle()
	}

	key, err := oracle.LoadKey(n.cfg.OracleKeyPath)
	if err != nil {
		return fmt.Errorf("load oracle key:\n%w", err)
	}

	local := oracle.NewLocal(n.scheme, key, n.core.OracleCallback())
	n.oracle = local
	n.core.SetOracle(local, key.PublicKeyBytes())

	return nil
}

// initRemoteOracle dials the configured QUIC oracle.
func (n *Node) initRemoteOracle() error {
	if n.cfg.OraclePubKeyPath == "" {
		return fmt.Errorf("-oracle-addr requires -oracle-pubkey")
	}

	pub, err := loadOraclePublicKey(n.cfg.OraclePubKeyPath)
	if err != nil {
		return fmt.Errorf("load oracle public key:\n%w", err)
	}

	remote, err := oracle.DialRemote(context.Background(), n.cfg.OracleAddr, n.cfg.PrivateKey, n.core.OracleCallback())
	if err != nil {
		return fmt.Errorf("dial oracle:\n%w", err)
	}

	n.oracle = remote
	n.core.SetOracle(remote, pub)

	return nil
}

// loadOraclePublicKey reads a BLS public key file, raw or hex-encoded.
func loadOraclePublicKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key file:\n%w", err)
	}

	if len(data) == oracle.PublicKeySize {
		return data, nil
	}

	decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(decoded) != oracle.PublicKeySize {
		return nil, fmt.Errorf("invalid public key: want %d raw or hex bytes", oracle.PublicKeySize)
	}

	return decoded, nil
}

// tokenIdentity derives the identity attached to a bearer token.
func tokenIdentity(token string) access.Identity {
	return access.Identity(blake3.Sum256([]byte(token)))
}

// buildTokenMap maps bearer tokens to caller identities for the API.
func (n *Node) buildTokenMap() map[string]payroll.Identity {
	tokens := make(map[string]payroll.Identity)

	for _, group := range [][]string{n.cfg.AdminTokens, n.cfg.ProviderTokens, n.cfg.OracleTokens} {
		for _, tok := range group {
			tokens[tok] = payroll.Identity(tokenIdentity(tok))
		}
	}

	return tokens
}

// Run starts the node and blocks until shutdown signal.
func (n *Node) Run() error {
	n.api = api.New(n.cfg.HTTPAddress, n.core, n.access, n.buildTokenMap())

	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.oracle != nil {
		n.oracle.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
