package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the payroll node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// KeyPath is the path to the Ed25519 private key file (QUIC TLS).
	KeyPath string

	// PrivateKey is the node's Ed25519 key.
	PrivateKey ed25519.PrivateKey

	// SchemeKeyPath is the path to the encryption scheme key file.
	SchemeKeyPath string

	// OracleAddr is the remote oracle QUIC address. Empty runs an
	// in-process oracle instead.
	OracleAddr string

	// OracleKeyPath is the BLS key file for the in-process oracle.
	OracleKeyPath string

	// OraclePubKeyPath is the oracle BLS public key file, required
	// when OracleAddr is set.
	OraclePubKeyPath string

	// SubmitCooldown is the per-caller delay between submissions.
	SubmitCooldown time.Duration

	// RequestCooldown is the per-caller delay between decryption requests.
	RequestCooldown time.Duration

	// AdminTokens are bearer tokens granted the admin capability.
	AdminTokens []string

	// ProviderTokens are bearer tokens granted the provider capability.
	ProviderTokens []string

	// OracleTokens are bearer tokens granted the oracle capability
	// (HTTP callback delivery).
	OracleTokens []string
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	var admins, providers, oracles string
	var submitCooldown, requestCooldown uint64

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.StringVar(&cfg.SchemeKeyPath, "scheme-key", "", "Encryption scheme key path (defaults to <data>/scheme.key)")
	flag.StringVar(&cfg.OracleAddr, "oracle-addr", "", "Remote oracle QUIC address (empty runs an in-process oracle)")
	flag.StringVar(&cfg.OracleKeyPath, "oracle-key", "", "BLS key path for the in-process oracle (defaults to <data>/oracle.key)")
	flag.StringVar(&cfg.OraclePubKeyPath, "oracle-pubkey", "", "Oracle BLS public key path (required with -oracle-addr)")
	flag.Uint64Var(&submitCooldown, "submit-cooldown", 0, "Seconds between submissions per caller")
	flag.Uint64Var(&requestCooldown, "request-cooldown", 0, "Seconds between decryption requests per caller")
	flag.StringVar(&admins, "admin-tokens", "", "Comma-separated admin bearer tokens")
	flag.StringVar(&providers, "provider-tokens", "", "Comma-separated provider bearer tokens")
	flag.StringVar(&oracles, "oracle-tokens", "", "Comma-separated oracle bearer tokens")
	flag.Parse()

	cfg.SubmitCooldown = time.Duration(submitCooldown) * time.Second
	cfg.RequestCooldown = time.Duration(requestCooldown) * time.Second
	cfg.AdminTokens = splitTokens(admins)
	cfg.ProviderTokens = splitTokens(providers)
	cfg.OracleTokens = splitTokens(oracles)

	if cfg.SchemeKeyPath == "" {
		cfg.SchemeKeyPath = cfg.DataPath + "/scheme.key"
	}

	if cfg.OracleKeyPath == "" {
		cfg.OracleKeyPath = cfg.DataPath + "/oracle.key"
	}

	return cfg
}

// splitTokens splits a comma-separated token list, dropping empties.
func splitTokens(s string) []string {
	var out []string

	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}

	return out
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
