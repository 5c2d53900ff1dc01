// Command oracled runs a standalone decryption oracle: it holds the
// scheme key, serves decryption requests over QUIC, and signs results
// with its BLS key.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
)

// Config holds the oracle configuration.
type Config struct {
	// ListenAddr is the QUIC listen address.
	ListenAddr string

	// SchemeKeyPath is the path to the encryption scheme key file.
	SchemeKeyPath string

	// BLSKeyPath is the path to the BLS signing key file.
	BLSKeyPath string
}

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen", ":9100", "QUIC listen address")
	flag.StringVar(&cfg.SchemeKeyPath, "scheme-key", "./scheme.key", "Encryption scheme key path")
	flag.StringVar(&cfg.BLSKeyPath, "bls-key", "./oracle.key", "BLS signing key path")
	flag.Parse()

	return cfg
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	scheme, err := fhe.LoadScheme(cfg.SchemeKeyPath)
	if err != nil {
		return fmt.Errorf("load scheme:\n%w", err)
	}

	key, err := oracle.LoadKey(cfg.BLSKeyPath)
	if err != nil {
		return fmt.Errorf("load BLS key:\n%w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate TLS key:\n%w", err)
	}

	srv, err := oracle.NewServer(cfg.ListenAddr, priv, scheme, key)
	if err != nil {
		return fmt.Errorf("start oracle:\n%w", err)
	}

	logger.Info("oracle started",
		"addr", srv.Addr(),
		"pubkey", hex.EncodeToString(key.PublicKeyBytes()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return srv.Close()
}
