package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	var err error
	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	printStartupInfo(cfg, node)

	return node.Run()
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config, node *Node) {
	instanceID := node.core.InstanceID()

	oracleMode := "local"
	if cfg.OracleAddr != "" {
		oracleMode = cfg.OracleAddr
	}

	logger.Info("starting payroll node",
		"instance", hex.EncodeToString(instanceID[:8]),
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"oracle", oracleMode,
		"admins", len(cfg.AdminTokens),
		"providers", len(cfg.ProviderTokens),
	)
}
