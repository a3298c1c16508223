// Package main provides the escrowd daemon: the escrow program on an embedded
// ledger, served over JSON-RPC.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/escrow"
	"github.com/klingon-exchange/klingon-escrow/internal/faucet"
	"github.com/klingon-exchange/klingon-escrow/internal/keystore"
	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/rpc"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
	"github.com/klingon-exchange/klingon-escrow/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// passwordEnv holds the faucet keystore password.
const passwordEnv = "ESCROWD_FAUCET_PASSWORD"

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.klingon-escrow", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Initial logger, replaced once the config is loaded.
	log := logging.New(&logging.Config{
		Level:      orString(*logLevel, "info"),
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("escrowd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	configPath := config.ConfigPath(*dataDir)
	if *configFile != "" {
		configPath = *configFile
	}
	cfg, err := config.LoadConfigFile(configPath, *dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set, *dataDir, *apiAddr, *logLevel)

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	logging.SetDefault(log)
	log.Info("Config loaded", "path", config.ExpandPath(configPath))

	programID, err := pubkey.Parse(cfg.ProgramID)
	if err != nil {
		log.Fatal("Invalid program id", "program_id", cfg.ProgramID, "error", err)
	}

	dataPath := config.ExpandPath(cfg.Storage.DataDir)
	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", store.Path())

	l := ledger.New(&ledger.Config{Store: store, Rent: cfg.Rent})
	program := escrow.New(&escrow.Config{ProgramID: programID, Ledger: l})

	var f *faucet.Faucet
	if cfg.Faucet.Enabled {
		f, err = openFaucet(cfg, l, dataPath)
		if err != nil {
			log.Fatal("Failed to open faucet", "error", err)
		}
	}

	rpcServer := rpc.NewServer(cfg, l, program, f)
	if err := rpcServer.Start(cfg.RPC.Listen); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg, program, f, rpcServer.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				open, err := program.List(ctx)
				if err != nil {
					log.Warn("Status check failed", "error", err)
					continue
				}
				log.Info("Status", "open_escrows", len(open), "ws_clients", rpcServer.WSHub().ClientCount())
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")
	cancel()

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

// openFaucet unlocks the faucet authority, creating its keystore on first run.
func openFaucet(cfg *config.Config, l *ledger.Ledger, dataPath string) (*faucet.Faucet, error) {
	path := cfg.Faucet.KeystoreFile
	if path == "" {
		path = config.DefaultKeystoreFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataPath, path)
	}

	kp, created, err := keystore.Unlock(path, os.Getenv(passwordEnv))
	if err != nil {
		return nil, err
	}
	if created {
		logging.Info("Faucet keystore created", "path", path, "authority", kp.PublicKey())
	}

	return faucet.New(&faucet.Config{
		Ledger:       l,
		Authority:    kp,
		AirdropLimit: cfg.Faucet.AirdropLimit,
	}), nil
}

func printBanner(log *logging.Logger, cfg *config.Config, p *escrow.Program, f *faucet.Faucet, apiAddr string) {
	log.Info("")
	log.Info("=================================================")
	log.Info("  Klingon Escrow Daemon")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Program: %s", p.ID())
	log.Infof("  API: http://%s", apiAddr)
	log.Infof("  WS:  ws://%s/ws", apiAddr)
	log.Infof("  Metrics: http://%s/metrics", apiAddr)
	if f != nil {
		log.Infof("  Faucet authority: %s", f.Authority())
	} else {
		log.Info("  Faucet: disabled")
	}
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// applyFlags lets explicitly set CLI flags take precedence over the config
// file. The data dir default only applies when the file was just created.
func applyFlags(cfg *config.Config, set map[string]bool, dataDir, apiAddr, logLevel string) {
	if set["data-dir"] {
		cfg.Storage.DataDir = dataDir
	}
	if apiAddr != "" {
		cfg.RPC.Listen = apiAddr
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
