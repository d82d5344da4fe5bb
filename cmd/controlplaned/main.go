package main

import (
	"flag"
	"log"

	"github.com/sipmesh/controlplane/internal/config"
	"github.com/sipmesh/controlplane/internal/controlplane"
	"github.com/sipmesh/controlplane/internal/logging"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	flag.Parse()

	mgr := config.NewManager()
	cfg, err := mgr.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.NewLoggerFromConfig(logging.LoggerConfig{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	engine := controlplane.NewNullEngine(logger)
	cp, err := controlplane.New(cfg, engine, logger)
	if err != nil {
		log.Fatalf("failed to build control plane: %v", err)
	}

	if err := cp.RunWithSignalHandling(); err != nil {
		log.Fatalf("control plane error: %v", err)
	}
}
