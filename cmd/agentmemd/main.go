// Command agentmemd is the Store-side HTTP service: entry/relationship/
// task CRUD, derivation and memory-chain guards, session import, hybrid
// search, and the hourly health line, all behind one net/http server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/agentmem/fabric/internal/store/chain"
	"github.com/agentmem/fabric/internal/store/db"
	"github.com/agentmem/fabric/internal/store/derivation"
	"github.com/agentmem/fabric/internal/store/entries"
	"github.com/agentmem/fabric/internal/store/health"
	"github.com/agentmem/fabric/internal/store/httpapi"
	"github.com/agentmem/fabric/internal/store/importer"
	"github.com/agentmem/fabric/internal/store/relationships"
	"github.com/agentmem/fabric/internal/store/search"
	"github.com/agentmem/fabric/internal/store/tasks"
	"github.com/agentmem/fabric/pkg/agentmem/coord"
)

const runtimeVersion = "0.1.0"

// config is the Store service's on-disk configuration.
type config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseDSN string `yaml:"database_dsn"`
	ImportDir   string `yaml:"import_dir"`
	// StateDir backs this process's own coordination-store instance,
	// used only to source the C12 health line's counters; it need not
	// be the same directory any client sidecar uses.
	StateDir string `yaml:"state_dir"`
}

func loadConfig(path string) (config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}
	if cfg.DatabaseDSN == "" {
		return config{}, fmt.Errorf("config: database_dsn is required")
	}
	if cfg.ImportDir == "" {
		return config{}, fmt.Errorf("config: import_dir is required")
	}
	if cfg.StateDir == "" {
		return config{}, fmt.Errorf("config: state_dir is required")
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "agentmemd.yaml", "path to the Store service's YAML config file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Str("service", "agentmemd").Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build server")
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}

// build wires every Store-side package into one http.Server and starts the
// hourly health reporter, returning once everything is ready to serve.
func build(ctx context.Context, cfg config, log zerolog.Logger) (*http.Server, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	entryStore := entries.New(database)
	deps := httpapi.Deps{
		Entries:       entryStore,
		Derivation:    derivation.New(database),
		Chain:         chain.New(database),
		Importer:      importer.New(cfg.ImportDir, database, entryStore),
		Search:        search.New(database),
		Relationships: relationships.New(database),
		Tasks:         tasks.New(database),
		Log:           log,
	}

	store, err := coord.New(cfg.StateDir, log)
	if err != nil {
		return nil, fmt.Errorf("coordination store: %w", err)
	}
	reporter := health.New(runtimeVersion, store, log)
	go reporter.Run(ctx)

	return &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewRouter(deps),
	}, nil
}
