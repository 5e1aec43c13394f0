// Command agentmem-sync is the client-side sidecar: one process per host,
// wiring the coordination store (C1) to the retrieval, fallback, governor
// and chat-stream syncer components (C4-C6) and exposing them two ways —
// a long-running "watch" mode that mirrors the main session into the
// Store, and a one-shot "decide" mode a host agent runtime can shell out to
// per turn, since the governor itself is an in-process library call rather
// than something this sidecar can serve over a wire.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
	"github.com/agentmem/fabric/pkg/agentmem/fallback"
	"github.com/agentmem/fabric/pkg/agentmem/governor"
	"github.com/agentmem/fabric/pkg/agentmem/provenance"
	"github.com/agentmem/fabric/pkg/agentmem/retriever"
	"github.com/agentmem/fabric/pkg/agentmem/syncer"
	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

// config is the sidecar's on-disk configuration, loaded from YAML so an
// operator can hand one file to every sibling agent process on a host.
type config struct {
	Agent struct {
		Kind       string `yaml:"kind"`
		Version    string `yaml:"version"`
		InstanceID string `yaml:"instance_id"`
		SubAgentID string `yaml:"sub_agent_id"`
	} `yaml:"agent"`

	Store struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	} `yaml:"store"`

	StateDir     string  `yaml:"state_dir"`
	SessionsDir  string  `yaml:"sessions_dir"`
	PointersFile string  `yaml:"pointers_file"`
	Threshold    float64 `yaml:"retrieve_threshold"`
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
	if cfg.Agent.Kind == "" || cfg.Agent.InstanceID == "" {
		return config{}, fmt.Errorf("config: agent.kind and agent.instance_id are required")
	}
	if cfg.StateDir == "" {
		return config{}, fmt.Errorf("config: state_dir is required")
	}
	if cfg.SessionsDir == "" {
		return config{}, fmt.Errorf("config: sessions_dir is required")
	}
	return cfg, nil
}

type wiring struct {
	store     *coord.Store
	client    *provenance.Client
	retriever *retriever.Retriever
	fallback  *fallback.Recoverer
	governor  *governor.Governor
	syncer    *syncer.Syncer
	identity  provenance.Identity
}

func wire(cfg config, log zerolog.Logger) (*wiring, error) {
	store, err := coord.New(cfg.StateDir, log)
	if err != nil {
		return nil, fmt.Errorf("coord store: %w", err)
	}

	identity := provenance.NewIdentity(cfg.Agent.Kind, cfg.Agent.Version, cfg.Agent.InstanceID, cfg.Agent.SubAgentID)
	client := provenance.New(cfg.Store.BaseURL, cfg.Store.Token, identity, store, log)

	pointers := transcript.NewPointerResolver(cfg.PointersFile)
	retr := retriever.New(client, cfg.Threshold, log)
	fb := fallback.New(cfg.SessionsDir, fallback.ResolveConfig(fallback.Config{}), log)
	gov := governor.New(store, pointers, retr, fb, log)
	sync := syncer.New(cfg.Agent.Kind, identity.Key(), cfg.SessionsDir, pointers, client, store, log)

	return &wiring{
		store:     store,
		client:    client,
		retriever: retr,
		fallback:  fb,
		governor:  gov,
		syncer:    sync,
		identity:  identity,
	}, nil
}

func main() {
	configPath := flag.String("config", "agentmem-sync.yaml", "path to the sidecar's YAML config file")
	flag.Parse()

	mode := "watch"
	if args := flag.Args(); len(args) > 0 {
		mode = args[0]
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Str("service", "agentmem-sync").Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	w, err := wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire components")
	}

	switch mode {
	case "watch":
		runWatch(w, log)
	case "decide":
		runDecide(w, flag.Args()[1:], log)
	default:
		log.Fatal().Str("mode", mode).Msg("unknown mode: want watch or decide")
	}
}

// runWatch starts the chat-stream syncer's fsnotify loop and blocks until
// SIGINT/SIGTERM.
func runWatch(w *wiring, log zerolog.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("starting chat-stream syncer")
	if err := w.syncer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("syncer stopped")
	}
}

// runDecide runs a single governor decision for one agent turn and prints
// it as JSON on stdout, for a host agent runtime to shell out to per turn
// rather than talk to this sidecar over a socket.
func runDecide(w *wiring, args []string, log zerolog.Logger) {
	decideFlags := flag.NewFlagSet("decide", flag.ExitOnError)
	agent := decideFlags.String("agent", w.identity.AgentKind(), "agent kind making the decision")
	sessionID := decideFlags.String("session", "", "current session id")
	decideFlags.Parse(args)

	if *sessionID == "" {
		log.Fatal().Msg("decide: -session is required")
	}

	decision := w.governor.Decide(context.Background(), *agent, *sessionID)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		log.Fatal().Err(err).Msg("encode decision")
	}
}
