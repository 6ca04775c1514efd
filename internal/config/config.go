package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR"` // empty = gRPC health server off

	// DB
	Env    string `env:"ENV" envDefault:"dev"`     // "dev" | "prod"
	Store  string `env:"STORE" envDefault:"sqlite"` // "sqlite" | "memory"
	DBPath string `env:"DB_PATH" envDefault:"./data/turnstile.db"`

	// Dev-only identities, "A001:Alice,B002:Bob".
	SeedIdentities []string `env:"SEED_IDENTITIES" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" | "console"

	// Scan throttling per client address. 0 disables.
	ScanRatePerSec float64 `env:"SCAN_RATE_PER_SEC" envDefault:"5"`
	ScanBurst      int     `env:"SCAN_BURST" envDefault:"10"`

	// Event fan-out to a broker. Empty URL disables.
	AMQPURL        string `env:"AMQP_URL"`
	AMQPExchange   string `env:"AMQP_EXCHANGE" envDefault:"turnstile.events"`
	AMQPRoutingKey string `env:"AMQP_ROUTING_KEY" envDefault:"access_event"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

const envPrefix = "TURNSTILE_"

// Load reads an optional .env file and then parses TURNSTILE_* variables.
// Variables already present in the environment win over the file.
func Load(dotenvPaths ...string) (Config, error) {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, p := range dotenvPaths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if cfg.Store != "memory" {
		cfg.Store = "sqlite"
	}

	if cfg.ScanRatePerSec < 0 {
		cfg.ScanRatePerSec = 0
	}
	if cfg.ScanBurst < 1 {
		cfg.ScanBurst = 1
	}

	cfg.SeedIdentities = trimAll(cfg.SeedIdentities)
	return cfg, nil
}

// SeedPair is one "student_id:name" entry from SEED_IDENTITIES.
type SeedPair struct {
	StudentID string
	Name      string
}

// SeedPairs parses SeedIdentities, skipping malformed entries.
func (c Config) SeedPairs() []SeedPair {
	out := make([]SeedPair, 0, len(c.SeedIdentities))
	for _, entry := range c.SeedIdentities {
		id, name, ok := strings.Cut(entry, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			continue
		}
		out = append(out, SeedPair{StudentID: id, Name: name})
	}
	return out
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
