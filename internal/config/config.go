// Package config loads indexer configuration from flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"wooswap-indexer/internal/normalize"
)

// DefaultContracts are the WooSwap router, NFT and guard contracts on Monad testnet.
var DefaultContracts = []string{
	"0x449c4ec0676c71c177ca7b4545285b853c07b685",
	"0xb00f943698687e916325a706dcab6998b2187567",
	"0x46ae94fb7f129acaa8932137b2226ab3b81988a7",
}

// Config holds all indexer configuration.
type Config struct {
	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	UseMemory     bool

	// Archives
	PostgresDSN   string
	ClickHouseDSN string

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Chain
	RPCEndpoint string
	WSEndpoint  string
	Contracts   []string
	FromBlock   *uint64

	// Notifications
	TwitterBearer  string
	TwitterAPIBase string

	HTTPAddr  string
	Workers   int
	LogLevel  string
	LogFormat string
}

// LoadEnvFile loads path into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load parses args into a Config. Every flag defaults to its environment
// variable, so flags override the environment.
func Load(fset *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fset.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	fset.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fset.IntVar(&cfg.RedisDB, "redis-db", getEnvAsInt("REDIS_DB", 0), "Redis database number")
	fset.BoolVar(&cfg.UseMemory, "use-memory", getEnvAsBool("USE_MEMORY", false), "Use in-memory storage instead of Redis")

	fset.StringVar(&cfg.PostgresDSN, "postgres-dsn", getEnv("POSTGRES_DSN", ""), "PostgreSQL event archive (optional)")
	fset.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", getEnv("CLICKHOUSE_DSN", ""), "ClickHouse analytics archive (optional)")

	brokers := fset.String("kafka-brokers", getEnv("KAFKA_BROKERS", ""), "Comma-separated Kafka brokers")
	fset.StringVar(&cfg.KafkaTopic, "kafka-topic", getEnv("KAFKA_TOPIC", "wooswap.events"), "Kafka topic of raw events")
	fset.StringVar(&cfg.KafkaGroupID, "kafka-group-id", getEnv("KAFKA_GROUP_ID", "wooswap-indexer"), "Kafka consumer group")

	fset.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", getEnv("RPC_ENDPOINT", ""), "EVM JSON-RPC HTTP endpoint")
	fset.StringVar(&cfg.WSEndpoint, "ws-endpoint", getEnv("WS_ENDPOINT", ""), "EVM WebSocket endpoint (optional, polls without it)")
	contracts := fset.String("contracts", getEnv("CONTRACT_ADDRESSES", strings.Join(DefaultContracts, ",")), "Comma-separated contract addresses")
	fromBlock := fset.String("from-block", getEnv("FROM_BLOCK", ""), "Backfill from this block (empty: live only)")

	fset.StringVar(&cfg.TwitterBearer, "twitter-bearer", getEnv("TWITTER_BEARER", ""), "Bearer token for breakup posts (empty disables)")
	fset.StringVar(&cfg.TwitterAPIBase, "twitter-api-base", getEnv("TWITTER_API_BASE", "https://api.twitter.com/2"), "Social API base URL")

	fset.StringVar(&cfg.HTTPAddr, "http-addr", getEnv("HTTP_ADDR", ":8080"), "HTTP API and metrics address")
	fset.IntVar(&cfg.Workers, "workers", getEnvAsInt("WORKERS", 8), "Number of event workers")
	fset.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level")
	fset.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format (text, json)")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	cfg.KafkaBrokers = splitList(*brokers)

	var err error
	if cfg.Contracts, err = parseContracts(*contracts); err != nil {
		return nil, err
	}
	if *fromBlock != "" {
		n, err := strconv.ParseUint(*fromBlock, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("from-block %q: %w", *fromBlock, err)
		}
		cfg.FromBlock = &n
	}
	return cfg, nil
}

// Validate checks that at least one event source is configured.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("no event source: set --rpc-endpoint or --kafka-brokers")
	}
	if c.RPCEndpoint == "" && c.WSEndpoint != "" {
		return fmt.Errorf("--ws-endpoint requires --rpc-endpoint")
	}
	if c.RPCEndpoint != "" && len(c.Contracts) == 0 {
		return fmt.Errorf("--contracts is required with --rpc-endpoint")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("--workers must be positive, got %d", c.Workers)
	}
	if !c.UseMemory && c.RedisAddr == "" {
		return fmt.Errorf("--redis-addr is required (use --use-memory for in-memory storage)")
	}
	return nil
}

func parseContracts(s string) ([]string, error) {
	var out []string
	for _, c := range splitList(s) {
		addr, err := normalize.Address(c)
		if err != nil {
			return nil, fmt.Errorf("contract address: %w", err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for parsing environment variables

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return val
	}
	return defaultVal
}
