package params

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Node struct {
	DataDir     string // pebble database and journal live here
	LogFile     string
	LogLevel    string // debug | info | warn | error
	GenesisFile string // optional YAML genesis; empty = no tokens
	// Deployer seeds derived addresses: the book is nonce 0, genesis tokens nonce 1..n
	Deployer common.Address
	// WALFile is the committed-call journal; empty disables it
	WALFile string
}

type API struct {
	Addr           string
	AllowedOrigins []string
	RateLimitRPS   float64 // per caller; 0 disables
	RateLimitBurst int
}

type Ledger struct {
	// EnforceOrderRate rejects purchases paying below the order's creation rate.
	// Off by default: the buyer's payment is accepted as offered.
	EnforceOrderRate bool
}

type Stream struct {
	KafkaBrokers []string // empty disables the kafka publisher
	KafkaTopic   string
}

type Config struct {
	Node   Node
	API    API
	Ledger Ledger
	Stream Stream
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:  "data",
			LogFile:  "data/swappin.log",
			LogLevel: "info",
			Deployer: common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
			WALFile:  "data/journal.wal",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Stream: Stream{
			KafkaTopic: "swappin.events",
		},
	}
}

// DBPath is where the pebble database lives
func (c Config) DBPath() string {
	return filepath.Join(c.Node.DataDir, "ledger.db")
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.GenesisFile = getEnv("GENESIS_FILE", cfg.Node.GenesisFile)
	if v, ok := os.LookupEnv("WAL_FILE"); ok {
		cfg.Node.WALFile = v // empty disables
	}
	if d := os.Getenv("DEPLOYER_ADDRESS"); common.IsHexAddress(d) {
		cfg.Node.Deployer = common.HexToAddress(d)
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}
	if rps := os.Getenv("API_RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.API.RateLimitRPS = v
		}
	}
	if burst := os.Getenv("API_RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.API.RateLimitBurst = v
		}
	}

	if enforce := os.Getenv("LEDGER_ENFORCE_ORDER_RATE"); enforce != "" {
		cfg.Ledger.EnforceOrderRate = enforce == "true"
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Stream.KafkaBrokers = splitList(brokers)
	}
	cfg.Stream.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Stream.KafkaTopic)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
