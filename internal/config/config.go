// Package config loads daemon configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/entitlement"
	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/gate"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds everything the daemon needs to start.
type Config struct {
	ListenAddr string // host:port for the HTTP/WebSocket API
	DataDir    string // where the entitlement store lives
	Store      string // "file", "sqlite", or "memory"

	VerifyURL        string // license verification endpoint
	ProductID        string // product identifier sent to the verifier
	ProductPermalink string // default permalink when a client omits one

	PageQuota   int           // free-plan page ceiling
	GateTimeout time.Duration // per-check timeout for gate clients

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, honoring a .env file
// in the data directory and then one in the current directory.
func Load() (*Config, error) {
	dataDir := "/var/lib/classcatch"
	if dir := os.Getenv("CLASSCATCH_DATA_DIR"); dir != "" {
		dataDir = dir
	}

	// .env in the data dir carries deployment overrides.
	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		}
	}
	// A .env in the working directory covers development runs.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:  ":7433",
		DataDir:     dataDir,
		Store:       StoreFile,
		PageQuota:   entitlement.DefaultPageQuota,
		GateTimeout: gate.DefaultTimeout,
		LogLevel:    "info",
		LogFormat:   "auto",
	}

	if addr := os.Getenv("CLASSCATCH_LISTEN"); addr != "" {
		cfg.ListenAddr = addr
	}
	if backend := os.Getenv("CLASSCATCH_STORE"); backend != "" {
		backend = strings.ToLower(strings.TrimSpace(backend))
		switch backend {
		case StoreFile, StoreSQLite, StoreMemory:
			cfg.Store = backend
		default:
			return nil, errkind.New(errkind.KindValidation, "config.load", "unknown store backend "+strconv.Quote(backend))
		}
	}
	cfg.VerifyURL = os.Getenv("CLASSCATCH_VERIFY_URL")
	cfg.ProductID = os.Getenv("CLASSCATCH_PRODUCT_ID")
	cfg.ProductPermalink = os.Getenv("CLASSCATCH_PRODUCT_PERMALINK")

	if raw := os.Getenv("CLASSCATCH_PAGE_QUOTA"); raw != "" {
		quota, err := strconv.Atoi(raw)
		if err != nil || (quota < 0 && quota != entitlement.Unlimited) {
			return nil, errkind.New(errkind.KindValidation, "config.load", "invalid CLASSCATCH_PAGE_QUOTA "+strconv.Quote(raw))
		}
		cfg.PageQuota = quota
	}
	if raw := os.Getenv("CLASSCATCH_GATE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, errkind.New(errkind.KindValidation, "config.load", "invalid CLASSCATCH_GATE_TIMEOUT "+strconv.Quote(raw))
		}
		cfg.GateTimeout = d
	}

	if level := os.Getenv("CLASSCATCH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("CLASSCATCH_LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	return cfg, nil
}
