package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the pinguard daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Persistence
	StateFile       string
	AuditDir        string
	AuditMaxSizeMB  int
	AuditBufferSize int

	// Logging
	LogLevel string
	LogFile  string

	// Guard behaviour
	RulesFile   string
	DomainMatch string

	// Optional browser launch
	LaunchBrowser bool
	BrowserPath   string
	ProfileDir    string
	StartURL      string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("PINGUARD_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("PINGUARD_CDP_PORT", 9222),
		BindAddr:         getEnvOrDefault("PINGUARD_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   splitList(getEnvOrDefault("PINGUARD_PORT_CANDIDATES", "127.0.0.1:8191,127.0.0.1:8192")),
		PortAutoFallback: getEnvBoolOrDefault("PINGUARD_PORT_AUTO_FALLBACK", true),
		StateFile:        getEnvOrDefault("PINGUARD_STATE_FILE", "./data/pinguard_state.json"),
		AuditDir:         os.Getenv("PINGUARD_AUDIT_DIR"),
		AuditMaxSizeMB:   getEnvIntOrDefault("PINGUARD_AUDIT_MAX_SIZE_MB", 50),
		AuditBufferSize:  getEnvIntOrDefault("PINGUARD_AUDIT_BUFFER_SIZE", 1000),
		LogLevel:         strings.ToLower(getEnvOrDefault("PINGUARD_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("PINGUARD_LOG_FILE", "logs/pinguard.log"),
		RulesFile:        getEnvOrDefault("PINGUARD_RULES_FILE", "./config/pin_rules.yaml"),
		DomainMatch:      strings.ToLower(getEnvOrDefault("PINGUARD_DOMAIN_MATCH", "last-two-labels")),
		LaunchBrowser:    getEnvBoolOrDefault("PINGUARD_LAUNCH_BROWSER", false),
		BrowserPath:      os.Getenv("PINGUARD_BROWSER_PATH"),
		ProfileDir:       getEnvOrDefault("PINGUARD_PROFILE_DIR", "./data/browser_profile"),
		StartURL:         getEnvOrDefault("PINGUARD_START_URL", "about:blank"),
	}

	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("PINGUARD_CDP_PORT out of range: %d", cfg.CDPPort)
	}
	switch cfg.DomainMatch {
	case "last-two-labels", "public-suffix":
	default:
		return nil, fmt.Errorf("PINGUARD_DOMAIN_MATCH must be last-two-labels or public-suffix, got %q", cfg.DomainMatch)
	}
	if cfg.AuditMaxSizeMB < 1 {
		cfg.AuditMaxSizeMB = 1
	}
	if cfg.AuditBufferSize < 1 {
		cfg.AuditBufferSize = 1
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
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

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
