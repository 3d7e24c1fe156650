// Package config holds process-level configuration (env-driven, in the
// teacher's style) and the per-call ConfigSnapshot of spec §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Process holds server-wide configuration, loaded once at startup.
// Field names and env-var parsing follow the teacher's config.Config.
type Process struct {
	Port            int
	TwilioPort      int
	ServerType      string // "websocket", "twilio", or "both"
	RedisURL        string
	RedisPassword   string
	PostgresDSN     string
	RegistryPath    string // YAML provider registry config
	MaxSessions     int
	SessionTimeout  time.Duration
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration
	MaxBufferSize   int
	MetricsAddr     string

	// Provider credentials and locations. An empty WhisperModelPath or
	// MCPServersPath skips that provider's Register call rather than
	// failing startup. An empty GeminiAPIKey or OpenAIAPIKey only skips
	// injecting the key; those providers are registered either way.
	GeminiAPIKey     string
	OpenAIAPIKey     string
	WhisperModelPath string
	MCPServersPath   string // YAML list of mcptool.ServerConfig
}

// LoadProcess loads process configuration from environment variables with
// defaults, mirroring the teacher's LoadConfig.
func LoadProcess() (*Process, error) {
	_ = godotenv.Load()

	cfg := &Process{
		Port:            8080,
		TwilioPort:      8081,
		ServerType:      "websocket",
		RedisURL:        "localhost:6379",
		PostgresDSN:     "postgres://localhost:5432/voxcore?sslmode=disable",
		RegistryPath:    "registry.yaml",
		MaxSessions:     100,
		SessionTimeout:  30 * time.Minute,
		AllowedOrigins:  []string{"*"},
		KeepAlivePeriod: 30 * time.Second,
		MaxBufferSize:   5 * 1024 * 1024,
		MetricsAddr:     ":9090",
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}
	if v := os.Getenv("TWILIO_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TWILIO_PORT: %w", err)
		}
		cfg.TwilioPort = p
	}
	if v := os.Getenv("SERVER_TYPE"); v != "" {
		switch v {
		case "websocket", "twilio", "both":
			cfg.ServerType = v
		default:
			return nil, fmt.Errorf("invalid SERVER_TYPE: must be 'websocket', 'twilio', or 'both'")
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("REGISTRY_CONFIG"); v != "" {
		cfg.RegistryPath = v
	}
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		cfg.MaxSessions = n
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		cfg.SessionTimeout = time.Duration(n) * time.Minute
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("KEEPALIVE_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		cfg.KeepAlivePeriod = time.Duration(n) * time.Second
	}
	if v := os.Getenv("MAX_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_BUFFER_SIZE: %w", err)
		}
		cfg.MaxBufferSize = n
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.WhisperModelPath = os.Getenv("WHISPER_MODEL_PATH")
	cfg.MCPServersPath = os.Getenv("MCP_SERVERS_CONFIG")

	return cfg, nil
}
