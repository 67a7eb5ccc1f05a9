package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by DILEMMA_ENV (or .env by default),
// then the matching .secret sidecar if present. Settings are flat env
// vars read through the getters below.
func Load() error {
	envFile := os.Getenv("DILEMMA_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StoreDriver selects the persistence backend: postgres or sqlite.
func StoreDriver() string {
	switch d := strings.ToLower(os.Getenv("STORE_DRIVER")); d {
	case "sqlite", "postgres":
		return d
	default:
		return "postgres"
	}
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func SQLitePath() string {
	return getOr("SQLITE_PATH", "dilemma.db")
}

func MigrationsPath() string {
	return getOr("MIGRATIONS_PATH", "migrations")
}

// CasesDir is the directory holding YAML case files.
func CasesDir() string {
	return getOr("CASES_DIR", "cases")
}

// CasesWatch reports whether the case directory is reloaded on change.
// Defaults to true.
func CasesWatch() bool {
	v, err := strconv.ParseBool(os.Getenv("CASES_WATCH"))
	if err != nil {
		return true
	}
	return v
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	return getOr("LLM_PROVIDER", "openai")
}

// LLMModel overrides the provider's default model when set.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// GenerationTimeout bounds each language-generation call.
// Defaults to 20s.
func GenerationTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("GENERATION_TIMEOUT"))
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// APIKeys returns the accepted bearer keys. An empty list disables auth.
func APIKeys() []string {
	var keys []string
	for _, k := range strings.Split(os.Getenv("API_KEYS"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return getOr("LOG_LEVEL", "info")
}

func getOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
