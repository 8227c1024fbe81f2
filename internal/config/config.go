package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by VERITAS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("VERITAS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
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

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey is the single bearer key protecting /v1 routes. Empty disables
// auth (local development).
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GroqAPIKey() string {
	return os.Getenv("GROQ_API_KEY")
}

// ProviderAPIKey returns the API key for a backend selector.
func ProviderAPIKey(provider string) string {
	switch provider {
	case "anthropic":
		return AnthropicAPIKey()
	case "groq":
		return GroqAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock.
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

func EmbeddingAPIKey() string {
	if EmbeddingProvider() == "mock" {
		return ""
	}
	return OpenAIAPIKey()
}

// EmbeddingModel overrides the default embedding model. Empty means
// the client default; the model's vector width must match the
// documents schema.
func EmbeddingModel() string {
	return os.Getenv("EMBEDDING_MODEL")
}

// EmbeddingBaseURL points embeddings at a compatible gateway. Empty
// means the provider's public endpoint.
func EmbeddingBaseURL() string {
	return os.Getenv("EMBEDDING_BASE_URL")
}

// ShareThreshold is the combined request+response length above which a
// conversation record is promoted to shared memory. Exclusive: a record
// of exactly this length is not promoted.
func ShareThreshold() int {
	n, err := strconv.Atoi(os.Getenv("SHARE_THRESHOLD"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

func VerifyHighThreshold() float64 {
	return floatEnv("VERIFY_HIGH_THRESHOLD", 0.9)
}

func VerifyMediumThreshold() float64 {
	return floatEnv("VERIFY_MEDIUM_THRESHOLD", 0.7)
}

func VerifyLowThreshold() float64 {
	return floatEnv("VERIFY_LOW_THRESHOLD", 0.5)
}

// PeerTimeout bounds each peer-agent opinion call during verification.
func PeerTimeout() time.Duration {
	return durationEnv("PEER_TIMEOUT", 20*time.Second)
}

// EvidenceTimeout bounds each non-peer evidence source.
func EvidenceTimeout() time.Duration {
	return durationEnv("EVIDENCE_TIMEOUT", 10*time.Second)
}

// KnowledgeTimeout bounds knowledge-base lookups; the context assembler
// fails open past it.
func KnowledgeTimeout() time.Duration {
	return durationEnv("KNOWLEDGE_TIMEOUT", 3*time.Second)
}

// SweepInterval is how often stale verifying records are repaired.
func SweepInterval() time.Duration {
	return durationEnv("SWEEP_INTERVAL", 5*time.Minute)
}

// VerifyStaleAfter is the age past which a record still "verifying" is
// considered stuck and repaired to error.
func VerifyStaleAfter() time.Duration {
	return durationEnv("VERIFY_STALE_AFTER", 10*time.Minute)
}

func BrowserHeadless() bool {
	return os.Getenv("BROWSER_HEADLESS") != "false"
}

func ScreenshotDir() string {
	return os.Getenv("SCREENSHOT_DIR")
}

// RateLimitRPS returns requests per second limit.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// SyncPlatforms parses SYNC_PLATFORMS, a comma-separated list of
// name:method:url entries, e.g.
// "notion:api:https://hooks.example.com/notion,workspace:browser:https://workspace.example.com".
func SyncPlatforms() []SyncPlatform {
	raw := os.Getenv("SYNC_PLATFORMS")
	if raw == "" {
		return nil
	}

	var platforms []SyncPlatform
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			continue
		}
		method := parts[1]
		if method != "api" && method != "browser" {
			continue
		}
		platforms = append(platforms, SyncPlatform{Name: parts[0], Method: method, URL: parts[2]})
	}
	return platforms
}

// SyncPlatform is one parsed SYNC_PLATFORMS entry.
type SyncPlatform struct {
	Name   string
	Method string
	URL    string
}

// SyncTimeout bounds one platform dispatch.
func SyncTimeout() time.Duration {
	return durationEnv("SYNC_TIMEOUT", 15*time.Second)
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

func floatEnv(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 || v > 1 {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
