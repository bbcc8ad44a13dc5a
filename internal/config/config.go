// Package config provides viper-backed configuration for the causal memory
// service. Every option is bound to an environment variable of the same name
// and carries the documented default, so a bare process comes up with sane
// behavior and deployments override only what they need.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// v is the package-level viper instance, created by Initialize.
var v *viper.Viper

// Environment variable names double as viper keys.
const (
	KeyDBPath              = "DB_PATH"
	KeyEmbeddingModel      = "EMBEDDING_MODEL"
	KeyLLMModel            = "LLM_MODEL"
	KeyLLMTemperature      = "LLM_TEMPERATURE"
	KeyLLMTimeoutSeconds   = "LLM_TIMEOUT_SECONDS"
	KeySimilarityThreshold = "SIMILARITY_THRESHOLD"
	KeySoftLinkThreshold   = "SOFT_LINK_THRESHOLD"
	KeyMaxPotentialCauses  = "MAX_POTENTIAL_CAUSES"
	KeyTimeDecayHours      = "TIME_DECAY_HOURS"
	KeyMaxConsequenceDepth = "MAX_CONSEQUENCE_DEPTH"
	KeyEmbeddingCacheSize  = "EMBEDDING_CACHE_SIZE"
	KeyAPIKey              = "API_KEY"
	KeyPort                = "PORT"
	KeyCORSOrigins         = "CORS_ORIGINS"
	KeyRateLimitEvents     = "RATE_LIMIT_EVENTS_PER_MIN"
	KeyRateLimitQuery      = "RATE_LIMIT_QUERY_PER_MIN"
)

// Initialize sets up the viper instance with defaults and environment
// bindings. Safe to call multiple times; each call rebuilds the instance
// (tests rely on this for isolation).
func Initialize() error {
	nv := viper.New()

	nv.SetDefault(KeyDBPath, "causal_memory.db")
	nv.SetDefault(KeyEmbeddingModel, "all-MiniLM-L6-v2")
	nv.SetDefault(KeyLLMModel, "gpt-3.5-turbo")
	nv.SetDefault(KeyLLMTemperature, 0.1)
	nv.SetDefault(KeyLLMTimeoutSeconds, 10)
	nv.SetDefault(KeySimilarityThreshold, 0.5)
	nv.SetDefault(KeySoftLinkThreshold, 0.85)
	nv.SetDefault(KeyMaxPotentialCauses, 5)
	nv.SetDefault(KeyTimeDecayHours, 24)
	nv.SetDefault(KeyMaxConsequenceDepth, 2)
	nv.SetDefault(KeyEmbeddingCacheSize, 1000)
	nv.SetDefault(KeyAPIKey, "")
	nv.SetDefault(KeyPort, 0)
	nv.SetDefault(KeyCORSOrigins, "*")
	nv.SetDefault(KeyRateLimitEvents, 60)
	nv.SetDefault(KeyRateLimitQuery, 120)

	for _, key := range []string{
		KeyDBPath, KeyEmbeddingModel, KeyLLMModel, KeyLLMTemperature,
		KeyLLMTimeoutSeconds, KeySimilarityThreshold, KeySoftLinkThreshold,
		KeyMaxPotentialCauses, KeyTimeDecayHours, KeyMaxConsequenceDepth,
		KeyEmbeddingCacheSize, KeyAPIKey, KeyPort, KeyCORSOrigins,
		KeyRateLimitEvents, KeyRateLimitQuery,
	} {
		if err := nv.BindEnv(key); err != nil {
			return fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	v = nv
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	ensureInitialized()
	return v.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	ensureInitialized()
	return v.GetInt(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	ensureInitialized()
	return v.GetFloat64(key)
}

func ensureInitialized() {
	if v == nil {
		_ = Initialize()
	}
}

// Config is the typed snapshot consumed by constructors. Build one with Load.
type Config struct {
	DBPath                string
	EmbeddingModel        string
	LLMModel              string
	LLMTemperature        float64
	LLMTimeout            time.Duration
	SimilarityThreshold   float64
	SoftLinkThreshold     float64
	MaxPotentialCauses    int
	TimeDecayHours        int
	MaxConsequenceDepth   int
	EmbeddingCacheSize    int
	APIKey                string
	Port                  int // 0 = unset; tool server falls back to stdio
	CORSOrigins           []string
	RateLimitEventsPerMin int
	RateLimitQueryPerMin  int
}

// Load reads the current configuration into a typed Config and validates it.
func Load() (*Config, error) {
	ensureInitialized()

	cfg := &Config{
		DBPath:                v.GetString(KeyDBPath),
		EmbeddingModel:        v.GetString(KeyEmbeddingModel),
		LLMModel:              v.GetString(KeyLLMModel),
		LLMTemperature:        v.GetFloat64(KeyLLMTemperature),
		LLMTimeout:            time.Duration(v.GetInt(KeyLLMTimeoutSeconds)) * time.Second,
		SimilarityThreshold:   v.GetFloat64(KeySimilarityThreshold),
		SoftLinkThreshold:     v.GetFloat64(KeySoftLinkThreshold),
		MaxPotentialCauses:    v.GetInt(KeyMaxPotentialCauses),
		TimeDecayHours:        v.GetInt(KeyTimeDecayHours),
		MaxConsequenceDepth:   v.GetInt(KeyMaxConsequenceDepth),
		EmbeddingCacheSize:    v.GetInt(KeyEmbeddingCacheSize),
		APIKey:                v.GetString(KeyAPIKey),
		Port:                  v.GetInt(KeyPort),
		CORSOrigins:           splitOrigins(v.GetString(KeyCORSOrigins)),
		RateLimitEventsPerMin: v.GetInt(KeyRateLimitEvents),
		RateLimitQueryPerMin:  v.GetInt(KeyRateLimitQuery),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave silently.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: %s must not be empty", KeyDBPath)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("config: %s must be in [0,1], got %v", KeySimilarityThreshold, c.SimilarityThreshold)
	}
	if c.SoftLinkThreshold < 0 || c.SoftLinkThreshold > 1 {
		return fmt.Errorf("config: %s must be in [0,1], got %v", KeySoftLinkThreshold, c.SoftLinkThreshold)
	}
	if c.MaxPotentialCauses < 1 {
		return fmt.Errorf("config: %s must be >= 1, got %d", KeyMaxPotentialCauses, c.MaxPotentialCauses)
	}
	if c.TimeDecayHours < 1 {
		return fmt.Errorf("config: %s must be >= 1, got %d", KeyTimeDecayHours, c.TimeDecayHours)
	}
	if c.MaxConsequenceDepth < 0 {
		return fmt.Errorf("config: %s must be >= 0, got %d", KeyMaxConsequenceDepth, c.MaxConsequenceDepth)
	}
	if c.EmbeddingCacheSize < 1 {
		return fmt.Errorf("config: %s must be >= 1, got %d", KeyEmbeddingCacheSize, c.EmbeddingCacheSize)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: %s must be a valid port, got %d", KeyPort, c.Port)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyLLMTimeoutSeconds)
	}
	return nil
}

func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
