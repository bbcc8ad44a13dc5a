package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	require.NoError(t, Initialize())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "causal_memory.db", cfg.DBPath)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLMModel)
	assert.Equal(t, 0.1, cfg.LLMTemperature)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 0.5, cfg.SimilarityThreshold)
	assert.Equal(t, 0.85, cfg.SoftLinkThreshold)
	assert.Equal(t, 5, cfg.MaxPotentialCauses)
	assert.Equal(t, 24, cfg.TimeDecayHours)
	assert.Equal(t, 2, cfg.MaxConsequenceDepth)
	assert.Equal(t, 1000, cfg.EmbeddingCacheSize)
	assert.Empty(t, cfg.APIKey)
	assert.Zero(t, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 60, cfg.RateLimitEventsPerMin)
	assert.Equal(t, 120, cfg.RateLimitQueryPerMin)
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar string
		value  string
		check  func(*Config) bool
	}{
		{KeyDBPath, "/tmp/mem.db", func(c *Config) bool { return c.DBPath == "/tmp/mem.db" }},
		{KeySimilarityThreshold, "0.7", func(c *Config) bool { return c.SimilarityThreshold == 0.7 }},
		{KeyMaxPotentialCauses, "3", func(c *Config) bool { return c.MaxPotentialCauses == 3 }},
		{KeyMaxConsequenceDepth, "0", func(c *Config) bool { return c.MaxConsequenceDepth == 0 }},
		{KeyPort, "8080", func(c *Config) bool { return c.Port == 8080 }},
		{KeyAPIKey, "sekrit", func(c *Config) bool { return c.APIKey == "sekrit" }},
		{KeyCORSOrigins, "https://a.example, https://b.example", func(c *Config) bool {
			return len(c.CORSOrigins) == 2 && c.CORSOrigins[0] == "https://a.example" && c.CORSOrigins[1] == "https://b.example"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("env %s=%s not reflected in config: %+v", tt.envVar, tt.value, cfg)
			}
		})
	}

	// Reset for other tests.
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"similarity out of range", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"soft link out of range", func(c *Config) { c.SoftLinkThreshold = -0.1 }},
		{"zero candidates", func(c *Config) { c.MaxPotentialCauses = 0 }},
		{"zero decay", func(c *Config) { c.TimeDecayHours = 0 }},
		{"negative depth", func(c *Config) { c.MaxConsequenceDepth = -1 }},
		{"zero cache", func(c *Config) { c.EmbeddingCacheSize = 0 }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.LLMTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}
