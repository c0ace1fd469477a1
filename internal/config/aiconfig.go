package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Provider identifies an AI completion provider.
type Provider string

// Supported providers.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// OptimizeMode controls when inbound text is run through the optimizer.
type OptimizeMode string

const (
	// OptimizeOff never transforms text.
	OptimizeOff OptimizeMode = "off"

	// OptimizeAuto transforms text transparently before delivery.
	OptimizeAuto OptimizeMode = "auto"

	// OptimizeManual transforms text and returns a preview that the user
	// must explicitly confirm before delivery.
	OptimizeManual OptimizeMode = "manual"
)

// ProviderConfig holds the credentials and model selection for one provider.
type ProviderConfig struct {
	// APIKey authenticates against the provider. An empty key disables
	// optimization for that provider.
	APIKey string `json:"apiKey"`

	// Model is the model identifier passed to the provider.
	Model string `json:"model"`

	// BaseURL optionally overrides the provider's API endpoint,
	// e.g. for self-hosted proxies of the OpenAI chat API.
	BaseURL string `json:"baseURL,omitempty"`
}

// AIConfig is the persisted AI provider configuration (ai-config.json).
type AIConfig struct {
	// Provider selects which entry in Providers is active.
	Provider Provider `json:"provider"`

	// OptimizeMode is off, auto, or manual.
	OptimizeMode OptimizeMode `json:"optimizeMode"`

	// Providers maps each known provider to its configuration.
	Providers map[Provider]ProviderConfig `json:"providers"`
}

// Enabled reports whether optimization is active: the mode must not be off
// and the selected provider must have a non-empty API key.
func (c *AIConfig) Enabled() bool {
	if c.OptimizeMode == OptimizeOff || c.OptimizeMode == "" {
		return false
	}
	return c.Providers[c.Provider].APIKey != ""
}

// Active returns the configuration of the currently selected provider.
func (c *AIConfig) Active() ProviderConfig {
	return c.Providers[c.Provider]
}

// defaultAIConfig returns the built-in provider configuration.
// Models track the cheapest sensible default for each provider.
func defaultAIConfig() AIConfig {
	return AIConfig{
		Provider:     ProviderOpenAI,
		OptimizeMode: OptimizeOff,
		Providers: map[Provider]ProviderConfig{
			ProviderOpenAI:    {APIKey: "", Model: "gpt-4o-mini"},
			ProviderAnthropic: {APIKey: "", Model: "claude-3-5-haiku-latest"},
			ProviderGoogle:    {APIKey: "", Model: "gemini-1.5-flash"},
		},
	}
}

// AIStore persists the AI configuration as pretty JSON.
// The first Load reads from disk; subsequent loads hit an in-memory cache.
// External edits to the file while the process runs are not observed.
type AIStore struct {
	path  string
	mu    sync.Mutex
	cache *AIConfig
}

// NewAIStore creates a store backed by ai-config.json under dir.
func NewAIStore(dir string) *AIStore {
	return &AIStore{path: filepath.Join(dir, "ai-config.json")}
}

// Load returns the current AI configuration.
// Missing or unreadable files yield the defaults; a partial file is merged
// against the defaults field-by-field so schema growth never loses settings.
func (s *AIStore) Load() AIConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		return *s.cache
	}

	cfg := defaultAIConfig()
	data, err := os.ReadFile(s.path)
	if err == nil {
		var saved AIConfig
		if err := json.Unmarshal(data, &saved); err != nil {
			log.Printf("config: failed to parse %s: %v", s.path, err)
		} else {
			mergeAIConfig(&cfg, &saved)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("config: failed to read %s: %v", s.path, err)
	}

	s.cache = &cfg
	return cfg
}

// Save persists the given configuration and updates the cache.
// Write failures are logged; the in-memory state remains authoritative.
func (s *AIStore) Save(cfg AIConfig) AIConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := defaultAIConfig()
	mergeAIConfig(&merged, &cfg)
	s.cache = &merged

	if err := writePrettyJSON(s.path, merged); err != nil {
		log.Printf("config: failed to save %s: %v", s.path, err)
	}
	return merged
}

// mergeAIConfig overlays saved values onto dst (the defaults).
// Unknown providers in the saved file are kept; known providers missing
// from the saved file keep their defaults.
func mergeAIConfig(dst, saved *AIConfig) {
	if saved.Provider != "" {
		dst.Provider = saved.Provider
	}
	if saved.OptimizeMode != "" {
		dst.OptimizeMode = saved.OptimizeMode
	}
	for name, pc := range saved.Providers {
		dst.Providers[name] = pc
	}
}

// writePrettyJSON writes v as indented JSON, creating the parent directory
// if needed. Files are written with owner-only permissions since they may
// contain API keys.
func writePrettyJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
