package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultPrompt is the built-in system instruction used when the active role
// has no prompt of its own. It asks for conservative disfluency cleanup only:
// the optimizer must never alter factual content, names, code, or paths.
const DefaultPrompt = `You are a text cleanup assistant. The user dictates text by voice. Please:
1. Remove filler words and verbal tics (um, uh, like, you know, so, and so on)
2. Lightly polish the phrasing so it reads smoothly, but keep the original meaning
3. Never add, guess, correct, or replace facts, names, version numbers, model numbers, terminology, code snippets, paths, or commands
4. The user may be discussing technology, code, or projects; only tidy the wording, never explain, analyze, or respond to the content itself
5. Output only the cleaned-up text with nothing extra

If the original is already clear, output it unchanged. Do not rewrite the user's content based on what seems "more reasonable" or "more common".`

// RolePrompt is a named system instruction for the optimizer.
type RolePrompt struct {
	// ID is the stable identifier referenced by RoleConfig.ActiveRoleID.
	ID string `json:"id"`

	// Name is the display name shown to the user.
	Name string `json:"name"`

	// Prompt is the system instruction sent to the provider.
	Prompt string `json:"prompt"`

	// BuiltIn marks roles shipped with the application.
	BuiltIn bool `json:"builtIn,omitempty"`
}

// RoleConfig is the persisted role configuration (roles.json).
type RoleConfig struct {
	// ActiveRoleID selects the role whose prompt drives optimization.
	// If it references no existing role, the first role is used instead.
	ActiveRoleID string `json:"activeRoleId"`

	// Roles is the full list of available roles.
	Roles []RolePrompt `json:"roles"`
}

// ActivePrompt returns the prompt of the active role, falling back to
// DefaultPrompt if the role has no usable prompt.
func (c *RoleConfig) ActivePrompt() string {
	for _, role := range c.Roles {
		if role.ID == c.ActiveRoleID {
			if p := strings.TrimSpace(role.Prompt); p != "" {
				return p
			}
			return DefaultPrompt
		}
	}
	return DefaultPrompt
}

// defaultRoleConfig returns the built-in roles.
func defaultRoleConfig() RoleConfig {
	return RoleConfig{
		ActiveRoleID: "general",
		Roles: []RolePrompt{
			{
				ID:      "general",
				Name:    "General",
				Prompt:  DefaultPrompt,
				BuiltIn: true,
			},
			{
				ID:   "developer",
				Name: "Developer",
				Prompt: DefaultPrompt + "\n\nAdditional requirements:\n" +
					"- Preserve technical terms exactly as written, including case and symbols\n" +
					"- Keep code, paths, commands, version numbers, and variable names strictly unchanged",
				BuiltIn: true,
			},
			{
				ID:   "daily",
				Name: "Daily work",
				Prompt: DefaultPrompt + "\n\nAdditional requirements:\n" +
					"- No need for technical jargon; keep it concise and clear\n" +
					"- Preserve personal names, organization names, numbers, dates, and amounts",
				BuiltIn: true,
			},
		},
	}
}

// RoleStore persists the role configuration as pretty JSON with the same
// lazy-cache discipline as AIStore.
type RoleStore struct {
	path  string
	mu    sync.Mutex
	cache *RoleConfig
}

// NewRoleStore creates a store backed by roles.json under dir.
func NewRoleStore(dir string) *RoleStore {
	return &RoleStore{path: filepath.Join(dir, "roles.json")}
}

// Load returns the current role configuration.
// A saved file with no roles falls back to the built-in roles, and an
// ActiveRoleID that no longer matches any role is reset to the first role.
// A legacy "customPrompt" field from older versions is migrated into a
// custom role and made active.
func (s *RoleStore) Load() RoleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		return *s.cache
	}

	cfg := defaultRoleConfig()
	data, err := os.ReadFile(s.path)
	if err == nil {
		var saved struct {
			RoleConfig
			// Older versions stored a single free-form prompt.
			CustomPrompt string `json:"customPrompt"`
		}
		if err := json.Unmarshal(data, &saved); err != nil {
			log.Printf("config: failed to parse %s: %v", s.path, err)
		} else {
			if len(saved.Roles) > 0 {
				cfg.Roles = saved.Roles
			}
			if saved.ActiveRoleID != "" {
				cfg.ActiveRoleID = saved.ActiveRoleID
			}
			if legacy := strings.TrimSpace(saved.CustomPrompt); legacy != "" && len(saved.Roles) == 0 {
				cfg.Roles = append(cfg.Roles, RolePrompt{
					ID:     "custom",
					Name:   "Custom",
					Prompt: legacy,
				})
				cfg.ActiveRoleID = "custom"
			}
		}
	} else if !os.IsNotExist(err) {
		log.Printf("config: failed to read %s: %v", s.path, err)
	}

	ensureActiveRole(&cfg)
	s.cache = &cfg
	return cfg
}

// Save persists the given configuration and updates the cache.
// Write failures are logged; the in-memory state remains authoritative.
func (s *RoleStore) Save(cfg RoleConfig) RoleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cfg.Roles) == 0 {
		cfg.Roles = defaultRoleConfig().Roles
	}
	ensureActiveRole(&cfg)
	s.cache = &cfg

	if err := writePrettyJSON(s.path, cfg); err != nil {
		log.Printf("config: failed to save %s: %v", s.path, err)
	}
	return cfg
}

// ensureActiveRole resets ActiveRoleID to the first role when it references
// a role that does not exist.
func ensureActiveRole(cfg *RoleConfig) {
	for _, role := range cfg.Roles {
		if role.ID == cfg.ActiveRoleID {
			return
		}
	}
	if len(cfg.Roles) > 0 {
		cfg.ActiveRoleID = cfg.Roles[0].ID
	} else {
		cfg.ActiveRoleID = "general"
	}
}
