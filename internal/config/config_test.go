package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BindAddr != DefaultBindAddr {
		t.Errorf("BindAddr = %q, want %q", cfg.BindAddr, DefaultBindAddr)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if !cfg.RequireToken {
		t.Error("RequireToken should default to true")
	}
	if cfg.MdnsEnabled {
		t.Error("MdnsEnabled should default to false")
	}
	if cfg.OptimizeTimeoutMs != 15000 {
		t.Errorf("OptimizeTimeoutMs = %d, want 15000", cfg.OptimizeTimeoutMs)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
port = 9000
require_token = false
mdns_enabled = true
optimize_timeout_ms = 3000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.RequireToken {
		t.Error("RequireToken should be false when the file disables it")
	}
	if !cfg.MdnsEnabled {
		t.Error("MdnsEnabled should be true")
	}
	if cfg.OptimizeTimeoutMs != 3000 {
		t.Errorf("OptimizeTimeoutMs = %d, want 3000", cfg.OptimizeTimeoutMs)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "port = [not valid")

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAIStoreDefaults(t *testing.T) {
	store := NewAIStore(t.TempDir())

	cfg := store.Load()
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
	if cfg.OptimizeMode != OptimizeOff {
		t.Errorf("OptimizeMode = %q, want %q", cfg.OptimizeMode, OptimizeOff)
	}
	if cfg.Enabled() {
		t.Error("Enabled() should be false with no API key and mode off")
	}
}

func TestAIConfigEnabled(t *testing.T) {
	// Both a non-off mode and a key for the active provider are
	// required; either alone keeps optimization off.
	cases := []struct {
		name string
		mode OptimizeMode
		key  string
		want bool
	}{
		{"off without key", OptimizeOff, "", false},
		{"off with key", OptimizeOff, "sk-test", false},
		{"auto without key", OptimizeAuto, "", false},
		{"auto with key", OptimizeAuto, "sk-test", true},
		{"manual without key", OptimizeManual, "", false},
		{"manual with key", OptimizeManual, "sk-test", true},
		{"empty mode with key", "", "sk-test", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultAIConfig()
			cfg.OptimizeMode = tc.mode
			p := cfg.Providers[cfg.Provider]
			p.APIKey = tc.key
			cfg.Providers[cfg.Provider] = p

			if got := cfg.Enabled(); got != tc.want {
				t.Errorf("Enabled() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAIStoreMergesPartialFile(t *testing.T) {
	dir := t.TempDir()
	// Old file: only one provider, no optimizeMode.
	writeFile(t, filepath.Join(dir, "ai-config.json"), `{
  "provider": "anthropic",
  "providers": {"anthropic": {"apiKey": "sk-test", "model": "claude-3-5-haiku-latest"}}
}`)

	cfg := NewAIStore(dir).Load()
	if cfg.Provider != ProviderAnthropic {
		t.Errorf("Provider = %q, want anthropic", cfg.Provider)
	}
	if cfg.OptimizeMode != OptimizeOff {
		t.Errorf("OptimizeMode = %q, want off default", cfg.OptimizeMode)
	}
	if cfg.Active().APIKey != "sk-test" {
		t.Errorf("Active().APIKey = %q, want sk-test", cfg.Active().APIKey)
	}
	// The other providers keep their default models.
	if cfg.Providers[ProviderOpenAI].Model == "" {
		t.Error("openai default model lost in merge")
	}
}

func TestAIStoreSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewAIStore(dir)

	cfg := store.Load()
	cfg.OptimizeMode = OptimizeAuto
	pc := cfg.Providers[ProviderOpenAI]
	pc.APIKey = "sk-live"
	cfg.Providers[ProviderOpenAI] = pc
	saved := store.Save(cfg)

	if !saved.Enabled() {
		t.Error("Enabled() should be true after setting a key in auto mode")
	}

	// A fresh store must see the persisted file.
	reloaded := NewAIStore(dir).Load()
	if reloaded.OptimizeMode != OptimizeAuto {
		t.Errorf("reloaded OptimizeMode = %q, want auto", reloaded.OptimizeMode)
	}
	if reloaded.Providers[ProviderOpenAI].APIKey != "sk-live" {
		t.Error("reloaded API key lost")
	}
}

func TestAIStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ai-config.json"), "{ not json")

	cfg := NewAIStore(dir).Load()
	if cfg.Provider != ProviderOpenAI {
		t.Error("corrupt file should fall back to defaults")
	}
}

func TestRoleStoreDefaults(t *testing.T) {
	cfg := NewRoleStore(t.TempDir()).Load()
	if cfg.ActiveRoleID != "general" {
		t.Errorf("ActiveRoleID = %q, want general", cfg.ActiveRoleID)
	}
	if len(cfg.Roles) != 3 {
		t.Fatalf("len(Roles) = %d, want 3 built-ins", len(cfg.Roles))
	}
	if cfg.ActivePrompt() != DefaultPrompt {
		t.Error("ActivePrompt() should be the default prompt for the general role")
	}
}

func TestRoleStoreLegacyCustomPrompt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "roles.json"), `{"customPrompt": "translate everything to pirate speak"}`)

	cfg := NewRoleStore(dir).Load()
	if cfg.ActiveRoleID != "custom" {
		t.Errorf("ActiveRoleID = %q, want custom", cfg.ActiveRoleID)
	}
	if got := cfg.ActivePrompt(); got != "translate everything to pirate speak" {
		t.Errorf("ActivePrompt() = %q", got)
	}
}

func TestRoleStoreDanglingActiveRole(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "roles.json"), `{
  "activeRoleId": "deleted",
  "roles": [{"id": "only", "name": "Only", "prompt": "be brief"}]
}`)

	cfg := NewRoleStore(dir).Load()
	if cfg.ActiveRoleID != "only" {
		t.Errorf("ActiveRoleID = %q, want only (reset to first role)", cfg.ActiveRoleID)
	}
	if cfg.ActivePrompt() != "be brief" {
		t.Errorf("ActivePrompt() = %q, want be brief", cfg.ActivePrompt())
	}
}

func TestRoleStoreSaveEmptyRestoresBuiltins(t *testing.T) {
	store := NewRoleStore(t.TempDir())
	saved := store.Save(RoleConfig{})
	if len(saved.Roles) != 3 {
		t.Fatalf("len(Roles) = %d, want 3 built-ins after empty save", len(saved.Roles))
	}
	if saved.ActiveRoleID != "general" {
		t.Errorf("ActiveRoleID = %q, want general", saved.ActiveRoleID)
	}
}

func TestActivePromptBlankFallsBack(t *testing.T) {
	cfg := RoleConfig{
		ActiveRoleID: "blank",
		Roles:        []RolePrompt{{ID: "blank", Name: "Blank", Prompt: "   "}},
	}
	if cfg.ActivePrompt() != DefaultPrompt {
		t.Error("blank prompt should fall back to DefaultPrompt")
	}
}
