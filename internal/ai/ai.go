// Package ai turns raw dictated text into cleaned-up text using a
// configurable LLM provider.
//
// The optimizer is fail-open: when a provider call fails or
// times out, callers fall back to the original text so dictation keeps
// working without an internet connection or a valid API key.
package ai

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Duye0120/AirVoice/internal/config"
	apperrors "github.com/Duye0120/AirVoice/internal/errors"
)

// Optimizer cleans up a piece of dictated text.
type Optimizer interface {
	Optimize(ctx context.Context, text string) (string, error)
}

// Service builds provider clients from the current AI configuration and
// applies the configured timeout to each call.
type Service struct {
	aiStore   *config.AIStore
	roleStore *config.RoleStore
	timeout   time.Duration

	// httpClient is shared by the HTTP-based providers.
	httpClient *http.Client

	// newProvider builds a provider client. Overridable in tests.
	newProvider func(provider config.Provider, pc config.ProviderConfig, prompt string, httpClient *http.Client) (Optimizer, error)
}

// NewService creates an optimizer service.
// timeout bounds each provider call; zero means no per-call deadline.
func NewService(aiStore *config.AIStore, roleStore *config.RoleStore, timeout time.Duration) *Service {
	return &Service{
		aiStore:     aiStore,
		roleStore:   roleStore,
		timeout:     timeout,
		httpClient:  &http.Client{},
		newProvider: newProviderClient,
	}
}

// Enabled reports whether optimization is currently usable: the mode is
// not off and the active provider has an API key.
func (s *Service) Enabled() bool {
	cfg := s.aiStore.Load()
	return cfg.Enabled()
}

// Mode returns the configured optimization mode.
func (s *Service) Mode() config.OptimizeMode {
	cfg := s.aiStore.Load()
	return cfg.OptimizeMode
}

// Optimize runs the active provider over the given text.
// Returns a coded error when optimization is disabled, unconfigured, or
// the provider call fails; callers are expected to fall back to the
// original text.
func (s *Service) Optimize(ctx context.Context, text string) (string, error) {
	cfg := s.aiStore.Load()

	if cfg.OptimizeMode == config.OptimizeOff {
		return "", apperrors.New(apperrors.CodeOptimizeDisabled, "optimization is turned off")
	}

	pc := cfg.Active()
	if pc.APIKey == "" {
		return "", apperrors.New(apperrors.CodeOptimizeNoKey, "no API key configured for provider "+string(cfg.Provider))
	}

	prompt := config.DefaultPrompt
	if s.roleStore != nil {
		roles := s.roleStore.Load()
		prompt = roles.ActivePrompt()
	}

	client, err := s.newProvider(cfg.Provider, pc, prompt, s.httpClient)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeOptimizeCallFailed, "create provider client", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	optimized, err := client.Optimize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.Wrap(apperrors.CodeOptimizeTimeout, "provider call timed out", err)
		}
		return "", apperrors.Wrap(apperrors.CodeOptimizeCallFailed, "provider call failed", err)
	}

	optimized = strings.TrimSpace(optimized)
	if optimized == "" {
		return "", apperrors.New(apperrors.CodeOptimizeCallFailed, "provider returned empty text")
	}

	log.Printf("ai: optimized %d chars via %s in %s", len(text), cfg.Provider, time.Since(start).Round(time.Millisecond))
	return optimized, nil
}

// newProviderClient builds the client for the given provider.
func newProviderClient(provider config.Provider, pc config.ProviderConfig, prompt string, httpClient *http.Client) (Optimizer, error) {
	switch provider {
	case config.ProviderOpenAI:
		return newOpenAIClient(pc, prompt, httpClient), nil
	case config.ProviderAnthropic:
		return newAnthropicClient(pc, prompt, httpClient), nil
	case config.ProviderGoogle:
		return newGoogleClient(pc, prompt), nil
	default:
		return nil, apperrors.New(apperrors.CodeOptimizeCallFailed, "unknown provider "+string(provider))
	}
}
