package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the factory.
const (
	KindOpenAI       = "openai"
	KindOpenAICompat = "openai_compat"
	KindGemini       = "gemini"
	KindAnthropic    = "anthropic"
)

// ProviderSpec configures one provider instance.
type ProviderSpec struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Enabled     *bool         `yaml:"enabled"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (s ProviderSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// APIKey reads the key from the configured environment variable.
func (s ProviderSpec) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.APIKeyEnv))
}

type Catalog struct {
	Providers []ProviderSpec `yaml:"providers"`
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse provider catalog: %w", err)
	}
	seen := map[string]bool{}
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Name = normalizeName(p.Name)
		p.Kind = normalizeName(p.Kind)
		if p.Name == "" {
			return nil, fmt.Errorf("provider #%d: name is required", i+1)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("provider %q listed twice", p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case KindOpenAI, KindOpenAICompat, KindGemini, KindAnthropic:
		case "":
			return nil, fmt.Errorf("provider %q: kind is required", p.Name)
		default:
			return nil, fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		if p.Kind == KindOpenAICompat && strings.TrimSpace(p.BaseURL) == "" {
			return nil, fmt.Errorf("provider %q: base_url is required for %s", p.Name, KindOpenAICompat)
		}
	}
	return &c, nil
}

// EnvSpecs derives provider specs from well-known API key variables.
func EnvSpecs() []ProviderSpec {
	var out []ProviderSpec
	add := func(spec ProviderSpec) {
		if spec.APIKey() != "" {
			out = append(out, spec)
		}
	}
	add(ProviderSpec{Name: "openai", Kind: KindOpenAI, Model: envOr("OPENAI_MODEL", "gpt-4o-mini"), BaseURL: os.Getenv("OPENAI_BASE_URL"), APIKeyEnv: "OPENAI_API_KEY"})
	add(ProviderSpec{Name: "gemini", Kind: KindGemini, Model: envOr("GEMINI_MODEL", "gemini-2.5-flash"), APIKeyEnv: "GEMINI_API_KEY"})
	add(ProviderSpec{Name: "anthropic", Kind: KindAnthropic, Model: envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"), BaseURL: os.Getenv("ANTHROPIC_BASE_URL"), APIKeyEnv: "ANTHROPIC_API_KEY"})
	add(ProviderSpec{Name: "perplexity", Kind: KindOpenAICompat, Model: envOr("PERPLEXITY_MODEL", "sonar"), BaseURL: envOr("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"), APIKeyEnv: "PERPLEXITY_API_KEY"})
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
