package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

const testCatalog = `
providers:
  - name: openai
    kind: openai
    model: gpt-4o-mini
    api_key_env: BP_TEST_OPENAI_KEY
  - name: perplexity
    kind: openai_compat
    model: sonar
    base_url: https://api.perplexity.ai
    api_key_env: BP_TEST_PPLX_KEY
  - name: claude
    kind: anthropic
    model: claude-sonnet-4-5
    api_key_env: BP_TEST_ANTHROPIC_KEY
  - name: disabled
    kind: openai
    api_key_env: BP_TEST_OPENAI_KEY
    enabled: false
`

func TestBuildProvidersFromCatalog(t *testing.T) {
	t.Setenv("BP_TEST_OPENAI_KEY", "k1")
	t.Setenv("BP_TEST_PPLX_KEY", "k2")
	t.Setenv("BP_TEST_ANTHROPIC_KEY", "")

	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	specs, err := providerSpecs(Config{ProvidersConfig: path})
	if err != nil {
		t.Fatalf("providerSpecs: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("expected 4 specs, got %d", len(specs))
	}

	reg, err := buildProviders(context.Background(), logger.Nop(), specs)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	got := reg.Names()
	if len(got) != 2 || got[0] != "openai" || got[1] != "perplexity" {
		t.Fatalf("unexpected providers: %v", got)
	}
}

func TestProviderSpecsFromEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY", "PERPLEXITY_API_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("PERPLEXITY_API_KEY", "pk")

	specs, err := providerSpecs(Config{})
	if err != nil {
		t.Fatalf("providerSpecs: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "perplexity" || specs[0].Kind != llm.KindOpenAICompat {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}

func TestNewProviderUnknownKind(t *testing.T) {
	if _, err := newProvider(context.Background(), logger.Nop(), llm.ProviderSpec{Name: "x", Kind: "mystery"}, "k"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestLoadConfigKeepsOneRole(t *testing.T) {
	t.Setenv("RUN_SERVER", "false")
	t.Setenv("RUN_WORKER", "false")
	cfg := LoadConfig(logger.Nop())
	if !cfg.RunServer {
		t.Fatalf("server should be forced on when both roles are off")
	}
	if cfg.BatchConcurrency != 4 {
		t.Fatalf("default concurrency: %d", cfg.BatchConcurrency)
	}
}
