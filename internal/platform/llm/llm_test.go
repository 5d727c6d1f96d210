package llm

import (
	"context"
	"testing"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string  { return s.name }
func (s stubProvider) Model() string { return "stub-1" }
func (s stubProvider) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{Text: req.Prompt}, nil
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"openai", "Gemini"} {
		if err := r.Register(stubProvider{name: n}); err != nil {
			t.Fatalf("Register %s: %v", n, err)
		}
	}
	if err := r.Register(stubProvider{name: "OPENAI"}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}

	all, unknown := r.Select(nil)
	if len(all) != 2 || len(unknown) != 0 {
		t.Fatalf("Select(nil): %d providers, unknown=%v", len(all), unknown)
	}
	if all[0].Name() != "Gemini" {
		t.Fatalf("expected sorted selection, got %s first", all[0].Name())
	}

	some, unknown := r.Select([]string{"gemini", "GEMINI", "mistral"})
	if len(some) != 1 || len(unknown) != 1 || unknown[0] != "mistral" {
		t.Fatalf("Select: %d providers, unknown=%v", len(some), unknown)
	}
}

func TestParseCatalog(t *testing.T) {
	raw := []byte(`
providers:
  - name: OpenAI
    kind: openai
    model: gpt-4o-mini
    api_key_env: BP_TEST_OPENAI_KEY
  - name: mistral
    kind: openai_compat
    base_url: https://api.mistral.ai
    model: mistral-small-latest
    api_key_env: BP_TEST_MISTRAL_KEY
    enabled: false
    timeout: 45s
`)
	c, err := ParseCatalog(raw)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(c.Providers) != 2 || c.Providers[0].Name != "openai" {
		t.Fatalf("unexpected catalog: %+v", c.Providers)
	}
	if c.Providers[1].IsEnabled() || !c.Providers[0].IsEnabled() {
		t.Fatalf("enabled flags not honoured")
	}
	if c.Providers[1].Timeout.Seconds() != 45 {
		t.Fatalf("timeout = %v", c.Providers[1].Timeout)
	}
	t.Setenv("BP_TEST_OPENAI_KEY", "k1")
	if c.Providers[0].APIKey() != "k1" {
		t.Fatalf("APIKey not read from env")
	}
}

func TestParseCatalogRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"missing kind":  "providers:\n  - name: x\n",
		"unknown kind":  "providers:\n  - name: x\n    kind: cohere\n",
		"duplicate":     "providers:\n  - name: x\n    kind: openai\n  - name: X\n    kind: openai\n",
		"compat no url": "providers:\n  - name: x\n    kind: openai_compat\n",
		"missing name":  "providers:\n  - kind: openai\n",
	} {
		if _, err := ParseCatalog([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvSpecs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("PERPLEXITY_API_KEY", "p")
	specs := EnvSpecs()
	if len(specs) != 2 || specs[0].Name != "gemini" || specs[1].Name != "perplexity" {
		t.Fatalf("unexpected specs: %+v", specs)
	}
	if specs[1].BaseURL == "" {
		t.Fatalf("perplexity should default its base url")
	}
}
