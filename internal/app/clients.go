package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/brandpulse-backend/internal/modules/brand/analyzer"
	"github.com/yungbote/brandpulse-backend/internal/platform/anthropic"
	"github.com/yungbote/brandpulse-backend/internal/platform/gcp"
	"github.com/yungbote/brandpulse-backend/internal/platform/gemini"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/platform/neo4jdb"
	"github.com/yungbote/brandpulse-backend/internal/platform/openai"
	"github.com/yungbote/brandpulse-backend/internal/realtime/bus"
	"github.com/yungbote/brandpulse-backend/internal/temporalx"
)

const neo4jCloseTimeout = 5 * time.Second

type Clients struct {
	Redis    goredis.UniversalClient
	SSEBus   bus.Bus
	Temporal temporalsdkclient.Client
	Neo4j    *neo4jdb.Client
	Reports  gcp.ReportBucket

	Providers *llm.Registry
	Analyzer  analyzer.Analyzer
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if cfg.Redis.Addr != "" {
		rdb, err := bus.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		b, err := bus.NewRedisBus(log, rdb, cfg.Redis.Channel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		c.Redis = rdb
		c.SSEBus = b
	} else {
		if !cfg.RunServer {
			log.Warn("REDIS_ADDR not set on a worker-only process; realtime events stay local")
		}
		c.SSEBus = bus.NewMemoryBus()
	}

	// Temporal
	tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init temporal: %w", err)
	}
	c.Temporal = tc

	// Neo4j
	if cfg.Neo4j.URI != "" {
		n, err := neo4jdb.New(ctx, log, cfg.Neo4j)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init neo4j: %w", err)
		}
		c.Neo4j = n
	}

	// Gcs
	bucketCfg, ok, err := gcp.BucketConfigFromEnv()
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("report bucket config: %w", err)
	}
	if ok {
		b, err := gcp.NewReportBucket(ctx, log, bucketCfg)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init report bucket: %w", err)
		}
		c.Reports = b
	}

	// LLM providers
	specs, err := providerSpecs(cfg)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	reg, err := buildProviders(ctx, log, specs)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	if reg.Len() == 0 {
		log.Warn("No LLM providers configured; batch starts will be rejected")
	}
	c.Providers = reg

	an, err := analyzer.New(log, cfg.Analyzer)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init analyzer: %w", err)
	}
	c.Analyzer = an

	return c, nil
}

func providerSpecs(cfg Config) ([]llm.ProviderSpec, error) {
	if cfg.ProvidersConfig == "" {
		return llm.EnvSpecs(), nil
	}
	catalog, err := llm.LoadCatalog(cfg.ProvidersConfig)
	if err != nil {
		return nil, err
	}
	return catalog.Providers, nil
}

// buildProviders instantiates every enabled spec that has an API key.
func buildProviders(ctx context.Context, log *logger.Logger, specs []llm.ProviderSpec) (*llm.Registry, error) {
	reg := llm.NewRegistry()
	for _, spec := range specs {
		if !spec.IsEnabled() {
			continue
		}
		key := spec.APIKey()
		if key == "" {
			log.Warn("Skipping LLM provider without API key", "provider", spec.Name, "api_key_env", spec.APIKeyEnv)
			continue
		}
		p, err := newProvider(ctx, log, spec, key)
		if err != nil {
			return nil, fmt.Errorf("init provider %s: %w", spec.Name, err)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		log.Info("LLM provider ready", "provider", spec.Name, "kind", spec.Kind, "model", spec.Model)
	}
	return reg, nil
}

func newProvider(ctx context.Context, log *logger.Logger, spec llm.ProviderSpec, key string) (llm.Provider, error) {
	switch spec.Kind {
	case llm.KindOpenAI, llm.KindOpenAICompat:
		api := openai.APIResponses
		if spec.Kind == llm.KindOpenAICompat {
			api = openai.APIChat
		}
		return openai.New(log, openai.Config{
			Name:        spec.Name,
			APIKey:      key,
			BaseURL:     spec.BaseURL,
			Model:       spec.Model,
			API:         api,
			Timeout:     spec.Timeout,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
		})
	case llm.KindGemini:
		return gemini.New(ctx, log, gemini.Config{
			Name:        spec.Name,
			APIKey:      key,
			BaseURL:     spec.BaseURL,
			Model:       spec.Model,
			Timeout:     spec.Timeout,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
		})
	case llm.KindAnthropic:
		return anthropic.New(log, anthropic.Config{
			Name:        spec.Name,
			APIKey:      key,
			BaseURL:     spec.BaseURL,
			Model:       spec.Model,
			Timeout:     spec.Timeout,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
		})
	}
	return nil, fmt.Errorf("unknown provider kind %q", spec.Kind)
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	// The redis bus owns c.Redis.
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), neo4jCloseTimeout)
		defer cancel()
		_ = c.Neo4j.Close(ctx)
	}
}
