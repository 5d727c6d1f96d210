package steps

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/observability"
	"github.com/yungbote/brandpulse-backend/internal/platform/llm"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

type FanOutInput struct {
	ExecutionID uuid.UUID
	Pipeline    string
	System      string
	Prompts     []ExpandedPrompt
	Providers   []llm.Provider
	Concurrency int
	// OnDone runs after each call finishes. It may be called concurrently.
	OnDone func(done, total int)
}

// FanOut sends every prompt to every provider with at most Concurrency calls
// in flight. Provider errors are recorded on the returned rows; only context
// cancellation aborts the run. Rows come back in (prompt, provider) order.
func FanOut(ctx context.Context, log *logger.Logger, in FanOutInput) ([]*types.ProviderResponse, error) {
	total := len(in.Prompts) * len(in.Providers)
	rows := make([]*types.ProviderResponse, total)
	if total == 0 {
		return rows, nil
	}
	limit := in.Concurrency
	if limit <= 0 {
		limit = 4
	}
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu   sync.Mutex
		done int
	)
	for pi, prompt := range in.Prompts {
		for vi, provider := range in.Providers {
			slot := pi*len(in.Providers) + vi
			prompt, provider := prompt, provider
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				rows[slot] = callProvider(gctx, log, in, prompt, provider)
				if in.OnDone != nil {
					mu.Lock()
					done++
					n := done
					mu.Unlock()
					in.OnDone(n, total)
				}
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func callProvider(ctx context.Context, log *logger.Logger, in FanOutInput, prompt ExpandedPrompt, provider llm.Provider) *types.ProviderResponse {
	row := &types.ProviderResponse{
		BatchExecutionID: in.ExecutionID,
		PipelineType:     in.Pipeline,
		Provider:         provider.Name(),
		Model:            provider.Model(),
		Prompt:           prompt.Text,
		PromptIndex:      prompt.Index,
		Subject:          prompt.Subject,
	}
	start := time.Now()
	resp, err := provider.Complete(ctx, llm.Request{System: in.System, Prompt: prompt.Text})
	row.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		row.Error = err.Error()
		if ctx.Err() == nil {
			log.Warn("provider call failed",
				"provider", provider.Name(),
				"pipeline", in.Pipeline,
				"prompt_index", prompt.Index,
				"error", err,
			)
		}
		if m := observability.Current(); m != nil {
			m.IncProviderFailure(provider.Name(), in.Pipeline)
		}
		return row
	}
	row.ResponseText = resp.Text
	if resp.Model != "" {
		row.Model = resp.Model
	}
	row.InputTokens = resp.InputTokens
	row.OutputTokens = resp.OutputTokens
	return row
}
