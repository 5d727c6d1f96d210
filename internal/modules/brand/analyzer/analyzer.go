package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

const (
	ModeBuiltin = "builtin"
	ModeRemote  = "remote"
)

type Input struct {
	Pipeline  string                    `json:"pipeline"`
	Project   *types.Project            `json:"project"`
	Responses []*types.ProviderResponse `json:"responses"`
}

// Analyzer turns one pipeline's provider responses into the stored result JSON.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (json.RawMessage, error)
}

type Config struct {
	Mode string
	URL  string
}

// New picks the analyzer for cfg.Mode; an empty mode is builtin.
func New(log *logger.Logger, cfg Config) (Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeBuiltin:
		return NewBuiltin(), nil
	case ModeRemote:
		return NewRemote(log, RemoteConfig{BaseURL: cfg.URL})
	default:
		return nil, fmt.Errorf("unknown analyzer mode %q", cfg.Mode)
	}
}
