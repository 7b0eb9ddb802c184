package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

// ErrUnavailable is returned by providers that lack credentials or do not
// support the requested capability.
var ErrUnavailable = fmt.Errorf("ai provider unavailable: %w", appErr.ErrUnavailable)

// IProvider is one backend. The model is chosen per call so a single
// provider entry can serve both the embedder and the oracle chains.
type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

// bound pins a provider to one model.
type bound struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return bound{provider: p, model: model}
}

func NewEmbedder(p IProvider, model string) IEmbedder {
	return bound{provider: p, model: model}
}

func (b bound) Generate(ctx context.Context, prompt string) (string, error) {
	return b.provider.Generate(ctx, b.model, prompt)
}

func (b bound) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return b.provider.Embed(ctx, b.model, text, taskType)
}

// ModelName qualifies the model with its provider so vectors from different
// backends never share an index or cache entry.
func (b bound) ModelName() string {
	return b.provider.Name() + "/" + b.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

// providers is filled by init functions only.
var providers = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	providers[strings.ToLower(name)] = factory
}

// NewProvider builds the provider registered under typ from its config block.
func NewProvider(typ string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return nil, fmt.Errorf("ai provider type is required")
	}
	factory, ok := providers[key]
	if !ok {
		return nil, fmt.Errorf("unsupported ai provider %q", typ)
	}
	return factory(args)
}

// decodeConfig converts the loosely typed provider block into dst. A nil
// block leaves dst at its zero value.
func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
