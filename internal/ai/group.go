package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/metrics"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// link is one named member of a fallback chain.
type link[T any] struct {
	name string
	impl T
}

// chain calls its links in order and returns the first success. Entries
// with a nil implementation are skipped. A cancelled context stops the walk.
type chain[T any] struct {
	kind  string
	links []link[T]
}

func try[T any, R any](ctx context.Context, c chain[T], call func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i, l := range c.links {
		res, err := call(l.impl)
		if err == nil {
			return res, nil
		}
		lastErr = err
		metrics.ProviderFailures.WithLabelValues(c.kind, l.name).Inc()
		logutil.GetLogger(ctx).Warn("ai provider failed, trying next",
			zap.String("kind", c.kind),
			zap.Int("index", i),
			zap.String("name", l.name),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return zero, fmt.Errorf("%s chain empty: %w", c.kind, ErrUnavailable)
	}
	return zero, lastErr
}

type groupGenerator struct {
	chain chain[IGenerator]
}

// NewGroupGenerator tries each generator in order until one answers.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	c := chain[IGenerator]{kind: "generate"}
	for _, item := range items {
		if item.Generator != nil {
			c.links = append(c.links, link[IGenerator]{name: item.Name, impl: item.Generator})
		}
	}
	if len(c.links) == 0 {
		return nil
	}
	return &groupGenerator{chain: c}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return try(ctx, g.chain, func(gen IGenerator) (string, error) {
		return gen.Generate(ctx, prompt)
	})
}

// groupEmbedder falls back across embedders. Vectors from different entries
// are not comparable, so the index records the chain name and checks
// dimensions when it is built.
type groupEmbedder struct {
	chain chain[IEmbedder]
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	c := chain[IEmbedder]{kind: "embed"}
	for _, item := range items {
		if item.Embedder != nil {
			c.links = append(c.links, link[IEmbedder]{name: item.Name, impl: item.Embedder})
		}
	}
	switch len(c.links) {
	case 0:
		return nil
	case 1:
		return c.links[0].impl
	}
	return &groupEmbedder{chain: c}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return try(ctx, g.chain, func(e IEmbedder) ([]float32, error) {
		return e.Embed(ctx, text, taskType)
	})
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.chain.links))
	for _, l := range g.chain.links {
		names = append(names, l.impl.ModelName())
	}
	return strings.Join(names, "|")
}
