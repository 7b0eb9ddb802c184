package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/ctxkit/internal/config"
)

const TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
const TaskRetrievalQuery = "RETRIEVAL_QUERY"

type ManagerConfig struct {
	MaxInputChars int
}

// Manager is the single AI facade handed to the rest of the program: an
// embedder for the index and a generator for the relevance oracle.
type Manager struct {
	ranker   IGenerator
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(ranker IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{ranker: ranker, embedder: embedder, cfg: cfg}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured: %w", ErrUnavailable)
	}
	if m.cfg.MaxInputChars > 0 {
		if runes := []rune(text); len(runes) > m.cfg.MaxInputChars {
			text = string(runes[:m.cfg.MaxInputChars])
		}
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) ModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

// Generate runs the ranking model. Callers bound the call with their own
// deadline.
func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	if m.ranker == nil {
		return "", fmt.Errorf("ranker not configured: %w", ErrUnavailable)
	}
	return m.generateText(ctx, m.ranker, prompt)
}

func (m *Manager) HasRanker() bool {
	return m.ranker != nil
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

type timeoutGenerator struct {
	gen     IGenerator
	timeout time.Duration
}

// WithTimeout bounds every Generate call on gen. A non-positive timeout
// returns gen unchanged.
func WithTimeout(gen IGenerator, timeout time.Duration) IGenerator {
	if gen == nil || timeout <= 0 {
		return gen
	}
	return &timeoutGenerator{gen: gen, timeout: timeout}
}

func (t *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.gen.Generate(ctx, prompt)
}

// Build wires providers, the embedder chain and the ranker chain from config.
// Without an embedder chain the offline local embedder is used. wraps are
// applied to the embedder chain in order, e.g. cache decorators.
func Build(cfg config.AIConfig, wraps ...func(IEmbedder) IEmbedder) (*Manager, error) {
	providers := make(map[string]IProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		typ := pc.Type
		if typ == "" {
			typ = pc.Name
		}
		p, err := NewProvider(typ, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", pc.Name, err)
		}
		providers[strings.ToLower(pc.Name)] = p
	}
	lookup := func(name string) (IProvider, error) {
		key := strings.ToLower(strings.TrimSpace(name))
		if p, ok := providers[key]; ok {
			return p, nil
		}
		if key == "local" {
			return NewLocalProvider(0), nil
		}
		return nil, fmt.Errorf("ai provider not declared: %s", name)
	}

	embedEntries := make([]EmbedderEntry, 0, len(cfg.Embedder))
	for _, ref := range cfg.Embedder {
		p, err := lookup(ref.Provider)
		if err != nil {
			return nil, err
		}
		embedEntries = append(embedEntries, EmbedderEntry{Name: ref.Provider, Embedder: NewEmbedder(p, ref.Model)})
	}
	if len(embedEntries) == 0 {
		embedEntries = append(embedEntries, EmbedderEntry{Name: "local", Embedder: NewEmbedder(NewLocalProvider(0), "hash-v1")})
	}

	rankEntries := make([]GeneratorEntry, 0, len(cfg.Oracle))
	for _, ref := range cfg.Oracle {
		p, err := lookup(ref.Provider)
		if err != nil {
			return nil, err
		}
		rankEntries = append(rankEntries, GeneratorEntry{Name: ref.Provider, Generator: NewGenerator(p, ref.Model)})
	}

	emb := NewGroupEmbedder(embedEntries)
	for _, wrap := range wraps {
		emb = wrap(emb)
	}
	return NewManager(
		NewGroupGenerator(rankEntries),
		emb,
		ManagerConfig{MaxInputChars: cfg.MaxInputChars},
	), nil
}
