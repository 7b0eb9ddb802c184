package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultLocalDim = 256

type localConfig struct {
	Dim int `json:"dim"`
}

// localProvider embeds text with signed feature hashing over lower-cased
// word unigrams and bigrams. It needs no network and is deterministic, which
// makes it the default for offline use and tests.
type localProvider struct {
	dim int
}

func NewLocalProvider(dim int) IProvider {
	if dim <= 0 {
		dim = defaultLocalDim
	}
	return &localProvider{dim: dim}
}

func (p *localProvider) Name() string {
	return "local"
}

func (p *localProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return "", ErrUnavailable
}

func (p *localProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	vec := make([]float64, p.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, w := range words {
		p.add(vec, w, 1)
		if i > 0 {
			p.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (p *localProvider) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func createLocalFactory(args interface{}) (IProvider, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return NewLocalProvider(cfg.Dim), nil
}

func init() {
	Register("local", createLocalFactory)
}
