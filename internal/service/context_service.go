package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/composer"
	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/metrics"
	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
	"github.com/xxxsen/ctxkit/internal/selector"
)

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]model.SearchHit, error)
}

type ContextService struct {
	index    Searcher
	docs     selector.DocumentLookup
	selector *selector.Selector
	composer *composer.Composer
	cfg      config.ComposeConfig
}

func NewContextService(index Searcher, docs selector.DocumentLookup, sel *selector.Selector, comp *composer.Composer, cfg config.ComposeConfig) *ContextService {
	return &ContextService{index: index, docs: docs, selector: sel, composer: comp, cfg: cfg}
}

type ComposeRequest struct {
	Prompt        string                 `json:"prompt"`
	MaxTokens     int                    `json:"max_tokens"`
	CurrentSchema map[string]interface{} `json:"current_schema,omitempty"`
	Project       string                 `json:"project,omitempty"`
}

type ComposeResponse struct {
	composer.Result
	Candidates int                   `json:"candidates"`
	Selected   []model.PackSelection `json:"selected"`
}

// ComposeContext runs search, filter, selection and composition. Expected
// conditions such as an empty index or a failing oracle still produce
// text; only store and embedding failures are returned.
func (s *ContextService) ComposeContext(ctx context.Context, req ComposeRequest) (*ComposeResponse, error) {
	start := time.Now()
	outcome := "composed"
	defer func() {
		metrics.ComposeLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()
	if strings.TrimSpace(req.Prompt) == "" {
		outcome = "invalid"
		return nil, fmt.Errorf("empty prompt: %w", appErr.ErrInvalid)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxTokens
	}
	candidates, err := s.Search(ctx, req.Prompt, req.Project, s.cfg.TopK)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	resp := &ComposeResponse{Candidates: len(candidates)}
	resp.MaxTokens = maxTokens
	if len(candidates) == 0 {
		outcome = "no_candidates"
		resp.Text = composer.NoCandidates(req.Prompt, req.Project)
		return resp, nil
	}
	resp.Selected = s.selector.Select(ctx, req.Prompt, candidates)
	resp.Result = s.composer.Compose(ctx, resp.Selected, req.Prompt, maxTokens, req.CurrentSchema)
	if len(resp.Packs) == 0 {
		outcome = "empty"
	}
	logutil.GetLogger(ctx).Info("context composed",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(resp.Selected)),
		zap.Int("packs", len(resp.Packs)),
		zap.Int("tokens", resp.Tokens),
		zap.Int("max_tokens", maxTokens))
	return resp, nil
}

// Search returns up to topK pack candidates for query, optionally limited
// to one project.
func (s *ContextService) Search(ctx context.Context, query, project string, topK int) ([]model.Candidate, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	searchK := s.cfg.SearchK
	if searchK < topK {
		searchK = topK
	}
	hits, err := s.index.Search(ctx, query, searchK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return selector.Filter(ctx, hits, topK, project, s.docs), nil
}
