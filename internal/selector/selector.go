// Package selector narrows search hits down to the packs, and the
// artifacts within them, worth composing into context.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/metrics"
	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/oracle"
	"github.com/xxxsen/ctxkit/internal/pkg/textutil"
)

type PackLoader interface {
	Get(ctx context.Context, path string) (*model.ContextPack, error)
}

type ArtifactLoader interface {
	Load(ctx context.Context, hash string) (*model.Artifact, error)
}

type Config struct {
	PackLimit     int
	StageTwoLimit int
	ExcerptChars  int
	PreviewChars  int
}

func ConfigFrom(c config.ComposeConfig) Config {
	return Config{
		PackLimit:     c.HeuristicPackLimit,
		StageTwoLimit: c.HeuristicStageTwoLimit,
		ExcerptChars:  c.ExcerptChars,
		PreviewChars:  c.ExcerptChars,
	}
}

// Selector runs pack selection and then artifact selection. A nil oracle
// means the heuristic decides alone.
type Selector struct {
	oracle    oracle.Oracle
	packs     PackLoader
	artifacts ArtifactLoader
	cfg       Config
}

func New(o oracle.Oracle, packs PackLoader, artifacts ArtifactLoader, cfg Config) *Selector {
	if cfg.PackLimit <= 0 {
		cfg.PackLimit = 3
	}
	if cfg.StageTwoLimit <= 0 {
		cfg.StageTwoLimit = 2
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = 200
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 200
	}
	return &Selector{oracle: o, packs: packs, artifacts: artifacts, cfg: cfg}
}

type loaded struct {
	cand model.Candidate
	pack *model.ContextPack
}

// Select never fails: oracle trouble falls back to the score heuristic.
func (s *Selector) Select(ctx context.Context, prompt string, candidates []model.Candidate) []model.PackSelection {
	logger := logutil.GetLogger(ctx)
	items := make([]loaded, 0, len(candidates))
	for _, cand := range candidates {
		pack, err := s.packs.Get(ctx, cand.Path)
		if err != nil {
			logger.Warn("skip unreadable candidate", zap.String("path", cand.Path), zap.Error(err))
			continue
		}
		items = append(items, loaded{cand: cand, pack: pack})
	}
	if len(items) == 0 {
		return nil
	}

	options := make([]oracle.Option, 0, len(items))
	for _, it := range items {
		options = append(options, oracle.Option{Text: s.describePack(it.pack), Score: it.cand.Score})
	}
	picked, fromOracle := s.selectPacks(ctx, prompt, options)

	out := make([]model.PackSelection, 0, len(picked))
	for _, idx := range picked {
		it := items[idx]
		sel := model.PackSelection{Path: it.cand.Path, Score: it.cand.Score}
		if fromOracle && len(it.pack.Artifacts) > 0 {
			sel.ArtifactIndexes = s.selectArtifacts(ctx, prompt, it.pack)
		}
		out = append(out, sel)
	}
	logger.Debug("packs selected", zap.Int("candidates", len(candidates)), zap.Int("selected", len(out)), zap.Bool("oracle", fromOracle))
	return out
}

// selectPacks reports whether the oracle made the choice.
func (s *Selector) selectPacks(ctx context.Context, prompt string, options []oracle.Option) ([]int, bool) {
	q := oracle.Query{Stage: oracle.StagePacks, Prompt: prompt, Options: options}
	if s.oracle == nil {
		metrics.SelectorFallbacks.WithLabelValues(string(oracle.StagePacks), "disabled").Inc()
		return s.fallback(ctx, q, s.cfg.PackLimit), false
	}
	choice, err := s.oracle.Select(ctx, q)
	if err != nil {
		var perr *oracle.ParseError
		if errors.As(err, &perr) {
			logutil.GetLogger(ctx).Warn("pack selection reply unparsable, using top candidates", zap.Error(err))
			metrics.SelectorFallbacks.WithLabelValues(string(oracle.StagePacks), "parse").Inc()
			return s.fallback(ctx, q, s.cfg.StageTwoLimit), false
		}
		logutil.GetLogger(ctx).Warn("pack selection failed, using heuristic", zap.Error(err))
		metrics.SelectorFallbacks.WithLabelValues(string(oracle.StagePacks), "unavailable").Inc()
		return s.fallback(ctx, q, s.cfg.PackLimit), false
	}
	if choice.None {
		return nil, true
	}
	return validIndexes(ctx, choice.Indexes, len(options)), true
}

// fallback ranks q with the score heuristic, which never fails.
func (s *Selector) fallback(ctx context.Context, q oracle.Query, limit int) []int {
	choice, _ := oracle.NewHeuristic(limit).Select(ctx, q)
	return choice.Indexes
}

// validIndexes keeps indexes inside [0, n) in order, first occurrence only.
func validIndexes(ctx context.Context, idx []int, n int) []int {
	out := make([]int, 0, len(idx))
	seen := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		if i < 0 || i >= n {
			logutil.GetLogger(ctx).Warn("oracle returned out of range option", zap.Int("index", i), zap.Int("options", n))
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// selectArtifacts returns nil when every artifact stays available.
func (s *Selector) selectArtifacts(ctx context.Context, prompt string, pack *model.ContextPack) []int {
	options := make([]oracle.Option, 0, len(pack.Artifacts))
	for _, ref := range pack.Artifacts {
		options = append(options, oracle.Option{Text: s.describeArtifact(ctx, ref)})
	}
	choice, err := s.oracle.Select(ctx, oracle.Query{
		Stage:   oracle.StageArtifacts,
		Prompt:  prompt,
		Subject: titleOf(pack),
		Options: options,
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("artifact selection failed, keeping all artifacts", zap.String("path", pack.Path), zap.Error(err))
		metrics.SelectorFallbacks.WithLabelValues(string(oracle.StageArtifacts), "unavailable").Inc()
		return nil
	}
	if choice.None {
		return nil
	}
	return validIndexes(ctx, choice.Indexes, len(options))
}

func (s *Selector) describePack(pack *model.ContextPack) string {
	tables := "None"
	if len(pack.Tables) > 0 {
		tables = strings.Join(pack.Tables, ", ")
	}
	return fmt.Sprintf("\"%s\" (Project: %s)\n   Summary: %s\n   Available artifacts: %d code/SQL/data blocks\n   Tables mentioned: %s",
		titleOf(pack), projectOf(pack), textutil.Excerpt(pack.Body, s.cfg.ExcerptChars), len(pack.Artifacts), tables)
}

func (s *Selector) describeArtifact(ctx context.Context, ref model.ArtifactRef) string {
	kind := strings.ToUpper(string(ref.Kind))
	if kind == "" {
		kind = "UNKNOWN"
	}
	preview := "Could not load"
	if s.artifacts != nil {
		if art, err := s.artifacts.Load(ctx, ref.Hash); err == nil && art.Content != "" {
			preview = textutil.Excerpt(art.Content, s.cfg.PreviewChars)
		}
	}
	return kind + ": " + preview
}

func titleOf(pack *model.ContextPack) string {
	if pack.Title == "" {
		return "Unknown"
	}
	return pack.Title
}

func projectOf(pack *model.ContextPack) string {
	if pack.Project == "" {
		return "Unknown"
	}
	return pack.Project
}
