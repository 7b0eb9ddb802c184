// Package composer packs selected context packs into one text that fits a
// token budget, greedily and in selection order.
package composer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/metrics"
	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/textutil"
	"github.com/xxxsen/ctxkit/internal/schema"
	"github.com/xxxsen/ctxkit/internal/tokenizer"
)

const (
	noticePrefix = "[CONTEXTKIT]"
	endMarker    = "[END CONTEXT]"

	MarkerBreaking   = " [SCHEMA WARNING: Breaking changes detected]"
	MarkerCompatible = " [SCHEMA: Compatible with changes]"
	MarkerUnknown    = " [SCHEMA: Unknown compatibility]"
)

type PackLoader interface {
	Get(ctx context.Context, path string) (*model.ContextPack, error)
}

type ArtifactLoader interface {
	Load(ctx context.Context, hash string) (*model.Artifact, error)
}

type Config struct {
	MaxTokens           int
	Reserved            int
	MaxArtifacts        int
	ArtifactCharLimit   int
	ArtifactBudgetRatio float64
	TruncatedBodyChars  int
	UnknownPolicy       string
}

func ConfigFrom(c config.ComposeConfig) Config {
	return Config{
		MaxTokens:           c.MaxTokens,
		Reserved:            c.ReservedTokens,
		MaxArtifacts:        c.MaxArtifacts,
		ArtifactCharLimit:   c.ArtifactCharLimit,
		ArtifactBudgetRatio: c.ArtifactBudgetRatio,
		TruncatedBodyChars:  c.TruncatedBodyChars,
		UnknownPolicy:       c.UnknownPolicy,
	}
}

type Composer struct {
	packs     PackLoader
	artifacts ArtifactLoader
	estimator tokenizer.Estimator
	snapshots schema.SnapshotLookup
	cfg       Config
}

// New builds a composer. snapshots may be nil, in which case every
// non-identical schema is reported as unknown.
func New(packs PackLoader, artifacts ArtifactLoader, est tokenizer.Estimator, snapshots schema.SnapshotLookup, cfg Config) *Composer {
	def := config.DefaultCompose()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Reserved < 0 {
		cfg.Reserved = 0
	}
	if cfg.MaxArtifacts <= 0 {
		cfg.MaxArtifacts = def.MaxArtifacts
	}
	if cfg.ArtifactCharLimit <= 0 {
		cfg.ArtifactCharLimit = def.ArtifactCharLimit
	}
	if cfg.ArtifactBudgetRatio <= 0 || cfg.ArtifactBudgetRatio > 1 {
		cfg.ArtifactBudgetRatio = def.ArtifactBudgetRatio
	}
	if cfg.TruncatedBodyChars <= 0 {
		cfg.TruncatedBodyChars = def.TruncatedBodyChars
	}
	if cfg.UnknownPolicy == "" {
		cfg.UnknownPolicy = config.UnknownPolicyAnnotate
	}
	if est == nil {
		est = tokenizer.Chars
	}
	return &Composer{packs: packs, artifacts: artifacts, estimator: est, snapshots: snapshots, cfg: cfg}
}

// Result is the composed text. Tokens is the estimate reported in the
// header and never exceeds MaxTokens.
type Result struct {
	Text      string   `json:"text"`
	Packs     []string `json:"packs"`
	Tokens    int      `json:"tokens"`
	MaxTokens int      `json:"max_tokens"`
}

func (c *Composer) Available(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	return maxTokens - c.cfg.Reserved
}

// NoCandidates is the reply when search and filtering left nothing.
func NoCandidates(prompt, project string) string {
	scope := ""
	if project != "" {
		scope = fmt.Sprintf(" within project '%s'", project)
	}
	return fmt.Sprintf("%s No relevant context found%s.\n\n%s", noticePrefix, scope, prompt)
}

// Compose never fails; packs that cannot be loaded are skipped.
func (c *Composer) Compose(ctx context.Context, selections []model.PackSelection, prompt string, maxTokens int, current map[string]interface{}) Result {
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	res := Result{MaxTokens: maxTokens}
	if len(selections) == 0 {
		res.Text = fmt.Sprintf("%s No relevant context found.\n\n%s", noticePrefix, prompt)
		return res
	}
	logger := logutil.GetLogger(ctx)
	available := c.Available(maxTokens)
	parts := make([]string, 0, len(selections))
	names := make([]string, 0, len(selections))
	total := 0

	for _, sel := range selections {
		pack, err := c.packs.Get(ctx, sel.Path)
		if err != nil {
			logger.Warn("skip pack that cannot be loaded", zap.String("path", sel.Path), zap.Error(err))
			continue
		}
		marker, keep := c.marker(ctx, pack, current)
		if !keep {
			logger.Info("skip pack with unknown schema compatibility", zap.String("path", sel.Path))
			continue
		}
		artifacts := c.renderArtifacts(ctx, pack, sel.ArtifactIndexes, total, available)
		section := fullSection(pack, marker, artifacts)
		tokens := c.estimator.Estimate(section)
		if total+tokens <= available {
			parts = append(parts, section)
			names = append(names, path.Base(sel.Path))
			res.Packs = append(res.Packs, sel.Path)
			total += tokens
			continue
		}
		body, _ := textutil.Truncate(pack.Body, c.cfg.TruncatedBodyChars)
		short := truncatedSection(pack, marker, body, path.Base(sel.Path))
		tokens = c.estimator.Estimate(short)
		if total+tokens <= available {
			parts = append(parts, short)
			names = append(names, path.Base(sel.Path))
			res.Packs = append(res.Packs, sel.Path)
			total += tokens
		}
		logger.Debug("token budget exhausted", zap.String("path", sel.Path), zap.Int("total", total), zap.Int("available", available))
		break
	}

	if len(parts) == 0 {
		res.Text = fmt.Sprintf("%s No context could be loaded.\n\n%s", noticePrefix, prompt)
		return res
	}
	res.Tokens = total
	metrics.ComposeTokens.Observe(float64(total))
	header := fmt.Sprintf("%s Auto-selected context from %d ContextPack(s): %s\nEstimated tokens: %d/%d\n",
		noticePrefix, len(names), strings.Join(names, ", "), total, maxTokens)
	res.Text = header + "\n" + strings.Join(parts, "\n") + "\n\n" + endMarker + "\n\n" + prompt
	return res
}

// marker returns the heading annotation for a pack and whether the pack
// stays in the output under the unknown policy.
func (c *Composer) marker(ctx context.Context, pack *model.ContextPack, current map[string]interface{}) (string, bool) {
	if current == nil {
		return "", true
	}
	compat, err := schema.CheckPackCompatibility(ctx, pack.SchemaFingerprint, current, c.snapshots)
	if err != nil {
		logutil.GetLogger(ctx).Warn("check schema compatibility failed", zap.String("path", pack.Path), zap.Error(err))
		compat = model.CompatibilityResult{Level: model.CompatUnknown}
	}
	switch compat.Level {
	case model.CompatBreaking:
		return MarkerBreaking + "\n" + strings.Join(compat.Notes, "\n"), true
	case model.CompatCompatible:
		return MarkerCompatible, true
	case model.CompatUnknown:
		if c.cfg.UnknownPolicy == config.UnknownPolicyExclude {
			return "", false
		}
		return MarkerUnknown, true
	}
	return "", true
}

func (c *Composer) renderArtifacts(ctx context.Context, pack *model.ContextPack, picked []int, total, available int) string {
	if c.artifacts == nil {
		return ""
	}
	refs := pickRefs(pack.Artifacts, picked, c.cfg.MaxArtifacts)
	limit := float64(available) * c.cfg.ArtifactBudgetRatio
	var sb strings.Builder
	for _, ref := range refs {
		art, err := c.artifacts.Load(ctx, ref.Hash)
		if err != nil || art.Content == "" {
			logutil.GetLogger(ctx).Debug("skip missing artifact", zap.String("hash", ref.Hash), zap.Error(err))
			continue
		}
		lang := art.Lang
		if lang == "" {
			lang = string(art.Kind)
		}
		content, cut := textutil.Truncate(art.Content, c.cfg.ArtifactCharLimit)
		if cut {
			content += "..."
		}
		section := fmt.Sprintf("\n### Artifact (%s):\n```%s\n%s\n```\n", lang, lang, content)
		if float64(total+c.estimator.Estimate(section)) < limit {
			sb.WriteString(section)
		}
	}
	return sb.String()
}

// pickRefs applies the selector's artifact choice. A nil choice keeps
// every artifact; out of range indexes are ignored.
func pickRefs(refs []model.ArtifactRef, picked []int, limit int) []model.ArtifactRef {
	out := refs
	if picked != nil {
		out = make([]model.ArtifactRef, 0, len(picked))
		for _, idx := range picked {
			if idx >= 0 && idx < len(refs) {
				out = append(out, refs[idx])
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func heading(pack *model.ContextPack, marker string) string {
	title, project := pack.Title, pack.Project
	if title == "" {
		title = "Unknown"
	}
	if project == "" {
		project = "Unknown"
	}
	return fmt.Sprintf("\n## Context: %s (Project: %s)%s\n", title, project, marker)
}

func fullSection(pack *model.ContextPack, marker, artifacts string) string {
	source := pack.SourceChatHash
	if source == "" {
		source = "Unknown"
	}
	source, _ = textutil.Truncate(source, 12)
	return heading(pack, marker) + pack.Body + "\n" + artifacts +
		fmt.Sprintf("\nArtifacts available: %d code/SQL blocks\nSource: %s...\n", len(pack.Artifacts), source)
}

func truncatedSection(pack *model.ContextPack, marker, body, name string) string {
	return heading(pack, marker) + body + fmt.Sprintf("...\n\n[Truncated - full context available in %s]\n", name)
}
