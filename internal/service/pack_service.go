package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/ctxkit/internal/ai"
	"github.com/xxxsen/ctxkit/internal/artifact"
	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
	"github.com/xxxsen/ctxkit/internal/repo"
	"github.com/xxxsen/ctxkit/internal/schema"
	"github.com/xxxsen/ctxkit/internal/tokenizer"
)

const summaryHeadLines = 30

// PackInput is a pack as submitted by API callers or read from a YAML
// pack file.
type PackInput struct {
	Path              string   `json:"path" yaml:"path"`
	Project           string   `json:"project" yaml:"project"`
	Title             string   `json:"title" yaml:"title" validate:"required"`
	Summary           string   `json:"summary" yaml:"summary"`
	Body              string   `json:"body" yaml:"body" validate:"required"`
	SourceChatHash    string   `json:"source_chat_hash" yaml:"source_chat_hash"`
	SchemaFingerprint string   `json:"schema_fingerprint" yaml:"schema_fingerprint"`
	Tables            []string `json:"tables" yaml:"tables"`
	Tags              []string `json:"tags" yaml:"tags"`
}

type ChatInput struct {
	Path              string   `json:"path" yaml:"path"`
	Project           string   `json:"project" yaml:"project" validate:"required"`
	Title             string   `json:"title" yaml:"title" validate:"required"`
	Body              string   `json:"body" yaml:"body" validate:"required"`
	SchemaFingerprint string   `json:"schema_fingerprint" yaml:"schema_fingerprint"`
	Tables            []string `json:"tables" yaml:"tables"`
	Tags              []string `json:"tags" yaml:"tags"`
}

type PackService struct {
	docs      *repo.DocumentRepo
	packs     *repo.PackRepo
	artifacts *artifact.Store
	estimator tokenizer.Estimator
	generator ai.IGenerator
}

// NewPackService wires ingestion. generator is optional and only used to
// summarize chats into packs.
func NewPackService(docs *repo.DocumentRepo, packs *repo.PackRepo, artifacts *artifact.Store, est tokenizer.Estimator, generator ai.IGenerator) *PackService {
	if est == nil {
		est = tokenizer.Chars
	}
	return &PackService{docs: docs, packs: packs, artifacts: artifacts, estimator: est, generator: generator}
}

// Ingest stores a pack and the fenced code blocks of its body as
// artifacts. Ingesting the same path again replaces the pack.
func (s *PackService) Ingest(ctx context.Context, in PackInput) (*model.ContextPack, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	refs, tables, err := s.saveArtifacts(ctx, in.Body)
	if err != nil {
		return nil, err
	}
	if len(in.Tables) > 0 {
		tables = normalizeList(in.Tables)
	}
	hash := s.contentHash(in.Project, in.Title, in.SchemaFingerprint, tables, in.Body)
	path := in.Path
	if path == "" {
		path = fmt.Sprintf("packs/%s--%s.md", slugify(in.Title), shortHash(hash, 12))
	}
	if err := s.claimPath(ctx, path, model.DocKindPack); err != nil {
		return nil, err
	}
	summary := in.Summary
	if summary == "" {
		summary = headSummary(in.Body)
	}
	pack := &model.ContextPack{
		Document: model.Document{
			Path:              path,
			Kind:              model.DocKindPack,
			Project:           in.Project,
			Title:             in.Title,
			Summary:           summary,
			Tables:            tables,
			Tags:              normalizeList(in.Tags),
			SchemaFingerprint: in.SchemaFingerprint,
			ContentHash:       hash,
			Ctime:             time.Now().Unix(),
		},
		SourceChatHash: in.SourceChatHash,
		TokensEstimate: s.estimator.Estimate(in.Body),
		Artifacts:      refs,
		Body:           in.Body,
	}
	if err := s.packs.Save(ctx, pack); err != nil {
		return nil, fmt.Errorf("save pack: %w", err)
	}
	logutil.GetLogger(ctx).Info("pack ingested",
		zap.String("path", pack.Path),
		zap.Int("artifacts", len(refs)),
		zap.Int("tokens", pack.TokensEstimate))
	return pack, nil
}

// IngestChat stores a raw conversation. Chats are indexed but never
// composed; Summarize turns one into a pack.
func (s *PackService) IngestChat(ctx context.Context, in ChatInput) (*model.Document, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tables := sqlTables(artifact.Extract(in.Body))
	if len(in.Tables) > 0 {
		tables = normalizeList(in.Tables)
	}
	now := time.Now()
	path := in.Path
	if path == "" {
		path = fmt.Sprintf("chats/%s--%s.md", now.UTC().Format("2006-01-02"), slugify(in.Title))
	}
	if err := s.claimPath(ctx, path, model.DocKindChat); err != nil {
		return nil, err
	}
	doc := &model.Document{
		Path:              path,
		Kind:              model.DocKindChat,
		Project:           in.Project,
		Title:             in.Title,
		Summary:           in.Body,
		Tables:            tables,
		Tags:              normalizeList(in.Tags),
		SchemaFingerprint: in.SchemaFingerprint,
		ContentHash:       s.contentHash(in.Project, in.Title, in.SchemaFingerprint, tables, in.Body),
		Ctime:             now.Unix(),
	}
	if err := s.docs.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}
	logutil.GetLogger(ctx).Info("chat ingested", zap.String("path", doc.Path))
	return doc, nil
}

// Summarize builds a pack from a stored chat. The summary comes from the
// generator when one is configured and otherwise from the first lines of
// the chat.
func (s *PackService) Summarize(ctx context.Context, chatPath string) (*model.ContextPack, error) {
	chat, err := s.docs.Get(ctx, chatPath)
	if err != nil {
		return nil, err
	}
	if chat.Kind != model.DocKindChat {
		return nil, fmt.Errorf("%s is not a chat: %w", chatPath, appErr.ErrInvalid)
	}
	summary := headSummary(chat.Summary)
	if s.generator != nil {
		text, err := s.generator.Generate(ctx, summaryPrompt(chat))
		if err != nil {
			logutil.GetLogger(ctx).Warn("summarize chat failed, using heuristic summary", zap.String("path", chatPath), zap.Error(err))
		} else if strings.TrimSpace(text) != "" {
			summary = strings.TrimSpace(text)
		}
	}
	return s.Ingest(ctx, PackInput{
		Project:           chat.Project,
		Title:             chat.Title,
		Summary:           summary,
		Body:              summary + "\n\n" + chat.Summary,
		SourceChatHash:    shortHash(chat.ContentHash, 64),
		SchemaFingerprint: chat.SchemaFingerprint,
		Tables:            chat.Tables,
		Tags:              chat.Tags,
	})
}

// ImportFile ingests a YAML pack file. Without an explicit path the pack
// is named after the file.
func (s *PackService) ImportFile(ctx context.Context, file string) (*model.ContextPack, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var in PackInput
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode pack file %s: %v: %w", file, err, appErr.ErrInvalid)
	}
	if in.Path == "" {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		in.Path = "packs/" + name + ".md"
	}
	return s.Ingest(ctx, in)
}

func (s *PackService) Get(ctx context.Context, path string) (*model.ContextPack, error) {
	return s.packs.Get(ctx, path)
}

func (s *PackService) List(ctx context.Context, kind model.DocKind, limit, offset uint) ([]*model.Document, error) {
	return s.docs.List(ctx, kind, limit, offset)
}

func (s *PackService) Count(ctx context.Context, kind model.DocKind) (int, error) {
	return s.docs.Count(ctx, kind)
}

func (s *PackService) Delete(ctx context.Context, path string) error {
	return s.docs.Delete(ctx, path)
}

// claimPath rejects writes that would change the kind of an existing
// document.
func (s *PackService) claimPath(ctx context.Context, path string, kind model.DocKind) error {
	existing, err := s.docs.Get(ctx, path)
	if appErr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Kind != kind {
		return fmt.Errorf("%s already holds a %s: %w", path, existing.Kind, appErr.ErrConflict)
	}
	return nil
}

// saveArtifacts stores every fenced block of body and returns the refs in
// body order plus the tables its SQL reads.
func (s *PackService) saveArtifacts(ctx context.Context, body string) ([]model.ArtifactRef, []string, error) {
	blocks := artifact.Extract(body)
	refs := make([]model.ArtifactRef, 0, len(blocks))
	for _, b := range blocks {
		item, err := s.artifacts.Save(ctx, b.Kind, b.Lang, b.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("save artifact: %w", err)
		}
		refs = append(refs, model.ArtifactRef{Hash: item.Hash, Kind: item.Kind})
	}
	return refs, sqlTables(blocks), nil
}

// sqlTables lists the tables read by the SQL blocks.
func sqlTables(blocks []artifact.Block) []string {
	var tables []string
	for _, b := range blocks {
		if b.Kind == model.ArtifactKindSQL {
			tables = append(tables, artifact.TablesReferenced(b.Content)...)
		}
	}
	return normalizeList(tables)
}

func (s *PackService) contentHash(project, title, fingerprint string, tables []string, body string) string {
	head := strings.Join([]string{project, title, fingerprint, strings.Join(tables, ",")}, "\n")
	return schema.HashContent([]byte(head + "\n" + body))
}

func summaryPrompt(chat *model.Document) string {
	var sb strings.Builder
	sb.WriteString("Summarize this analytical conversation into a reusable context pack.\n")
	sb.WriteString("Keep definitions, key SQL, pitfalls and next steps. Be concise.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", chat.Title)
	if len(chat.Tables) > 0 {
		fmt.Fprintf(&sb, "Tables involved: %s\n", strings.Join(chat.Tables, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(chat.Summary)
	return sb.String()
}

func headSummary(body string) string {
	lines := make([]string, 0, summaryHeadLines)
	for _, ln := range strings.Split(body, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		lines = append(lines, ln)
		if len(lines) == summaryHeadLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

var slugRe = regexp.MustCompile(`[^a-z0-9-]+`)

func slugify(title string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

func shortHash(hash string, n int) string {
	hash = strings.TrimPrefix(hash, schema.FingerprintPrefix)
	if len(hash) > n {
		return hash[:n]
	}
	return hash
}

func normalizeList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
