// Package index keeps one embedding per document and answers cosine
// similarity queries against an immutable, atomically published snapshot.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/ctxkit/internal/ai"
	"github.com/xxxsen/ctxkit/internal/metrics"
	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type snapshot struct {
	info    model.IndexInfo
	paths   []string
	vectors [][]float32
	norms   []float64
}

func (s *snapshot) prepare() {
	s.norms = make([]float64, len(s.vectors))
	for i, vec := range s.vectors {
		s.norms[i] = norm(vec)
	}
}

type Index struct {
	dir       string
	embedder  Embedder
	batchSize int
	workers   int

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

type Option func(*Index)

func WithBatchSize(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.batchSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.workers = n
		}
	}
}

func New(dir string, embedder Embedder, opts ...Option) *Index {
	x := &Index{dir: dir, embedder: embedder, batchSize: 32, workers: 4}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// DocumentText is the text embedded for a document.
func DocumentText(doc *model.Document) string {
	return doc.Project + " | " + doc.Title + " | " + doc.Summary
}

// Load publishes the index named by CURRENT. A missing index is not an
// error; Search then returns no hits.
func (x *Index) Load(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	name, err := os.ReadFile(filepath.Join(x.dir, currentFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	data, err := os.ReadFile(filepath.Join(x.dir, strings.TrimSpace(string(name))))
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("decode index file: %w", err)
	}
	x.current.Store(snap)
	metrics.IndexEntries.Set(float64(snap.info.Count))
	logutil.GetLogger(ctx).Info("index loaded",
		zap.Uint64("version", snap.info.Version),
		zap.Int("count", snap.info.Count),
		zap.String("model", snap.info.ModelName))
	return nil
}

// Info describes the published index.
func (x *Index) Info() (model.IndexInfo, bool) {
	snap := x.current.Load()
	if snap == nil {
		return model.IndexInfo{}, false
	}
	return snap.info, true
}

// Build embeds every document, persists the result and publishes it. The
// previous index keeps serving until the new one is in place; a failed
// build leaves it untouched.
func (x *Index) Build(ctx context.Context, docs []*model.Document) (info model.IndexInfo, err error) {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.IndexBuilds.WithLabelValues(status).Inc()
	}()

	logger := logutil.GetLogger(ctx)
	start := time.Now()
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for lo := 0; lo < len(docs); lo += x.batchSize {
		hi := min(lo+x.batchSize, len(docs))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				vec, err := x.embedder.Embed(gctx, DocumentText(docs[i]), ai.TaskRetrievalDocument)
				if err != nil {
					return fmt.Errorf("embed %s: %w", docs[i].Path, err)
				}
				vectors[i] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.IndexInfo{}, err
	}

	dim := 0
	paths := make([]string, len(docs))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return model.IndexInfo{}, fmt.Errorf("empty embedding for %s: %w", docs[i].Path, appErr.ErrInvalid)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return model.IndexInfo{}, fmt.Errorf("embedding dim %d for %s, want %d: %w", len(vec), docs[i].Path, dim, appErr.ErrModelMismatch)
		}
		paths[i] = docs[i].Path
	}

	var version uint64 = 1
	if prev := x.current.Load(); prev != nil {
		version = prev.info.Version + 1
	}
	snap := &snapshot{
		info: model.IndexInfo{
			Version:   version,
			Count:     len(docs),
			Dim:       dim,
			ModelName: x.embedder.ModelName(),
			Ctime:     time.Now().Unix(),
		},
		paths:   paths,
		vectors: vectors,
	}
	snap.prepare()
	if err := x.persist(snap); err != nil {
		return model.IndexInfo{}, fmt.Errorf("persist index: %w", err)
	}
	x.current.Store(snap)
	metrics.IndexEntries.Set(float64(snap.info.Count))
	logger.Info("index built",
		zap.Uint64("version", version),
		zap.Int("count", snap.info.Count),
		zap.Int("dim", dim),
		zap.Duration("elapsed", time.Since(start)))
	return snap.info, nil
}

func (x *Index) persist(snap *snapshot) error {
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	name := fileName(snap.info.Version)
	if err := writeFileAtomic(x.dir, name, data); err != nil {
		return err
	}
	if err := writeFileAtomic(x.dir, currentFileName, []byte(name)); err != nil {
		return err
	}
	x.prune(snap.info.Version)
	return nil
}

// prune keeps the current and the previous index file.
func (x *Index) prune(version uint64) {
	files, err := filepath.Glob(filepath.Join(x.dir, "INDEX-*.bin"))
	if err != nil {
		return
	}
	keep := map[string]bool{fileName(version): true}
	if version > 1 {
		keep[fileName(version-1)] = true
	}
	for _, f := range files {
		if !keep[filepath.Base(f)] {
			_ = os.Remove(f)
		}
	}
}

// Search returns up to k documents by descending cosine similarity with
// query. Non-positive scores are dropped. Without an index it returns no
// hits and no error.
func (x *Index) Search(ctx context.Context, query string, k int) ([]model.SearchHit, error) {
	snap := x.current.Load()
	if snap == nil || snap.info.Count == 0 || k <= 0 {
		return []model.SearchHit{}, nil
	}
	if name := x.embedder.ModelName(); name != snap.info.ModelName {
		return nil, fmt.Errorf("index built with %q, embedder is %q: %w", snap.info.ModelName, name, appErr.ErrModelMismatch)
	}
	qvec, err := x.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) != snap.info.Dim {
		return nil, fmt.Errorf("query dim %d, index dim %d: %w", len(qvec), snap.info.Dim, appErr.ErrModelMismatch)
	}
	qnorm := norm(qvec)
	if qnorm == 0 {
		return []model.SearchHit{}, nil
	}
	hits := make([]model.SearchHit, 0, len(snap.paths))
	for i, vec := range snap.vectors {
		if snap.norms[i] == 0 {
			continue
		}
		score := dot(qvec, vec) / (qnorm * snap.norms[i])
		if score <= 0 {
			continue
		}
		hits = append(hits, model.SearchHit{Path: snap.paths[i], Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
