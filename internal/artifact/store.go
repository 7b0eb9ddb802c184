package artifact

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xxxsen/ctxkit/internal/filestore"
	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
	"github.com/xxxsen/ctxkit/internal/schema"
)

// MetaRepo is the metadata side of the store; repo.ArtifactRepo
// implements it.
type MetaRepo interface {
	Save(ctx context.Context, item *model.Artifact) error
	Get(ctx context.Context, hash string) (*model.Artifact, error)
}

// Store keeps artifact content in a file store, keyed by content hash.
type Store struct {
	files filestore.Store
	meta  MetaRepo
}

func NewStore(files filestore.Store, meta MetaRepo) *Store {
	return &Store{files: files, meta: meta}
}

// Save stores content and returns its artifact. Saving identical content
// again returns the same hash and writes nothing new.
func (s *Store) Save(ctx context.Context, kind model.ArtifactKind, lang, content string) (*model.Artifact, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("artifact kind %q: %w", kind, appErr.ErrInvalid)
	}
	item := &model.Artifact{
		Hash:    schema.HashContent([]byte(content)),
		Kind:    kind,
		Lang:    lang,
		Size:    int64(len(content)),
		Content: content,
		Ctime:   time.Now().Unix(),
	}
	if existing, err := s.meta.Get(ctx, item.Hash); err == nil {
		existing.Content = content
		return existing, nil
	} else if !appErr.IsNotFound(err) {
		return nil, err
	}
	if err := s.files.Save(ctx, blobKey(item.Hash), strings.NewReader(content), item.Size); err != nil {
		return nil, fmt.Errorf("save artifact blob: %w", err)
	}
	if err := s.meta.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("save artifact meta: %w", err)
	}
	return item, nil
}

// Load returns the artifact with its content.
func (s *Store) Load(ctx context.Context, hash string) (*model.Artifact, error) {
	item, err := s.meta.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	rc, err := s.files.Open(ctx, blobKey(hash))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	item.Content = string(data)
	return item, nil
}

func (s *Store) TypeOf(ctx context.Context, hash string) (model.ArtifactKind, error) {
	item, err := s.meta.Get(ctx, hash)
	if err != nil {
		return "", err
	}
	return item.Kind, nil
}

func blobKey(hash string) string {
	return strings.TrimPrefix(hash, schema.FingerprintPrefix) + ".txt"
}
