// Package filestore holds artifact content outside the database, on local
// disk or in an S3 compatible bucket.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/ctxkit/internal/config"
)

// Store keeps opaque blobs under flat keys. Open returns appErr.ErrNotFound
// for unknown keys.
type Store interface {
	Type() string
	Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type factory func(args interface{}) (Store, error)

// factories is filled by init functions only.
var factories = map[string]factory{}

func register(name string, f factory) {
	factories[name] = f
}

func New(cfg config.FileStoreConfig) (Store, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	f, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported file store type %q", cfg.Type)
	}
	st, err := f(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init %s file store: %w", typ, err)
	}
	return st, nil
}

// decodeArgs converts the loosely typed config block into dst.
func decodeArgs(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// validKey accepts flat names only, so a key never leaves the store root.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}
