// Package watcher imports YAML pack files dropped into an inbox directory.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/model"
)

const defaultDebounce = 500 * time.Millisecond

type Importer interface {
	ImportFile(ctx context.Context, file string) (*model.ContextPack, error)
}

// AfterImport runs once per batch that imported at least one pack,
// typically to rebuild the index.
type AfterImport func(ctx context.Context, imported int)

type Watcher struct {
	dir      string
	debounce time.Duration
	importer Importer
	after    AfterImport
}

func New(dir string, debounce time.Duration, importer Importer, after AfterImport) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{dir: dir, debounce: debounce, importer: importer, after: after}
}

func isPackFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Run imports the files already in the inbox, then watches it until ctx
// is done. Writes are batched over the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dir", w.dir))
	logger.Info("inbox watcher started")

	existing, err := w.scan()
	if err != nil {
		return err
	}
	w.importBatch(ctx, existing)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("inbox watcher stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isPackFile(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			pending = make(map[string]struct{})
			sort.Strings(files)
			w.importBatch(ctx, files)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isPackFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(w.dir, e.Name()))
	}
	return files, nil
}

// importBatch imports files in order and returns how many succeeded. A bad
// file is logged and skipped.
func (w *Watcher) importBatch(ctx context.Context, files []string) int {
	imported := 0
	for _, f := range files {
		pack, err := w.importer.ImportFile(ctx, f)
		if err != nil {
			logutil.GetLogger(ctx).Warn("import pack file failed", zap.String("file", f), zap.Error(err))
			continue
		}
		logutil.GetLogger(ctx).Info("pack file imported", zap.String("file", f), zap.String("path", pack.Path))
		imported++
	}
	if imported > 0 && w.after != nil {
		w.after(ctx, imported)
	}
	return imported
}
