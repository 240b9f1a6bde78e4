package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/store"
	"github.com/tildaslashalef/mermaidnest/internal/ulid"
)

// DiagramExt is the file extension picked up by the directory watcher
const DiagramExt = ".mmd"

// DiagramStore is what the watcher needs to persist diagram files
type DiagramStore interface {
	GetDiagram(ctx context.Context, id string) *store.Diagram
	PutDiagram(ctx context.Context, d store.Diagram)
}

// DiagramIDFromPath derives a stable diagram ID from a file name. A file
// already named after a diagram ID keeps it.
func DiagramIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if ulid.HasKind(stem, ulid.PrefixDiagram) {
		return stem
	}
	return "file-" + stem
}

// DirWatcher upserts *.mmd files written in a directory as diagrams
type DirWatcher struct {
	dir     string
	store   DiagramStore
	logger  *loggy.Logger
	watcher *fsnotify.Watcher
	wg      gosync.WaitGroup
}

// NewDirWatcher creates a watcher for dir
func NewDirWatcher(dir string, diagrams DiagramStore, logger *loggy.Logger) (*DirWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &DirWatcher{
		dir:     dir,
		store:   diagrams,
		logger:  logger,
		watcher: watcher,
	}, nil
}

// Start imports the existing files and then follows changes until ctx is done
func (w *DirWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}

	w.ImportAll(ctx)

	w.wg.Add(1)
	go w.processEvents(ctx)

	return nil
}

// Stop closes the watcher and waits for the event loop
func (w *DirWatcher) Stop() error {
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// ImportAll upserts every diagram file currently in the directory
func (w *DirWatcher) ImportAll(ctx context.Context) int {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*"+DiagramExt))
	if err != nil {
		w.logger.Warn("Failed to list diagram files", "dir", w.dir, "error", err)
		return 0
	}

	imported := 0
	for _, path := range matches {
		if w.importFile(ctx, path) {
			imported++
		}
	}
	return imported
}

func (w *DirWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), DiagramExt) {
				continue
			}
			w.importFile(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

// importFile stores path as a diagram when its content differs from the stored one
func (w *DirWatcher) importFile(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("Failed to read diagram file", "path", path, "error", err)
		return false
	}

	id := DiagramIDFromPath(path)
	code := string(data)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	d := store.Diagram{ID: id, Name: name}
	if existing := w.store.GetDiagram(ctx, id); existing != nil {
		if existing.Code == code {
			return false
		}
		d = *existing
	}
	d.Code = code
	d.UpdatedAt = store.NowMillis()

	w.store.PutDiagram(ctx, d)
	w.logger.Debug("Imported diagram file", "path", path, "id", id)
	return true
}
