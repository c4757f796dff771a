// Package lexfiles loads lexicon entries from files and reloads them when files change.
package lexfiles

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/go-pkgz/fileutils"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/tl-spam/lib/lexicon"
)

// Loader replaces loaded lexicon entries
type Loader interface {
	Load(readers ...io.Reader) (lexicon.LoadResult, error)
}

// Files is a set of lexicon files loaded together
type Files struct {
	loader Loader
	paths  []string
}

// New makes Files for the given paths
func New(loader Loader, paths ...string) *Files {
	return &Files{loader: loader, paths: paths}
}

// Paths returns lexicon file paths
func (f *Files) Paths() []string { return f.paths }

// Reload reads all files and replaces loaded entries. Missing files are skipped with a warning,
// read errors of all files are reported together and keep the current entries.
func (f *Files) Reload() (lexicon.LoadResult, error) {
	readers := make([]io.Reader, 0, len(f.paths))
	errs := new(multierror.Error)
	for _, p := range f.paths {
		if !fileutils.IsFile(p) {
			log.Printf("[WARN] lexicon file %s not found, skipped", p)
			continue
		}
		r, err := readFile(p)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		readers = append(readers, r)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return lexicon.LoadResult{}, err
	}

	lr, err := f.loader.Load(readers...)
	if err != nil {
		return lexicon.LoadResult{}, fmt.Errorf("failed to load lexicon: %w", err)
	}
	log.Printf("[INFO] lexicon loaded from %d files, literals: %d, patterns: %d", len(readers), lr.Literals, lr.Patterns)
	return lr, nil
}

// Watch reloads all files when any of them is written. Blocks until ctx is done.
// Failed reloads are logged and keep the previous entries.
func (f *Files) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, p := range f.paths {
		if !fileutils.IsFile(p) {
			continue
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to add %s to watcher: %w", p, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no lexicon files to watch")
	}
	log.Printf("[INFO] watching %d lexicon files", watched)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] stopping lexicon watcher, %v", ctx.Err())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			log.Printf("[DEBUG] lexicon file %s changed", event.Name)
			if _, err := f.Reload(); err != nil {
				log.Printf("[WARN] failed to reload lexicon after %s change: %v", event.Name, err)
			}
		case e, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] lexicon watcher error: %v", e)
		}
	}
}

func readFile(path string) (io.Reader, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is controlled by the app
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return bytes.NewReader(data), nil
}
