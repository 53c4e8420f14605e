package plans

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/chartpay/pkg/async"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

type planFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadFile reads a YAML plan catalog:
//
//	plans:
//	  - name: free
//	    rank: 0
//	    daily_limit: 1
//	    monthly_limit: 30
func LoadFile(path string) ([]Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	for _, p := range f.Plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Plans, nil
}

// FileFetcher serves the catalog from a YAML file.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) FetchPlans(ctx context.Context) ([]Plan, error) {
	return LoadFile(f.Path)
}

// Watch reloads path into catalog whenever the file is written, until ctx is
// done. Invalid edits are logged and the previous catalog is kept.
func Watch(ctx context.Context, path string, catalog *Catalog, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	async.SafeGoNoError(ctx, logger, 0, "plan file watch", func(ctx context.Context) {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				list, err := LoadFile(path)
				if err == nil {
					err = catalog.Set(list)
				}
				if err != nil {
					logger.WithError(err).Warn("plan file reload rejected")
					continue
				}
				logger.WithField("plans", len(list)).Info("plan catalog reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("plan file watcher error")
			}
		}
	})
	return nil
}
