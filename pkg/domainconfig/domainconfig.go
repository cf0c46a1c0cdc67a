// Package domainconfig loads and hot-reloads wave-config.json, the domain
// ownership map the boundary enforcer (pkg/worktree) and the domain scoper
// (pkg/rlm) both consult (SPEC_FULL.md §6).
package domainconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// fileShape mirrors wave-config.json's top-level object.
type fileShape struct {
	Domains []domain.DomainRule `json:"domains"`
}

// Load reads and parses path into a domain rule set.
func Load(path string) ([]domain.DomainRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "failed to read domain config %s", path)
	}
	var shape fileShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "failed to parse domain config %s", path)
	}
	return shape.Domains, nil
}

const debounceDelay = 150 * time.Millisecond

// Watcher hot-reloads a domain rule set from disk, invoking onChange with
// the freshly parsed rules whenever the file is written. A parse failure on
// reload is logged and the previous rule set is left in place — a bad edit
// never tears down a running enforcer.
type Watcher struct {
	mu      sync.Mutex
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching path's containing directory and calls onChange on
// every write/create event for path, after an initial call with the
// current contents. Close stops the watch loop.
func Watch(path string, logger *zap.Logger, onChange func([]domain.DomainRule)) (*Watcher, error) {
	rules, err := Load(path)
	if err != nil {
		return nil, err
	}
	onChange(rules)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to create domain config watcher")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to resolve domain config path")
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to watch domain config directory")
	}

	w := &Watcher{path: absPath, logger: logger, watcher: fw, done: make(chan struct{})}
	go w.loop(filepath.Base(absPath), onChange)
	return w, nil
}

func (w *Watcher) loop(fileName string, onChange func([]domain.DomainRule)) {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				rules, err := Load(w.path)
				if err != nil {
					w.logger.Warn("domain config reload failed, keeping previous rules", zap.Error(err))
					return
				}
				onChange(rules)
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("domain config watcher error", zap.Error(err))
		}
	}
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.watcher.Close()
}
