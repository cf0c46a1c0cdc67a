// Package rlmconfig loads config/rlm.json — the RLM subsystem's rate
// limits, daily budget, and moderation settings (SPEC_FULL.md §6). Absence
// of the file is not an error: defaults apply.
package rlmconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

// RateLimits bounds request and token throughput per agent process.
type RateLimits struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute"`
}

// Budget bounds daily spend and the fraction of it that triggers a warning
// notification before the hard limit is reached.
type Budget struct {
	DailyLimitUSD float64 `json:"daily_limit_usd"`
	AlertFraction float64 `json:"alert_fraction"`
}

// Moderation toggles the constitutional safety checker (pkg/safety) and its
// block threshold.
type Moderation struct {
	Enabled        bool    `json:"enabled"`
	BlockThreshold float64 `json:"block_threshold"`
}

// Config is the parsed shape of config/rlm.json.
type Config struct {
	RateLimits RateLimits `json:"rate_limits"`
	Budget     Budget     `json:"budget"`
	Moderation Moderation `json:"moderation"`
}

// Default returns the spec-mandated defaults: 60 req/min, 100k tok/min,
// $50/day, alert at 80%, moderation on at the checker's default threshold.
func Default() Config {
	return Config{
		RateLimits: RateLimits{RequestsPerMinute: 60, TokensPerMinute: 100_000},
		Budget:     Budget{DailyLimitUSD: 50, AlertFraction: 0.80},
		Moderation: Moderation{Enabled: true, BlockThreshold: 0.85},
	}
}

// Load reads path, falling back to Default() when the file does not exist.
// Any other read/parse error is returned.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "failed to read rlm config %s", path)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "failed to parse rlm config %s", path)
	}
	return cfg, nil
}

const debounceDelay = 150 * time.Millisecond

// Watcher hot-reloads Config from disk, grounded on the same debounced
// fsnotify loop as pkg/domainconfig.Watcher.
type Watcher struct {
	mu      sync.Mutex
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching path's directory, invoking onChange once with the
// current config and again after every debounced write.
func Watch(path string, logger *zap.Logger, onChange func(Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	onChange(cfg)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to create rlm config watcher")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to resolve rlm config path")
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to watch rlm config directory")
	}

	w := &Watcher{path: absPath, logger: logger, watcher: fw, done: make(chan struct{})}
	go w.loop(filepath.Base(absPath), onChange)
	return w, nil
}

func (w *Watcher) loop(fileName string, onChange func(Config)) {
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
				cfg, err := Load(w.path)
				if err != nil {
					w.logger.Warn("rlm config reload failed, keeping previous settings", zap.Error(err))
					return
				}
				onChange(cfg)
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rlm config watcher error", zap.Error(err))
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
