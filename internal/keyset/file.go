package keyset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileResolver serves keys from a JWKS document on disk and hot-reloads it
// when the file changes, so key rotation doesn't require a restart. Intended
// for deployments where the issuer's key set is mirrored locally instead of
// fetched over the network.
type FileResolver struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	keys map[string]*SigningKey
}

func NewFileResolver(path string, logger *zap.Logger) (*FileResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileResolver{
		path:   path,
		logger: logger,
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if err := r.watch(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileResolver) Key(_ context.Context, keyID string) (*SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[keyID]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

func (r *FileResolver) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *FileResolver) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	keys, err := parseKeySet(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	r.mu.Lock()
	r.keys = keys
	r.mu.Unlock()

	r.logger.Info("key set loaded", zap.String("path", r.path), zap.Int("keys", len(keys)))
	return nil
}

// watch observes the containing directory rather than the file itself, so
// atomic replace (write temp + rename) is still seen.
func (r *FileResolver) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	reload := make(chan struct{}, 1)
	go r.scheduleReload(reload)
	go r.handleEvents(reload)
	return nil
}

func (r *FileResolver) handleEvents(reload chan<- struct{}) {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Name != r.path {
				continue
			}
			if event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove) {
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("key set watcher error", zap.Error(err))
		}
	}
}

// scheduleReload debounces bursts of filesystem events into a single reload.
func (r *FileResolver) scheduleReload(reload <-chan struct{}) {
	var timer *time.Timer = nil
	var c <-chan time.Time = nil
	duration := time.Millisecond * 500
	for {
		select {
		case _, ok := <-reload:
			if !ok {
				return
			}
			if timer != nil {
				timer.Reset(duration)
			} else {
				timer = time.NewTimer(duration)
				c = timer.C
			}

		case <-c:
			c = nil
			timer = nil
			if err := r.reload(); err != nil {
				// keep serving the last good set
				r.logger.Error("key set reload failed", zap.Error(err))
			}
		}
	}
}
