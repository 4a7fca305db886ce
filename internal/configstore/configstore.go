// Package configstore implements the C2 ConfigStore adapter: the interface
// JobRegistry and ConfigChangeReconciler consume to read/write/watch
// scheduler.job.* documents, backed by a local directory instead of a remote
// config service. Documents are written with fsnotify-watched files so
// updates from any process sharing the directory are observed; a small
// viper-backed layer supplies an env fallback for a document that does not
// exist and has no cached copy. A document that exists but is unreadable is
// served from the last-known-good cache with a TransientRemoteError.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/distsched/scheduler/internal/domain"
)

// Listener is invoked with the new document content whenever a dataId changes.
type Listener func(ctx context.Context, dataID, content string)

// Store is a local/file-backed ConfigStore.
type Store struct {
	dir    string
	format string // "yaml" or "json"

	mu        sync.RWMutex
	listeners map[string][]Listener
	cache     map[string]string // last-known-good content, for TransientRemoteError fallback

	defaults *viper.Viper

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Open creates (if necessary) dir and starts watching it for document
// changes. Call Close to stop the watcher goroutine.
func Open(dir, format string) (*Store, error) {
	if format != "yaml" && format != "json" {
		return nil, fmt.Errorf("%w: unsupported configstore format %q", domain.ErrConfiguration, format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create configstore dir: %v", domain.ErrStorage, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: create fsnotify watcher: %v", domain.ErrStorage, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: watch configstore dir: %v", domain.ErrStorage, err)
	}

	defaults := viper.New()
	defaults.SetEnvPrefix("SCHEDULER_CONFIGSTORE_DEFAULT")
	defaults.AutomaticEnv()

	s := &Store{
		dir:       dir,
		format:    format,
		listeners: make(map[string][]Listener),
		cache:     make(map[string]string),
		defaults:  defaults,
		watcher:   watcher,
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.watchLoop()

	return s, nil
}

// Close stops the background watch goroutine and releases the fsnotify handle.
func (s *Store) Close() error {
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

func (s *Store) path(dataID string) string {
	return filepath.Join(s.dir, dataID)
}

// envKeyFor maps a dataId like "scheduler.job.42" to the viper key checked
// when no document exists yet and nothing is cached: SCHEDULER_JOB_42, which
// viper's env prefix turns into the env var
// SCHEDULER_CONFIGSTORE_DEFAULT_SCHEDULER_JOB_42.
func envKeyFor(dataID string) string {
	key := strings.ToUpper(dataID)
	return strings.NewReplacer(".", "_", "-", "_").Replace(key)
}

// GetConfig reads the current document for dataID. If the file is missing, it
// returns the last-known-good cached value, else the env fallback, else
// found=false, all with a nil error. If the file exists but is unreadable, it
// returns the cached value (if any) with the original error wrapped in
// ErrTransientRemote, so callers can distinguish "never existed" from
// "temporarily unreadable".
func (s *Store) GetConfig(_ context.Context, dataID string) (string, bool, error) {
	content, err := os.ReadFile(s.path(dataID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.RLock()
			cached, ok := s.cache[dataID]
			s.mu.RUnlock()
			if ok {
				return cached, true, nil
			}
			if fallback := s.defaults.GetString(envKeyFor(dataID)); fallback != "" {
				return fallback, true, nil
			}
			return "", false, nil
		}
		s.mu.RLock()
		cached, ok := s.cache[dataID]
		s.mu.RUnlock()
		if ok {
			return cached, true, fmt.Errorf("%w: %v (serving cached copy)", domain.ErrTransientRemote, err)
		}
		return "", false, fmt.Errorf("%w: %v", domain.ErrTransientRemote, err)
	}

	s.mu.Lock()
	s.cache[dataID] = string(content)
	s.mu.Unlock()

	return string(content), true, nil
}

// PublishConfig writes content for dataID. The fsnotify watch loop picks up
// the write and dispatches to listeners, so PublishConfig itself does not
// notify synchronously — this mirrors how a real remote config service
// delivers pushes asynchronously over a long-poll/stream connection.
func (s *Store) PublishConfig(_ context.Context, dataID, content string) error {
	tmp := s.path(dataID) + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: write document: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmp, s.path(dataID)); err != nil {
		return fmt.Errorf("%w: publish document: %v", domain.ErrStorage, err)
	}

	s.mu.Lock()
	s.cache[dataID] = content
	s.mu.Unlock()

	return nil
}

// AddListener registers fn to be invoked whenever dataID's document changes.
// The returned func unsubscribes it.
func (s *Store) AddListener(dataID string, fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.listeners[dataID] = append(s.listeners[dataID], fn)
	idx := len(s.listeners[dataID]) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.listeners[dataID]
		if idx < len(list) {
			list[idx] = nil
		}
	}
}

func (s *Store) watchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			dataID := filepath.Base(event.Name)
			if strings.HasSuffix(dataID, ".tmp") {
				continue
			}
			s.dispatch(dataID)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("configstore watch error", "error", err)
		}
	}
}

func (s *Store) dispatch(dataID string) {
	content, found, err := s.GetConfig(context.Background(), dataID)
	if err != nil || !found {
		return
	}

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners[dataID]...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(context.Background(), dataID, content)
		}
	}
}

// DecodeDocument unmarshals content according to the store's configured
// format (yaml or json; json is valid yaml so the yaml.v3 decoder handles
// both) into v.
func (s *Store) DecodeDocument(content string, v any) error {
	if err := yaml.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("%w: decode document: %v", domain.ErrConfiguration, err)
	}
	return nil
}

// EncodeDocument marshals v according to the store's configured format.
func (s *Store) EncodeDocument(v any) (string, error) {
	var out []byte
	var err error
	if s.format == "json" {
		out, err = jsonMarshalIndent(v)
	} else {
		out, err = yaml.Marshal(v)
	}
	if err != nil {
		return "", fmt.Errorf("%w: encode document: %v", domain.ErrConfiguration, err)
	}
	return string(out), nil
}
