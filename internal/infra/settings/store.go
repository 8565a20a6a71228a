// Package settings persists preview state across reconnects and dev server
// restarts: the host context shared by every tool and the last input run
// against each tool.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	ErrStoreClosed = errors.New("preview settings store is closed")
	ErrMissingTool = errors.New("tool name is required")
)

type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	closed bool
}

func OpenStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("settings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure settings dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// HostContext decodes the saved host context into out and reports whether
// one was saved.
func (s *Store) HostContext(out any) (bool, error) {
	var raw []byte
	err := s.view(func(preview *bolt.Bucket) error {
		raw = clone(preview.Get([]byte(hostContextKey)))
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode host context: %w", err)
	}
	return true, nil
}

func (s *Store) SaveHostContext(hc any) error {
	raw, err := json.Marshal(hc)
	if err != nil {
		return fmt.Errorf("encode host context: %w", err)
	}
	return s.update(func(preview *bolt.Bucket) error {
		return preview.Put([]byte(hostContextKey), raw)
	})
}

// ClearHostContext forgets the saved host context. Inputs are kept.
func (s *Store) ClearHostContext() error {
	return s.update(func(preview *bolt.Bucket) error {
		return preview.Delete([]byte(hostContextKey))
	})
}

// LastInput returns the arguments last run against tool, or nil.
func (s *Store) LastInput(tool string) (json.RawMessage, error) {
	if strings.TrimSpace(tool) == "" {
		return nil, ErrMissingTool
	}
	var input json.RawMessage
	err := s.view(func(preview *bolt.Bucket) error {
		input = clone(preview.Bucket([]byte(inputsBucketName)).Get([]byte(tool)))
		return nil
	})
	return input, err
}

func (s *Store) SaveLastInput(tool string, input json.RawMessage) error {
	if strings.TrimSpace(tool) == "" {
		return ErrMissingTool
	}
	if !json.Valid(input) {
		return fmt.Errorf("last input for %s is not valid JSON", tool)
	}
	return s.update(func(preview *bolt.Bucket) error {
		return preview.Bucket([]byte(inputsBucketName)).Put([]byte(tool), input)
	})
}

func (s *Store) view(fn func(preview *bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(rootBucketName)))
	})
}

func (s *Store) update(fn func(preview *bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(rootBucketName)))
	})
}

// Values returned by bolt are only valid inside the transaction.
func clone(value []byte) []byte {
	if value == nil {
		return nil
	}
	return append([]byte(nil), value...)
}
