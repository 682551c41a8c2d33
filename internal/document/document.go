// Package document stores generated files such as return labels.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no document exists for a key.
var ErrNotFound = errors.New("document not found")

// Store persists documents by key.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// fileStore implements Store on the local file system.
type fileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, logger zerolog.Logger) Store {
	return &fileStore{
		dir:    dir,
		logger: logger.With().Str("component", "file-document-store").Logger(),
	}
}

func (s *fileStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move document %s into place: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("document stored")
	return nil
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", key, err)
	}
	return data, nil
}

func (s *fileStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// fallbackStore writes to the primary store and falls back to the secondary on failure.
type fallbackStore struct {
	primary   Store
	secondary Store
	logger    zerolog.Logger
}

// NewFallbackStore creates a store that tries primary first, then secondary.
// If primary is nil only secondary is used.
func NewFallbackStore(primary, secondary Store, logger zerolog.Logger) Store {
	if primary == nil {
		return secondary
	}
	return &fallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "fallback-document-store").Logger(),
	}
}

func (s *fallbackStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	err := s.primary.Put(ctx, key, contentType, data)
	if err == nil {
		return nil
	}
	s.logger.Warn().Err(err).Str("key", key).Msg("failed to store document in primary store, falling back")
	return s.secondary.Put(ctx, key, contentType, data)
}

func (s *fallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.primary.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	s.logger.Debug().Err(err).Str("key", key).Msg("document not in primary store, trying fallback")
	return s.secondary.Get(ctx, key)
}
