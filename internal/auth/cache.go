package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonandersen/rob/internal/broker"
)

// SessionCache persists a broker token between runs.
type SessionCache interface {
	Exists() bool
	Load() (*broker.Token, error)
	Save(token *broker.Token) error
	Invalidate() error
}

// DefaultCacheName is the session file created in the working directory.
const DefaultCacheName = "rob.session"

// FileCache stores the token msgpack-encoded in a single file.
type FileCache struct {
	Path string
}

// NewFileCache returns a cache at path. A relative path is resolved against
// the working directory at call time.
func NewFileCache(path string) *FileCache {
	if path == "" {
		path = DefaultCacheName
	}
	return &FileCache{Path: path}
}

// Exists reports whether a session file is present.
func (c *FileCache) Exists() bool {
	info, err := os.Stat(c.Path)
	return err == nil && !info.IsDir()
}

// Load decodes the cached token. An empty access token is treated as corrupt.
func (c *FileCache) Load() (*broker.Token, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var token broker.Token
	if err := msgpack.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode session cache: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("session cache holds no access token")
	}
	return &token, nil
}

// Save writes the token with 0600 permissions, creating parent directories
// with 0700.
func (c *FileCache) Save(token *broker.Token) error {
	if token == nil {
		return errors.New("nil token")
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := msgpack.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	return nil
}

// Invalidate removes the session file. A missing file is not an error.
func (c *FileCache) Invalidate() error {
	err := os.Remove(c.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session cache: %w", err)
	}
	return nil
}
