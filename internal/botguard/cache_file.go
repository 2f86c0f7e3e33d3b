package botguard

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// FileCache stores Botguard outputs on disk, one JSON file per key.
// Expired or corrupt entries are treated as missing and removed.
type FileCache struct {
	fs      afero.Fs
	rootDir string
	mu      sync.Mutex
}

// NewFileCache creates a file-backed cache under rootDir on fsys.
// The directory will be created if it does not exist.
func NewFileCache(fsys afero.Fs, rootDir string) (*FileCache, error) {
	if rootDir == "" {
		return nil, errors.New("rootDir is required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{fs: fsys, rootDir: rootDir}, nil
}

func (c *FileCache) filenameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.rootDir, fmt.Sprintf("%x.json", sum[:]))
}

type fileEntry struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (c *FileCache) Get(key string) (Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn := c.filenameForKey(key)
	b, err := afero.ReadFile(c.fs, fn)
	if err != nil {
		return Output{}, false
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		_ = c.fs.Remove(fn)
		return Output{}, false
	}
	out := Output{Token: e.Token, ExpiresAt: e.ExpiresAt, Metadata: e.Metadata}
	if out.Expired(time.Now()) {
		_ = c.fs.Remove(fn)
		return Output{}, false
	}
	return out, true
}

func (c *FileCache) Set(key string, value Output) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn := c.filenameForKey(key)
	tmp := fn + ".tmp"
	b, err := json.Marshal(fileEntry{Token: value.Token, ExpiresAt: value.ExpiresAt, Metadata: value.Metadata})
	if err != nil {
		return
	}
	if err := afero.WriteFile(c.fs, tmp, b, 0o644); err != nil {
		return
	}
	_ = c.fs.Rename(tmp, fn)
}
