// Package pepper manages the server-side secret mixed into every credential
// hash.
//
// Resolution order: explicit config value, API_KEY_PEPPER environment
// variable, persisted file, freshly generated 32 random bytes. A generated
// pepper is persisted before it is ever handed out: losing it would silently
// invalidate every issued credential.
package pepper

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Size is the byte length of a generated pepper.
const Size = 32

// Source resolves and caches the pepper for the process lifetime.
type Source struct {
	value string // explicit value, wins over everything
	path  string // file fallback location

	once   sync.Once
	cached []byte
	err    error
}

// NewSource creates a pepper source. value may be empty; path is used only
// when neither value nor the environment supplies a pepper.
func NewSource(value, path string) *Source {
	return &Source{value: value, path: path}
}

// Get returns the pepper bytes. The first call resolves and, if needed,
// generates and persists; subsequent calls return the cached value.
func (s *Source) Get() ([]byte, error) {
	s.once.Do(func() {
		s.cached, s.err = s.resolve()
	})
	return s.cached, s.err
}

func (s *Source) resolve() ([]byte, error) {
	if s.value != "" {
		return []byte(s.value), nil
	}

	if env := os.Getenv("API_KEY_PEPPER"); env != "" {
		return []byte(env), nil
	}

	if s.path == "" {
		return nil, errors.New("pepper: no value configured and no file path set")
	}

	b, err := os.ReadFile(s.path)
	if err == nil {
		if len(b) == 0 {
			return nil, fmt.Errorf("pepper: file %s is empty", s.path)
		}
		return b, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("pepper: read %s: %w", s.path, err)
	}

	return s.generate()
}

// generate creates a fresh pepper and persists it durably before returning.
// Write goes through a temp file + rename so a crash mid-write never leaves
// a truncated pepper that would mint unverifiable credentials.
func (s *Source) generate() ([]byte, error) {
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("pepper: generate: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("pepper: create dir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".pepper-*")
	if err != nil {
		return nil, fmt.Errorf("pepper: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("pepper: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("pepper: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("pepper: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return nil, fmt.Errorf("pepper: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return nil, fmt.Errorf("pepper: persist %s: %w", s.path, err)
	}

	return b, nil
}
