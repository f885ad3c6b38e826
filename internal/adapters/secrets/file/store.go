package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	storeDirMode        = 0o700
	credentialsFileMode = 0o600
	credentialsFileName = "credentials.toml"
)

type credentialsSchema struct {
	Credentials map[string]string `toml:"credentials"`
}

// Store keeps credentials in a single owner-only TOML file under root.
type Store struct {
	path string
	mu   sync.RWMutex
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{path: filepath.Join(filepath.Clean(root), credentialsFileName)}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	file.Credentials[key] = value

	return s.write(file)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return "", err
	}
	value, ok := file.Credentials[key]
	if !ok {
		return "", fmt.Errorf("file credential %q: %w", key, domain.ErrCredentialNotFound)
	}

	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := file.Credentials[key]; !ok {
		return nil
	}
	delete(file.Credentials, key)

	return s.write(file)
}

func (s *Store) read() (credentialsSchema, error) {
	file := credentialsSchema{Credentials: map[string]string{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, nil
		}
		return credentialsSchema{}, fmt.Errorf("read credentials file: %w", err)
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return credentialsSchema{}, fmt.Errorf("decode credentials file: %w", err)
	}
	if file.Credentials == nil {
		file.Credentials = map[string]string{}
	}

	return file, nil
}

func (s *Store) write(file credentialsSchema) error {
	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}
	if err := os.WriteFile(s.path, data, credentialsFileMode); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.path, credentialsFileMode); err != nil {
		return fmt.Errorf("chmod credentials file: %w", err)
	}

	return nil
}

func normalizeKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("credential key is empty")
	}
	if strings.ContainsAny(trimmed, "\n\r") {
		return "", fmt.Errorf("invalid credential key %q", key)
	}
	return trimmed, nil
}
