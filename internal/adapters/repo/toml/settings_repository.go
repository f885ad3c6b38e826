package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	SettingsPathKey = "settings.path"

	settingsFileMode     = 0o600
	settingsDirMode      = 0o700
	settingsConfigDir    = ".azad-hub"
	settingsConfigFile   = "settings.toml"
	settingsTempFilePatt = ".settings-*.toml.tmp"
)

// SettingsRepository persists the hub's boolean flags in a TOML file.
type SettingsRepository struct {
	path  string
	mu    *sync.RWMutex
	clock ports.Clock
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SettingsStore = (*SettingsRepository)(nil)

func NewSettingsRepository(cfg *viper.Viper) (*SettingsRepository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	cfg.SetDefault(SettingsPathKey, filepath.Join(homeDir, settingsConfigDir, settingsConfigFile))

	path := strings.TrimSpace(cfg.GetString(SettingsPathKey))
	if path == "" {
		return nil, errors.New("settings path is empty")
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	path = filepath.Clean(path)

	return &SettingsRepository{path: path, mu: lockForPath(path), clock: ports.SystemClock{}}, nil
}

func (r *SettingsRepository) Path() string {
	return r.path
}

func (r *SettingsRepository) StoreBoolean(ctx context.Context, key string, value bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.Flags[key] = value
	file.UpdatedAt = r.clock.Now().UTC().Format(time.RFC3339)

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *SettingsRepository) LoadBoolean(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return false, err
	}

	value, ok := file.Flags[strings.TrimSpace(key)]
	if !ok {
		return false, fmt.Errorf("load %q: %w", key, domain.ErrSettingNotFound)
	}

	return value, nil
}

// Flags returns every stored flag.
func (r *SettingsRepository) Flags(ctx context.Context) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	return file.Flags, nil
}

func (r *SettingsRepository) readSchema() (settingsFileSchema, error) {
	var file settingsFileSchema

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file.applyDefaults()
			return file, nil
		}
		return settingsFileSchema{}, fmt.Errorf("read settings file: %w", err)
	}

	if err := toml.Unmarshal(data, &file); err != nil {
		return settingsFileSchema{}, fmt.Errorf("decode settings file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return settingsFileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *SettingsRepository) writeSchema(file settingsFileSchema) error {
	file.applyDefaults()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}

	return writeFileAtomic(r.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), settingsDirMode); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), settingsTempFilePatt)
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tempFile.Chmod(settingsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp settings file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	cleanup = false

	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
