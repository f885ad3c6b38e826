package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	statusadapter "github.com/bnema/azad-hub/internal/adapters/render/status"
	tomlrepo "github.com/bnema/azad-hub/internal/adapters/repo/toml"
	chainstore "github.com/bnema/azad-hub/internal/adapters/secrets/chain"
	"github.com/bnema/azad-hub/internal/application"
	"github.com/bnema/azad-hub/internal/ports"
	"github.com/spf13/viper"
)

const (
	configDirName = ".azad-hub"
	envPrefix     = "AZH"

	keyListenAddr     = "listen_addr"
	keyHostToken      = "host.token"
	keyHostTimeout    = "host.timeout"
	keyBillingBaseURL = "billing.base_url"
	keyBillingExtID   = "billing.extension_id"
	keyBillingKeyRef  = "billing.api_key_ref"
	keyCredentialsDir = "credentials.dir"
	keyLogLevel       = "log.level"
	keyLogFormat      = "log.format"
	keyCORSOrigins    = "cors.allowed_origins"
	keyPeerOutbox     = "ws.peer_outbox_size"
)

type app struct {
	cfg            *viper.Viper
	settings       *tomlrepo.SettingsRepository
	credentials    ports.CredentialStore
	statusRenderer func(application.Snapshot, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
}

func wireApp() (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := loadConfig(filepath.Join(homeDir, configDirName))
	if err != nil {
		return nil, err
	}

	settings, err := tomlrepo.NewSettingsRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire settings repository: %w", err)
	}

	credentials, err := chainstore.NewPassFirstWithFileFallback(cfg.GetString(keyCredentialsDir))
	if err != nil {
		return nil, fmt.Errorf("wire credential store chain: %w", err)
	}

	return &app{
		cfg:            cfg,
		settings:       settings,
		credentials:    credentials,
		statusRenderer: statusadapter.Render,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func loadConfig(configDir string) (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigName("config")
	cfg.SetConfigType("toml")
	cfg.AddConfigPath(configDir)

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault(keyListenAddr, "127.0.0.1:17333")
	cfg.SetDefault(keyHostToken, "")
	cfg.SetDefault(keyHostTimeout, 15*time.Second)
	cfg.SetDefault(tomlrepo.SettingsPathKey, filepath.Join(configDir, "settings.toml"))
	cfg.SetDefault(keyBillingBaseURL, "https://extensionpay.com")
	cfg.SetDefault(keyBillingExtID, "azad")
	cfg.SetDefault(keyBillingKeyRef, "azad-hub/billing/api_key")
	cfg.SetDefault(keyCredentialsDir, filepath.Join(configDir, "credentials"))
	cfg.SetDefault(keyLogLevel, "info")
	cfg.SetDefault(keyLogFormat, "json")
	cfg.SetDefault(keyCORSOrigins, []string{})
	cfg.SetDefault(keyPeerOutbox, 64)

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return cfg, nil
}
