package toml

import "fmt"

const currentSettingsSchemaVersion = 1

type settingsFileSchema struct {
	Version   int             `toml:"version"`
	Flags     map[string]bool `toml:"flags"`
	UpdatedAt string          `toml:"updated_at,omitempty"`
}

func (s *settingsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSettingsSchemaVersion
	}
	if s.Flags == nil {
		s.Flags = map[string]bool{}
	}
}

func (s settingsFileSchema) validateVersion() error {
	if s.Version > currentSettingsSchemaVersion {
		return fmt.Errorf("unsupported settings schema version %d (current %d)", s.Version, currentSettingsSchemaVersion)
	}

	return nil
}
