package conf

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/driftpad/driftpad/errors"
)

// Save writes the configuration to the given path as TOML, rotating a
// single .back backup of any existing file first.
func Save(config *Config, configPath string) error {
	if config == nil {
		return errors.New("config is nil")
	}

	if err := createBackup(configPath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrapf(err, "write config to %s", configPath)
	}

	return nil
}

// createBackup copies the current config file to <path>.back before a write.
func createBackup(configPath string) error {
	content, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil // No file to backup
	}
	if err != nil {
		return errors.Wrap(err, "read config for backup")
	}

	if err := os.WriteFile(configPath+".back", content, 0644); err != nil {
		return errors.Wrap(err, "create config backup")
	}

	return nil
}
