package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/errors"
)

// HomeEnvVar overrides the overseer home directory.
const HomeEnvVar = "OVERSEER_HOME"

// GlobalConfigDir returns the path to the overseer home directory.
// This is $OVERSEER_HOME when set, otherwise ~/.overseer.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnvVar); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.OverseerHome), nil
}

// ProjectConfigDir returns the relative path to the project configuration directory.
func ProjectConfigDir() string {
	return constants.OverseerHome
}

// GlobalConfigPath returns the full path to the global configuration file.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// ProjectConfigPath returns the relative path to the project configuration file.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), constants.ConfigFileName)
}

// ResolveStateDir returns the configured state directory, or $OVERSEER_HOME/state.
func (c *StorageConfig) ResolveStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	home, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.StateDir), nil
}

// ResolveWorkDir returns the configured sandbox root, or $OVERSEER_HOME/workspace.
func (c *ExecutorConfig) ResolveWorkDir() (string, error) {
	if c.WorkDir != "" {
		return filepath.Abs(c.WorkDir)
	}
	home, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "workspace"), nil
}

// LogDir returns the directory holding the rotating process log.
func LogDir() (string, error) {
	home, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.LogsDir), nil
}
