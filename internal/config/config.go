package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AgentOverride adjusts a registry profile without changing control flow:
// an alternate binary path, a model name, or extra env entries.
type AgentOverride struct {
	Command string            `yaml:"command"`
	Model   string            `yaml:"model"`
	Env     map[string]string `yaml:"env"`
}

// Config holds the optional benchrun.yaml settings from the home directory.
type Config struct {
	// ValidationURL switches the validation executor to remote mode when set.
	// BENCHRUN_VALIDATION_URL takes precedence over this value.
	ValidationURL string `yaml:"validation_url"`
	// ToolCommand is the build tool invoked for validation (default "moon").
	ToolCommand string `yaml:"tool_command"`
	// Agents maps agent name to profile overrides.
	Agents map[string]AgentOverride `yaml:"agents"`
}

// Path returns the config file location under home.
func Path(home string) string {
	return filepath.Join(home, "benchrun.yaml")
}

// Load reads benchrun.yaml from home. A missing file is not an error; the
// zero Config is returned.
func Load(home string) (Config, error) {
	data, err := os.ReadFile(Path(home))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config to home/benchrun.yaml.
func Save(home string, cfg Config) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(home), data, 0o644)
}
