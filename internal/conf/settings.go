package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings contains tunables loaded from the YAML settings file.
type Settings struct {
	Network  NetworkSettings  `yaml:"network"`
	Dispatch DispatchSettings `yaml:"dispatch"`
	Log      LogSettings      `yaml:"log"`
}

// NetworkSettings contains chat-network formatting settings.
type NetworkSettings struct {
	Suffix string `yaml:"suffix"`
}

// DispatchSettings contains dispatch pacing settings.
type DispatchSettings struct {
	BulkDelaySeconds    int `yaml:"bulk_delay_seconds"`
	AccountDelaySeconds int `yaml:"account_delay_seconds"`
}

// LogSettings contains message log settings.
type LogSettings struct {
	Capacity int `yaml:"capacity"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Network:  NetworkSettings{Suffix: "@c.us"},
		Dispatch: DispatchSettings{BulkDelaySeconds: 2, AccountDelaySeconds: 5},
		Log:      LogSettings{Capacity: 1000},
	}
}

// LoadSettings loads the settings file, falling back to defaults when no file
// is found. An explicit path that fails to parse is reported as an error.
func LoadSettings(configPath string) (*Settings, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/settings.yaml",
			"./configs/settings.yaml",
			"/etc/chat-autopilot/settings.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "settings.yaml"))
		}
	}

	settings := DefaultSettings()
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, settings); err != nil {
			return DefaultSettings(), fmt.Errorf("parse settings %s: %w", p, err)
		}
		applySettingsDefaults(settings)
		return settings, nil
	}
	return settings, nil
}

func applySettingsDefaults(s *Settings) {
	def := DefaultSettings()
	if s.Network.Suffix == "" {
		s.Network.Suffix = def.Network.Suffix
	}
	if s.Dispatch.BulkDelaySeconds == 0 {
		s.Dispatch.BulkDelaySeconds = def.Dispatch.BulkDelaySeconds
	}
	if s.Dispatch.AccountDelaySeconds == 0 {
		s.Dispatch.AccountDelaySeconds = def.Dispatch.AccountDelaySeconds
	}
	if s.Log.Capacity == 0 {
		s.Log.Capacity = def.Log.Capacity
	}
}
