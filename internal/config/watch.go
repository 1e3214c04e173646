package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/file"
	"github.com/sirupsen/logrus"
)

// Watch reloads the file at path whenever it changes and hands every valid
// configuration to onChange. Invalid edits are logged and skipped.
// The returned function stops watching.
func Watch(path string, onChange func(*Config)) (func() error, error) {
	f := file.Provider(path)
	err := f.Watch(func(event interface{}, err error) {
		if err != nil {
			logrus.Errorf("Config watcher error for %s: %v", path, err)
			return
		}

		cfg, err := Load(path)
		if err != nil {
			logrus.Errorf("Failed to reload config %s: %v", path, err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logrus.Errorf("Ignoring invalid config change in %s: %v", path, err)
			return
		}

		logrus.Infof("Reloaded configuration from %s", path)
		onChange(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("watching config file: %w", err)
	}
	return f.Unwatch, nil
}
