package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/dittosmb/internal/logger"
)

// Watch loads the file at configPath and calls onChange, on the watcher
// goroutine, with every valid revision written to it until ctx is done.
// Revisions that fail to decode or validate are logged and skipped.
//
// Which settings apply live is up to the caller. A session keeps the
// engine section it was created with.
func Watch(ctx context.Context, configPath string, onChange func(*Config)) (*Config, error) {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}

	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "file", e.Name, logger.KeyError, err)
			return
		}
		logger.Info("Configuration reloaded", "file", e.Name)
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}
