package main

import (
	"fmt"

	"github.com/ilkoid/poncho-relay/pkg/app"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// loadConfig находит config.yaml и применяет --preset и --log-level.
func loadConfig() (*config.AppConfig, string, error) {
	finder := &app.DefaultConfigPathFinder{ConfigFlag: configPath}
	cfg, path, err := app.InitializeConfig(finder)
	if err != nil {
		return nil, "", err
	}
	if presetName != "" {
		preset, err := app.GetPreset(presetName)
		if err != nil {
			return nil, "", err
		}
		cfg = preset.Apply(cfg)
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	return cfg, path, nil
}

// initLogger включает логгер по секции app.
// В консольном режиме лог пишется в файл, чтобы не мешать диалогу.
func initLogger(cfg *config.AppConfig, forceFile bool) error {
	if err := utils.InitLogger(utils.LoggerOptions{
		Level: cfg.App.LogLevel,
		File:  cfg.App.LogFile || forceFile,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}
