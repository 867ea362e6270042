package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilkoid/poncho-relay/pkg/config"
)

// StandaloneConfigPathFinder реализует строгую стратегию поиска для
// бинарника, который распространяется вместе с config.yaml.
//
// Правила:
// 1. Если указан флаг --config — использует его
// 2. Ищет config.yaml в той же папке где находится бинарник
// 3. НЕ ищет в текущей директории или родительских
type StandaloneConfigPathFinder struct {
	// ConfigFlag - значение флага --config, если указан
	ConfigFlag string
}

// FindConfigPath находит путь к config.yaml или возвращает пустую строку.
func (f *StandaloneConfigPathFinder) FindConfigPath() string {
	if f.ConfigFlag != "" {
		return resolveAbsPath(f.ConfigFlag)
	}
	if execPath, err := os.Executable(); err == nil {
		cfgPath := filepath.Join(filepath.Dir(execPath), "config.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			return cfgPath
		}
	}
	return ""
}

// InitializeConfigStrict загружает конфигурацию со строгими проверками.
//
// В отличие от InitializeConfig падает, если:
//   - config.yaml не найден
//   - chains.source=file и файла цепочек нет (относительный путь
//     считается от директории config.yaml)
func InitializeConfigStrict(finder ConfigPathFinder) (*config.AppConfig, string, error) {
	cfgPath := finder.FindConfigPath()
	if cfgPath == "" {
		return nil, "", fmt.Errorf("config.yaml not found\n\n" +
			"Standalone mode requires config.yaml in the same directory as the binary.\n" +
			"Usage: place config.yaml next to the binary or use --config flag.")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", cfgPath, err)
	}

	if cfg.Chains.Source == "file" || cfg.Chains.Source == "sqlite" {
		if !filepath.IsAbs(cfg.Chains.Path) {
			cfg.Chains.Path = filepath.Join(filepath.Dir(cfgPath), cfg.Chains.Path)
		}
	}
	if cfg.Chains.Source == "file" {
		if _, err := os.Stat(cfg.Chains.Path); err != nil {
			return nil, "", fmt.Errorf("chains file not found: %s", cfg.Chains.Path)
		}
	}
	return cfg, cfgPath, nil
}
