// Package chainstore хранит определения цепочек.
//
// Источники: YAML файл, SQLite база, объект в S3 и inline-секция
// config.yaml. Reload загружает цепочки из источника, проверяет их и
// атомарно подменяет снимок в chain.Router.
package chainstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// ErrNotFound — источник или цепочка отсутствуют.
var ErrNotFound = errors.New("chains not found")

// ErrReadOnly возвращается Save для источников без записи.
var ErrReadOnly = errors.New("chain store is read-only")

// Store — источник определений цепочек.
type Store interface {
	// Load возвращает нормализованные цепочки.
	Load(ctx context.Context) ([]*chain.Config, error)

	// Save заменяет весь набор цепочек.
	Save(ctx context.Context, chains []*chain.Config) error
}

// Open создаёт Store по секции chains конфигурации.
func Open(cfg *config.AppConfig) (Store, error) {
	switch cfg.Chains.Source {
	case "", "inline":
		return NewInlineStore(cfg.Chains.Inline), nil
	case "file":
		return NewFileStore(cfg.Chains.Path), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Chains.Path)
	case "s3":
		return NewS3Store(cfg.S3, cfg.Chains.Path)
	default:
		return nil, fmt.Errorf("unsupported chains source %q", cfg.Chains.Source)
	}
}

// Reload загружает цепочки и подменяет снимок роутера.
//
// ErrNotFound трактуется как пустой набор (остаётся встроенная default).
// При ошибке проверки снимок не меняется. registry может быть nil,
// тогда существование узлов не проверяется.
func Reload(ctx context.Context, store Store, router *chain.Router, registry chain.NodeRegistry) ([]*chain.Config, error) {
	chains, err := store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		utils.Warn("Chain source is empty, using built-in default")
		chains, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}

	if err := chain.Validate(chains, registry); err != nil {
		return nil, fmt.Errorf("validate chains: %w", err)
	}
	if err := router.Load(chains); err != nil {
		return nil, fmt.Errorf("apply chains: %w", err)
	}

	utils.Info("Chains reloaded", "count", len(chains))
	return router.Chains(), nil
}
