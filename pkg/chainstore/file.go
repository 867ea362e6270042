package chainstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ilkoid/poncho-relay/pkg/chain"
)

// FileStore — цепочки в YAML файле.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore создаёт FileStore.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path возвращает путь к файлу.
func (s *FileStore) Path() string {
	return s.path
}

// Load читает и разбирает файл.
func (s *FileStore) Load(ctx context.Context) ([]*chain.Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file: %w", err)
	}
	return chain.ParseChainsYAML(data)
}

// Save записывает цепочки через временный файл и rename.
func (s *FileStore) Save(ctx context.Context, chains []*chain.Config) error {
	data, err := chain.MarshalChainsYAML(chains)
	if err != nil {
		return fmt.Errorf("failed to encode chains: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chains dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".chains-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write chains: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write chains: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// InlineStore — цепочки из секции chains.inline конфигурации.
type InlineStore struct {
	nodes []yaml.Node
}

var _ Store = (*InlineStore)(nil)

// NewInlineStore создаёт InlineStore.
func NewInlineStore(nodes []yaml.Node) *InlineStore {
	return &InlineStore{nodes: nodes}
}

// Load декодирует inline определения.
func (s *InlineStore) Load(ctx context.Context) ([]*chain.Config, error) {
	return chain.DecodeChains(s.nodes)
}

// Save не поддерживается.
func (s *InlineStore) Save(ctx context.Context, chains []*chain.Config) error {
	return ErrReadOnly
}
