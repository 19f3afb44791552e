package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// FileStore escribe los cambios aceptados de strategy y risk en el archivo YAML
// con el que arrancó el bot. El resto de secciones conserva los valores del
// archivo, no los que quedan tras los overrides de entorno.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore crea un store ligado a path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// SaveStrategy reemplaza las secciones strategy y risk de forma atómica.
func (s *FileStore) SaveStrategy(st domain.StrategyConfig, rk domain.RiskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := readFile(s.path)
	if err != nil {
		return fmt.Errorf("config.SaveStrategy: %w", err)
	}
	cfg.Strategy = FromDomainStrategy(st)
	cfg.Risk = FromDomainRisk(rk)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config.SaveStrategy: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".galebot-*.yaml")
	if err != nil {
		return fmt.Errorf("config.SaveStrategy: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config.SaveStrategy: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config.SaveStrategy: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("config.SaveStrategy: rename: %w", err)
	}
	return nil
}
