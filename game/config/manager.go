package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/wricardo/connectn/game/engine"
)

var (
	ErrVariantNotFound = errors.New("variant not found")
	ErrInvalidVariant  = errors.New("invalid variant")
	ErrNoConfigDir     = errors.New("no variant directory configured")
)

// DefaultVariantName is used when a session is created without a variant
const DefaultVariantName = "classic"

// Manager loads variant presets from a directory of JSON files and caches
// them. The classic variant is always available even without a directory.
type Manager struct {
	configDir      string
	defaultVariant engine.Variant
	variants       map[string]engine.Variant
	mu             sync.RWMutex
}

// NewManager creates a manager for configDir. An empty or missing directory
// leaves only the built-in classic variant.
func NewManager(configDir string) (*Manager, error) {
	if configDir != "" {
		info, err := os.Stat(configDir)
		switch {
		case os.IsNotExist(err):
			configDir = ""
		case err != nil:
			return nil, fmt.Errorf("failed to stat variant directory: %w", err)
		case !info.IsDir():
			return nil, fmt.Errorf("variant path is not a directory: %s", configDir)
		}
	}

	m := &Manager{
		configDir: configDir,
		variants:  make(map[string]engine.Variant),
	}
	if err := m.RefreshCache(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadVariant returns the variant called name
func (m *Manager) LoadVariant(name string) (engine.Variant, error) {
	name = strings.TrimSuffix(name, ".json")

	m.mu.RLock()
	v, ok := m.variants[name]
	m.mu.RUnlock()
	if !ok {
		return engine.Variant{}, fmt.Errorf("%w: %s", ErrVariantNotFound, name)
	}
	return v, nil
}

// ListVariants returns every known variant sorted by name
func (m *Manager) ListVariants() []engine.Variant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	variants := lo.Values(m.variants)
	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Name < variants[j].Name
	})
	return variants
}

// GetDefault returns the default variant
func (m *Manager) GetDefault() engine.Variant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultVariant
}

// SetDefault sets the default variant by name
func (m *Manager) SetDefault(name string) error {
	v, err := m.LoadVariant(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultVariant = v
	return nil
}

// RefreshCache rereads the directory. Invalid files are skipped. The
// current default is kept when it still exists.
func (m *Manager) RefreshCache() error {
	variants := map[string]engine.Variant{
		DefaultVariantName: engine.ClassicVariant(),
	}

	if m.configDir != "" {
		entries, err := os.ReadDir(m.configDir)
		if err != nil {
			return fmt.Errorf("failed to read variant directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			v, err := engine.LoadVariant(filepath.Join(m.configDir, entry.Name()))
			if err != nil {
				continue
			}
			variants[v.Name] = *v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.variants = variants
	if v, ok := variants[m.defaultVariant.Name]; ok {
		m.defaultVariant = v
	} else {
		m.defaultVariant = variants[DefaultVariantName]
	}
	return nil
}

// SaveVariant writes v to <dir>/<name>.json and caches it
func (m *Manager) SaveVariant(v engine.Variant) error {
	if m.configDir == "" {
		return ErrNoConfigDir
	}
	if err := engine.ValidateVariant(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVariant, err)
	}
	if filepath.Base(v.Name) != v.Name {
		return fmt.Errorf("%w: name %q is not a plain file name", ErrInvalidVariant, v.Name)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal variant: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.configDir, v.Name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write variant file: %w", err)
	}

	m.mu.Lock()
	m.variants[v.Name] = v
	m.mu.Unlock()
	return nil
}
