package confloader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SETTREE_"

// envSectionSep separates sections in environment variable names.
const envSectionSep = "__"

// Loader layers configuration sources over a struct holding the defaults.
// From lowest to highest priority: the config file, the environment and
// the overrides given to Override.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file. An empty path skips the
// file layer.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader creates a configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges the config file and the environment into target. Fields no
// source sets keep their value.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		parser, err := ParserFor(l.filePath)
		if err != nil {
			return err
		}
		if err := l.k.Load(file.Provider(l.filePath), parser); err != nil {
			return fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	return l.unmarshal(target)
}

// Override merges values keyed by dotted path ("storage.backend") above
// every other source and unmarshals the result into target.
func (l *Loader) Override(values map[string]any, target any) error {
	if len(values) == 0 {
		return nil
	}
	if err := l.k.Load(mapProvider(values), nil); err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	return l.unmarshal(target)
}

func (l *Loader) unmarshal(target any) error {
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// envKey maps an environment variable to its config key. A double
// underscore separates sections, a single one stays part of the key:
// SETTREE_STORAGE__DATA_DIR sets storage.data_dir. SETTREE_CONFIG names
// the config file and maps to no key.
func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	if !strings.Contains(s, envSectionSep) {
		return ""
	}
	return strings.ReplaceAll(s, envSectionSep, ".")
}

// ParserFor picks the koanf parser matching the extension of path.
func ParserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("confloader: unsupported file type %q", filepath.Ext(path))
	}
}
