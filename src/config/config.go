package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultDir is the configuration directory used when --config is not given.
const DefaultDir = "config"

// EnvPrefix prefixes every environment variable read by the resolver.
const EnvPrefix = "WEBFREIGHT"

// fileExtensions are probed in order when looking up a layer file.
var fileExtensions = []string{".yml", ".yaml", ".toml"}

// LoadFile parses a YAML or TOML file (chosen by extension) into a map.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return values, nil
}

// LoadNamedLayer looks for <dir>/<name>.{yml,yaml,toml} and returns the first
// one found as a layer. Returns nil (no error) if none exist.
func LoadNamedLayer(dir, name string) (*MapLayer, error) {
	for _, ext := range fileExtensions {
		path := filepath.Join(dir, name+ext)
		values, err := LoadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return NewMapLayer(filepath.Base(path), values), nil
	}
	return nil, nil
}

// LoadDirLayers returns the file layers of a configuration directory:
// the environment file followed by the defaults file. Missing files are
// skipped.
func LoadDirLayers(dir, env string) ([]Layer, error) {
	var layers []Layer

	if env != "" && env != "default" {
		l, err := LoadNamedLayer(dir, env)
		if err != nil {
			return nil, fmt.Errorf("loading %s config: %w", env, err)
		}
		if l != nil {
			layers = append(layers, l)
		}
	}

	l, err := LoadNamedLayer(dir, "default")
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}
	if l != nil {
		layers = append(layers, l)
	}
	return layers, nil
}

// LoadSecrets reads the plaintext secrets file. A missing file yields an
// empty map.
func LoadSecrets(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	values, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("loading secrets: %w", err)
	}
	return values, nil
}

// PlaintextPath returns the decrypted sibling of an encrypted secrets file:
// "secrets.enc.yml" becomes "secrets.yml".
func PlaintextPath(encrypted string) string {
	dir, base := filepath.Split(encrypted)
	switch {
	case strings.Contains(base, ".enc."):
		base = strings.Replace(base, ".enc.", ".", 1)
	case strings.HasSuffix(base, ".enc"):
		base = strings.TrimSuffix(base, ".enc")
	default:
		ext := filepath.Ext(base)
		base = strings.TrimSuffix(base, ext) + ".plain" + ext
	}
	return filepath.Join(dir, base)
}
