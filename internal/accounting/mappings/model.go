package mappings

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Modules with settlement mappings.
const (
	ModuleAP   = "AP"
	ModuleAR   = "AR"
	ModuleCash = "CASH"

	KeyControl = "control"
	KeyDefault = "default"
)

// AccountMapping is a tenant override linking an integration key to an account code.
type AccountMapping struct {
	TenantID    int64
	Module      string
	Key         string
	AccountCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

//go:embed default_map.yaml
var defaultMap []byte

// Map holds module → key → account code defaults.
type Map struct {
	Modules map[string]map[string]string `yaml:"modules"`
}

// Default returns the built-in map.
func Default() (Map, error) {
	return parse(defaultMap)
}

// MustDefault is Default for callers that cannot recover from a broken embedded map.
func MustDefault() Map {
	m, err := Default()
	if err != nil {
		panic(err)
	}
	return m
}

// Load reads a YAML map and layers it over the built-in defaults.
func Load(r io.Reader) (Map, error) {
	base, err := Default()
	if err != nil {
		return Map{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Map{}, fmt.Errorf("mappings: read: %w", err)
	}
	extra, err := parse(data)
	if err != nil {
		return Map{}, err
	}
	for module, keys := range extra.Modules {
		if base.Modules[module] == nil {
			base.Modules[module] = map[string]string{}
		}
		for k, code := range keys {
			base.Modules[module][k] = code
		}
	}
	return base, nil
}

func parse(data []byte) (Map, error) {
	var raw Map
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Map{}, fmt.Errorf("mappings: parse: %w", err)
	}
	m := Map{Modules: map[string]map[string]string{}}
	for module, keys := range raw.Modules {
		norm := map[string]string{}
		for k, code := range keys {
			code = strings.TrimSpace(code)
			if code == "" {
				return Map{}, fmt.Errorf("mappings: %s.%s has no account code", module, k)
			}
			norm[normalizeKey(k)] = code
		}
		m.Modules[strings.ToUpper(module)] = norm
	}
	return m, nil
}

// Code returns the account code for module and key, falling back to the module default.
func (m Map) Code(module, key string) (string, bool) {
	keys := m.Modules[strings.ToUpper(module)]
	if keys == nil {
		return "", false
	}
	if code, ok := keys[normalizeKey(key)]; ok {
		return code, true
	}
	code, ok := keys[KeyDefault]
	return code, ok
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
