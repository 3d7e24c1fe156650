// Package registry implements the process-global provider registry of
// spec §4.3: a map from (port kind, provider name) to a factory, populated
// once at startup and consulted only during session construction, never on
// the hot path.
package registry

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind identifies which of the five ports a provider implements.
type Kind string

const (
	KindSTT    Kind = "stt"
	KindLLM    Kind = "llm"
	KindTTS    Kind = "tts"
	KindTool   Kind = "tool"
	KindConfig Kind = "config"
)

// ProviderConfig is the raw, provider-specific config block from the YAML
// registry file (e.g. API keys, base URLs, model names).
type ProviderConfig map[string]any

// Factory constructs a port instance from its raw config. Implementations
// live under internal/providers/*; each vendor package registers one or
// more factories via Register during process init.
type Factory func(cfg ProviderConfig) (any, error)

// UnknownProviderError is returned by Create when no factory is registered
// for (kind, name).
type UnknownProviderError struct {
	Kind Kind
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("registry: unknown provider %q for kind %q", e.Name, e.Kind)
}

// Registry is a read-only-after-startup map from (kind, name) to factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]map[string]Factory
	configs   map[Kind]map[string]ProviderConfig
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[Kind]map[string]Factory),
		configs:   make(map[Kind]map[string]ProviderConfig),
	}
}

// Register adds a factory for (kind, name). Called during process init by
// each provider package; never called again once the server starts serving.
func (r *Registry) Register(kind Kind, name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories[kind] == nil {
		r.factories[kind] = make(map[string]Factory)
	}
	r.factories[kind][name] = f
}

// Create returns a port instance for (kind, name) from its factory. The
// registry itself never caches instances; whether a call gets a fresh
// adapter depends on the factory: whisper, mcp and local return one
// instance built at Register time, the others build a new one per call.
func (r *Registry) Create(kind Kind, name string, override ProviderConfig) (any, error) {
	r.mu.RLock()
	factories, ok := r.factories[kind]
	if !ok {
		r.mu.RUnlock()
		return nil, &UnknownProviderError{Kind: kind, Name: name}
	}
	f, ok := factories[name]
	cfg := r.configs[kind][name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownProviderError{Kind: kind, Name: name}
	}

	merged := make(ProviderConfig, len(cfg)+len(override))
	for k, v := range cfg {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return f(merged)
}

// SetConfig merges cfg into (kind, name)'s static configuration, the same
// slot LoadStaticConfig populates from YAML. Callers use this to inject
// process-env-sourced values (API keys) that operators would rather not
// commit to the registry YAML file.
func (r *Registry) SetConfig(kind Kind, name string, cfg ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configs[kind] == nil {
		r.configs[kind] = make(map[string]ProviderConfig)
	}
	existing := r.configs[kind][name]
	merged := make(ProviderConfig, len(existing)+len(cfg))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range cfg {
		merged[k] = v
	}
	r.configs[kind][name] = merged
}

// Has reports whether a factory is registered for (kind, name).
func (r *Registry) Has(kind Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind][name]
	return ok
}

// staticConfig is the on-disk shape of the YAML registry config file:
// per-kind, per-provider static settings (API keys, endpoints, model
// defaults) merged under each Create call's override.
type staticConfig struct {
	Providers map[string]map[string]ProviderConfig `yaml:"providers"`
}

// LoadStaticConfig reads the registry's static provider configuration from
// YAML (grounded on glyphoxa's config.LoadFromReader decode-then-validate
// pattern) and stores it for Create to merge with per-call overrides.
func (r *Registry) LoadStaticConfig(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // static config is optional; providers may need none
		}
		return fmt.Errorf("registry: open %q: %w", path, err)
	}
	defer f.Close()
	return r.LoadStaticConfigFrom(f)
}

// LoadStaticConfigFrom decodes YAML from r, useful in tests.
func (r *Registry) LoadStaticConfigFrom(rd io.Reader) error {
	var sc staticConfig
	dec := yaml.NewDecoder(rd)
	if err := dec.Decode(&sc); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("registry: decode yaml: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for kindStr, byName := range sc.Providers {
		kind := Kind(kindStr)
		if r.configs[kind] == nil {
			r.configs[kind] = make(map[string]ProviderConfig)
		}
		for name, cfg := range byName {
			r.configs[kind][name] = cfg
		}
	}
	return nil
}
