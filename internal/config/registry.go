package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/novahealth/nova/pkg/provider/llm"
	"github.com/novahealth/nova/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It decouples
// the config layer from concrete SDK packages: main registers the factories
// it links, and config-driven wiring looks them up by name. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	judge map[JudgeBackend]func(JudgeConfig) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		judge: make(map[JudgeBackend]func(JudgeConfig) (llm.Provider, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterJudge registers a judge backend factory.
func (r *Registry) RegisterJudge(backend JudgeBackend, factory func(JudgeConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.judge[backend] = factory
}

// CreateSTT instantiates the STT provider registered under name.
// Returns [ErrProviderNotRegistered] if no factory has been registered.
func (r *Registry) CreateSTT(name string, entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, name)
	}
	return factory(entry)
}

// CreateJudge instantiates the judge backend selected by cfg.Backend.
func (r *Registry) CreateJudge(cfg JudgeConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.judge[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: judge/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// STTNames returns the registered STT provider names.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for name := range r.stt {
		names = append(names, name)
	}
	return names
}
