package config

import (
	"errors"
	"fmt"
	"sync"
)

// Holder owns the process-wide configuration for a running daemon.
// Readers receive copies so a concurrent Update never mutates a value in use.
type Holder struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewHolder wraps cfg. path is where Update persists changes; an empty path
// keeps updates in memory only.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	if cfg != nil {
		h.cfg = *cfg
	} else {
		h.cfg = Default()
	}
	return h
}

// Current returns a snapshot of the active configuration.
func (h *Holder) Current() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cfg := h.cfg
	return &cfg
}

// Path returns the file backing this holder.
func (h *Holder) Path() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.path
}

// Update normalizes and validates next, saves it, then swaps it in. An
// invalid value leaves both the file and the in-memory state untouched.
func (h *Holder) Update(next Config) (*Config, error) {
	if err := next.normalize(); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.path != "" {
		if err := Save(h.path, &next); err != nil {
			return nil, err
		}
	}
	h.cfg = next
	cfg := next
	return &cfg, nil
}

// Reload re-reads the backing file and swaps in the result.
func (h *Holder) Reload() (*Config, error) {
	h.mu.RLock()
	path := h.path
	h.mu.RUnlock()
	if path == "" {
		return nil, errors.New("config holder has no backing file")
	}
	cfg, _, _, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}
	h.mu.Lock()
	h.cfg = *cfg
	h.mu.Unlock()
	return cfg, nil
}
