package common

import (
	"errors"
	"sort"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switch is an in-memory PauseView operators can flip at runtime.
type Switch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewSwitch() *Switch {
	return &Switch{paused: make(map[string]bool)}
}

func (s *Switch) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Set engages or releases the pause for module.
func (s *Switch) Set(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[module] = true
		return
	}
	delete(s.paused, module)
}

// Paused lists the currently paused modules in sorted order.
func (s *Switch) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for module := range s.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
