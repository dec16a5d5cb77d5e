package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module has been halted by an operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused, naming the module, when p reports it paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PauseSet is an in-memory PauseView safe for concurrent use.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]struct{}
}

// NewPauseSet returns a set with the given modules already paused.
func NewPauseSet(modules ...string) *PauseSet {
	p := &PauseSet{paused: make(map[string]struct{})}
	for _, module := range modules {
		p.Pause(module)
	}
	return p
}

func moduleKey(module string) string { return strings.ToLower(strings.TrimSpace(module)) }

// Pause halts module.
func (p *PauseSet) Pause(module string) {
	key := moduleKey(module)
	if key == "" {
		return
	}
	p.mu.Lock()
	if p.paused == nil {
		p.paused = make(map[string]struct{})
	}
	p.paused[key] = struct{}{}
	p.mu.Unlock()
}

// Resume lifts a pause on module.
func (p *PauseSet) Resume(module string) {
	p.mu.Lock()
	delete(p.paused, moduleKey(module))
	p.mu.Unlock()
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.paused[moduleKey(module)]
	return ok
}

// Paused lists the paused modules in sorted order.
func (p *PauseSet) Paused() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.paused))
	for module := range p.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}
