package kvstore

import (
	"errors"
	"sync"
)

// Storage primitive limits. The per-write ceiling applies to a single encoded
// value; the hard ceiling applies to the aggregate of all names and values
// stored under one scope. Both are properties of the primitive contract and
// hold for every backend.
const (
	// MaxValueLen is the maximum encoded value length accepted by a single
	// primitive write.
	MaxValueLen = 3000

	// HardLimit is the aggregate ceiling (names + values) per scope. Writes
	// that would cross it are rejected by the primitive.
	HardLimit = 8192

	// SoftBudget is the aggregate size at which the store starts pruning
	// ancillary entries to stay clear of HardLimit.
	SoftBudget = 7600
)

var (
	// ErrValueTooLarge is returned by a primitive when a single write exceeds
	// MaxValueLen.
	ErrValueTooLarge = errors.New("kvstore: value exceeds per-write ceiling")

	// ErrQuotaExceeded is returned by a primitive when a write would push the
	// scope's aggregate size past HardLimit.
	ErrQuotaExceeded = errors.New("kvstore: aggregate quota exceeded")
)

// Primitive is the synchronous string key/value layer the store is built on.
// It is shared across every consumer of the same scope, so implementations
// must tolerate names they did not write.
//
// Get, Delete and Names are best-effort: backend failures surface as absence,
// never as errors. Set reports ErrValueTooLarge / ErrQuotaExceeded so the
// store can chunk and prune, and may report backend write failures.
type Primitive interface {
	Get(scope, name string) (string, bool)
	Set(scope, name, value string) error
	Delete(scope, name string)
	Names(scope string) []string

	// Size returns the aggregate stored size (names + values) for a scope.
	Size(scope string) int
}

// MemoryPrimitive is an in-process Primitive. It backs tests and short-lived
// tooling; durable deployments use the SQLite primitive.
type MemoryPrimitive struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

// NewMemoryPrimitive creates an empty in-memory primitive.
func NewMemoryPrimitive() *MemoryPrimitive {
	return &MemoryPrimitive{scopes: make(map[string]map[string]string)}
}

func (p *MemoryPrimitive) Get(scope, name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.scopes[scope][name]
	return v, ok
}

func (p *MemoryPrimitive) Set(scope, name, value string) error {
	if len(value) > MaxValueLen {
		return ErrValueTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.scopes[scope]
	if entries == nil {
		entries = make(map[string]string)
		p.scopes[scope] = entries
	}

	next := p.sizeLocked(scope) + len(name) + len(value)
	if prev, ok := entries[name]; ok {
		next -= len(name) + len(prev)
	}
	if next > HardLimit {
		return ErrQuotaExceeded
	}

	entries[name] = value
	return nil
}

func (p *MemoryPrimitive) Delete(scope, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.scopes[scope], name)
}

func (p *MemoryPrimitive) Names(scope string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.scopes[scope]))
	for name := range p.scopes[scope] {
		names = append(names, name)
	}
	return names
}

func (p *MemoryPrimitive) Size(scope string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.sizeLocked(scope)
}

func (p *MemoryPrimitive) sizeLocked(scope string) int {
	total := 0
	for name, value := range p.scopes[scope] {
		total += len(name) + len(value)
	}
	return total
}

var _ Primitive = (*MemoryPrimitive)(nil)
