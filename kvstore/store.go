// Package kvstore provides the durable, cross-subdomain key/value store the
// wallet session protocol persists its state through.
//
// The underlying primitive is a shared string namespace with a hard per-write
// size ceiling and a small aggregate quota, so the store encodes key names,
// splits oversized values into numbered chunks behind a count header, and
// prunes ancillary entries when the footprint approaches the quota.
//
// Every operation is best-effort: primitive failures surface as absence or
// no-ops, never as errors, so storage flakiness cannot corrupt the session
// state machine built on top.
package kvstore

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Store is a logical key/value view over a Primitive, scoped to one domain.
type Store struct {
	prim      Primitive
	scope     string
	logger    *slog.Logger
	chunkSize int
	budget    int
	ancillary []string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed primitive failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChunkSize overrides the per-chunk value size. Tests use small sizes to
// exercise chunking without multi-kilobyte fixtures.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 && n <= MaxValueLen {
			s.chunkSize = n
		}
	}
}

// WithBudget overrides the aggregate size at which pruning starts.
func WithBudget(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.budget = n
		}
	}
}

// WithAncillary sets the logical-key substrings identifying entries that may
// be pruned when the store approaches its quota. Protocol history and message
// journals are safe to drop; sessions and pairings are not.
func WithAncillary(substrings ...string) Option {
	return func(s *Store) {
		s.ancillary = substrings
	}
}

// New creates a Store over prim for the scope derived from host.
func New(prim Primitive, host string, opts ...Option) *Store {
	s := &Store{
		prim:      prim,
		scope:     ScopeForHost(host),
		logger:    slog.Default(),
		chunkSize: MaxValueLen,
		budget:    SoftBudget,
		ancillary: []string{"history", "messages", "expirer"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scope returns the storage scope this store reads and writes under.
func (s *Store) Scope() string {
	return s.scope
}

// Get returns the value for key. A chunked value is reassembled from its
// numbered chunks; if the chunk-count header exists but any chunk is missing
// the entry is reported absent rather than returned truncated.
func (s *Store) Get(key string) (string, bool) {
	if v, ok := s.prim.Get(s.scope, encodeKey(key)); ok {
		return v, true
	}

	header, ok := s.prim.Get(s.scope, chunkHeaderName(key))
	if !ok {
		return "", false
	}
	count, err := strconv.Atoi(header)
	if err != nil || count <= 0 {
		return "", false
	}

	var b strings.Builder
	for i := 0; i < count; i++ {
		chunk, ok := s.prim.Get(s.scope, chunkName(key, i))
		if !ok {
			// Fail closed: a dangling header with missing chunks must read
			// as absent, never as a partial value.
			return "", false
		}
		b.WriteString(chunk)
	}
	return b.String(), true
}

// Set stores value under key, replacing any existing entry. The old entry and
// all of its chunks are deleted first so a shrinking value cannot leave
// orphaned fragments behind. Failures are logged and swallowed.
func (s *Store) Set(key, value string) {
	s.Remove(key)

	if len(value) <= s.chunkSize {
		if err := s.prim.Set(s.scope, encodeKey(key), value); err != nil {
			s.logger.Debug("kvstore: write dropped", "key", key, "err", err)
		}
		s.pruneIfNeeded(key)
		return
	}

	count := (len(value) + s.chunkSize - 1) / s.chunkSize
	if err := s.prim.Set(s.scope, chunkHeaderName(key), strconv.Itoa(count)); err != nil {
		s.logger.Debug("kvstore: chunk header write dropped", "key", key, "err", err)
		return
	}
	for i := 0; i < count; i++ {
		start := i * s.chunkSize
		end := start + s.chunkSize
		if end > len(value) {
			end = len(value)
		}
		if err := s.prim.Set(s.scope, chunkName(key, i), value[start:end]); err != nil {
			// Partial chunk sets are worse than absence; roll back the lot.
			s.logger.Debug("kvstore: chunk write dropped", "key", key, "chunk", i, "err", err)
			s.Remove(key)
			return
		}
	}
	s.pruneIfNeeded(key)
}

// Remove deletes the single-entry form and, if present, the chunk header plus
// every numbered chunk for key.
func (s *Store) Remove(key string) {
	s.prim.Delete(s.scope, encodeKey(key))

	header, ok := s.prim.Get(s.scope, chunkHeaderName(key))
	if !ok {
		return
	}
	if count, err := strconv.Atoi(header); err == nil {
		for i := 0; i < count; i++ {
			s.prim.Delete(s.scope, chunkName(key, i))
		}
	}
	s.prim.Delete(s.scope, chunkHeaderName(key))
}

// Keys enumerates the logical keys stored under this store's naming
// convention, deduplicated and sorted.
func (s *Store) Keys() []string {
	seen := make(map[string]struct{})
	for _, name := range s.prim.Names(s.scope) {
		if key, _, ok := parseName(name); ok {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns every logical key with its reassembled value.
func (s *Store) Entries() map[string]string {
	entries := make(map[string]string)
	for _, key := range s.Keys() {
		if v, ok := s.Get(key); ok {
			entries[key] = v
		}
	}
	return entries
}

// pruneIfNeeded drops ancillary entries, oldest naming first, until the
// aggregate footprint is back under budget. The entry just written is never
// pruned; the write that triggered pruning must survive it.
func (s *Store) pruneIfNeeded(justWritten string) {
	if s.prim.Size(s.scope) <= s.budget {
		return
	}

	for _, key := range s.Keys() {
		if key == justWritten || !s.isAncillary(key) {
			continue
		}
		s.logger.Debug("kvstore: pruning ancillary entry", "key", key)
		s.Remove(key)
		if s.prim.Size(s.scope) <= s.budget {
			return
		}
	}
}

func (s *Store) isAncillary(key string) bool {
	for _, sub := range s.ancillary {
		if strings.Contains(key, sub) {
			return true
		}
	}
	return false
}
