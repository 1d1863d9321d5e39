// Package mapping holds the variant to canonical lookup table. A Store is
// a read-only snapshot: it is produced by Build or Load and never patched.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
)

// Store is an immutable variant to canonical table with O(1) lookups.
type Store struct {
	entries    map[string]common.AliasMapping
	canonicals map[string]common.AliasMapping
	degraded   bool
}

// ErrChain is returned when an entry points at another entry's variant.
var ErrChain = errors.New("alias chain")

// NewStore validates entries and builds a Store. Entries must be single
// hop: no canonical may itself be a variant mapped elsewhere.
func NewStore(entries []common.AliasMapping) (*Store, error) {
	s := &Store{
		entries:    make(map[string]common.AliasMapping, len(entries)),
		canonicals: make(map[string]common.AliasMapping),
	}
	for _, e := range entries {
		key := normalize.Key(e.Variant)
		if key == "" || normalize.Key(e.Canonical) == "" {
			return nil, fmt.Errorf("%w: empty variant or canonical in mapping %+v", common.ErrMalformedInput, e)
		}
		if prev, ok := s.entries[key]; ok && prev.Canonical != e.Canonical {
			return nil, fmt.Errorf("conflicting mappings for %q: %q and %q", e.Variant, prev.Canonical, e.Canonical)
		}
		s.entries[key] = e
	}
	for key, e := range s.entries {
		ckey := normalize.Key(e.Canonical)
		if target, ok := s.entries[ckey]; ok && ckey != key && normalize.Key(target.Canonical) != ckey {
			return nil, fmt.Errorf("%w: %q -> %q -> %q", ErrChain, e.Variant, e.Canonical, target.Canonical)
		}
		if existing, ok := s.canonicals[ckey]; !ok || preferCanonical(e, existing) {
			s.canonicals[ckey] = common.AliasMapping{
				Variant:    e.Canonical,
				Canonical:  e.Canonical,
				Provenance: e.Provenance,
				EntityType: e.EntityType,
				Timestamp:  e.Timestamp,
			}
		}
	}
	return s, nil
}

// preferCanonical picks which entry defines the metadata of a canonical
// name when several variants point at it: curated entries win, then entries
// carrying a type, then the lexically smallest variant.
func preferCanonical(candidate, existing common.AliasMapping) bool {
	cc := candidate.Provenance == common.ProvenanceCurated
	ec := existing.Provenance == common.ProvenanceCurated
	if cc != ec {
		return cc
	}
	if (candidate.EntityType != "") != (existing.EntityType != "") {
		return candidate.EntityType != ""
	}
	return candidate.Variant < existing.Variant
}

// Empty returns a store with no entries.
func Empty() *Store {
	s, _ := NewStore(nil)
	return s
}

// PassThrough returns an empty store flagged as degraded: every name
// resolves to itself.
func PassThrough() *Store {
	s := Empty()
	s.degraded = true
	return s
}

// Lookup returns the mapping for name. A variant hit returns its entry; a
// name that is itself a canonical target returns an identity mapping
// carrying the canonical's preferred spelling.
func (s *Store) Lookup(name string) (common.AliasMapping, bool) {
	if s == nil {
		return common.AliasMapping{}, false
	}
	key := normalize.Key(name)
	if e, ok := s.entries[key]; ok {
		return e, true
	}
	if c, ok := s.canonicals[key]; ok {
		return c, true
	}
	return common.AliasMapping{}, false
}

// Known reports whether name is a variant or a canonical of the store.
func (s *Store) Known(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Len is the number of variant entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Degraded reports whether the store is a pass-through stand-in for a
// store that could not be loaded.
func (s *Store) Degraded() bool {
	return s == nil || s.degraded
}

// Entries returns all variant entries sorted by variant key.
func (s *Store) Entries() []common.AliasMapping {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]common.AliasMapping, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k])
	}
	return out
}

// Load reads a mapping artifact from path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMappingStoreUnavailable, err)
	}
	defer f.Close()

	entries, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMappingStoreUnavailable, err)
	}
	s, err := NewStore(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMappingStoreUnavailable, err)
	}
	return s, nil
}

// LoadOrPassThrough loads path and falls back to a degraded pass-through
// store when the file is missing or unreadable. It never fails.
func LoadOrPassThrough(path string) *Store {
	s, err := Load(path)
	if err != nil {
		logger.Warn("[Mapping] Store unavailable, resolving in pass-through mode", "path", path, "err", err)
		return PassThrough()
	}
	logger.Debug("[Mapping] Store loaded", "path", path, "entries", s.Len())
	return s
}
