package mapping

import (
	"sort"
	"strings"
)

// Set is an immutable collection of mappings keyed by destination name
type Set struct {
	paths []*Path // sorted by name
}

// NewFieldSet compiles field mappings. exprs maps a config key suffix to its
// JSONPath expression; hints maps the same suffix to an optional type keyword.
// A suffix missing from hints gets TypeNone.
func NewFieldSet(exprs, hints map[string]string) (*Set, error) {
	byName := make(map[string]*Path, len(exprs))

	for _, key := range sortedKeys(exprs) {
		name := strings.ToLower(key)

		hint := TypeNone
		if raw, ok := hints[key]; ok {
			h, err := ParseTypeHint(raw)
			if err != nil {
				return nil, &UnknownTypeError{Name: key, Hint: raw}
			}
			hint = h
		}

		p, err := Compile(name, exprs[key], hint)
		if err != nil {
			return nil, err
		}
		byName[name] = p
	}

	return newSet(byName), nil
}

// NewTagSet compiles tag mappings. Tags always infer their type.
func NewTagSet(exprs map[string]string) (*Set, error) {
	byName := make(map[string]*Path, len(exprs))

	for _, key := range sortedKeys(exprs) {
		name := strings.ToLower(key)
		p, err := Compile(name, exprs[key], TypeNone)
		if err != nil {
			return nil, err
		}
		byName[name] = p
	}

	return newSet(byName), nil
}

func newSet(byName map[string]*Path) *Set {
	s := &Set{paths: make([]*Path, 0, len(byName))}
	for _, p := range byName {
		s.paths = append(s.paths, p)
	}
	sort.Slice(s.paths, func(i, j int) bool {
		return s.paths[i].name < s.paths[j].name
	})
	return s
}

// Paths returns the mappings ordered by destination name.
// The returned slice must not be modified.
func (s *Set) Paths() []*Path {
	if s == nil {
		return nil
	}
	return s.paths
}

// Len returns the number of mappings in the set
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

// Lookup returns the mapping with the given destination name
func (s *Set) Lookup(name string) (*Path, bool) {
	for _, p := range s.Paths() {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
