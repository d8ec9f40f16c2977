package forecast

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CategoryMap maps an entity name to a dense integer code.
//
// Codes are assigned once, from the training population, in sorted byte-wise
// order of the distinct names: the lexicographically smallest name gets 0.
// A map is never mutated after construction and may be shared between
// goroutines without synchronization.
type CategoryMap struct {
	entity string
	codes  map[string]int
	names  []string
}

// NewCategoryMap builds a map for entity from the names observed in training.
// Duplicates and empty names are ignored.
func NewCategoryMap(entity string, names []string) *CategoryMap {
	seen := make(map[string]struct{}, len(names))
	distinct := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		distinct = append(distinct, n)
	}
	sort.Strings(distinct)

	codes := make(map[string]int, len(distinct))
	for i, n := range distinct {
		codes[n] = i
	}
	return &CategoryMap{entity: entity, codes: codes, names: distinct}
}

// CategoryMapFromCodes restores a published map and checks that its codes are
// dense, unique and consistent with sorted-name order.
func CategoryMapFromCodes(entity string, codes map[string]int) (*CategoryMap, error) {
	rebuilt := NewCategoryMap(entity, keys(codes))
	if len(rebuilt.names) != len(codes) {
		return nil, fmt.Errorf("%s category map contains an empty name", entity)
	}
	for name, code := range codes {
		if rebuilt.codes[name] != code {
			return nil, fmt.Errorf("%s category map: code %d for %q breaks sorted dense order (want %d)",
				entity, code, name, rebuilt.codes[name])
		}
	}
	return rebuilt, nil
}

// Encode returns the training-time code for name
func (m *CategoryMap) Encode(name string) (int, error) {
	code, ok := m.codes[name]
	if !ok {
		return 0, UnknownCategory(m.entity, name)
	}
	return code, nil
}

// Entity returns the kind of entity this map encodes
func (m *CategoryMap) Entity() string {
	return m.entity
}

// Len returns the number of known names
func (m *CategoryMap) Len() int {
	return len(m.names)
}

// Names returns the known names in code order
func (m *CategoryMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Codes returns a copy of the name to code mapping
func (m *CategoryMap) Codes() map[string]int {
	out := make(map[string]int, len(m.codes))
	for k, v := range m.codes {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the map as a plain name to code object
func (m *CategoryMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.codes)
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
