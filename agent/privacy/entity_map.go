package privacy

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Category string

const (
	CategoryPerson     Category = "PERSON"
	CategoryEmail      Category = "EMAIL"
	CategoryPhone      Category = "PHONE"
	CategorySSN        Category = "SSN"
	CategoryCreditCard Category = "CREDIT_CARD"
	CategoryIPAddress  Category = "IP_ADDRESS"
)

var ErrPlaceholderConflict = errors.New("placeholder already maps to a different value")

var placeholderPattern = regexp.MustCompile(`<([A-Z][A-Z_]*)_(\d+)>`)

// Entity is one assigned placeholder. Value keeps the casing first seen.
type Entity struct {
	Placeholder string   `json:"placeholder"`
	Category    Category `json:"category"`
	Index       int      `json:"index"`
	Value       string   `json:"value"`
}

// EntityMap is the cumulative per-session placeholder table. It only grows.
// It is not safe for concurrent use; callers serialise access per session.
type EntityMap struct {
	Entities []Entity         `json:"entities,omitempty"`
	Counters map[Category]int `json:"counters,omitempty"`

	byKey         map[string]int
	byPlaceholder map[string]int
}

func NewEntityMap() *EntityMap {
	return &EntityMap{Counters: make(map[Category]int, 6)}
}

func Placeholder(cat Category, index int) string {
	return "<" + string(cat) + "_" + strconv.Itoa(index) + ">"
}

// Len is the map version: the number of assigned placeholders.
func (m *EntityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entities)
}

// Assign returns the placeholder for value, allocating the next index of the
// category when the value has not been seen in this session.
func (m *EntityMap) Assign(cat Category, value string) string {
	m.ensureIndex()
	key := lookupKey(cat, value)
	if i, ok := m.byKey[key]; ok {
		return m.Entities[i].Placeholder
	}

	if m.Counters == nil {
		m.Counters = make(map[Category]int, 6)
	}
	next := m.Counters[cat] + 1
	ph := Placeholder(cat, next)
	for {
		if _, taken := m.byPlaceholder[ph]; !taken {
			break
		}
		next++
		ph = Placeholder(cat, next)
	}
	m.Counters[cat] = next

	m.Entities = append(m.Entities, Entity{
		Placeholder: ph,
		Category:    cat,
		Index:       next,
		Value:       value,
	})
	m.byKey[key] = len(m.Entities) - 1
	m.byPlaceholder[ph] = len(m.Entities) - 1
	return ph
}

// Lookup returns the original value of an assigned placeholder.
func (m *EntityMap) Lookup(placeholder string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.ensureIndex()
	i, ok := m.byPlaceholder[placeholder]
	if !ok {
		return "", false
	}
	return m.Entities[i].Value, true
}

// PlaceholderFor returns the placeholder already assigned to value, if any.
func (m *EntityMap) PlaceholderFor(cat Category, value string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.ensureIndex()
	i, ok := m.byKey[lookupKey(cat, value)]
	if !ok {
		return "", false
	}
	return m.Entities[i].Placeholder, true
}

// Validate checks that no placeholder maps to more than one value.
func (m *EntityMap) Validate() error {
	if m == nil {
		return nil
	}
	seen := make(map[string]string, len(m.Entities))
	for _, e := range m.Entities {
		if e.Placeholder != Placeholder(e.Category, e.Index) {
			return fmt.Errorf("%w: malformed placeholder %q", ErrPlaceholderConflict, e.Placeholder)
		}
		if prev, ok := seen[e.Placeholder]; ok && prev != e.Value {
			return fmt.Errorf("%w: %s", ErrPlaceholderConflict, e.Placeholder)
		}
		seen[e.Placeholder] = e.Value
	}
	return nil
}

// Clone returns a deep copy.
func (m *EntityMap) Clone() *EntityMap {
	if m == nil {
		return NewEntityMap()
	}
	out := &EntityMap{
		Entities: append([]Entity(nil), m.Entities...),
		Counters: make(map[Category]int, len(m.Counters)),
	}
	for k, v := range m.Counters {
		out.Counters[k] = v
	}
	return out
}

// Mapping renders placeholder -> value for display.
func (m *EntityMap) Mapping() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for _, e := range m.Entities {
		out[e.Placeholder] = e.Value
	}
	return out
}

func (m *EntityMap) values() []Entity {
	if m == nil {
		return nil
	}
	return m.Entities
}

// ensureIndex rebuilds the lookup tables after decoding from JSON.
func (m *EntityMap) ensureIndex() {
	if m.byKey != nil && len(m.byPlaceholder) == len(m.Entities) {
		return
	}
	m.byKey = make(map[string]int, len(m.Entities))
	m.byPlaceholder = make(map[string]int, len(m.Entities))
	for i, e := range m.Entities {
		if _, ok := m.byKey[lookupKey(e.Category, e.Value)]; !ok {
			m.byKey[lookupKey(e.Category, e.Value)] = i
		}
		m.byPlaceholder[e.Placeholder] = i
	}
}

func lookupKey(cat Category, value string) string {
	return string(cat) + "\x00" + strings.ToLower(strings.TrimSpace(value))
}
