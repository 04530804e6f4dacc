package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CountryEntry defines a playable faction. Owner IDs are assigned 1..N in
// file order; 0 stays reserved for unowned.
type CountryEntry struct {
	Tag   string   `yaml:"tag"`
	Name  string   `yaml:"name"`
	Color [3]uint8 `yaml:"color"`
	Owner uint16   `yaml:"-"`
}

// CountryTable maps country tags to owner IDs and back.
type CountryTable struct {
	entries []CountryEntry
	byTag   map[string]*CountryEntry
}

// LoadCountryTable loads countries.yaml.
func LoadCountryTable(path string) (*CountryTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country list: %w", err)
	}
	return ParseCountryTable(raw)
}

func ParseCountryTable(raw []byte) (*CountryTable, error) {
	var entries []CountryEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse country list: %w", err)
	}
	if len(entries) >= 1<<16 {
		return nil, fmt.Errorf("country list: %d countries exceed owner id range", len(entries))
	}
	t := &CountryTable{
		entries: entries,
		byTag:   make(map[string]*CountryEntry, len(entries)),
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Tag == "" {
			return nil, fmt.Errorf("country #%d: missing tag", i)
		}
		if _, dup := t.byTag[e.Tag]; dup {
			return nil, fmt.Errorf("country %q: duplicate tag", e.Tag)
		}
		e.Owner = uint16(i + 1)
		t.byTag[e.Tag] = e
	}
	return t, nil
}

// Get returns the country with tag, or nil.
func (t *CountryTable) Get(tag string) *CountryEntry {
	return t.byTag[tag]
}

// ByOwner returns the country holding owner ID id, or nil.
func (t *CountryTable) ByOwner(id uint16) *CountryEntry {
	if id == 0 || int(id) > len(t.entries) {
		return nil
	}
	return &t.entries[id-1]
}

// Entries returns every country in owner ID order.
func (t *CountryTable) Entries() []CountryEntry {
	return t.entries
}

func (t *CountryTable) Count() int {
	return len(t.entries)
}
