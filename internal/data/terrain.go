package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TerrainEntry is one terrain type of the scenario catalog.
type TerrainEntry struct {
	Name  string   `yaml:"name"`
	Class uint16   `yaml:"class"`
	Color [3]uint8 `yaml:"color"`
	Water bool     `yaml:"water"`
}

// TerrainTable resolves terrain names to the class stored on entities.
type TerrainTable struct {
	entries []TerrainEntry
	byName  map[string]*TerrainEntry
	byClass map[uint16]*TerrainEntry
}

// LoadTerrainTable loads terrain.yaml.
func LoadTerrainTable(path string) (*TerrainTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terrain list: %w", err)
	}
	return ParseTerrainTable(raw)
}

func ParseTerrainTable(raw []byte) (*TerrainTable, error) {
	var entries []TerrainEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse terrain list: %w", err)
	}
	t := &TerrainTable{
		entries: entries,
		byName:  make(map[string]*TerrainEntry, len(entries)),
		byClass: make(map[uint16]*TerrainEntry, len(entries)),
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Name == "" {
			return nil, fmt.Errorf("terrain #%d: missing name", i)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("terrain %q: duplicate name", e.Name)
		}
		if _, dup := t.byClass[e.Class]; dup {
			return nil, fmt.Errorf("terrain %q: class %d already used", e.Name, e.Class)
		}
		t.byName[e.Name] = e
		t.byClass[e.Class] = e
	}
	return t, nil
}

// Get returns the terrain named name, or nil.
func (t *TerrainTable) Get(name string) *TerrainEntry {
	return t.byName[name]
}

// ByClass returns the terrain with the given class, or nil.
func (t *TerrainTable) ByClass(class uint16) *TerrainEntry {
	return t.byClass[class]
}

func (t *TerrainTable) Count() int {
	return len(t.entries)
}
