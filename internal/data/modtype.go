package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModifierTypeEntry names a modifier type slot.
type ModifierTypeEntry struct {
	Name string `yaml:"name"`
	ID   uint16 `yaml:"id"`
	Note string `yaml:"note"`
}

// ModifierTypeTable resolves modifier names used by scripts and tools.
type ModifierTypeTable struct {
	byName map[string]uint16
	names  map[uint16]string
}

// LoadModifierTypeTable loads modifier_types.yaml. limit is the exclusive
// upper bound on type IDs.
func LoadModifierTypeTable(path string, limit int) (*ModifierTypeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modifier types: %w", err)
	}
	return ParseModifierTypeTable(raw, limit)
}

func ParseModifierTypeTable(raw []byte, limit int) (*ModifierTypeTable, error) {
	var entries []ModifierTypeEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse modifier types: %w", err)
	}
	t := &ModifierTypeTable{
		byName: make(map[string]uint16, len(entries)),
		names:  make(map[uint16]string, len(entries)),
	}
	for _, e := range entries {
		if int(e.ID) >= limit {
			return nil, fmt.Errorf("modifier type %q: id %d out of range", e.Name, e.ID)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("modifier type %q: duplicate name", e.Name)
		}
		if other, dup := t.names[e.ID]; dup {
			return nil, fmt.Errorf("modifier type %q: id %d already used by %q", e.Name, e.ID, other)
		}
		t.byName[e.Name] = e.ID
		t.names[e.ID] = e.Name
	}
	return t, nil
}

// ID returns the type ID for name.
func (t *ModifierTypeTable) ID(name string) (uint16, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the name registered for id, or "".
func (t *ModifierTypeTable) Name(id uint16) string {
	return t.names[id]
}

func (t *ModifierTypeTable) Count() int {
	return len(t.byName)
}
