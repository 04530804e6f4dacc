package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProvinceEntry is the starting state of one province. Empty Owner means
// unowned; empty Controller defaults to Owner.
type ProvinceEntry struct {
	ID         uint16 `yaml:"id"`
	Name       string `yaml:"name"`
	Terrain    string `yaml:"terrain"`
	Owner      string `yaml:"owner,omitempty"`
	Controller string `yaml:"controller,omitempty"`
}

// LoadProvinceList loads provinces.yaml. Entries keep file order, which
// becomes the store's index order.
func LoadProvinceList(path string) ([]ProvinceEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read province list: %w", err)
	}
	return ParseProvinceList(raw)
}

func ParseProvinceList(raw []byte) ([]ProvinceEntry, error) {
	var entries []ProvinceEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse province list: %w", err)
	}
	seen := make(map[uint16]struct{}, len(entries))
	for i := range entries {
		e := &entries[i]
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("province %d: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.Controller == "" {
			e.Controller = e.Owner
		}
	}
	return entries, nil
}

// WriteProvinceList writes entries as provinces.yaml.
func WriteProvinceList(path string, entries []ProvinceEntry) error {
	out, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode province list: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write province list: %w", err)
	}
	return nil
}
