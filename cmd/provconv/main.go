// provconv converts a definition.csv plus history/provinces/*.json5
// ownership files into provinces.yaml.
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/archon/engine/internal/data"
	"gopkg.in/yaml.v3"
)

// history is the subset of a province history file the engine reads.
type history struct {
	Owner      string `yaml:"owner"`
	Controller string `yaml:"controller"`
}

var (
	lineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	trailingComma = regexp.MustCompile(`,(\s*})`)
	historyName   = regexp.MustCompile(`^(\d+)[-_ ]`)
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Usage: provconv <definition.csv> <history/provinces dir> <output.yaml> [land terrain] [water terrain]")
		os.Exit(1)
	}
	land, water := "plains", "ocean"
	if len(os.Args) > 4 {
		land = os.Args[4]
	}
	if len(os.Args) > 5 {
		water = os.Args[5]
	}

	provinces, err := readDefinition(os.Args[1], land, water)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	owned, err := applyHistory(provinces, os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := data.WriteProvinceList(os.Args[3], provinces); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d provinces (%d owned) to %s\n", len(provinces), owned, os.Args[3])
}

// readDefinition parses "province;red;green;blue;name;x" rows. An "x" in the
// last column marks land.
func readDefinition(path, land, water string) ([]data.ProvinceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	var out []data.ProvinceEntry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(rec) < 5 {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(rec[0]), 10, 16)
		if err != nil || id == 0 {
			continue // header or id 0
		}
		terrain := water
		if len(rec) > 5 && strings.TrimSpace(rec[5]) == "x" {
			terrain = land
		}
		out = append(out, data.ProvinceEntry{
			ID:      uint16(id),
			Name:    strings.TrimSpace(rec[4]),
			Terrain: terrain,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// applyHistory fills owner and controller from <id>-<name>.json5 files.
func applyHistory(provinces []data.ProvinceEntry, dir string) (int, error) {
	byID := make(map[uint16]*data.ProvinceEntry, len(provinces))
	for i := range provinces {
		byID[provinces[i].ID] = &provinces[i]
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json5"))
	if err != nil {
		return 0, err
	}
	owned := 0
	for _, file := range files {
		m := historyName.FindStringSubmatch(filepath.Base(file))
		if m == nil {
			continue
		}
		id, _ := strconv.ParseUint(m[1], 10, 16)
		p := byID[uint16(id)]
		if p == nil {
			fmt.Fprintf(os.Stderr, "skip %s: province %d not in definition\n", file, id)
			continue
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return 0, err
		}
		// The ownership files use the JSON5 subset that is also a YAML flow
		// mapping once comments and trailing commas are gone.
		src := trailingComma.ReplaceAll(lineComment.ReplaceAll(raw, nil), []byte("$1"))
		var h history
		if err := yaml.Unmarshal(src, &h); err != nil {
			return 0, fmt.Errorf("%s: %w", file, err)
		}
		p.Owner = h.Owner
		p.Controller = h.Controller
		if p.Controller == "" {
			p.Controller = p.Owner
		}
		if p.Owner != "" {
			owned++
		}
	}
	return owned, nil
}
