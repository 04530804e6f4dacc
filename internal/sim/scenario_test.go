package sim

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archon/engine/internal/config"
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"go.uber.org/zap/zaptest"
)

const (
	testTerrain = `
- {name: plains, class: 1}
- {name: hills, class: 2}
- {name: ocean, class: 9, water: true}
`
	testCountries = `
- {tag: RED, name: Red Empire}
- {tag: BLU, name: Blue Kingdom}
`
	testProvinces = `
- {id: 1, name: Capital, terrain: plains, owner: RED}
- {id: 2, name: Border, terrain: hills, owner: RED, controller: BLU}
- {id: 3, name: Harbour, terrain: plains, owner: BLU}
- {id: 4, name: Sea, terrain: ocean}
`
	testModifierTypes = `
- {name: tax, id: 0}
- {name: manpower, id: 1}
`
)

func writeScenario(t *testing.T, provinces string) config.ScenarioConfig {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"terrain.yaml":        testTerrain,
		"countries.yaml":      testCountries,
		"provinces.yaml":      provinces,
		"modifier_types.yaml": testModifierTypes,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return config.ScenarioConfig{
		Dir:           dir,
		Terrain:       "terrain.yaml",
		Countries:     "countries.yaml",
		Provinces:     "provinces.yaml",
		ModifierTypes: "modifier_types.yaml",
	}
}

func TestLoadScenario(t *testing.T) {
	st := NewState(testOptions, event.NewBus(), zaptest.NewLogger(t))
	sc, err := LoadScenario(writeScenario(t, testProvinces), st)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entities.Len() != 4 {
		t.Fatalf("entities = %d", st.Entities.Len())
	}
	red := ecs.OwnerID(sc.Countries.Get("RED").Owner)
	blu := ecs.OwnerID(sc.Countries.Get("BLU").Owner)
	if got := st.Entities.Owners().EntitiesOf(red); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("RED owns %v", got)
	}
	if c, _ := st.Entities.Controller(2); c != blu {
		t.Fatalf("controller of 2 = %d", c)
	}
	if c, _ := st.Entities.Controller(1); c != red {
		t.Fatalf("controller defaults to owner: got %d", c)
	}
	if o, _ := st.Entities.Owner(4); o != ecs.Unowned {
		t.Fatalf("sea owner = %d", o)
	}
	if tc, _ := st.Entities.Terrain(4); tc != 9 {
		t.Fatalf("sea terrain = %d", tc)
	}
	info, ok := st.Province(4)
	if !ok || info.Name != "Sea" || !info.Water {
		t.Fatalf("province 4 info = %+v", info)
	}
	if id, ok := sc.ModifierTypes.ID("manpower"); !ok || id != 1 {
		t.Fatalf("manpower id = %d", id)
	}

	if err := sc.Populate(st); err == nil {
		t.Fatal("populating a loaded state succeeded")
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	cases := []struct {
		name      string
		provinces string
		want      string
	}{
		{"unknown terrain", "- {id: 1, name: A, terrain: lava}", "unknown terrain"},
		{"unknown owner", "- {id: 1, name: A, terrain: plains, owner: GRN}", "unknown country"},
		{"unknown controller", "- {id: 1, name: A, terrain: plains, owner: RED, controller: GRN}", "unknown country"},
		{"duplicate id", "- {id: 1, name: A, terrain: plains}\n- {id: 1, name: B, terrain: plains}", "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewState(testOptions, event.NewBus(), zaptest.NewLogger(t))
			_, err := LoadScenario(writeScenario(t, tc.provinces), st)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	cfg := writeScenario(t, testProvinces)
	cfg.Countries = "absent.yaml"
	st := NewState(testOptions, event.NewBus(), zaptest.NewLogger(t))
	if _, err := LoadScenario(cfg, st); err == nil {
		t.Fatal("missing countries file accepted")
	}
}

func TestPopulateRejectsDuplicateProvince(t *testing.T) {
	sc, err := ReadScenario(writeScenario(t, "- {id: 4, name: A, terrain: plains}"))
	if err != nil {
		t.Fatal(err)
	}
	sc.Provinces = append(sc.Provinces, sc.Provinces[0])
	st := NewState(testOptions, event.NewBus(), zaptest.NewLogger(t))
	err = sc.Populate(st)
	if !errors.Is(err, ErrDuplicateProvince) || errors.Is(err, ecs.ErrCapacity) {
		t.Fatalf("err = %v, want ErrDuplicateProvince", err)
	}
}
