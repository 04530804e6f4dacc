package sim

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/archon/engine/internal/config"
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/modifier"
	"github.com/archon/engine/internal/data"
	"go.uber.org/zap"
)

var ErrDuplicateProvince = errors.New("duplicate province id")

// Scenario is the static data a State is seeded from.
type Scenario struct {
	Terrain       *data.TerrainTable
	Countries     *data.CountryTable
	Provinces     []data.ProvinceEntry
	ModifierTypes *data.ModifierTypeTable
}

// ReadScenario loads the scenario files named in cfg.
func ReadScenario(cfg config.ScenarioConfig) (*Scenario, error) {
	path := func(name string) string { return filepath.Join(cfg.Dir, name) }

	terrain, err := data.LoadTerrainTable(path(cfg.Terrain))
	if err != nil {
		return nil, err
	}
	countries, err := data.LoadCountryTable(path(cfg.Countries))
	if err != nil {
		return nil, err
	}
	provinces, err := data.LoadProvinceList(path(cfg.Provinces))
	if err != nil {
		return nil, err
	}
	modTypes, err := data.LoadModifierTypeTable(path(cfg.ModifierTypes), modifier.MaxTypes)
	if err != nil {
		return nil, err
	}
	return &Scenario{
		Terrain:       terrain,
		Countries:     countries,
		Provinces:     provinces,
		ModifierTypes: modTypes,
	}, nil
}

// Populate adds every province to an empty st, seeds owner and controller,
// and builds the reverse index once at the end. Unknown terrain names and
// country tags are errors.
func (sc *Scenario) Populate(st *State) error {
	if st.Entities.Len() != 0 {
		return fmt.Errorf("populate: state already holds %d entities", st.Entities.Len())
	}
	for _, p := range sc.Provinces {
		terrain := sc.Terrain.Get(p.Terrain)
		if terrain == nil {
			return fmt.Errorf("province %d: unknown terrain %q", p.ID, p.Terrain)
		}
		owner, err := sc.owner(p.ID, p.Owner)
		if err != nil {
			return err
		}
		controller, err := sc.owner(p.ID, p.Controller)
		if err != nil {
			return err
		}

		id := ecs.EntityID(p.ID)
		if st.Entities.Has(id) {
			return fmt.Errorf("province %d: %w", p.ID, ErrDuplicateProvince)
		}
		if !st.Entities.AddEntity(id, ecs.TerrainClass(terrain.Class)) {
			return fmt.Errorf("province %d: %w", p.ID, ecs.ErrCapacity)
		}
		handle, err := st.Provinces.Alloc(ProvinceInfo{Name: p.Name, Water: terrain.Water})
		if err != nil {
			return fmt.Errorf("province %d: %w", p.ID, err)
		}
		if err := st.Entities.Seed(id, owner, controller, handle); err != nil {
			return fmt.Errorf("province %d: %w", p.ID, err)
		}
	}
	st.Entities.RebuildIndex()
	st.log.Info("scenario loaded",
		zap.Int("provinces", st.Entities.Len()),
		zap.Int("owned", st.Entities.Owners().Owned()),
		zap.Int("countries", sc.Countries.Count()),
		zap.Int("terrain", sc.Terrain.Count()),
	)
	return nil
}

func (sc *Scenario) owner(province uint16, tag string) (ecs.OwnerID, error) {
	if tag == "" {
		return ecs.Unowned, nil
	}
	c := sc.Countries.Get(tag)
	if c == nil {
		return 0, fmt.Errorf("province %d: unknown country %q", province, tag)
	}
	return ecs.OwnerID(c.Owner), nil
}

// LoadScenario reads the scenario in cfg and populates st with it.
func LoadScenario(cfg config.ScenarioConfig, st *State) (*Scenario, error) {
	sc, err := ReadScenario(cfg)
	if err != nil {
		return nil, err
	}
	if err := sc.Populate(st); err != nil {
		return nil, err
	}
	return sc, nil
}
