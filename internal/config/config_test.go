package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[engine]
capacity = 1200
tick_rate = "250ms"
strict_contracts = true

[localisation]
language = "de-AT"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Capacity != 1200 || cfg.Engine.TickRate != 250*time.Millisecond || !cfg.Engine.StrictContracts {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.MaxOwners != Defaults().Engine.MaxOwners {
		t.Fatal("unset field lost its default")
	}
	if cfg.Localisation.Language != "de-AT" || cfg.Localisation.Dir != "data/localisation" {
		t.Fatalf("localisation = %+v", cfg.Localisation)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"capacity":  "[engine]\ncapacity = 70000",
		"owners":    "[engine]\nmax_owners = 1",
		"modifiers": "[engine]\nmax_modifiers_per_scope = 0",
		"batch":     "[persist]\njournal_batch = -1",
		"syntax":    "[engine\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadAndPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	if err := os.WriteFile(path, []byte("[engine]\nname = \"test\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPath, path)
	if Path() != path {
		t.Fatalf("Path = %s", Path())
	}
	cfg, err := Load(Path())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Name != "test" || cfg.Engine.StartTime == 0 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("missing file: %v", err)
	}
}
