package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/archon/engine/internal/config"
	"github.com/archon/engine/internal/core/command"
	"github.com/archon/engine/internal/core/contract"
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/event"
	"github.com/archon/engine/internal/data"
	"github.com/archon/engine/internal/persist"
	"github.com/archon/engine/internal/scripting"
	"github.com/archon/engine/internal/sim"
	"github.com/archon/engine/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              Archon  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      deterministic simulation core        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mscenario:\033[0m %s\n\n", name)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main loop ─────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	contract.SetStrict(cfg.Engine.StrictContracts)
	printBanner(cfg.Engine.Name)

	// 3. Scenario and state
	printSection("scenario")
	bus := event.NewBus()
	st := sim.NewState(sim.Options{
		Capacity:    cfg.Engine.Capacity,
		MaxOwners:   cfg.Engine.MaxOwners,
		MaxPerScope: cfg.Engine.MaxModifiersPerScope,
	}, bus, log)
	sc, err := sim.LoadScenario(cfg.Scenario, st)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	printStat("terrain types", sc.Terrain.Count())
	printStat("countries", sc.Countries.Count())
	printStat("provinces", st.Entities.Len())
	printStat("owned provinces", st.Entities.Owners().Owned())
	printStat("modifier types", sc.ModifierTypes.Count())

	loc, err := data.LoadLocalisation(cfg.Localisation.Dir, cfg.Localisation.Language)
	if err != nil {
		return fmt.Errorf("localisation: %w", err)
	}
	printStat("localisation keys ("+loc.Language()+")", loc.Count())
	for _, c := range sc.Countries.Entries() {
		log.Debug("country",
			zap.String("tag", c.Tag),
			zap.Uint16("owner", c.Owner),
			zap.String("name", loc.Text(data.CountryKey(c.Tag))),
			zap.Int("provinces", st.Entities.Owners().CountOf(ecs.OwnerID(c.Owner))),
		)
	}
	fmt.Println()

	eng, err := sim.NewEngine(st, log)
	if err != nil {
		return err
	}

	// 4. Lua command kinds
	if cfg.Scripting.Enabled {
		printSection("scripting")
		scripts, err := scripting.NewEngine(cfg.Scripting.Dir, sc.ModifierTypes, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer scripts.Close()
		if err := scripts.Register(eng.Registry()); err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		printStat("script commands", len(scripts.Kinds()))
		fmt.Println()
	}

	// 5. PostgreSQL: migrations, recovery, then journaling
	var persistSys *system.PersistenceSystem
	if cfg.Database.Enabled {
		printSection("database")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.Open(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := db.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("schema at version %d", version))

		journal := persist.NewJournalRepo(db)
		snaps := persist.NewSnapshotRepo(db)
		tick, err := system.Recover(ctx, eng, snaps, journal, log)
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		printOK(fmt.Sprintf("state recovered at tick %d", tick))

		persistSys = system.NewPersistenceSystem(bus, eng, journal, snaps, cfg.Persist, log)
		eng.Register(persistSys)
		fmt.Println()
	}

	event.Subscribe(bus, func(ev command.Rejected) {
		log.Info("command rejected",
			zap.Uint64("tick", ev.Tick),
			zap.String("kind", ev.Kind),
			zap.Stringer("peer", ev.Peer),
			zap.String("reason", ev.Reason),
		)
	})

	// 6. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Engine.TickRate)
	defer ticker.Stop()

	printSection("running")
	printReady(fmt.Sprintf("tick loop started (rate: %s)", cfg.Engine.TickRate))
	fmt.Println()

	const statusInterval = 600
	for {
		select {
		case <-ticker.C:
			start := time.Now()
			eng.Step()
			if tick := eng.Tick(); tick%statusInterval == 0 {
				eng.View(func(s *sim.State) {
					stats := s.Modifiers.Stats()
					log.Info("status",
						zap.Uint64("tick", tick),
						zap.Uint64("generation", s.Generation()),
						zap.Int("modifiers", s.Modifiers.Count()),
						zap.Uint64("entity_rebuilds", stats.EntityRebuilds),
						zap.Duration("step", time.Since(start)),
					)
				})
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			if persistSys != nil {
				persistSys.SaveSnapshot()
			}
			log.Info("engine stopped", zap.Uint64("tick", eng.Tick()))
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
