package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/packforge/depgraph/internal/config"
	"github.com/packforge/depgraph/internal/debug"
	"github.com/packforge/depgraph/internal/depengine"
	"github.com/packforge/depgraph/internal/diskio"
	"github.com/packforge/depgraph/internal/mcpserver"
	"github.com/packforge/depgraph/internal/patchdiscovery"
	"github.com/packforge/depgraph/internal/schema"
	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/version"
	"github.com/packforge/depgraph/internal/vfile"
)

// loadConfigAndSchema loads the `.packdeps.kdl` config from the
// directory named by the --config-dir flag (defaulting to the current
// directory) plus the schema document it names, applying --cache
// and --workers overrides.
func loadConfigAndSchema(ctx context.Context, c *cli.Context) (*config.Config, *schema.Set, error) {
	dir := c.String("config-dir")
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config from %s: %w", dir, err)
	}
	if cachePath := c.String("cache"); cachePath != "" {
		cfg.Cache.Path = cachePath
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.Performance.ParallelFileWorkers = workers
	}

	if cfg.SchemaPath == "" {
		return cfg, schema.NewSet(nil), nil
	}
	set, err := schema.LoadDefinitionsFile(ctx, cfg.SchemaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema from %s: %w", cfg.SchemaPath, err)
	}
	return cfg, set, nil
}

// buildEngine loads config+schema and runs a full Rebuild, using
// diskio's plain-filesystem LooseWalker/ParentPackLocator. No
// store.ArchiveReader is wired here: this module carries no pack
// binary codec, so archive-backed rebuilds are left for an embedding
// caller to drive by constructing *depengine.Engine directly with its
// own ArchiveReader.
func buildEngine(ctx context.Context, c *cli.Context) (*depengine.Engine, *config.Config, error) {
	cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	game := cfg.ToGameDescriptor(".")

	e := depengine.New(game, schemaSet, vfileDecoders(), types.SystemClock{})
	// ParentPackNames are carried through from the config, but with no
	// ArchiveReader wired the store skips parent-pack resolution: a
	// parent pack's contents can only be read through the pack codec.
	err = e.Rebuild(ctx, depengine.RebuildOptions{
		ParentPackNames: cfg.Game.ParentPackNames,
		LooseWalker:     diskio.Walker{},
		ParentLocator:   diskio.Locator{},
		Workers:         cfg.ParallelWorkers(),
		CachePath:       cfg.Cache.Path,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild failed: %w", err)
	}
	return e, cfg, nil
}

// vfileDecoders returns an empty decoder set. The TSV/binary DB and
// loc codecs belong to the pack binary codec this module doesn't
// implement, so the CLI leaves files undecoded (State stays
// OnDisk/Cached); an embedding caller supplies its own vfile.Decoders
// through the library API.
func vfileDecoders() vfile.Decoders {
	return vfile.Decoders{}
}

func main() {
	app := &cli.App{
		Name:                   "packdeps",
		Usage:                  "Dependency resolution and reference engine for layered pack-archive mods",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "Directory containing .packdeps.kdl",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Override the configured sharded-cache path",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Override the configured parallel-decode worker count",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			rebuildCommand(),
			generateCacheCommand(),
			statusCommand(),
			fileCommand(),
			dbDataCommand(),
			bruteforceCommand(),
			discoverPatchesCommand(),
			mcpCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild the store from the configured loose layer/parent packs and save the cache",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			e, cfg, err := buildEngine(ctx, c)
			if err != nil {
				return err
			}
			if cfg.Cache.Path == "" {
				fmt.Println("rebuild complete (no cache path configured, nothing saved)")
				return nil
			}
			if err := e.Save(cfg.Cache.Path); err != nil {
				return fmt.Errorf("failed to save cache: %w", err)
			}
			fmt.Printf("rebuild complete, cache saved to %s\n", cfg.Cache.Path)
			return nil
		},
	}
}

func generateCacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-cache",
		Usage: "Generate a fresh dependencies cache, walking the assembly-kit exports, and save it",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ignore-game-files",
				Usage: "Drop assembly-kit tables the game's own layers already declare",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return err
			}
			e := depengine.New(cfg.ToGameDescriptor("."), schemaSet, vfileDecoders(), types.SystemClock{})
			if _, err := e.GenerateDependenciesCache(ctx, depengine.GenerateCacheOptions{
				AssKitWalker:            diskio.Walker{},
				IgnoreGameFilesInAssKit: c.Bool("ignore-game-files"),
				Workers:                 cfg.ParallelWorkers(),
			}); err != nil {
				return fmt.Errorf("cache generation failed: %w", err)
			}
			if cfg.Cache.Path == "" {
				fmt.Println("cache generated (no cache path configured, nothing saved)")
				return nil
			}
			if err := e.Save(cfg.Cache.Path); err != nil {
				return fmt.Errorf("failed to save cache: %w", err)
			}
			fmt.Printf("dependencies cache saved to %s\n", cfg.Cache.Path)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Aliases: []string{"st"},
		Usage:   "Report whether the cached store is stale relative to its declared archives",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return err
			}
			game := cfg.ToGameDescriptor(".")
			e := depengine.New(game, schemaSet, vfileDecoders(), types.SystemClock{})
			if cfg.Cache.Path != "" {
				_ = e.Load(ctx, cfg.Cache.Path) // best-effort: needs_updating(true) if this fails
			}
			fmt.Printf("needs_updating: %v\n", e.NeedsUpdating())
			return nil
		},
	}
}

func fileCommand() *cli.Command {
	return &cli.Command{
		Name:      "file",
		Usage:     "Resolve a single container path against the cached store",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "incl-parent", Usage: "Include the parent-mod layer"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: packdeps file <path>")
			}
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return err
			}
			e := depengine.New(cfg.ToGameDescriptor("."), schemaSet, vfileDecoders(), types.SystemClock{})
			if cfg.Cache.Path != "" {
				if err := e.Load(ctx, cfg.Cache.Path); err != nil {
					return fmt.Errorf("failed to load cache: %w", err)
				}
			}
			f, ok := e.File(c.Args().First(), true, c.Bool("incl-parent"), false)
			if !ok {
				fmt.Println("not found")
				return nil
			}
			return printJSON(map[string]any{
				"path":      f.Entry.Path,
				"file_type": f.Entry.FileType.String(),
				"origin":    f.Entry.ContainerOrigin,
			})
		},
	}
}

func dbDataCommand() *cli.Command {
	return &cli.Command{
		Name:      "db-data",
		Usage:     "List the merged DB files declared under a table name",
		ArgsUsage: "<table_full_name>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "incl-parent", Usage: "Include the parent-mod layer"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: packdeps db-data <table_full_name>")
			}
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return err
			}
			e := depengine.New(cfg.ToGameDescriptor("."), schemaSet, vfileDecoders(), types.SystemClock{})
			if cfg.Cache.Path != "" {
				if err := e.Load(ctx, cfg.Cache.Path); err != nil {
					return fmt.Errorf("failed to load cache: %w", err)
				}
			}
			files := e.DBData(c.Args().First(), true, c.Bool("incl-parent"))
			paths := make([]string, 0, len(files))
			for _, f := range files {
				paths = append(paths, f.Entry.Path)
			}
			return printJSON(map[string]any{"paths": paths})
		},
	}
}

func bruteforceCommand() *cli.Command {
	return &cli.Command{
		Name:  "bruteforce-loc-order",
		Usage: "Run the localisation key-order bruteforce over every known table and persist the winning orders",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return err
			}
			e := depengine.New(cfg.ToGameDescriptor("."), schemaSet, vfileDecoders(), types.SystemClock{})
			if cfg.Cache.Path != "" {
				if err := e.Load(ctx, cfg.Cache.Path); err != nil {
					return fmt.Errorf("failed to load cache: %w", err)
				}
			}
			results := e.BruteforceLocKeyOrder(nil, nil)
			return printJSON(results)
		},
	}
}

func discoverPatchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover-patches",
		Usage: "Scan decoded DB tables for filename-fragment columns that look like vanilla file references",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return err
			}
			e := depengine.New(cfg.ToGameDescriptor("."), schemaSet, vfileDecoders(), types.SystemClock{})
			if cfg.Cache.Path != "" {
				if err := e.Load(ctx, cfg.Cache.Path); err != nil {
					return fmt.Errorf("failed to load cache: %w", err)
				}
			}
			patches := e.DiscoverPatches(nil, patchdiscovery.Rules{})
			return printJSON(patches)
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start the read-only MCP server (stdio transport)",
		Action: func(c *cli.Context) error {
			debug.SetMCPMode(true)
			ctx := context.Background()
			cfg, schemaSet, err := loadConfigAndSchema(ctx, c)
			if err != nil {
				return debug.Fatal("failed to load config: %v", err)
			}
			e := depengine.New(cfg.ToGameDescriptor("."), schemaSet, vfileDecoders(), types.SystemClock{})
			if cfg.Cache.Path != "" {
				if err := e.Load(ctx, cfg.Cache.Path); err != nil {
					debug.LogMCP("cache load failed, starting with an empty store: %v\n", err)
				}
			}
			srv := mcpserver.New(e, schemaSet)
			return srv.Start(ctx)
		},
	}
}

// watchCommand runs an initial rebuild, then re-rebuilds and re-saves
// every time the loose-layer directories change on disk, until
// interrupted.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Rebuild on startup, then again whenever the loose data/secondary/content directories change",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			e, cfg, err := buildEngine(ctx, c)
			if err != nil {
				return err
			}
			if cfg.Cache.Path != "" {
				if err := e.Save(cfg.Cache.Path); err != nil {
					return fmt.Errorf("failed to save cache: %w", err)
				}
			}
			fmt.Println("initial rebuild complete, watching for changes")

			w, err := diskio.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer w.Close()

			game := cfg.ToGameDescriptor(".")
			if err := w.Watch(game.DataPath, game.SecondaryPath, game.ContentPath); err != nil {
				return fmt.Errorf("failed to watch loose layer: %w", err)
			}

			for range w.Changes() {
				debug.Println("loose layer changed, rebuilding")
				e, cfg, err = buildEngine(ctx, c)
				if err != nil {
					fmt.Fprintln(os.Stderr, "rebuild failed:", err)
					continue
				}
				if cfg.Cache.Path != "" {
					if err := e.Save(cfg.Cache.Path); err != nil {
						fmt.Fprintln(os.Stderr, "save failed:", err)
						continue
					}
				}
				fmt.Println("rebuild complete")
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
