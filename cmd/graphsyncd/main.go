// Command graphsyncd runs the dependency-graph synchronization engine:
// watching a directory, maintaining the live graph, optionally
// persisting it, and serving the Query Surface over MCP or the command
// line. Grounded on the teacher's cmd/lci/main.go urfave/cli layout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/graphsyncd/internal/config"
	"github.com/standardbeagle/graphsyncd/internal/debug"
	"github.com/standardbeagle/graphsyncd/internal/dynamic"
	"github.com/standardbeagle/graphsyncd/internal/graph"
	graphsyncdmcp "github.com/standardbeagle/graphsyncd/internal/mcp"
	"github.com/standardbeagle/graphsyncd/internal/parser"
	"github.com/standardbeagle/graphsyncd/internal/query"
	"github.com/standardbeagle/graphsyncd/internal/rename"
	syncpkg "github.com/standardbeagle/graphsyncd/internal/sync"
	"github.com/standardbeagle/graphsyncd/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "graphsyncd",
		Usage:   "Live, queryable dependency graph synchronization engine",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: ".graphsyncd.kdl", Usage: "Config file path"},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Directory to watch (overrides config watch_dir)"},
		},
		Commands: []*cli.Command{
			{
				Name:   "watch",
				Usage:  "Watch the configured directory and keep the graph synchronized",
				Action: watchCommand,
			},
			{
				Name:  "snapshot",
				Usage: "Inspect or manage a persisted snapshot",
				Subcommands: []*cli.Command{
					{
						Name:   "save",
						Usage:  "Build the graph from the watch directory once and save a snapshot",
						Action: snapshotSaveCommand,
					},
					{
						Name:   "show",
						Usage:  "Load a snapshot and print its node/edge counts",
						Action: snapshotShowCommand,
					},
				},
			},
			{
				Name:  "query",
				Usage: "Run a single read-only Query Surface operation against a snapshot",
				Subcommands: []*cli.Command{
					{Name: "list-nodes", Usage: "list_nodes [kind]", Action: queryListNodesCommand},
					{Name: "get-node", Usage: "get_node <id>", Action: queryGetNodeCommand},
					{Name: "search", Usage: "search_nodes <substring>", Action: querySearchCommand},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the Query Surface over MCP (stdio)",
				Action: mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if root := c.String("root"); root != "" {
		cfg.WatchDir = root
	}
	return cfg, nil
}

func watchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store := graph.New()
	if cfg.StorageMode == config.StorageSnapshot {
		if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
			return err
		}
		store.SetPersistHook(func(s *graph.Store) {
			if err := s.SaveSnapshotWithRetry(cfg.SnapshotPath); err != nil {
				debug.LogSync("snapshot persist failed: %v", err)
			}
		})
	}

	registry := parser.NewRegistry(cfg)
	detector := rename.New(cfg.FileSimilarityThreshold, cfg.FunctionSimilarityThreshold)
	coord := syncpkg.New(store, registry, detector, cfg)

	watcher, err := syncpkg.NewWatcher(cfg, coord)
	if err != nil {
		return err
	}

	ingestor := dynamic.New(store)
	ingestor.SetInstrumentationFilters(cfg.InstrumentationIncludePatterns, cfg.InstrumentationExcludePatterns)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	go ingestor.Run(ctx, time.Duration(cfg.DynamicPollIntervalSeconds*float64(time.Second)))

	fmt.Fprintf(os.Stderr, "graphsyncd watching %s\n", cfg.WatchDir)
	return watcher.Run(ctx)
}

func snapshotSaveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path is not configured")
	}

	store := graph.New()
	registry := parser.NewRegistry(cfg)
	detector := rename.New(cfg.FileSimilarityThreshold, cfg.FunctionSimilarityThreshold)
	coord := syncpkg.New(store, registry, detector, cfg)

	ctx := context.Background()
	if err := walkAndUpsert(ctx, cfg, coord); err != nil {
		return err
	}
	return store.SaveSnapshotWithRetry(cfg.SnapshotPath)
}

func snapshotShowCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store := graph.New()
	if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
		return err
	}
	fmt.Printf("nodes=%d edges=%d\n", len(store.GetAllNodes()), len(store.GetAllEdges()))
	return nil
}

func queryListNodesCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store := graph.New()
	if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
		return err
	}
	surface := query.New(store)
	nodes := surface.ListNodes(query.Filter{}, 0)
	return printJSON(nodes)
}

func queryGetNodeCommand(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: query get-node <id>")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store := graph.New()
	if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
		return err
	}
	return printJSON(query.New(store).GetNode(c.Args().First()))
}

func querySearchCommand(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: query search <substring>")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store := graph.New()
	if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
		return err
	}
	return printJSON(query.New(store).SearchNodes(c.Args().First(), 0))
}

func mcpCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store := graph.New()
	if cfg.StorageMode == config.StorageSnapshot {
		if err := store.LoadSnapshot(cfg.SnapshotPath); err != nil {
			return err
		}
	}
	server := graphsyncdmcp.NewServer(query.New(store))
	return server.Run(context.Background())
}

// walkAndUpsert feeds every supported file under cfg.WatchDir to the
// Sync Coordinator as a created event, the same path the watcher itself
// drives incrementally, so `snapshot save` can build a one-shot graph
// without running the watch loop.
func walkAndUpsert(ctx context.Context, cfg *config.Config, coord *syncpkg.Coordinator) error {
	return filepath.Walk(cfg.WatchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !cfg.SupportsExtension(filepath.Ext(path)) {
			return nil
		}
		return coord.OnEvent(ctx, syncpkg.Created, path, "")
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
