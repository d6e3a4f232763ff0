// Package main is the Atsume CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/atsume-io/atsume/internal/config"
	"github.com/atsume-io/atsume/internal/ingest"
	"github.com/atsume-io/atsume/internal/models"
	"github.com/atsume-io/atsume/internal/server"
	"github.com/atsume-io/atsume/internal/store"
	"github.com/atsume-io/atsume/internal/watcher"
	"github.com/atsume-io/atsume/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/atsume/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "collections":
		runCollections()
	case "query":
		runQuery()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("atsume version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: atsume <command> [options]

Commands:
  server                      Run the HTTP API server
  ingest <paths...>           Ingest files, directories, or archives into a collection
  collections <subcommand>    Manage collections (list, create, delete, info)
  query <text>                Query a collection
  watch                       Watch configured directories and auto-ingest changes
  version                     Print version
  help                        Print this help

Run 'atsume <command> -h' for command options.`)
}

func mustSetup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *store.SQLiteStore) {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	st, err := store.Open(cfg.Store.DatabasePath, cfg.Store.IndexPath)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	return cfg, logger, st
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, st := mustSetup(*configPath, *debug)
	defer logger.Sync()
	defer st.Close()

	ingestor := ingest.NewIngestor(st, ingest.WithLogger(logger))
	srv := server.NewServer(st, ingestor, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Collection != "" {
		w := newIngestWatcher(ctx, cfg, logger, ingestor)
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start watcher", zap.Error(err))
			os.Exit(1)
		}
		defer w.Stop()
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		_ = srv.Stop(context.Background())
		cancel()
	}()

	if err := srv.Start(); err != nil {
		logger.Info("server stopped", zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	collection := fs.String("collection", "", "target collection name (required)")
	chunkSize := fs.Int("chunk-size", 2000, "max chunk size in characters")
	overlap := fs.Int("overlap", 200, "overlap between chunks in characters")
	encoding := fs.String("encoding", "utf-8", "default file encoding")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *collection == "" || fs.NArg() == 0 {
		fmt.Println("Usage: atsume ingest -collection <name> [options] <paths...>")
		os.Exit(1)
	}

	_, logger, st := mustSetup(*configPath, *debug)
	defer logger.Sync()
	defer st.Close()

	ingestor := ingest.NewIngestor(st, ingest.WithLogger(logger))
	result, err := ingestor.IngestFiles(context.Background(), &models.IngestRequest{
		Collection: *collection,
		Paths:      fs.Args(),
		ChunkSize:  *chunkSize,
		Overlap:    *overlap,
		Encoding:   *encoding,
	})
	if err != nil {
		if result != nil && result.Added > 0 {
			fmt.Printf("Ingestion failed after adding %d documents: %v\n", result.Added, err)
		} else {
			fmt.Printf("Ingestion failed: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Added %d documents, updated %d, skipped %d inputs in collection %s\n",
		result.Added, result.Updated, len(result.Skipped), *collection)
	for _, skipped := range result.Skipped {
		fmt.Printf("  skipped %s: %s\n", skipped.Path, skipped.Reason)
	}
}

func runCollections() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: atsume collections <list|create|delete|info> [options]")
		os.Exit(1)
	}
	sub := os.Args[2]

	fs := flag.NewFlagSet("collections "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	name := fs.String("name", "", "collection name")
	_ = fs.Parse(os.Args[3:])
	if *name == "" && fs.NArg() > 0 {
		*name = fs.Arg(0)
	}

	_, logger, st := mustSetup(*configPath, false)
	defer logger.Sync()
	defer st.Close()

	ctx := context.Background()
	switch sub {
	case "list":
		infos, err := st.ListCollections(ctx, 0, 0)
		if err != nil {
			fmt.Printf("Failed to list collections: %v\n", err)
			os.Exit(1)
		}
		if len(infos) == 0 {
			fmt.Println("No collections found")
			return
		}
		for _, info := range infos {
			fmt.Println(info.Name)
		}
	case "create":
		requireName(*name)
		if err := st.CreateCollection(ctx, *name, nil); err != nil {
			fmt.Printf("Failed to create collection: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created collection %s\n", *name)
	case "delete":
		requireName(*name)
		if err := st.DeleteCollection(ctx, *name); err != nil {
			fmt.Printf("Failed to delete collection: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted collection %s\n", *name)
	case "info":
		requireName(*name)
		coll, err := st.GetCollection(ctx, *name)
		if err != nil {
			fmt.Printf("Failed to get collection: %v\n", err)
			os.Exit(1)
		}
		count, err := coll.Count(ctx)
		if err != nil {
			fmt.Printf("Failed to count documents: %v\n", err)
			os.Exit(1)
		}
		sample, err := coll.Peek(ctx, 3)
		if err != nil {
			fmt.Printf("Failed to peek collection: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Collection: %s\nDocuments: %d\n", *name, count)
		for i, id := range sample.IDs {
			doc := sample.Documents[i]
			if len(doc) > 80 {
				doc = doc[:80] + "..."
			}
			fmt.Printf("  %s: %s\n", id, strings.ReplaceAll(doc, "\n", " "))
		}
	default:
		fmt.Printf("Unknown collections subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func requireName(name string) {
	if name == "" {
		fmt.Println("A collection name is required (use -name or a positional argument)")
		os.Exit(1)
	}
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	collection := fs.String("collection", "", "collection to query (required)")
	n := fs.Int("n", 5, "number of results")
	asJSON := fs.Bool("json", false, "print raw JSON")
	_ = fs.Parse(os.Args[2:])

	if *collection == "" || fs.NArg() == 0 {
		fmt.Println("Usage: atsume query -collection <name> [options] <text>")
		os.Exit(1)
	}

	_, logger, st := mustSetup(*configPath, false)
	defer logger.Sync()
	defer st.Close()

	ctx := context.Background()
	coll, err := st.GetCollection(ctx, *collection)
	if err != nil {
		fmt.Printf("Failed to get collection: %v\n", err)
		os.Exit(1)
	}
	result, err := coll.Query(ctx, []string{strings.Join(fs.Args(), " ")}, *n)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	if *asJSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}
	if len(result.IDs) == 0 || len(result.IDs[0]) == 0 {
		fmt.Println("No results")
		return
	}
	for i, id := range result.IDs[0] {
		doc := result.Documents[0][i]
		if len(doc) > 120 {
			doc = doc[:120] + "..."
		}
		fmt.Printf("%2d. %s (%.3f)\n    %s\n", i+1, id, result.Scores[0][i], strings.ReplaceAll(doc, "\n", " "))
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, st := mustSetup(*configPath, *debug)
	defer logger.Sync()
	defer st.Close()

	if len(cfg.Watch.Directories) == 0 || cfg.Watch.Collection == "" {
		fmt.Println("Watch requires watch.directories and watch.collection in the config")
		os.Exit(1)
	}

	ingestor := ingest.NewIngestor(st, ingest.WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newIngestWatcher(ctx, cfg, logger, ingestor)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start watcher", zap.Error(err))
		os.Exit(1)
	}
	defer w.Stop()

	logger.Info("watching directories",
		zap.Strings("directories", cfg.Watch.Directories),
		zap.String("collection", cfg.Watch.Collection))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("stopping watch")
}

// newIngestWatcher wires the directory watcher to single-file ingest calls
// using the configured chunking defaults.
func newIngestWatcher(ctx context.Context, cfg *config.Config, logger *zap.Logger, ingestor *ingest.Ingestor) *watcher.Watcher {
	return watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			result, err := ingestor.IngestFiles(ctx, &models.IngestRequest{
				Collection: cfg.Watch.Collection,
				Paths:      []string{path},
				ChunkSize:  cfg.Ingest.ChunkSize,
				Overlap:    cfg.Ingest.OverlapOrDefault(),
				Encoding:   cfg.Ingest.Encoding,
			})
			if err != nil {
				logger.Warn("auto-ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("auto-ingested file",
				zap.String("path", path),
				zap.Int("added", result.Added),
				zap.Int("updated", result.Updated))
		},
		watcher.WithLogger(logger),
	)
}
