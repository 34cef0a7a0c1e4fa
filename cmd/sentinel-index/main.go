// Command sentinel-index drives the core indexing pipeline in isolation,
// per spec §6's command-line surface.
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

	"github.com/module-sentinel/sentinel/internal/config"
	"github.com/module-sentinel/sentinel/internal/logging"
	"github.com/module-sentinel/sentinel/internal/orchestrator"
	"github.com/module-sentinel/sentinel/internal/store"
	"github.com/module-sentinel/sentinel/internal/version"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	app := &cli.App{
		Name:    "sentinel-index",
		Usage:   "index a project's source into the universal symbol graph",
		Version: version.Version,
		Commands: []*cli.Command{
			indexCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFatal)
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "discover, parse, resolve and persist a project's symbol graph",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Required: true, Usage: "project root directory to index"},
			&cli.StringFlag{Name: "name", Usage: "project name (defaults to the root directory's base name)"},
			&cli.StringSliceFlag{Name: "languages", Usage: "restrict indexing to these languages (default: all registered)"},
			&cli.BoolFlag{Name: "force", Usage: "full reindex instead of incremental"},
			&cli.StringFlag{Name: "db", Usage: "sqlite database path (overrides config/env)"},
			&cli.IntFlag{Name: "max-concurrent", Usage: "max files parsed concurrently (overrides config/env)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "config", Value: ".sentinel.kdl", Usage: "config file path"},
		},
		Action: runIndex,
	}
}

func runIndex(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		os.Exit(exitFatal)
		return err
	}

	cfg.Project.Root = c.String("project")
	if name := c.String("name"); name != "" {
		cfg.Project.Name = name
	} else if cfg.Project.Name == "" {
		cfg.Project.Name = projectNameFromPath(cfg.Project.Root)
	}
	if langs := c.StringSlice("languages"); len(langs) > 0 {
		cfg.Index.Languages = langs
	}
	if c.Bool("force") {
		cfg.Index.Force = true
	}
	if db := c.String("db"); db != "" {
		cfg.Store.DatabasePath = db
	}
	if n := c.Int("max-concurrent"); n > 0 {
		cfg.Index.MaxConcurrentFiles = n
	}
	debugEnabled := c.Bool("debug") || os.Getenv("DEBUG_MODE") != ""

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFatal)
		return err
	}

	log := logging.New(debugEnabled).WithComponent("index")

	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: opening store:", err)
		os.Exit(exitFatal)
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(s, log)
	result, err := orch.Run(ctx, orchestrator.Options{
		ProjectName:        cfg.Project.Name,
		ProjectRoot:        cfg.Project.Root,
		Languages:          cfg.Index.Languages,
		IncludeGlobs:       cfg.Index.Include,
		ExcludeGlobs:       cfg.Index.Exclude,
		MaxFileSize:        cfg.Index.MaxFileSizeMB * 1024 * 1024,
		MaxConcurrentFiles: cfg.Index.MaxConcurrentFiles,
		FullReindex:        cfg.Index.Force,
		ParseTimeout:       time.Duration(cfg.Index.ParserFileTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		log.Error("index run failed", map[string]any{"err": err.Error()})
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitFatal)
		return err
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	switch {
	case result.Cancelled:
		os.Exit(exitPartial)
	case len(result.Errors) > 0:
		os.Exit(exitPartial)
	default:
		os.Exit(exitOK)
	}
	return nil
}

func projectNameFromPath(root string) string {
	if root == "" {
		return "project"
	}
	base := filepath.Base(filepath.Clean(root))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "project"
	}
	return base
}
