package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/imagesorter/internal"
	"github.com/starford/imagesorter/internal/apperr"
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/rules"
	pkgconfig "github.com/starford/imagesorter/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func sortNote(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: %s <note>", cmd.FullName())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	asset, err := internal.SortNote(ctx, cmd.Args().First(),
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
	if apperr.KindOf(err) == apperr.KindNotApplicable {
		_, _ = fmt.Fprintf(cmd.Root().Writer, "skipped: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.Root().Writer, "sorted: %s\n", asset.FullPath)
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func openRules(cmd *cli.Command) (*rules.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return rules.Open(cfg.Rules.Path)
}

func listRules(_ context.Context, cmd *cli.Command) error {
	store, err := openRules(cmd)
	if err != nil {
		return err
	}
	rs := store.Get()

	if cmd.Bool("json") {
		enc := json.NewEncoder(cmd.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	}

	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tDOMAIN\tFOLDER")
	for i, r := range rs {
		folder := r.Folder
		if folder == "" {
			folder = "/"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", i, r.Domain, folder)
	}
	return tw.Flush()
}

func addRule(_ context.Context, cmd *cli.Command) error {
	if n := cmd.Args().Len(); n < 1 || n > 2 {
		return fmt.Errorf("usage: %s <domain> [folder]", cmd.FullName())
	}
	store, err := openRules(cmd)
	if err != nil {
		return err
	}
	idx, r, err := store.Add(models.Rule{Domain: cmd.Args().Get(0), Folder: cmd.Args().Get(1)})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.Root().Writer, "added rule %d: %s -> %q\n", idx, r.Domain, r.Folder)
	return nil
}

func removeRule(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: %s <index>", cmd.FullName())
	}
	idx, err := strconv.Atoi(cmd.Args().First())
	if err != nil {
		return fmt.Errorf("index must be an integer: %w", err)
	}
	store, err := openRules(cmd)
	if err != nil {
		return err
	}
	if err := store.Remove(idx); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("no rule at index %d", idx)
		}
		return err
	}
	_, _ = fmt.Fprintf(cmd.Root().Writer, "removed rule %d\n", idx)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "imagesorter",
		Usage:   "Download remote images referenced by new vault notes into per-site folders",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "sort",
				Usage:     "Sort one note now, without waiting for a create event",
				ArgsUsage: "<note>",
				Action:    sortNote,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:  "rules",
				Usage: "Edit the domain→folder rule file",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "Print rules in match order",
						Action: listRules,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
						},
					},
					{
						Name:      "add",
						Usage:     "Append a rule",
						ArgsUsage: "<domain> [folder]",
						Action:    addRule,
					},
					{
						Name:      "remove",
						Usage:     "Delete the rule at an index",
						ArgsUsage: "<index>",
						Action:    removeRule,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
