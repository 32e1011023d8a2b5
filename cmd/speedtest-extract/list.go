package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/ookla/speedtest-extract/pkg/crawler"
	"github.com/ookla/speedtest-extract/pkg/db"
	"github.com/ookla/speedtest-extract/pkg/downloader"
	"github.com/ookla/speedtest-extract/pkg/filter"
	"github.com/ookla/speedtest-extract/pkg/selector"
	"github.com/ookla/speedtest-extract/pkg/types"
)

type listOptions struct {
	dbPath string
}

func newListCmd(g *globalOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available extracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Export the listing to a SQLite catalog at this path")
	return cmd
}

func runList(cmd *cobra.Command, g *globalOptions, opts *listOptions) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	f, err := g.filter()
	if err != nil {
		return err
	}

	entries, latest, err := collectEntries(cmd.Context(), crawler.NewCrawler(newSession(cfg)), f)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		slog.Info(downloader.NoFilesMessage)
		return nil
	}

	extracts := lo.Map(entries, func(e types.Entry, _ int) db.Extract {
		key, _ := selector.DatasetKey(e.Name)
		return db.Extract{
			Dataset:  key,
			Name:     e.Name,
			URL:      e.URL,
			Groups:   e.Groups,
			Modified: e.Modified,
			Size:     e.Size,
			Latest:   selector.IsLatest(latest, e),
		}
	})
	sortExtracts(extracts)

	if opts.dbPath != "" {
		if err = exportCatalog(opts.dbPath, extracts); err != nil {
			return err
		}
	}

	if !g.showAll(f) {
		extracts = lo.Filter(extracts, func(e db.Extract, _ int) bool {
			return e.Latest
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(extracts))
	return nil
}

// collectEntries walks the listing once, keeping every matching extract file
// and folding them into the latest-per-dataset mapping.
func collectEntries(ctx context.Context, c *crawler.Crawler, f filter.Options) ([]types.Entry, types.Mapping, error) {
	var entries []types.Entry
	latest := make(types.Mapping)
	for e, err := range c.Files(ctx) {
		if err != nil {
			return nil, nil, xerrors.Errorf("listing error: %w", err)
		}
		if !selector.IsDataset(e) || !f.Match(e) {
			continue
		}
		entries = append(entries, e)
		latest = selector.Select(latest, e)
	}
	return entries, latest, nil
}

func sortExtracts(extracts []db.Extract) {
	slices.SortFunc(extracts, func(a, b db.Extract) int {
		if c := strings.Compare(strings.Join(a.Groups, "/"), strings.Join(b.Groups, "/")); c != 0 {
			return c
		}
		if c := strings.Compare(a.Dataset, b.Dataset); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func exportCatalog(path string, extracts []db.Extract) error {
	dbc, err := db.New(path)
	if err != nil {
		return xerrors.Errorf("db open error: %w", err)
	}
	defer dbc.Close()

	if err = dbc.Init(); err != nil {
		return xerrors.Errorf("db init error: %w", err)
	}
	if err = dbc.InsertExtracts(extracts); err != nil {
		return xerrors.Errorf("db insert error: %w", err)
	}
	latest, err := dbc.SelectLatest()
	if err != nil {
		return xerrors.Errorf("db select error: %w", err)
	}
	slog.Info("Catalog exported", slog.String("path", path),
		slog.Int("extracts", len(extracts)), slog.Int("datasets", len(latest)))
	return nil
}

// selectedExtracts converts download candidates for display, flagging the
// newest file of each dataset as latest.
func selectedExtracts(files []types.SelectedFile) []db.Extract {
	latest := make(types.Mapping)
	for _, f := range files {
		if cur, ok := latest[f.Dataset]; !ok || f.Age > cur.Age {
			latest[f.Dataset] = f
		}
	}
	return lo.Map(files, func(f types.SelectedFile, _ int) db.Extract {
		return db.Extract{
			Dataset:  f.Dataset,
			Name:     f.Name,
			URL:      f.URL,
			Groups:   f.Groups,
			Modified: f.Age,
			Size:     f.Size,
			Latest:   latest[f.Dataset].URL == f.URL,
		}
	})
}

func renderTable(extracts []db.Extract) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Groups", "Dataset", "File", "Updated", "Size", "Latest")
	for _, e := range extracts {
		t.Row(
			strings.Join(e.Groups, ", "),
			e.Dataset,
			e.Name,
			types.Entry{Modified: e.Modified}.Updated().Format("2006-01-02 15:04"),
			lo.Ternary(e.Size > 0, humanize.Bytes(uint64(e.Size)), "-"),
			lo.Ternary(e.Latest, "*", ""),
		)
	}
	return t.String()
}
