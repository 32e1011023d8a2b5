package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/xerrors"

	"github.com/ookla/speedtest-extract/pkg/crawler"
	"github.com/ookla/speedtest-extract/pkg/downloader"
	"github.com/ookla/speedtest-extract/pkg/filter"
	"github.com/ookla/speedtest-extract/pkg/metadata"
	"github.com/ookla/speedtest-extract/pkg/selector"
	"github.com/ookla/speedtest-extract/pkg/types"
)

type downloadOptions struct {
	skipExisting     bool
	useFileHierarchy bool
	noProgress       bool
	confirm          bool
}

func newDownloadCmd(g *globalOptions) *cobra.Command {
	opts := &downloadOptions{}
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the latest extract file of every dataset",
		Long: `Download the latest extract file of every dataset.
With --all or --since every matching extract file is downloaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd, g, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.skipExisting, "skip-existing", false, "Don't re-download extract files that already exist locally")
	cmd.Flags().BoolVar(&opts.useFileHierarchy, "use-file-hierarchy", false, "Download files into a hierarchy based on the group and dataset names vs a flat list")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Don't show download progress bars")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Don't prompt to confirm downloads")
	return cmd
}

func runDownload(cmd *cobra.Command, g *globalOptions, opts *downloadOptions) error {
	ctx := cmd.Context()
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	f, err := g.filter()
	if err != nil {
		return err
	}

	s := newSession(cfg)
	files, err := downloadFiles(ctx, crawler.NewCrawler(s), f, g.showAll(f))
	if err != nil {
		return err
	}

	if len(files) > 0 && !opts.confirm && isTerminal(cmd.InOrStdin()) {
		proceed, err := confirmDownload(cmd.InOrStdin(), cmd.ErrOrStderr(), func() {
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(selectedExtracts(files)))
		})
		if err != nil {
			return xerrors.Errorf("confirmation error: %w", err)
		}
		if !proceed {
			slog.Info("Download cancelled")
			return nil
		}
	}

	var progress io.Writer
	if !opts.noProgress {
		progress = cmd.ErrOrStderr()
	}
	fs := afero.NewOsFs()
	d := downloader.NewDownloader(s, downloader.Option{
		StorageDir:       cfg.StorageDirectory,
		SkipExisting:     opts.skipExisting,
		UseFileHierarchy: opts.useFileHierarchy,
		Progress:         progress,
		Fs:               fs,
	})
	result, err := d.Download(ctx, files)
	if len(files) == 0 {
		return err
	}

	meta := metadata.New(fs, cfg.StorageDirectory, nil)
	if metaErr := meta.Update(metadata.Metadata{
		Version:    version,
		Downloaded: result.Downloaded,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
	}); metaErr != nil {
		slog.Warn("Unable to save run report", slog.Any("error", metaErr))
	}

	if err != nil {
		return xerrors.Errorf("download error: %w", err)
	}
	return nil
}

// downloadFiles walks the listing and returns the files to fetch: the latest
// of each dataset, or every matching file when all is set.
func downloadFiles(ctx context.Context, c *crawler.Crawler, f filter.Options, all bool) ([]types.SelectedFile, error) {
	entries := c.Files(ctx)
	if all {
		return selector.CollectAll(entries, f.Match)
	}
	latest, err := selector.Collect(entries, f.Match)
	if err != nil {
		return nil, err
	}
	return selector.Files(latest), nil
}

// isTerminal reports whether in is an interactive terminal. Scripted runs are
// never prompted.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// confirmDownload asks until it gets a yes or no. Answering list calls list
// once and asks again.
func confirmDownload(in io.Reader, out io.Writer, list func()) (bool, error) {
	r := bufio.NewReader(in)
	choices := "[(y)es|(n)o|(l)ist]"
	listed := false
	for {
		fmt.Fprintf(out, "\nProceed with download? %s: ", choices)
		line, err := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		case "l", "list":
			if !listed {
				list()
				listed = true
				choices = "[(y)es|(n)o]"
				continue
			}
		}
		if err != nil {
			return false, err
		}
	}
}
