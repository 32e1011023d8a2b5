package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/ookla/speedtest-extract/pkg/config"
	"github.com/ookla/speedtest-extract/pkg/filter"
	"github.com/ookla/speedtest-extract/pkg/session"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	verbose    bool
	all        bool
	groups     string
	datasets   string
	filenames  string
	since      string
	retries    int
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "speedtest-extract",
		Short:         "Download extract files for Speedtest Intelligence",
		Version:       fmt.Sprintf("%s,%s", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogger(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", config.DefaultFile, "Specify the config file")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging to help with debugging")
	flags.BoolVar(&opts.all, "all", false, "Include all extract files, not just the latest of each dataset")
	flags.StringVar(&opts.groups, "filter-groups", "", "Limit extracts to this comma-delimited list of groups")
	flags.StringVar(&opts.datasets, "filter-datasets", "", "Limit extracts to this comma-delimited list of datasets")
	flags.StringVar(&opts.filenames, "filter-filenames", "", "Limit extracts to this comma-delimited list of filenames")
	flags.StringVar(&opts.since, "since", "", "Limit extracts to ones updated since the provided date (YYYY-MM-DD), implies --all")
	flags.IntVar(&opts.retries, "retries", -1, "Retry failed requests this many times (overrides retry_max)")

	cmd.AddCommand(
		newListCmd(opts),
		newDownloadCmd(opts),
		newAuthCmd(),
	)
	return cmd
}

func setupLogger(w io.Writer, verbose bool) {
	logger := log.NewWithOptions(w, log.Options{
		Level: log.InfoLevel,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportTimestamp(true)
	}
	slog.SetDefault(slog.New(logger))
}

// loadConfig reads the config file. A missing file is created with default
// values so the user only has to fill in the credentials.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			if err = config.WriteDefault(o.configFile); err != nil {
				return nil, err
			}
			return nil, xerrors.Errorf("config file not found, wrote default values to %s", o.configFile)
		}
		return nil, err
	}
	if o.retries >= 0 {
		cfg.RetryMax = o.retries
	}

	slog.Debug("config values",
		slog.String("extractUrl", cfg.ExtractURL),
		slog.String("storageDirectory", cfg.StorageDirectory),
		slog.Int("retryMax", cfg.RetryMax),
		slog.Duration("timeout", cfg.Timeout))
	return cfg, nil
}

func (o *globalOptions) filter() (filter.Options, error) {
	since, err := filter.ParseSince(o.since)
	if err != nil {
		return filter.Options{}, xerrors.Errorf("invalid --since value: %w", err)
	}
	f := filter.Options{
		Groups:    filter.ParseList(o.groups),
		Datasets:  filter.ParseList(o.datasets),
		Filenames: filter.ParseList(o.filenames),
		Since:     since,
	}
	slog.Debug("filters",
		slog.Any("groups", f.Groups),
		slog.Any("datasets", f.Datasets),
		slog.Any("filenames", f.Filenames),
		slog.Any("since", f.Since))
	return f, nil
}

// showAll reports whether every matching file is wanted rather than the latest
// of each dataset. A since date asks for every file updated after it.
func (o *globalOptions) showAll(f filter.Options) bool {
	return o.all || f.Since != nil
}

func newSession(cfg *config.Config) *session.Session {
	return session.New(session.Option{
		ExtractURL: cfg.ExtractURL,
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		UserAgent:  fmt.Sprintf("speedtest-extract/%s", version),
		RetryMax:   cfg.RetryMax,
		Timeout:    cfg.Timeout,
	})
}
