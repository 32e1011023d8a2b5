package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/ookla/speedtest-extract/pkg/fileutil"
	"github.com/ookla/speedtest-extract/pkg/types"
)

// NoFilesMessage is reported when the listing contains no extract files.
const NoFilesMessage = "No data extract files found. If this is an error, please contact your technical account manager."

// ErrUnsafePath is returned for listing names that would resolve outside the storage directory.
var ErrUnsafePath = errors.New("unsafe file path")

// Opener starts the download of a file URL.
type Opener interface {
	Open(ctx context.Context, rawURL string) (*http.Response, error)
}

type Option struct {
	StorageDir       string
	SkipExisting     bool
	UseFileHierarchy bool

	// Progress receives byte progress bars. Nil disables them.
	Progress io.Writer
	Fs       afero.Fs
	Clock    clock.Clock
}

type Downloader struct {
	opener       Opener
	fs           afero.Fs
	clock        clock.Clock
	dir          string
	skipExisting bool
	hierarchy    bool
	progress     io.Writer
	logger       *slog.Logger
}

// Result lists the file names handled by a download run.
type Result struct {
	Downloaded []string
	Skipped    []string
	Failed     []string
}

// FileError identifies the dataset file that could not be downloaded.
type FileError struct {
	Dataset string
	Name    string
	Err     error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("error downloading %s (dataset %s): %s", e.Name, e.Dataset, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func NewDownloader(opener Opener, opt Option) *Downloader {
	if opt.Fs == nil {
		opt.Fs = afero.NewOsFs()
	}
	if opt.Clock == nil {
		opt.Clock = clock.RealClock{}
	}
	if opt.StorageDir == "" {
		opt.StorageDir = "."
	}
	return &Downloader{
		opener:       opener,
		fs:           opt.Fs,
		clock:        opt.Clock,
		dir:          opt.StorageDir,
		skipExisting: opt.SkipExisting,
		hierarchy:    opt.UseFileHierarchy,
		progress:     opt.Progress,
		logger:       slog.Default().With(slog.String("component", "downloader")),
	}
}

// Download fetches the files into the storage directory, one at a time and in
// order. A failed file does not stop the others; all failures are returned joined.
func (d *Downloader) Download(ctx context.Context, files []types.SelectedFile) (Result, error) {
	var result Result
	if len(files) == 0 {
		d.logger.Info(NoFilesMessage)
		return result, nil
	}
	d.logger.Info(fmt.Sprintf("Found %d file(s)", len(files)))

	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		skipped, err := d.download(ctx, f)
		switch {
		case err != nil:
			fileErr := &FileError{Dataset: f.Dataset, Name: f.Name, Err: err}
			d.logger.Error("Download failed", slog.String("file", f.Name), slog.Any("error", err))
			errs = append(errs, fileErr)
			result.Failed = append(result.Failed, f.Name)
		case skipped:
			result.Skipped = append(result.Skipped, f.Name)
		default:
			result.Downloaded = append(result.Downloaded, f.Name)
		}
	}

	d.logger.Info(fmt.Sprintf("Downloaded %d file(s), skipped %d existing file(s), encountered %d error(s)",
		len(result.Downloaded), len(result.Skipped), len(result.Failed)))
	return result, errors.Join(errs...)
}

// Path returns the local path a selected file is written to. Names, groups and
// dataset keys come from the listing and must each be a single path element.
func (d *Downloader) Path(f types.SelectedFile) (string, error) {
	if !isPathElement(f.Name) {
		return "", xerrors.Errorf("file name %q: %w", f.Name, ErrUnsafePath)
	}
	if !d.hierarchy {
		return filepath.Join(d.dir, f.Name), nil
	}

	parts := []string{d.dir}
	for _, elem := range append(slices.Clone(f.Groups), f.Dataset) {
		if !isPathElement(elem) {
			return "", xerrors.Errorf("directory %q of %s: %w", elem, f.Name, ErrUnsafePath)
		}
		parts = append(parts, elem)
	}
	parts = append(parts, f.Name)
	return filepath.Join(parts...), nil
}

func isPathElement(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func (d *Downloader) download(ctx context.Context, f types.SelectedFile) (bool, error) {
	path, err := d.Path(f)
	if err != nil {
		return false, err
	}
	if d.skipExisting {
		exists, err := fileutil.Exists(d.fs, path)
		if err != nil {
			return false, err
		}
		if exists {
			d.logger.Info(fmt.Sprintf("%s exists, skipping", f.Name))
			return true, nil
		}
	}

	d.logger.Info("Downloading", slog.String("file", f.Name), slog.String("dir", filepath.Dir(path)))
	start := d.clock.Now()

	resp, err := d.opener.Open(ctx, f.URL)
	if err != nil {
		return false, xerrors.Errorf("http get error: %w", err)
	}
	defer resp.Body.Close()

	n, err := d.save(path, resp)
	if err == nil && f.Size > 0 && n != f.Size {
		err = xerrors.Errorf("filesize mismatch for %s. expected: %d, received: %d", f.Name, f.Size, n)
	}
	if err != nil {
		// A partial file must not be mistaken for a complete extract.
		_ = d.fs.Remove(path)
		return false, err
	}

	d.logger.Info("Download complete", slog.String("file", f.Name),
		slog.String("size", humanize.Bytes(uint64(n))), slog.Duration("elapsed", d.clock.Since(start)))
	return false, nil
}

func (d *Downloader) save(path string, resp *http.Response) (int64, error) {
	if err := d.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, xerrors.Errorf("unable to create a directory: %w", err)
	}

	out, err := d.fs.Create(path)
	if err != nil {
		return 0, xerrors.Errorf("can't create file %s: %w", path, err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if d.progress != nil {
		bar := pb.Full.New(0).
			SetTotal(max(resp.ContentLength, 0)).
			Set(pb.Bytes, true).
			SetWriter(d.progress).
			Start()
		defer bar.Finish()
		body = bar.NewProxyReader(resp.Body)
	}

	n, err := io.Copy(out, body)
	if err != nil {
		return n, xerrors.Errorf("can't copy file %s: %w", path, err)
	}
	return n, nil
}
