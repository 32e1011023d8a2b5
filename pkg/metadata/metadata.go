package metadata

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/ookla/speedtest-extract/pkg/fileutil"
)

const metadataFile = ".speedtest-extract.json"

// Client reads and writes the report of the last download run. The report is
// informational only; selection never depends on it.
type Client struct {
	fs    afero.Fs
	path  string
	clock clock.Clock
}

type Metadata struct {
	Version      string    `json:",omitempty"`
	DownloadedAt time.Time
	Downloaded   []string
	Skipped      []string
	Failed       []string
}

// Path returns the metadata file path
func Path(storageDir string) string {
	return filepath.Join(storageDir, metadataFile)
}

func New(fs afero.Fs, storageDir string, clk clock.Clock) Client {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return Client{
		fs:    fs,
		path:  Path(storageDir),
		clock: clk,
	}
}

// Get returns the last run report
func (c *Client) Get() (Metadata, error) {
	f, err := c.fs.Open(c.path)
	if err != nil {
		return Metadata{}, xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	var meta Metadata
	if err = json.NewDecoder(f).Decode(&meta); err != nil {
		return Metadata{}, xerrors.Errorf("unable to decode metadata: %w", err)
	}
	return meta, nil
}

// Update stamps DownloadedAt and saves the report.
func (c *Client) Update(meta Metadata) error {
	meta.DownloadedAt = c.clock.Now().UTC()
	if err := fileutil.WriteJSON(c.fs, c.path, meta); err != nil {
		return xerrors.Errorf("unable to write metadata: %w", err)
	}
	return nil
}
