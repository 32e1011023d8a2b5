package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// WriteJSON writes v as indented JSON, creating parent directories as needed.
func WriteJSON(fs afero.Fs, filePath string, v interface{}) error {
	if err := fs.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return xerrors.Errorf("unable to create a directory: %w", err)
	}

	f, err := fs.Create(filePath)
	if err != nil {
		return xerrors.Errorf("unable to open %s: %w", filePath, err)
	}
	defer f.Close()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err = f.Write(b); err != nil {
		return xerrors.Errorf("failed to save a file: %w", err)
	}
	return nil
}

// Exists reports whether a regular file exists at path.
func Exists(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, xerrors.Errorf("stat error: %w", err)
	}
	return !info.IsDir(), nil
}
