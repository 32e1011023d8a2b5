package types

import (
	"strings"
	"time"
)

type EntryType string

const (
	// types of listing entries
	FileType EntryType = "file"
	DirType  EntryType = "dir"
)

// Entry is a single node of a listing returned by the extracts service.
type Entry struct {
	Type     EntryType `json:"type"`
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Modified int64     `json:"mtime"`
	Size     int64     `json:"size"`

	// Groups is the directory path the entry was listed in, split on "/".
	Groups []string `json:"-"`
}

func (e Entry) IsDir() bool {
	return e.Type == DirType
}

func (e Entry) IsFile() bool {
	return e.Type == FileType
}

// Updated returns the modification time. The service reports mtime in milliseconds.
func (e Entry) Updated() time.Time {
	return time.UnixMilli(e.Modified).UTC()
}

// GroupsFromPath splits a listing path like "/android/2022/" into its groups.
func GroupsFromPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// SelectedFile is the newest file found for a dataset.
type SelectedFile struct {
	Dataset string
	Name    string
	URL     string
	Age     int64
	Size    int64
	Groups  []string
}

// Mapping holds one SelectedFile per dataset key.
type Mapping map[string]SelectedFile
