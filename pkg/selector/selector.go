package selector

import (
	"iter"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/ookla/speedtest-extract/pkg/types"
)

const (
	// dateMarker marks the start of the date token in extract file names,
	// e.g. "android_2022-05-01.zip".
	dateMarker = "_20"
	// headerMarker marks column schema files, which are never extracts.
	headerMarker = "headers"
)

// IsHeader reports whether the name belongs to a header/schema file.
func IsHeader(name string) bool {
	return strings.Contains(name, headerMarker)
}

// IsDataset reports whether the entry is an extract file that can be selected.
func IsDataset(e types.Entry) bool {
	return e.IsFile() && !IsHeader(e.Name) && strings.Contains(e.Name, dateMarker)
}

// DatasetKey returns the name prefix before the first date marker.
// ok is false for names that are not extract files.
func DatasetKey(name string) (key string, ok bool) {
	if IsHeader(name) {
		return "", false
	}
	i := strings.Index(name, dateMarker)
	if i < 0 {
		return "", false
	}
	return name[:i], true
}

// Select folds one entry into the mapping and returns it.
// An existing dataset is only replaced by a strictly newer file, so on equal
// mtime the file seen first stays selected.
func Select(m types.Mapping, e types.Entry) types.Mapping {
	if m == nil {
		m = make(types.Mapping)
	}
	f, ok := FileOf(e)
	if !ok {
		return m
	}
	if cur, ok := m[f.Dataset]; ok && f.Age <= cur.Age {
		return m
	}
	m[f.Dataset] = f
	return m
}

// FileOf converts an extract file entry into a download candidate.
// ok is false for entries that are not extract files.
func FileOf(e types.Entry) (types.SelectedFile, bool) {
	if !IsDataset(e) {
		return types.SelectedFile{}, false
	}
	key, _ := DatasetKey(e.Name)
	return types.SelectedFile{
		Dataset: key,
		Name:    e.Name,
		URL:     e.URL,
		Age:     e.Modified,
		Size:    e.Size,
		Groups:  e.Groups,
	}, true
}

// Files returns the selected files ordered by dataset key.
func Files(m types.Mapping) []types.SelectedFile {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) types.SelectedFile {
		return m[k]
	})
}

// Collect drains the entry stream into a mapping. keep may be nil.
// Any error from the stream discards everything collected so far.
func Collect(entries iter.Seq2[types.Entry, error], keep func(types.Entry) bool) (types.Mapping, error) {
	m := make(types.Mapping)
	for e, err := range entries {
		if err != nil {
			return nil, xerrors.Errorf("listing error: %w", err)
		}
		if keep != nil && !keep(e) {
			continue
		}
		m = Select(m, e)
	}
	return m, nil
}

// CollectAll drains the entry stream into every extract file, in walk order,
// without reducing them to one per dataset. keep may be nil.
// Any error from the stream discards everything collected so far.
func CollectAll(entries iter.Seq2[types.Entry, error], keep func(types.Entry) bool) ([]types.SelectedFile, error) {
	var files []types.SelectedFile
	for e, err := range entries {
		if err != nil {
			return nil, xerrors.Errorf("listing error: %w", err)
		}
		if keep != nil && !keep(e) {
			continue
		}
		if f, ok := FileOf(e); ok {
			files = append(files, f)
		}
	}
	return files, nil
}

// IsLatest reports whether e is the file selected for its dataset.
func IsLatest(m types.Mapping, e types.Entry) bool {
	key, ok := DatasetKey(e.Name)
	if !ok {
		return false
	}
	sel, ok := m[key]
	return ok && sel.Name == e.Name && sel.URL == e.URL
}
