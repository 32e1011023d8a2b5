package filter

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ookla/speedtest-extract/pkg/selector"
	"github.com/ookla/speedtest-extract/pkg/types"
)

const sinceLayout = "2006-01-02"

// Options limits which extract files are considered. Empty fields match everything.
type Options struct {
	Groups    []string
	Datasets  []string
	Filenames []string
	Since     *time.Time
}

// ParseList splits a comma-delimited flag value, dropping empty items.
func ParseList(s string) []string {
	items := lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Compact(items)
}

// ParseSince parses a YYYY-MM-DD date. An empty string yields nil.
func ParseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(sinceLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Match reports whether an extract file passes every configured filter.
func (o Options) Match(e types.Entry) bool {
	if len(o.Groups) > 0 && !lo.Some(e.Groups, o.Groups) {
		return false
	}
	if len(o.Datasets) > 0 {
		key, ok := selector.DatasetKey(e.Name)
		if !ok || !lo.Contains(o.Datasets, key) {
			return false
		}
	}
	if len(o.Filenames) > 0 && !o.matchFilename(e.Name) {
		return false
	}
	if o.Since != nil && e.Updated().Before(*o.Since) {
		return false
	}
	return true
}

// matchFilename accepts names given with or without the .zip extension.
func (o Options) matchFilename(name string) bool {
	return lo.ContainsBy(o.Filenames, func(f string) bool {
		return f == name || f+".zip" == name
	})
}
