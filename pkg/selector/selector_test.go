package selector_test

import (
	"errors"
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ookla/speedtest-extract/pkg/selector"
	"github.com/ookla/speedtest-extract/pkg/types"
)

func file(name string, mtime int64) types.Entry {
	return types.Entry{Type: types.FileType, Name: name, URL: "/" + name, Modified: mtime}
}

func fold(entries []types.Entry) types.Mapping {
	var m types.Mapping
	for _, e := range entries {
		m = selector.Select(m, e)
	}
	return m
}

func seq(entries []types.Entry, err error) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
		if err != nil {
			yield(types.Entry{}, err)
		}
	}
}

func TestDatasetKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantOk  bool
	}{
		{
			name:    "happy path",
			input:   "speedtest_20200101.csv",
			wantKey: "speedtest",
			wantOk:  true,
		},
		{
			name:    "dashed date",
			input:   "android_2022-05-01.zip",
			wantKey: "android",
			wantOk:  true,
		},
		{
			name:    "first marker wins",
			input:   "fixed_2021_2022-01-01.zip",
			wantKey: "fixed",
			wantOk:  true,
		},
		{
			name:    "underscores in dataset name",
			input:   "mobile_network_performance_2022-01-01.zip",
			wantKey: "mobile_network_performance",
			wantOk:  true,
		},
		{
			name:   "no date marker",
			input:  "README.txt",
			wantOk: false,
		},
		{
			name:   "header file",
			input:  "speedtest_headers_20200101.csv",
			wantOk: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := selector.DatasetKey(tt.input)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestIsDataset(t *testing.T) {
	assert.True(t, selector.IsDataset(file("web_2022-01-01.zip", 1)))
	assert.False(t, selector.IsDataset(file("web_headers_2022-01-01.zip", 1)))
	assert.False(t, selector.IsDataset(file("web.zip", 1)))
	assert.False(t, selector.IsDataset(types.Entry{Type: types.DirType, Name: "web_2022"}))
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		entries []types.Entry
		want    types.Mapping
	}{
		{
			name: "headers excluded and newer file wins",
			entries: []types.Entry{
				file("speedtest_20200101.csv", 100),
				file("speedtest_20200201.csv", 200),
				file("speedtest_headers_20200101.csv", 300),
			},
			want: types.Mapping{
				"speedtest": {Dataset: "speedtest", Name: "speedtest_20200201.csv", URL: "/speedtest_20200201.csv", Age: 200},
			},
		},
		{
			name: "older file does not replace newer",
			entries: []types.Entry{
				file("web_2022-05-01.zip", 500),
				file("web_2022-04-01.zip", 400),
			},
			want: types.Mapping{
				"web": {Dataset: "web", Name: "web_2022-05-01.zip", URL: "/web_2022-05-01.zip", Age: 500},
			},
		},
		{
			name: "equal mtime keeps the first seen",
			entries: []types.Entry{
				file("web_2022-05-01.zip", 500),
				file("web_2022-05-02.zip", 500),
			},
			want: types.Mapping{
				"web": {Dataset: "web", Name: "web_2022-05-01.zip", URL: "/web_2022-05-01.zip", Age: 500},
			},
		},
		{
			name: "files without date marker dropped",
			entries: []types.Entry{
				file("README.txt", 1),
				file("notes.csv", 2),
			},
			want: types.Mapping{},
		},
		{
			name: "independent datasets",
			entries: []types.Entry{
				file("web_2022-05-01.zip", 5),
				file("android_2022-05-01.zip", 6),
			},
			want: types.Mapping{
				"web":     {Dataset: "web", Name: "web_2022-05-01.zip", URL: "/web_2022-05-01.zip", Age: 5},
				"android": {Dataset: "android", Name: "android_2022-05-01.zip", URL: "/android_2022-05-01.zip", Age: 6},
			},
		},
		{
			name:    "empty listing",
			entries: nil,
			want:    types.Mapping{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selector.Select(nil, types.Entry{})
			for _, e := range tt.entries {
				got = selector.Select(got, e)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_OrderIndependent(t *testing.T) {
	entries := []types.Entry{
		file("x_2020-01-01.zip", 10),
		file("x_2020-02-01.zip", 30),
		file("x_2020-03-01.zip", 20),
		file("y_2020-01-01.zip", 5),
		file("y_headers_2020-01-01.zip", 50),
		file("z.zip", 99),
	}
	want := fold(entries)

	// Every rotation and the reverse order produce the same mapping.
	for i := range entries {
		rotated := append(slices.Clone(entries[i:]), entries[:i]...)
		assert.Equal(t, want, fold(rotated))
	}
	reversed := slices.Clone(entries)
	slices.Reverse(reversed)
	assert.Equal(t, want, fold(reversed))

	// Folding partitions separately and merging the results gives the same mapping.
	left := fold(entries[:3])
	right := fold(entries[3:])
	merged := left
	for _, f := range right {
		merged = selector.Select(merged, file(f.Name, f.Age))
	}
	assert.Equal(t, want, merged)

	// Idempotent: folding the same input again changes nothing.
	again := want
	for _, e := range entries {
		again = selector.Select(again, e)
	}
	assert.Equal(t, fold(entries), again)
	assert.Equal(t, "x_2020-02-01.zip", want["x"].Name)
	assert.Len(t, want, 2)
}

func TestCollect(t *testing.T) {
	entries := []types.Entry{
		file("web_2022-05-01.zip", 500),
		file("android_2022-05-01.zip", 600),
	}

	t.Run("happy path", func(t *testing.T) {
		got, err := selector.Collect(seq(entries, nil), nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("keep filter", func(t *testing.T) {
		got, err := selector.Collect(seq(entries, nil), func(e types.Entry) bool {
			return e.Name != "web_2022-05-01.zip"
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"android"}, keys(got))
	})

	t.Run("error discards partial mapping", func(t *testing.T) {
		listErr := errors.New("listing failed")
		got, err := selector.Collect(seq(entries, listErr), nil)
		require.ErrorIs(t, err, listErr)
		assert.Nil(t, got)
	})
}

func TestCollectAll(t *testing.T) {
	entries := []types.Entry{
		file("web_2022-05-01.zip", 500),
		file("README.txt", 1),
		file("web_2022-04-01.zip", 400),
		file("android_2022-05-01.zip", 600),
	}

	t.Run("every eligible file in walk order", func(t *testing.T) {
		got, err := selector.CollectAll(seq(entries, nil), nil)
		require.NoError(t, err)
		assert.Equal(t, []types.SelectedFile{
			{Dataset: "web", Name: "web_2022-05-01.zip", URL: "/web_2022-05-01.zip", Age: 500},
			{Dataset: "web", Name: "web_2022-04-01.zip", URL: "/web_2022-04-01.zip", Age: 400},
			{Dataset: "android", Name: "android_2022-05-01.zip", URL: "/android_2022-05-01.zip", Age: 600},
		}, got)
	})

	t.Run("keep filter", func(t *testing.T) {
		got, err := selector.CollectAll(seq(entries, nil), func(e types.Entry) bool {
			return e.Modified < 500
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "web_2022-04-01.zip", got[0].Name)
	})

	t.Run("error discards partial list", func(t *testing.T) {
		listErr := errors.New("listing failed")
		got, err := selector.CollectAll(seq(entries, listErr), nil)
		require.ErrorIs(t, err, listErr)
		assert.Nil(t, got)
	})
}

func TestFiles(t *testing.T) {
	m := fold([]types.Entry{
		file("web_2022-05-01.zip", 5),
		file("android_2022-05-01.zip", 6),
		file("desktop_2022-05-01.zip", 7),
	})
	got := selector.Files(m)
	assert.Equal(t, []string{"android", "desktop", "web"}, []string{got[0].Dataset, got[1].Dataset, got[2].Dataset})
	assert.Empty(t, selector.Files(nil))
}

func TestIsLatest(t *testing.T) {
	older := file("web_2022-04-01.zip", 4)
	newer := file("web_2022-05-01.zip", 5)
	m := fold([]types.Entry{older, newer})

	assert.True(t, selector.IsLatest(m, newer))
	assert.False(t, selector.IsLatest(m, older))
	assert.False(t, selector.IsLatest(m, file("README.txt", 9)))
}

func keys(m types.Mapping) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	return ks
}
