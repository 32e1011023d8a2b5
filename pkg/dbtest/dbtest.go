package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ookla/speedtest-extract/pkg/db"
)

func InitDB(t *testing.T, extracts []db.Extract) db.DB {
	dbc, err := db.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })

	require.NoError(t, dbc.Init())

	if len(extracts) > 0 {
		require.NoError(t, dbc.InsertExtracts(extracts))
	}
	return dbc
}
