package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/xerrors"
	"k8s.io/utils/clock"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Extract is one catalogued extract file.
type Extract struct {
	Dataset  string
	Name     string
	URL      string
	Groups   []string
	Modified int64
	Size     int64
	Latest   bool
}

// DB is a SQLite catalog of a listing, for offline querying.
type DB struct {
	client *sql.DB
	clock  clock.Clock
}

func New(dbPath string) (DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return DB{}, xerrors.Errorf("failed to mkdir: %w", err)
	}

	client, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return DB{}, xerrors.Errorf("can't open db: %w", err)
	}

	return DB{
		client: client,
		clock:  clock.RealClock{},
	}, nil
}

// Init creates the tables. Existing rows are dropped so the catalog always
// reflects a single listing.
func (db *DB) Init() error {
	stmts := []string{
		"DROP TABLE IF EXISTS extracts",
		"DROP TABLE IF EXISTS datasets",
		"DROP TABLE IF EXISTS catalog",
		"CREATE TABLE datasets(id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE extracts(dataset_id INTEGER, name TEXT, url TEXT, group_path TEXT, mtime INTEGER, size INTEGER, latest INTEGER, foreign key (dataset_id) references datasets(id))",
		"CREATE TABLE catalog(schema_version INTEGER, created_at TEXT)",
		"CREATE UNIQUE INDEX datasets_idx ON datasets(name)",
		"CREATE UNIQUE INDEX extracts_url_idx ON extracts(url)",
	}
	if _, err := db.client.Exec("PRAGMA foreign_keys=true"); err != nil {
		return xerrors.Errorf("failed to enable 'foreign_keys': %w", err)
	}
	for _, stmt := range stmts {
		if _, err := db.client.Exec(stmt); err != nil {
			return xerrors.Errorf("unable to init catalog (%s): %w", stmt, err)
		}
	}
	if _, err := db.client.Exec("INSERT INTO catalog(schema_version, created_at) VALUES (?, ?)",
		schemaVersion, db.clock.Now().UTC().Format(time.RFC3339)); err != nil {
		return xerrors.Errorf("unable to insert to 'catalog' table: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.client.Close()
}

func (db *DB) InsertExtracts(extracts []Extract) error {
	tx, err := db.client.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range extracts {
		if _, err = tx.Exec(`INSERT INTO datasets(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, e.Dataset); err != nil {
			return xerrors.Errorf("unable to insert to 'datasets' table: %w", err)
		}
		if _, err = tx.Exec(`INSERT INTO extracts(dataset_id, name, url, group_path, mtime, size, latest) VALUES ((SELECT id FROM datasets WHERE name=?), ?, ?, ?, ?, ?, ?) ON CONFLICT(url) DO NOTHING`,
			e.Dataset, e.Name, e.URL, strings.Join(e.Groups, "/"), e.Modified, e.Size, e.Latest); err != nil {
			return xerrors.Errorf("unable to insert to 'extracts' table: %w", err)
		}
	}
	return tx.Commit()
}

// SelectLatest returns the latest extract of every dataset, ordered by dataset.
func (db *DB) SelectLatest() ([]Extract, error) {
	return db.selectExtracts(`WHERE e.latest = 1 ORDER BY d.name`)
}

func (db *DB) selectExtracts(where string) ([]Extract, error) {
	rows, err := db.client.Query(`SELECT d.name, e.name, e.url, e.group_path, e.mtime, e.size, e.latest FROM extracts e JOIN datasets d ON d.id = e.dataset_id ` + where)
	if err != nil {
		return nil, xerrors.Errorf("select extracts error: %w", err)
	}
	defer rows.Close()

	var extracts []Extract
	for rows.Next() {
		var e Extract
		var groups string
		if err = rows.Scan(&e.Dataset, &e.Name, &e.URL, &groups, &e.Modified, &e.Size, &e.Latest); err != nil {
			return nil, xerrors.Errorf("scan row error: %w", err)
		}
		if groups != "" {
			e.Groups = strings.Split(groups, "/")
		}
		extracts = append(extracts, e)
	}
	if err = rows.Err(); err != nil {
		return nil, xerrors.Errorf("rows error: %w", err)
	}
	return extracts, nil
}
