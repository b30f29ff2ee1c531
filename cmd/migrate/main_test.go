package main

import (
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_transactions.sql", true, 1, "create_transactions"},
		{"0012_add_index.sql", true, 12, "add_index"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationName(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("ALTER TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transactions` ADD COLUMN note STRING;")},
		"0001_first.sql":  {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transactions` (id STRING);")},
		"README.md":       {Data: []byte("not a migration")},
	}

	migrations, err := readMigrations(fsys, "proj", "ledger")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "`proj.ledger.transactions`")
	assert.False(t, strings.Contains(migrations[1].SQL, "{{"))

	// The checksum ignores the substituted values.
	again, err := readMigrations(fsys, "other", "dataset")
	require.NoError(t, err)
	assert.Equal(t, migrations[0].Checksum, again[0].Checksum)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestReadMigrations_RepoFiles(t *testing.T) {
	dir, err := findMigrationsDir("migrations/bigquery")
	require.NoError(t, err)

	migrations, err := readMigrations(os.DirFS(dir), "proj", "ledger")
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "create_transactions", migrations[0].Name)
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := pending(migrations, map[int]bool{1: true, 3: true})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)
}
