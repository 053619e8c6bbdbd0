package migrate

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverSortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"002_tickets.sql": &fstest.MapFile{Data: []byte("CREATE TABLE tickets (id int);")},
		"001_guilds.sql":  &fstest.MapFile{Data: []byte("CREATE TABLE guilds (id int);")},
		"010_panels.sql":  &fstest.MapFile{Data: []byte("CREATE TABLE panels (id int);")},
		"README.md":       &fstest.MapFile{Data: []byte("notes")},
		".keep":           &fstest.MapFile{Data: nil},
	}

	migrations, err := Discover(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, "001_guilds", migrations[0].ID)
	assert.Equal(t, "002_tickets", migrations[1].ID)
	assert.Equal(t, "010_panels", migrations[2].ID)
	assert.Equal(t, "001_guilds.sql", migrations[0].Filename)
	assert.Equal(t, "CREATE TABLE guilds (id int);", migrations[0].SQL)
}

func TestDiscoverEmptyDir(t *testing.T) {
	migrations, err := Discover(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestDiscoverDirUnreadable(t *testing.T) {
	_, err := DiscoverDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestChecksumDeterministic(t *testing.T) {
	body := "CREATE TABLE guilds (id int);"
	assert.Equal(t, Checksum(body), Checksum(body))
	assert.NotEqual(t, Checksum(body), Checksum(body+" "))
	assert.Len(t, Checksum(body), 64)
}
