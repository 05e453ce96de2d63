package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	rooms, err := loadCatalog("../../config/catalog.example.yaml")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Patio", rooms[0].Name)
	require.Len(t, rooms[0].Tables, 4)
	assert.Equal(t, int64(4), rooms[0].Tables[3].ID)
	assert.Equal(t, 6, rooms[0].Tables[3].Capacity)
	assert.Equal(t, "Mesa 6", rooms[1].Tables[1].Name)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rooms: []\n"), 0o600))
	_, err := loadCatalog(empty)
	assert.ErrorContains(t, err, "no rooms")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("rooms: [\n"), 0o600))
	_, err = loadCatalog(broken)
	assert.Error(t, err)

	_, err = loadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "seed", "user"} {
		assert.True(t, names[want], want)
	}
}
