package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenExclFile(t *testing.T) {
	dir := t.TempDir()

	f1, err := OpenExclFile(dir, "backup", ".zip", 0666)
	require.NoError(t, err)
	defer f1.Close()
	assert.Equal(t, filepath.Join(dir, "backup.zip"), f1.Name())

	f2, err := OpenExclFile(dir, "backup", ".zip", 0666)
	require.NoError(t, err)
	defer f2.Close()
	assert.Equal(t, filepath.Join(dir, "backup-1.zip"), f2.Name())

	f3, err := OpenExclFile(dir, "backup", ".zip", 0666)
	require.NoError(t, err)
	defer f3.Close()
	assert.Equal(t, filepath.Join(dir, "backup-2.zip"), f3.Name())
}

func TestMkExclDir(t *testing.T) {
	dir := t.TempDir()

	name, err := MkExclDir(dir, "restored", 0755)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "restored"), name)

	name, err = MkExclDir(dir, "restored", 0755)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "restored-1"), name)

	fi, err := os.Stat(name)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
