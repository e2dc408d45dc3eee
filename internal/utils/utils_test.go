package utils

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"darn", "heck"}, SplitList(" darn, ,heck ,"))
	assert.Nil(t, SplitList(""))
}

func TestDBLockExcludesSecondHolder(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "visingers.sqlite")

	first, err := NewDBLock(dbPath)
	require.NoError(t, err)
	second, err := NewDBLock(dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath+".lock", first.Path())

	require.NoError(t, first.Lock())
	ok, err := second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
}

func TestPostgresLockPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := lockPathFor("postgres://user:pw@db.local:5432/visingers?sslmode=disable")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join(".config", "visingers", "pg-db.local_5432_visingers.lock")), path)
}
