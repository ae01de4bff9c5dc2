package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsSortedEntries(t *testing.T) {
	entries, err := Migrations(map[string]string{
		"net/x/D#f_2": "[I",
		"net/x/C#f_1": "Lnet/x/Bar;",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "net/x/C#f_1", entries[0].Key.String())
	assert.Equal(t, "Lnet/x/Bar;", entries[0].Desc)
	assert.Equal(t, "net/x/D#f_2", entries[1].Key.String())
}

func TestMigrationsAggregatesIssues(t *testing.T) {
	_, err := Migrations(map[string]string{
		"nohash":      "I",
		"a#b#c":       "I",
		"net/x/C#f_1": "Lbroken",
		"net/x/C#f_2": "I",
	})
	require.Error(t, err)
	lines := strings.Split(err.Error(), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, err.Error(), `"nohash"`)
	assert.Contains(t, err.Error(), `"a#b#c"`)
	assert.Contains(t, err.Error(), `"net/x/C#f_1"`)
}

func TestMigrationsEmpty(t *testing.T) {
	entries, err := Migrations(map[string]string{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
