package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tessera-db/tessera/internal/join"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tessera.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	require.Equal(t, 100*time.Millisecond, c.ScanBudget)
	require.Equal(t, 10000, c.MaxJoinBuffer)
	require.False(t, c.Debug)
	for _, jt := range []join.Type{join.Inner, join.Left, join.Semi, join.Anti} {
		require.True(t, c.JoinEnabled(jt))
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConf(t, `
# execution core tunables
scan_budget_ms = 250
join_types = inner, semi
max_join_buffer = 500
debug = true
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, c.ScanBudget)
	require.Equal(t, 500, c.MaxJoinBuffer)
	require.True(t, c.Debug)
	require.True(t, c.JoinEnabled(join.Inner))
	require.True(t, c.JoinEnabled(join.Semi))
	require.False(t, c.JoinEnabled(join.Left))
	require.False(t, c.JoinEnabled(join.Anti))
}

func TestLoadKeepsDefaultsForOmittedKeys(t *testing.T) {
	t.Parallel()

	c, err := Load(writeConf(t, "scan_budget_ms = 75\n"))
	require.NoError(t, err)
	require.Equal(t, 75*time.Millisecond, c.ScanBudget)
	require.Equal(t, 10000, c.MaxJoinBuffer)
	require.True(t, c.JoinEnabled(join.Anti))
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key":       "page_size = 4096\n",
		"bad budget":        "scan_budget_ms = soon\n",
		"zero budget":       "scan_budget_ms = 0\n",
		"negative buffer":   "max_join_buffer = -1\n",
		"unknown join type": "join_types = inner, cross\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConf(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.Error(t, err)
}
