package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC)

// TestRoundTrip writes a synthetic site and reads the plugin row back.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(dir, "wp_updates", started)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wp_updates-20240501-093015.csv"), w.Path())

	require.NoError(t, w.AppendSite("example.com"))
	require.NoError(t, w.AppendComponent("WordPress Core", "6.5.3", "minor"))
	require.NoError(t, w.AppendComponent("akismet", "4.0", "true"))
	require.NoError(t, w.Close())

	rows, err := Read(w.Path())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, rows[0].IsIdentity())
	assert.Equal(t, "example.com", rows[0].Site)

	assert.False(t, rows[1].IsIdentity())
	assert.False(t, rows[1].UpdateAvailable())
	assert.Equal(t, "minor", rows[1].Upgradeable)

	plugin := rows[2]
	assert.Equal(t, []any{"", "akismet", "4.0", true},
		[]any{plugin.Site, plugin.Component, plugin.Version, plugin.UpdateAvailable()})
}

func TestRowsAreFlushedImmediately(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(dir, "flush", started)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AppendSite("example.org"))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "Site name,Plugin,Version,Upgradeable\nexample.org\n", string(data))
}

func TestCreateNeverReusesReport(t *testing.T) {
	dir := t.TempDir()

	first, err := Create(dir, "wp_updates", started)
	require.NoError(t, err)
	require.NoError(t, first.AppendSite("example.com"))
	require.NoError(t, first.Close())

	second, err := Create(dir, "wp_updates", started)
	require.NoError(t, err)
	require.NoError(t, second.AppendSite("example.org"))
	require.NoError(t, second.Close())

	assert.NotEqual(t, first.Path(), second.Path())
	assert.Equal(t, filepath.Join(dir, "wp_updates-20240501-093015-1.csv"), second.Path())

	rows, err := Read(first.Path())
	require.NoError(t, err)
	assert.Equal(t, []Row{{Site: "example.com"}}, rows)

	rows, err = Read(second.Path())
	require.NoError(t, err)
	assert.Equal(t, []Row{{Site: "example.org"}}, rows)
}

func TestUpdateAvailable(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"false", false},
		{"major", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, Row{Component: "x", Upgradeable: tt.value}.UpdateAvailable())
		})
	}
}

func TestReadWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	require.NoError(t, os.WriteFile(path, []byte("example.net\n,hello,1.7.2,false\n"), 0o644))

	rows, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{Site: "example.net"},
		{Component: "hello", Version: "1.7.2", Upgradeable: "false"},
	}, rows)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()

	older, err := Create(dir, "wp_updates", started)
	require.NoError(t, err)
	require.NoError(t, older.Close())

	newer, err := Create(dir, "wp_updates", started.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, newer.Close())

	other, err := Create(dir, "other", started.Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, other.Close())

	// Modification time wins over the name.
	now := time.Now()
	require.NoError(t, os.Chtimes(older.Path(), now, now))
	require.NoError(t, os.Chtimes(newer.Path(), now.Add(-time.Hour), now.Add(-time.Hour)))

	got, err := Latest(dir, "wp_updates")
	require.NoError(t, err)
	assert.Equal(t, older.Path(), got)
}

func TestLatestNone(t *testing.T) {
	_, err := Latest(t.TempDir(), "wp_updates")
	assert.ErrorIs(t, err, ErrNoReport)
}
