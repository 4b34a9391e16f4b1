package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wellness.report/internal/db"
	"github.com/banshee-data/wellness.report/internal/score"
	"github.com/banshee-data/wellness.report/internal/sources"
	"github.com/banshee-data/wellness.report/internal/timeutil"
	"github.com/banshee-data/wellness.report/internal/version"
	"github.com/banshee-data/wellness.report/internal/worker"
)

// seedDB creates a database with one followed resident who answered the
// pain item today.
func seedDB(t *testing.T) (string, *db.Resident) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wellness.db")
	store, err := db.NewDB(path)
	require.NoError(t, err)
	defer store.Close()

	r := db.CreateTestResident(t, store)
	today := timeutil.DayKey(timeutil.RealClock{}.Now())
	require.NoError(t, store.RecordObservations(r.ID, today, sources.SourceForm,
		[]score.Observation{{ItemID: 0, Value: score.Value(4)}}))
	return path, r
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run("version", nil, &out))
	assert.Contains(t, out.String(), version.Version)
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run("help", nil, &out))
	assert.Contains(t, out.String(), "Usage: wellness <command>")
}

func TestRun_Unknown(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run("frobnicate", nil, &out))
	assert.Contains(t, out.String(), "Commands:")
}

func TestScoreCommand(t *testing.T) {
	path, r := seedDB(t)

	var out bytes.Buffer
	require.NoError(t, run("score", []string{"--db", path}, &out))
	assert.Contains(t, out.String(), "scored 1, replayed 1, skipped 0")
	assert.Contains(t, out.String(), "resident 1: today=")

	out.Reset()
	require.NoError(t, run("score", []string{"--db", path, "--json"}, &out))
	var report worker.RunReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, []int64{r.ID}, report.Scored)
}

func TestScoreCommand_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "wellness.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"history_length": 0}`), 0o600))

	var out bytes.Buffer
	err := run("score", []string{"--config", cfgPath, "--db", filepath.Join(t.TempDir(), "x.db")}, &out)
	assert.ErrorContains(t, err, "history_length")
}

func TestChartCommand(t *testing.T) {
	path, r := seedDB(t)
	var out bytes.Buffer
	require.NoError(t, run("score", []string{"--db", path}, &out))

	dir := t.TempDir()
	png := filepath.Join(dir, "chart.png")
	require.NoError(t, run("chart", []string{"--db", path, "--resident", "1", "--out", png}, &out))
	data, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	html := filepath.Join(dir, "chart.html")
	require.NoError(t, run("chart", []string{"--db", path, "--resident", "1", "--out", html}, &out))
	data, err = os.ReadFile(html)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Room "+r.Room)
}

func TestChartCommand_Errors(t *testing.T) {
	path, _ := seedDB(t)
	var out bytes.Buffer

	assert.ErrorContains(t, run("chart", []string{"--db", path}, &out), "--resident")
	assert.ErrorContains(t, run("chart", []string{"--db", path, "--resident", "1"}, &out), "no scores")
	assert.ErrorIs(t, run("chart", []string{"--db", path, "--resident", "42"}, &out), db.ErrNotFound)
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wellness.db")

	var out bytes.Buffer
	require.NoError(t, run("migrate", []string{"--db", path, "up"}, &out))
	assert.Contains(t, out.String(), "applied")

	out.Reset()
	require.NoError(t, run("migrate", []string{"--db", path, "status"}, &out))
	assert.NotEmpty(t, out.String())
}

func TestChartCommand_RejectsPathOutsideWorkdir(t *testing.T) {
	path, _ := seedDB(t)
	var out bytes.Buffer
	require.NoError(t, run("score", []string{"--db", path}, &out))

	err := run("chart", []string{"--db", path, "--resident", "1", "--out", "/etc/wellness/chart.png"}, &out)
	assert.ErrorContains(t, err, "allowed directories")
}
