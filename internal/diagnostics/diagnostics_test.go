package diagnostics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecowatt/gateway/internal/acquisition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesDatabaseAndSchema(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Enabled: true, DBPath: filepath.Join(dir, "nested", "diagnostics.db")}

	rec, err := New(cfg)
	require.NoError(t, err)
	defer rec.Close()
}

func TestRecord_UpsertsByTimestamp(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(Config{Enabled: true, DBPath: filepath.Join(dir, "diagnostics.db")})
	require.NoError(t, err)
	defer rec.Close()

	ts := time.Unix(1700000000, 0)
	stats := acquisition.Statistics{
		TotalPolls:      10,
		SuccessfulPolls: 9,
		FailedPolls:     1,
		LastError:       "timeout",
		LastPollTime:    ts,
	}

	require.NoError(t, rec.Record(context.Background(), stats))

	stats.TotalPolls = 11
	stats.SuccessfulPolls = 10
	require.NoError(t, rec.Record(context.Background(), stats))

	sr := rec.(*sqliteRecorder)
	row := sr.db.QueryRow(`SELECT total_polls, successful_polls FROM poll_cycles WHERE timestamp = ?`, ts.Unix())

	var total, success int
	require.NoError(t, row.Scan(&total, &success))
	assert.Equal(t, 11, total)
	assert.Equal(t, 10, success)
}

func TestConfig_ValidateRejectsEmptyPath(t *testing.T) {
	err := Config{DBPath: ""}.Validate()
	assert.Error(t, err)
}
