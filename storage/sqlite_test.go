package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory_watch/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newSQLite(t)

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	run := &models.RunRecord{StartedAt: started, Status: models.RunStatusRunning}
	id, err := s.CreateRun(run)
	require.NoError(t, err)
	run.ID = id

	finished := started.Add(2 * time.Minute)
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.TargetsTotal = 12
	run.TargetsFailed = 1
	run.VehiclesFound = 7
	run.VehiclesAccepted = 5
	run.VehiclesNew = 2
	require.NoError(t, s.UpdateRun(run))

	got, err := s.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 12, got.TargetsTotal)
	assert.Equal(t, 2, got.VehiclesNew)
	require.NotNil(t, got.FinishedAt)

	missing, err := s.GetRun(id + 100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLogsAndTargetResults(t *testing.T) {
	s := newSQLite(t)

	id, err := s.CreateRun(&models.RunRecord{StartedAt: time.Now(), Status: models.RunStatusRunning})
	require.NoError(t, err)

	require.NoError(t, s.Log(&id, models.LogLevelInfo, "run started", ""))
	require.NoError(t, s.Log(&id, models.LogLevelError, "fetch failed", "leith_honda_raleigh"))
	require.NoError(t, s.Log(nil, models.LogLevelInfo, "outside a run", ""))

	logs, err := s.GetRunLogs(id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "leith_honda_raleigh", logs[1].LocationID)

	require.NoError(t, s.SaveTargetResult(&models.TargetResult{
		RunID: id, LocationID: "leith_honda_raleigh", Kind: "new", Model: "Civic",
		URL: "https://x/new-inventory/index.htm", Strategy: "link_pattern", Candidates: 3,
		FetchedAt: time.Now(),
	}))
	results, err := s.GetTargetResults(id)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "link_pattern", results[0].Strategy)
	assert.Equal(t, 3, results[0].Candidates)
}

func TestCommandQueue(t *testing.T) {
	s := newSQLite(t)

	first, err := s.QueueCommand(models.CmdPrune, &models.CommandParams{RetentionDays: 14})
	require.NoError(t, err)
	_, err = s.QueueCommand(models.CmdSearchNow, nil)
	require.NoError(t, err)

	cmds, err := s.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, models.CmdPrune, cmds[0].Command)

	params, err := s.ParseCommandParams(&cmds[0])
	require.NoError(t, err)
	assert.Equal(t, 14, params.RetentionDays)

	params, err = s.ParseCommandParams(&cmds[1])
	require.NoError(t, err)
	assert.Zero(t, params.RetentionDays)

	require.NoError(t, s.MarkCommandProcessed(first))
	cmds, err = s.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, models.CmdSearchNow, cmds[0].Command)

	require.NoError(t, s.ResetAllData())
	cmds, err = s.GetPendingCommands()
	require.NoError(t, err)
	assert.Empty(t, cmds)
}
