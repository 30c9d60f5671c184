package ledger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunLifecycle(t *testing.T) {
	l := openTestLedger(t)

	id := l.StartRun("generate", "ext4")
	require.NotEmpty(t, id)
	l.RecordArtifact(id, "/srv/images/debian_12_ext4.qcow2", "ext4", "")
	l.FinishRun(id, "succeeded", nil)

	runs, err := l.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "generate", runs[0].Kind)
	assert.Equal(t, "ext4", runs[0].Target)
	assert.Equal(t, "succeeded", runs[0].Status)
	assert.Empty(t, runs[0].Error)
	assert.NotNil(t, runs[0].Finished)
}

func TestFailedRunKeepsError(t *testing.T) {
	l := openTestLedger(t)

	id := l.StartRun("inspect", "/images/win.vmdk")
	l.FinishRun(id, "failed", errors.New("no supported filesystem partitions found"))

	runs, err := l.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Contains(t, runs[0].Error, "no supported filesystem")
}

func TestNilLedgerIsNoop(t *testing.T) {
	var l *Ledger
	assert.Empty(t, l.StartRun("generate", "ext4"))
	l.FinishRun("x", "succeeded", nil)
	l.RecordArtifact("x", "p", "", "")
	runs, err := l.RecentRuns(5)
	assert.NoError(t, err)
	assert.Nil(t, runs)
	assert.NoError(t, l.Close())
}

func TestMigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
