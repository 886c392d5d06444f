package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, "", nil)
	ctx := context.Background()

	unlock, err := client.Lock(ctx)
	require.NoError(t, err)

	lockPath := filepath.Join(tmpDir, ".jot.lock")
	_, err = os.Stat(lockPath)
	require.NoError(t, err, "lock file not created")

	// While held, a second Lock gives up when its context ends.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = client.Lock(short)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "lock file not removed after unlock")
}

func TestClient_CommitAndLog(t *testing.T) {
	if !IsInstalled() {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, "", nil)
	client.AuthorName = "jot"
	client.AuthorEmail = "jot@localhost"

	require.NoError(t, client.Init(ctx))
	assert.True(t, client.IsRepo())

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.md"), []byte("hello"), 0644))
	require.NoError(t, client.Add(ctx, "a.md"))
	require.NoError(t, client.Commit(ctx, "create a"))

	subjects, err := client.Log(ctx, "a.md", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"create a"}, subjects)

	require.NoError(t, client.Rm(ctx, "a.md"))
	require.NoError(t, client.Commit(ctx, "delete a"))
	_, err = os.Stat(filepath.Join(tmpDir, "a.md"))
	assert.True(t, os.IsNotExist(err))
}
