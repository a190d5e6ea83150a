package dspot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paraita/dspot/types"
)

func TestWriteOutputReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kept.json")

	first := Output{Version: "1", Jobs: []*JobResult{{ID: "a"}}}
	require.NoError(t, writeOutput(context.Background(), path, first))

	second := Output{Version: "2", Jobs: []*JobResult{{
		ID:   "b",
		Kept: []types.SelectionCandidate{{Name: "TestA", Class: "a.test", Body: "t.Log()"}},
	}}}
	require.NoError(t, writeOutput(context.Background(), path, second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Output
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2", got.Version)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, "TestA", got.Jobs[0].Kept[0].Name)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestWriteOutputWaitsForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kept.json")
	held := flock.New(path + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = writeOutput(ctx, path, Output{Version: "1"})
	require.Error(t, err)
	assert.NoFileExists(t, path)
}
