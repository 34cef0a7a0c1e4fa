package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/module-sentinel/sentinel/internal/logging"
	"github.com/module-sentinel/sentinel/internal/store"
)

func newTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(`package main

func greet(name string) string {
	return "hello " + name
}

func main() {
	println(greet("world"))
}
`), 0o644))
	return dir
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunIndexesFilesAndFindsSymbols(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := newTestProject(t)
	s := newTestStore(t)
	orch := New(s, logging.Noop{})

	result, err := orch.Run(context.Background(), Options{
		ProjectName: "demo",
		ProjectRoot: root,
		Languages:   []string{"go"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.GreaterOrEqual(t, result.SymbolsFound, 2)
	assert.Empty(t, result.Errors)
	assert.False(t, result.Cancelled)
}

func TestRunSkipsUnchangedFilesOnSecondPass(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := newTestProject(t)
	s := newTestStore(t)
	orch := New(s, logging.Noop{})
	ctx := context.Background()

	_, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}})
	require.NoError(t, err)

	second, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, 0, second.FilesIndexed)
}

func TestRunReindexesChangedFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := newTestProject(t)
	s := newTestStore(t)
	orch := New(s, logging.Noop{})
	ctx := context.Background()

	_, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte(`package main

func greet(name string) string { return "hi " + name }
func farewell(name string) string { return "bye " + name }
func main() { println(greet("world")) }
`), 0o644))

	second, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FilesIndexed)
}

func TestRunRespectsCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := newTestProject(t)
	s := newTestStore(t)
	orch := New(s, logging.Noop{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}})
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}

func TestRunRecordsSkippedStatusForOversizedFileAndRetainsItAcrossRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.go"), []byte("package main\n\nfunc a() {}\n"), 0o644))
	s := newTestStore(t)
	orch := New(s, logging.Noop{})
	ctx := context.Background()

	opts := Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}, MaxFileSize: 1}

	result, err := orch.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesIndexed)

	// Re-running must not flip-flop the skip record to deleted.
	second, err := orch.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.FilesIndexed)
	assert.Empty(t, second.Errors)
}

func TestRunFullReindexClearsPriorState(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := newTestProject(t)
	s := newTestStore(t)
	orch := New(s, logging.Noop{})
	ctx := context.Background()

	_, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}})
	require.NoError(t, err)

	result, err := orch.Run(ctx, Options{ProjectName: "demo", ProjectRoot: root, Languages: []string{"go"}, FullReindex: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
}
