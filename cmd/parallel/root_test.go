package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRun_Inline(t *testing.T) {
	out, _, err := execute(t, "--mode", "inline", "--tasks", "4", "--duration", "2ms", "--steps", "2")
	require.NoError(t, err)
	require.Contains(t, out, "mode:      inline")
	require.Contains(t, out, "4 processed, 0 failed, 0 cancelled, 0 pending")
}

func TestRun_ParallelWithFailuresAndHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	out, errOut, err := execute(t,
		"--mode", "parallel", "--jobs", "2", "--tasks", "6", "--duration", "2ms",
		"--fail-every", "3", "--history", db, "--log-level", "error",
	)
	require.NoError(t, err)
	require.Contains(t, out, "mode:      parallel")
	require.Contains(t, out, "6 processed, 2 failed, 0 cancelled, 0 pending")
	require.Contains(t, out, "history:")
	require.Contains(t, errOut, "2 task(s) failed")
}

func TestRun_Progress(t *testing.T) {
	_, errOut, err := execute(t,
		"--mode", "parallel", "--tasks", "2", "--duration", "4ms", "--steps", "2",
		"--progress", "--log-level", "info",
	)
	require.NoError(t, err)
	require.Contains(t, errOut, "progress")
}

func TestRun_RejectsBadFlags(t *testing.T) {
	_, _, err := execute(t, "--mode", "threads")
	require.Error(t, err)

	_, _, err = execute(t, "--tasks", "0")
	require.ErrorContains(t, err, "--tasks")

	_, _, err = execute(t, "--percent", "1.5")
	require.Error(t, err)
}

func TestCrunch(t *testing.T) {
	_, err := newCrunch("x")
	require.Error(t, err)

	proc, err := newCrunch(time.Millisecond, 2, 2)
	require.NoError(t, err)

	out, err := proc.Process(context.Background(), 3)
	require.NoError(t, err)
	require.IsType(t, 0, out)

	_, err = proc.Process(context.Background(), 4)
	require.ErrorContains(t, err, "synthetic failure")
}
