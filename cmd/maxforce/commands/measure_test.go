// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package commands_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jupacheco1407/datacollector/cmd/maxforce/commands"
	"github.com/jupacheco1407/datacollector/store"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := commands.NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestMeasureSynthetic(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history", "maxforce.db")

	out, progress, err := execute(t,
		"measure", "--synthetic", "--seed", "42",
		"--iterations", "4", "--interval", "1ms",
		"--history-db", db,
	)
	require.NoError(t, err)
	require.Contains(t, out, "status    complete")
	require.Contains(t, out, "steps     4/4")
	for step := 1; step <= 4; step++ {
		require.Contains(t, progress, fmt.Sprintf("step %d/4", step))
	}

	s, err := store.Open(context.Background(), db)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, commands.SourceSynthetic, records[0].Source)
	require.Equal(t, 4, records[0].Steps)
	require.Len(t, records[0].Maxima, 1)
	require.Greater(t, records[0].Maxima[0], 0.0)
	require.Less(t, records[0].Maxima[0], 100.0)
	require.Contains(t, out, records[0].RunID.String())
}

func TestMeasureVerboseSharesStderr(t *testing.T) {
	_, progress, err := execute(t,
		"measure", "--synthetic", "--verbose",
		"-n", "3", "-i", "1ms", "--no-save",
		"--history-db", filepath.Join(t.TempDir(), "maxforce.db"),
	)
	require.NoError(t, err)

	// Worker logs and progress lines land on the same writer, whole lines
	// at a time.
	require.Contains(t, progress, "sampling progress")
	require.Contains(t, progress, "sampling complete")
	for _, line := range strings.Split(strings.TrimSpace(progress), "\n") {
		if strings.HasPrefix(line, "step ") {
			require.Regexp(t, `^step [1-3]/3$`, line)
		}
	}
}

func TestMeasureProfile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "quick.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(`
source: synthetic
iterations: 3
interval: PT0.001S
seed: 1
amplitude: 5
`), 0o600))
	db := filepath.Join(dir, "maxforce.db")

	out, _, err := execute(t,
		"measure", "--profile", profile, "--no-save", "--history-db", db,
	)
	require.NoError(t, err)
	require.Contains(t, out, "steps     3/3")

	out, _, err = execute(t, "history", "--history-db", db)
	require.NoError(t, err)
	require.Equal(t, "no measurements recorded\n", out)
}

func TestMeasureFlagsOverrideProfile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "slow.yaml")
	require.NoError(t, os.WriteFile(profile,
		[]byte("source: synthetic\niterations: 500\ninterval: PT1S\n"), 0o600))

	out, _, err := execute(t,
		"measure", "--profile", profile,
		"-n", "2", "-i", "1ms", "--no-save",
		"--history-db", filepath.Join(dir, "maxforce.db"),
	)
	require.NoError(t, err)
	require.Contains(t, out, "steps     2/2")
}

func TestMeasureInvalidIterations(t *testing.T) {
	_, _, err := execute(t,
		"measure", "--synthetic", "--iterations", "-3", "--no-save",
		"--history-db", filepath.Join(t.TempDir(), "maxforce.db"),
	)
	require.Error(t, err)
}

func TestMeasureSensorNotConfigured(t *testing.T) {
	t.Setenv("TRIGNO_BROKER_HOSTNAME", "")
	t.Setenv("TRIGNO_BROKER_WS_URL", "")

	_, _, err := execute(t,
		"measure", "--no-save",
		"--history-db", filepath.Join(t.TempDir(), "maxforce.db"),
	)
	require.Error(t, err)
}

func TestHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "maxforce.db")

	for range 3 {
		_, _, err := execute(t,
			"measure", "--synthetic", "-n", "1", "-i", "1ms",
			"--history-db", db,
		)
		require.NoError(t, err)
	}

	out, _, err := execute(t, "history", "--history-db", db, "--limit", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "run_id"))
	for _, line := range lines[1:] {
		require.Contains(t, line, commands.SourceSynthetic)
		require.Contains(t, line, "complete")
	}

	_, _, err = execute(t, "history", "--history-db", db, "--limit", "0")
	require.Error(t, err)
}
