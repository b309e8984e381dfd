package runtest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-runtest/costdata"
	"github.com/ethereum-optimism/infra/op-runtest/logging"
	"github.com/ethereum-optimism/infra/op-runtest/types"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRun(t *testing.T, manifestPath string, mutate func(*Config)) (*runTest, *bytes.Buffer, chan error) {
	t.Helper()
	cfg := &Config{
		Manifest:        manifestPath,
		Parallel:        2,
		MaxPassedOutput: 1024,
		MaxFailedOutput: 4096,
		LogDir:          filepath.Join(filepath.Dir(manifestPath), "logs"),
		Log:             log.NewLogger(log.DiscardHandler()),
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.finalize())

	shutdown := make(chan error, 1)
	rt, err := New(cfg, "test", func(err error) { shutdown <- err })
	require.NoError(t, err)

	stdout := &bytes.Buffer{}
	rt.stdout = stdout
	return rt, stdout, shutdown
}

func TestRunAllPassing(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeManifest(t, dir, `
tests:
  - name: hello
    command: ["/bin/sh", "-c", "echo hello world"]
    required_regex: ["hello"]
  - name: skipper
    command: ["/bin/sh", "-c", "exit 77"]
    skip_return_code: 77
`)
	rt, stdout, shutdown := newTestRun(t, path, nil)

	require.NoError(t, rt.Start(context.Background()))
	select {
	case err := <-shutdown:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback not called")
	}

	runID, res := rt.Result()
	require.NotNil(t, res)
	require.Len(t, res.Outcomes, 2)

	out := stdout.String()
	assert.Contains(t, out, "100% tests passed, 0 tests failed out of 2")
	assert.Contains(t, out, "hello")

	runDir := filepath.Join(dir, "logs", logging.RunDirectoryPrefix+runID)
	lastTest, err := os.ReadFile(filepath.Join(runDir, logging.LastTestLog))
	require.NoError(t, err)
	assert.Contains(t, string(lastTest), "Start testing:")
	assert.Contains(t, string(lastTest), "hello world")
	assert.Contains(t, string(lastTest), "End testing:")
	assert.FileExists(t, filepath.Join(runDir, "passed", "1-hello.log"))
	assert.FileExists(t, filepath.Join(runDir, "passed", "2-skipper.log"))

	costs, err := costdata.Load(filepath.Join(dir, "logs", costdata.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, 1, costs.Tests["hello"].PreviousRuns)
	assert.Empty(t, costs.LastFailed)

	require.NoError(t, rt.Stop(context.Background()))
	assert.True(t, rt.Stopped())
}

func TestRunWithFailures(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeManifest(t, dir, `
tests:
  - name: good
    command: ["/bin/sh", "-c", "true"]
  - name: bad
    command: ["/bin/sh", "-c", "echo boom; exit 2"]
  - name: ghost
    command: ["definitely-not-a-real-binary-xyz"]
`)
	rt, stdout, _ := newTestRun(t, path, func(c *Config) {
		c.OutputOnFailure = true
		c.CompressOutput = true
	})

	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	var tf *TestFailureError
	require.ErrorAs(t, err, &tf)
	assert.ElementsMatch(t, []string{"bad", "ghost"}, tf.Failed)

	out := stdout.String()
	assert.Contains(t, out, "The following tests FAILED:")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "Unable to find executable")

	runID, _ := rt.Result()
	failedLog, err := os.ReadFile(filepath.Join(dir, "logs", logging.RunDirectoryPrefix+runID, "failed", "2-bad.log"))
	require.NoError(t, err)
	assert.Contains(t, string(failedLog), "boom")

	costs, err := costdata.Load(filepath.Join(dir, "logs", costdata.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "ghost"}, costs.LastFailed)
}

func TestRunRepeatUntilFail(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeManifest(t, dir, `
tests:
  - name: steady
    command: ["/bin/sh", "-c", "echo run >> runs.txt"]
`)
	rt, _, _ := newTestRun(t, path, func(c *Config) { c.RepeatUntilFail = 3 })
	require.NoError(t, rt.Start(context.Background()))

	runs, err := os.ReadFile(filepath.Join(dir, "runs.txt"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(runs), "run"))

	_, res := rt.Result()
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, types.StatusCompleted, res.Outcomes[0].Status)
}

func TestRunUsesStoredCosts(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
tests:
  - name: a
    command: ["true"]
`)
	stored := costdata.New()
	stored.Tests["a"] = costdata.Entry{Cost: 4.5, PreviousRuns: 2}
	require.NoError(t, stored.Save(filepath.Join(dir, "logs", costdata.DefaultFileName)))

	rt, _, _ := newTestRun(t, path, nil)
	require.Len(t, rt.tests, 1)
	assert.Equal(t, 4.5, rt.tests[0].Cost)
	assert.Equal(t, 2, rt.tests[0].PreviousRuns)
}

func TestRunStartsLastFailedFirst(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeManifest(t, dir, `
tests:
  - name: first
    command: ["/bin/sh", "-c", "true"]
  - name: second
    command: ["/bin/sh", "-c", "true"]
`)
	stored := costdata.New()
	stored.Tests["first"] = costdata.Entry{Cost: 9, PreviousRuns: 3}
	stored.LastFailed = []string{"second"}
	require.NoError(t, stored.Save(filepath.Join(dir, "logs", costdata.DefaultFileName)))

	rt, stdout, _ := newTestRun(t, path, func(c *Config) { c.Parallel = 1 })
	require.NoError(t, rt.Start(context.Background()))

	out := stdout.String()
	second := strings.Index(out, ": second")
	first := strings.Index(out, ": first")
	require.GreaterOrEqual(t, second, 0)
	require.GreaterOrEqual(t, first, 0)
	assert.Less(t, second, first)

	costs, err := costdata.Load(filepath.Join(dir, "logs", costdata.DefaultFileName))
	require.NoError(t, err)
	assert.Empty(t, costs.LastFailed)
}

func TestNewBadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tests: []\n")
	cfg := &Config{Manifest: path, Parallel: 1, Log: log.NewLogger(log.DiscardHandler())}
	require.NoError(t, cfg.finalize())

	_, err := New(cfg, "test", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load manifest")

	_, err = New(nil, "test", nil)
	require.Error(t, err)
}

func TestStopBeforeStart(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tests:\n  - {name: a, command: [\"true\"]}\n")
	rt, _, _ := newTestRun(t, path, nil)
	assert.True(t, rt.Stopped())
	require.NoError(t, rt.Stop(context.Background()))
}
