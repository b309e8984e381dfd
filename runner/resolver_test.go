package runner

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func TestExecutableResolver(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix executable bits")
	}
	dir := t.TempDir()
	writeExecutable(t, filepath.Join(dir, "direct"))
	writeExecutable(t, filepath.Join(dir, "bin", "Debug", "nested"))
	writeExecutable(t, filepath.Join(dir, "bin", "Release", "both"))
	writeExecutable(t, filepath.Join(dir, "bin", "Debug", "both"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain"), []byte("data"), 0o644))

	notOnPath := func(string) (string, error) { return "", errors.New("not found") }

	t.Run("relative to directory", func(t *testing.T) {
		r := &ExecutableResolver{lookPath: notOnPath}
		got, err := r.FindExecutable(dir, "direct")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "direct"), got)
	})

	t.Run("absolute", func(t *testing.T) {
		r := &ExecutableResolver{lookPath: notOnPath}
		got, err := r.FindExecutable("", filepath.Join(dir, "direct"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "direct"), got)
	})

	t.Run("configuration sub directory", func(t *testing.T) {
		r := &ExecutableResolver{lookPath: notOnPath}
		got, err := r.FindExecutable(dir, "bin/nested")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "bin", "Debug", "nested"), got)
	})

	t.Run("selected configuration wins", func(t *testing.T) {
		r := &ExecutableResolver{ConfigType: "Debug", lookPath: notOnPath}
		got, err := r.FindExecutable(dir, "bin/both")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "bin", "Debug", "both"), got)
	})

	t.Run("not executable", func(t *testing.T) {
		r := &ExecutableResolver{lookPath: notOnPath}
		_, err := r.FindExecutable(dir, "plain")
		require.Error(t, err)
	})

	t.Run("path lookup", func(t *testing.T) {
		r := &ExecutableResolver{lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil }}
		got, err := r.FindExecutable(dir, "tool")
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/tool", got)
	})

	t.Run("no path lookup with separators", func(t *testing.T) {
		r := &ExecutableResolver{lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil }}
		_, err := r.FindExecutable(dir, "sub/tool")
		require.Error(t, err)
	})

	t.Run("path lookups are cached", func(t *testing.T) {
		calls := 0
		r := NewExecutableResolver("")
		r.lookPath = func(name string) (string, error) {
			calls++
			return "/opt/bin/" + name, nil
		}
		for i := 0; i < 3; i++ {
			got, err := r.FindExecutable(dir, "cached-tool")
			require.NoError(t, err)
			assert.Equal(t, "/opt/bin/cached-tool", got)
		}
		assert.Equal(t, 1, calls)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewExecutableResolver("").FindExecutable(dir, "")
		require.Error(t, err)
	})
}
