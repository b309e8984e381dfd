package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-runtest/flags"
)

func TestNewApp(t *testing.T) {
	app := newApp()
	assert.Equal(t, "op-runtest", app.Name)
	assert.Contains(t, app.Version, Version)
	require.NotNil(t, app.Action)
	require.NotNil(t, app.ExitErrHandler)

	names := make(map[string]bool)
	for _, f := range app.Flags {
		names[f.Names()[0]] = true
	}
	for _, f := range flags.Flags {
		assert.True(t, names[f.Names()[0]], f.Names()[0])
	}
}

func TestExitErrHandlerIgnoresNil(t *testing.T) {
	exitErrHandler(nil, nil)
}
