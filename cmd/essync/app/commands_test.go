package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The root command registers persistent flags on a package-level command, so
// it is built once and shared across the tests.
var testRootCmd = NewRootCmd()

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	assert.Equal(t, "essync", testRootCmd.Use)

	var names []string
	for _, cmd := range testRootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"serve", "reconcile", "status", "ping", "init-index", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestConfigFlagIsRequired(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
	}{
		{name: "serve", args: []string{"serve"}},
		{name: "reconcile", args: []string{"reconcile"}},
		{name: "status", args: []string{"status"}},
		{name: "ping", args: []string{"ping"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testRootCmd.SetArgs(tc.args)
			err := testRootCmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config")
		})
	}
}
