package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"reconcile", "bootstrap", "eval", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "hts", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestReconcileCommand_Flags(t *testing.T) {
	for _, name := range []string{
		"forecasts", "actuals", "hierarchy", "level-columns", "methods", "out",
		"intervals", "levels", "num-samples", "seed", "workers", "no-sort", "balanced",
	} {
		flag := reconcileCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "reconcile should have --%s flag", name)
	}
}

func TestBootstrapCommand_Flags(t *testing.T) {
	flag := bootstrapCmd.Flags().Lookup("num-seeds")
	require.NotNil(t, flag, "bootstrap should have --num-seeds flag")
	assert.Equal(t, "10", flag.DefValue)

	// Shares the run flag set with reconcile.
	assert.NotNil(t, bootstrapCmd.Flags().Lookup("forecasts"))
	assert.NotNil(t, bootstrapCmd.Flags().Lookup("hierarchy"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestEvalCommand_Flags(t *testing.T) {
	for _, name := range []string{"reconciled", "actuals", "insample", "hierarchy", "level-columns", "season"} {
		assert.NotNil(t, evalCmd.Flags().Lookup(name), "eval should have --%s flag", name)
	}
	assert.Equal(t, "1", evalCmd.Flags().Lookup("season").DefValue)
}
