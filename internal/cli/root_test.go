package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const risePatterns = `
pattern: rise: {
	operator: "seq"
	window:   "5m"
	events: [{type: "AAPL", name: "a"}, {type: "GOOG", name: "b"}]
	where: [{left: "a.price", op: "<", right: "b.price"}]
}
pattern: rise_quiet: {
	operator: "seq"
	window:   "5m"
	events: [
		{type: "AAPL", name: "a"},
		{type: "GOOG", name: "b"},
		{type: "HALT", name: "h", negated: true},
	]
	where: [{left: "a.price", op: "<", right: "b.price"}]
}
`

const riseEvents = `{"type":"AAPL","timestamp":"2026-01-02T10:00:00Z","attrs":{"price":10,"symbol":"X"}}
{"type":"GOOG","timestamp":"2026-01-02T10:01:00Z","attrs":{"price":12,"symbol":"X"}}
{"type":"GOOG","timestamp":"2026-01-02T10:02:00Z","attrs":{"price":9,"symbol":"X"}}
{"type":"HALT","timestamp":"2026-01-02T10:03:00Z","attrs":{}}
{"type":"AAPL","timestamp":"2026-01-02T10:10:00Z","attrs":{"price":20,"symbol":"X"}}
{"type":"GOOG","timestamp":"2026-01-02T10:11:00Z","attrs":{"price":25,"symbol":"X"}}
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("TREECEP_LOG_LEVEL", "error")
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "treecep", cmd.Use)
	assert.Contains(t, cmd.Long, "tree-based evaluation")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "plan", "unify", "validate", "test", "matches"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, "", envFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{
		"mode", "strategy", "order", "stats", "parallelism", "partition-key",
		"broadcast", "max-partial-matches", "db", "redis", "redis-stream", "out", "follow", "idle",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "o", runCmd.Flags().Lookup("out").Shorthand)
	assert.Equal(t, "f", runCmd.Flags().Lookup("follow").Shorthand)
}

func TestPlanAndUnifyOmitDispatchFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"plan", "unify"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup("strategy"))
		assert.NotNil(t, sub.Flags().Lookup("order"))
		assert.Nil(t, sub.Flags().Lookup("mode"), "%s does not dispatch events", name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("specs"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, "--format", "invalid", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigErrorsAreCommandErrors(t *testing.T) {
	t.Setenv("TREECEP_MODE", "batch")
	_, _, err := execute(t, "validate", ".")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestMissingEnvFile(t *testing.T) {
	_, _, err := execute(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "validate", ".")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
