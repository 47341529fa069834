package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
	assert.Contains(t, out, `"go_version"`)
}

func TestRootHelp_ListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"cases", "ingest", "ask", "search", "fetch", "serve"} {
		assert.Contains(t, out, sub)
	}
}

func TestIngest_RequiresCaseFlag(t *testing.T) {
	_, err := execute(t, "ingest", "file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case")
}

func TestCasesCreate_RequiresArg(t *testing.T) {
	_, err := execute(t, "cases", "create")
	require.Error(t, err)
}
