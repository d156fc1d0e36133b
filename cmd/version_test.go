package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/liuxd6825/k6x/cmd/tests"
	"github.com/liuxd6825/k6x/lib/consts"
)

func TestVersionFlag(t *testing.T) {
	t.Parallel()

	ts := tests.NewGlobalTestState(t)
	ts.CmdArgs = []string{"k6x", "--version"}

	newRootCommand(ts.GlobalState).execute()

	stdout := ts.Stdout.String()
	assert.Contains(t, stdout, "k6x v"+consts.Version)
	assert.Contains(t, stdout, "Extensions:")
	assert.Contains(t, stdout, "k6/x/sql [1.0.0]")
}

func TestVersionSubCommand(t *testing.T) {
	t.Parallel()

	ts := tests.NewGlobalTestState(t)
	ts.CmdArgs = []string{"k6x", "version"}

	newRootCommand(ts.GlobalState).execute()

	assert.Contains(t, ts.Stdout.String(), consts.FullVersion())
	assert.Contains(t, ts.Stdout.String(), "k6/x/sql [1.0.0]")
}

func TestVersionJSONSubCommand(t *testing.T) {
	t.Parallel()

	ts := tests.NewGlobalTestState(t)
	ts.CmdArgs = []string{"k6x", "version", "--json"}

	newRootCommand(ts.GlobalState).execute()

	stdout := ts.Stdout.String()
	require.True(t, gjson.Valid(stdout), stdout)

	assert.Equal(t, consts.Version, gjson.Get(stdout, "version").String())
	assert.NotEmpty(t, gjson.Get(stdout, "go_version").String())
	assert.Equal(t, int64(1), gjson.Get(stdout, "extensions.#").Int())
	assert.Equal(t, "sql", gjson.Get(stdout, "extensions.0.name").String())
	assert.Equal(t, "k6/x/sql", gjson.Get(stdout, "extensions.0.import").String())
	assert.Equal(t, "1.0.0", gjson.Get(stdout, "extensions.0.versions.0").String())
	assert.Equal(t, `["","driver/ramsql"]`, gjson.Get(stdout, "extensions.0.exports").Raw)
}
