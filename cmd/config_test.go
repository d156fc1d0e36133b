package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/k6x/cmd/tests"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/testutils"
	"github.com/liuxd6825/k6x/lib/types"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		path string
		data string
	}{
		"json": {"config.json", `{"vus": 4, "duration": "30s", "noSetup": true, "setupTimeout": 1500}`},
		"yaml": {"config.yaml", "vus: 4\nduration: 30s\nnoSetup: true\nsetupTimeout: 1500\n"},
		"yml":  {"config.yml", "vus: 4\nduration: 30s\nnoSetup: true\nsetupTimeout: 1500\n"},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			conf, err := parseConfig(tc.path, []byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, null.IntFrom(4), conf.VUs)
			assert.Equal(t, types.NullDurationFrom(30*time.Second), conf.Duration)
			assert.Equal(t, null.BoolFrom(true), conf.NoSetup)
			assert.Equal(t, types.NullDurationFrom(1500*time.Millisecond), conf.SetupTimeout)
			assert.False(t, conf.Iterations.Valid)
			assert.False(t, conf.NoTeardown.Valid)
		})
	}

	_, err := parseConfig("config.yaml", []byte("vus: [1"))
	require.Error(t, err)
	_, err = parseConfig("config.json", []byte(`{"duration": "forever"}`))
	require.Error(t, err)
}

func TestReadEnvConfig(t *testing.T) {
	t.Parallel()

	conf, err := readEnvConfig(map[string]string{
		"K6_VUS":              "3",
		"K6_ITERATIONS":       "9",
		"K6_NO_TEARDOWN":      "true",
		"K6_TEARDOWN_TIMEOUT": "2m",
		"UNRELATED":           "value",
	})
	require.NoError(t, err)
	assert.Equal(t, null.IntFrom(3), conf.VUs)
	assert.Equal(t, null.IntFrom(9), conf.Iterations)
	assert.Equal(t, null.BoolFrom(true), conf.NoTeardown)
	assert.Equal(t, types.NullDurationFrom(2*time.Minute), conf.TeardownTimeout)
	assert.False(t, conf.Duration.Valid)

	_, err = readEnvConfig(map[string]string{"K6_VUS": "many"})
	require.Error(t, err)
}

func TestConfigConsolidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		file  string
		env   map[string]string
		args  []string
		check func(t *testing.T, opts lib.Options)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, opts lib.Options) {
				assert.Equal(t, lib.SharedIterationsType, opts.Executor.String)
				assert.Equal(t, int64(lib.DefaultVUs), opts.VUs.Int64)
				assert.Equal(t, int64(lib.DefaultIterations), opts.Iterations.Int64)
				assert.Equal(t, lib.DefaultSetupTimeout, opts.SetupTimeout.TimeDuration())
			},
		},
		{
			name: "file only",
			file: `{"vus": 5, "duration": "10s"}`,
			check: func(t *testing.T, opts lib.Options) {
				assert.Equal(t, lib.ConstantVUsType, opts.Executor.String)
				assert.Equal(t, int64(5), opts.VUs.Int64)
				assert.Equal(t, 10*time.Second, opts.Duration.TimeDuration())
			},
		},
		{
			name: "env over file",
			file: `{"vus": 5, "duration": "10s"}`,
			env:  map[string]string{"K6_VUS": "7"},
			check: func(t *testing.T, opts lib.Options) {
				assert.Equal(t, int64(7), opts.VUs.Int64)
				assert.Equal(t, 10*time.Second, opts.Duration.TimeDuration())
			},
		},
		{
			name: "flags over env",
			file: `{"vus": 5, "duration": "10s"}`,
			env:  map[string]string{"K6_VUS": "7"},
			args: []string{"--vus", "9"},
			check: func(t *testing.T, opts lib.Options) {
				assert.Equal(t, int64(9), opts.VUs.Int64)
			},
		},
		{
			name: "iterations from env replace the duration of the file",
			file: `{"duration": "10s"}`,
			env:  map[string]string{"K6_ITERATIONS": "20"},
			check: func(t *testing.T, opts lib.Options) {
				assert.Equal(t, lib.SharedIterationsType, opts.Executor.String)
				assert.Equal(t, int64(20), opts.Iterations.Int64)
				assert.Equal(t, lib.DefaultMaxDuration, opts.Duration.TimeDuration())
			},
		},
		{
			name: "extended durations on the command line",
			args: []string{"--setup-timeout", "1d", "--teardown-timeout", "250"},
			check: func(t *testing.T, opts lib.Options) {
				assert.Equal(t, 24*time.Hour, opts.SetupTimeout.TimeDuration())
				assert.Equal(t, 250*time.Millisecond, opts.TeardownTimeout.TimeDuration())
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := tests.NewGlobalTestState(t)
			if tc.file != "" {
				ts.FS = testutils.MakeMemMapFs(t, map[string][]byte{
					ts.Flags.ConfigFilePath: []byte(tc.file),
				})
			}
			for k, v := range tc.env {
				ts.Env[k] = v
			}

			flags := optionFlagSet()
			require.NoError(t, flags.Parse(tc.args))
			cliConf, err := getConfig(flags)
			require.NoError(t, err)

			conf, err := getConsolidatedConfig(ts.GlobalState, cliConf)
			require.NoError(t, err)
			tc.check(t, conf.Options)
		})
	}
}

func TestConfigFileExplicitlyMissing(t *testing.T) {
	t.Parallel()

	ts := tests.NewGlobalTestState(t)
	ts.Flags.ConfigFilePath = "/nowhere/config.json"

	_, err := getConsolidatedConfig(ts.GlobalState, Config{})
	require.ErrorContains(t, err, "/nowhere/config.json")
}

func TestRunWithYAMLConfigFile(t *testing.T) {
	t.Parallel()

	ts := tests.NewGlobalTestState(t)
	ts.FS = testutils.MakeMemMapFs(t, map[string][]byte{
		ts.Cwd + "script.js": []byte(`exports.default = function () {};`),
		ts.Cwd + "k6x.yaml":  []byte("vus: 2\niterations: 6\n"),
	})
	ts.CmdArgs = []string{"k6x", "run", "--config", ts.Cwd + "k6x.yaml", "script.js"}

	newRootCommand(ts.GlobalState).execute()

	assert.Contains(t, ts.Stdout.String(), "6 iterations shared among 2 VUs")
	assert.Contains(t, ts.Stdout.String(), "iterations: 6 complete, 0 failed, 0 dropped")
}
