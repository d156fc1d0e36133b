package js

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/k6x/driver"
	"github.com/liuxd6825/k6x/driver/drivertest"
	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/ext"
	"github.com/liuxd6825/k6x/js/modules"
	jssql "github.com/liuxd6825/k6x/js/modules/k6/x/sql"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/consts"
	"github.com/liuxd6825/k6x/lib/testutils"
	"github.com/liuxd6825/k6x/loader"
)

func testNamespace() (*modules.Namespace, *drivertest.Driver) {
	d := &drivertest.Driver{
		Name: "ramsql",
		QueryFunc: func(context.Context, string, []interface{}) (*drivertest.Result, error) {
			return &drivertest.Result{Columns: []string{"n", "name"}, Rows: [][]interface{}{{int64(1), "peter"}}}, nil
		},
	}
	return modules.BuildNamespace(ext.Resolved{
		"sql": {
			Name:    "sql",
			Version: semver.MustParse("1.0.0"),
			Exports: map[string]interface{}{
				"":              jssql.New(),
				"driver/ramsql": d,
			},
		},
	}), d
}

func getSimpleRunner(tb testing.TB, filename, data string, ns *modules.Namespace) (*Runner, error) {
	tb.Helper()
	if ns == nil {
		ns, _ = testNamespace()
	}
	return New(
		testutils.NewLogger(tb),
		&loader.SourceData{URL: &url.URL{Path: filename, Scheme: "file"}, Data: []byte(data)},
		ns,
		map[string]string{"TARGET": "staging"},
	)
}

func TestRunnerLifecycleWithDriver(t *testing.T) {
	t.Parallel()

	ns, drv := testNamespace()
	r, err := getSimpleRunner(t, "/script.js", `
		"use k6 with k6/x/sql >= 1.0";
		const sql = require("k6/x/sql");
		const ramsql = require("k6/x/sql/driver/ramsql");

		exports.setup = function () {
			const db = sql.open(ramsql, { dsn: "roster" });
			db.exec("CREATE TABLE roster (name varchar)");
			return { db: db, plain: { count: 1 } };
		};

		exports.default = function (data) {
			data.plain.count++;
			const names = [];
			for (const row of data.db.query("SELECT n, name FROM roster")) {
				if (Object.keys(row).join(",") !== "n,name") {
					throw new Error("unexpected columns " + Object.keys(row));
				}
				names.push(row.name);
			}
			if (names.length !== 1 || names[0] !== "peter") {
				throw new Error("unexpected rows " + JSON.stringify(names));
			}
			if (data.plain.count !== 2) {
				throw new Error("setup data leaked between iterations: " + data.plain.count);
			}
		};

		exports.teardown = function (data) {
			data.db.close();
		};
	`, ns)
	require.NoError(t, err)

	for _, name := range []string{consts.SetupFn, consts.DefaultFn, consts.TeardownFn} {
		assert.True(t, r.IsExecutable(name), name)
	}
	assert.False(t, r.IsExecutable("handleSummary"))

	ctx := context.Background()
	data, err := r.Setup(ctx, &lib.Context{})
	require.NoError(t, err)
	m, ok := data.(map[string]interface{})
	require.True(t, ok, "%T", data)
	db, ok := m["db"].(*jssql.DB)
	require.True(t, ok, "%T", m["db"])
	handle := db.Handle()

	for id := uint64(1); id <= 2; id++ {
		vu, err := r.NewVU(ctx, id, testutils.NewLogger(t))
		require.NoError(t, err)
		for iter := int64(0); iter < 3; iter++ {
			require.NoError(t, vu.RunOnce(ctx, &lib.VUContext{VUID: id, Iteration: iter, SetupData: data}))
		}
	}

	require.NoError(t, r.Teardown(ctx, &lib.Context{SetupData: data}))
	assert.Equal(t, driver.StateClosed, handle.State())
	assert.Equal(t, int64(1), drv.Connects())
	assert.Equal(t, int64(1), drv.Closes())
	assert.Equal(t, []string{"CREATE TABLE roster (name varchar)"}, drv.Statements())
}

func TestRunnerRequiresDefaultFunction(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"missing":      `exports.setup = function() {};`,
		"not function": `exports.default = 42;`,
	}
	for name, src := range testCases {
		src := src
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := getSimpleRunner(t, "/script.js", src, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "default")
		})
	}

	_, err := getSimpleRunner(t, "/script.js", `exports.setup = "nope"; exports.default = function() {};`, nil)
	require.ErrorContains(t, err, "exported 'setup' must be a function")
}

func TestRunnerLifecycleDefinedTwice(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"setup": `
			exports.setup = function() { return 1; };
			exports.default = function() {};
			exports.setup = function() { return 2; };`,
		"default through module.exports": `
			exports.default = function() {};
			module.exports.default = function() {};`,
		"teardown re-exported over a local one": `
			const shared = { teardown: function() {} };
			exports.default = function() {};
			exports.teardown = function() {};
			exports.teardown = shared.teardown;`,
	}
	for name, src := range testCases {
		src := src
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := getSimpleRunner(t, "/script.js", src, nil)
			require.ErrorIs(t, err, lib.ErrLifecycleConflict)
			var ecerr errext.HasExitCode
			require.ErrorAs(t, err, &ecerr)
			assert.Equal(t, exitcodes.InvalidConfig, ecerr.ExitCode())
			assert.Equal(t, errext.AbortedByConfig, errext.GetAbortReason(err))
		})
	}
}

func TestRunnerLifecycleReexported(t *testing.T) {
	t.Parallel()

	r, err := getSimpleRunner(t, "/script.js", `
		const shared = {
			setup: function() { return { from: "shared" }; },
			teardown: function() {},
		};
		exports.setup = shared.setup;
		exports.teardown = shared.teardown;
		// assigning the very same function again is not a second definition
		exports.setup = shared.setup;
		exports.default = function(data) {
			if (data.from !== "shared") {
				throw new Error("unexpected setup data " + JSON.stringify(data));
			}
		};
	`, nil)
	require.NoError(t, err)
	for _, name := range []string{consts.SetupFn, consts.DefaultFn, consts.TeardownFn} {
		assert.True(t, r.IsExecutable(name), name)
	}

	ctx := context.Background()
	data, err := r.Setup(ctx, &lib.Context{})
	require.NoError(t, err)
	vu, err := r.NewVU(ctx, 1, nil)
	require.NoError(t, err)
	require.NoError(t, vu.RunOnce(ctx, &lib.VUContext{VUID: 1, SetupData: data}))
	require.NoError(t, r.Teardown(ctx, &lib.Context{SetupData: data}))
}

func TestRunnerUnresolvedRequire(t *testing.T) {
	t.Parallel()

	_, err := getSimpleRunner(t, "/script.js", `
		const kafka = require("k6/x/kafka");
		exports.default = function() {};
	`, nil)
	require.Error(t, err)

	var merr *modules.ModuleResolutionError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "k6/x/kafka", merr.Specifier)
	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.ScriptDependencyError, ecerr.ExitCode())
}

func TestRunnerScriptException(t *testing.T) {
	t.Parallel()

	r, err := getSimpleRunner(t, "/script.js", `
		exports.default = function() {
			if (__ITER === 1) {
				throw new Error("boom in iteration " + __ITER);
			}
		};
	`, nil)
	require.NoError(t, err)

	vu, err := r.NewVU(context.Background(), 1, nil)
	require.NoError(t, err)
	require.NoError(t, vu.RunOnce(context.Background(), &lib.VUContext{VUID: 1, Iteration: 0}))

	err = vu.RunOnce(context.Background(), &lib.VUContext{VUID: 1, Iteration: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom in iteration 1")

	var exc errext.Exception
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.StackTrace(), "/script.js")
	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.ScriptException, ecerr.ExitCode())

	// the VU keeps working after an exception
	require.NoError(t, vu.RunOnce(context.Background(), &lib.VUContext{VUID: 1, Iteration: 2}))
}

func TestRunnerDriverErrorsKeepTheirKind(t *testing.T) {
	t.Parallel()

	r, err := getSimpleRunner(t, "/script.js", `
		const sql = require("k6/x/sql");
		const ramsql = require("k6/x/sql/driver/ramsql");
		exports.default = function() {
			const db = sql.open(ramsql);
			db.close();
			db.exec("SELECT 1");
		};
	`, nil)
	require.NoError(t, err)

	vu, err := r.NewVU(context.Background(), 1, nil)
	require.NoError(t, err)
	err = vu.RunOnce(context.Background(), &lib.VUContext{VUID: 1})
	require.Error(t, err)
	assert.True(t, driver.IsKind(err, driver.ConnectionError), err.Error())
	assert.ErrorIs(t, err, driver.ErrHandleClosed)
}

func TestRunnerSetupInterruptedByContext(t *testing.T) {
	t.Parallel()

	r, err := getSimpleRunner(t, "/script.js", `
		exports.setup = function() { for (;;) {} };
		exports.default = function() {};
	`, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Setup(ctx, &lib.Context{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunnerGlobals(t *testing.T) {
	t.Parallel()

	logger, hook := testutils.NewHookedLogger(logrus.InfoLevel)
	ns, _ := testNamespace()
	r, err := New(logger, &loader.SourceData{
		URL:  &url.URL{Path: "/globals.js", Scheme: "file"},
		Data: []byte(`exports.default = function() { console.log("vu", __VU, "iter", __ITER, __ENV.TARGET); };`),
	}, ns, map[string]string{"TARGET": "staging"})
	require.NoError(t, err)

	vu, err := r.NewVU(context.Background(), 7, nil)
	require.NoError(t, err)
	require.NoError(t, vu.RunOnce(context.Background(), &lib.VUContext{VUID: 7, Iteration: 3}))

	assert.True(t, testutils.LogContains(hook.Drain(), logrus.InfoLevel, "vu 7 iter 3 staging"))
}

func TestTeardownWithoutSetup(t *testing.T) {
	t.Parallel()

	r, err := getSimpleRunner(t, "/script.js", `
		exports.default = function() {};
		exports.teardown = function(data) {
			if (data !== undefined) {
				throw new Error("unexpected data " + JSON.stringify(data));
			}
		};
	`, nil)
	require.NoError(t, err)
	assert.False(t, r.IsExecutable(consts.SetupFn))
	require.NoError(t, r.Teardown(context.Background(), &lib.Context{}))
}
