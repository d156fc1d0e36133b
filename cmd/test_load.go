package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liuxd6825/k6x/cmd/state"
	"github.com/liuxd6825/k6x/execution"
	"github.com/liuxd6825/k6x/js"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/consts"
	"github.com/liuxd6825/k6x/loader"
)

// loadedTest contains all of the data, details and dependencies of a loaded
// test, as it is going through the loading pipeline.
type loadedTest struct {
	sourceRootPath string // contains the raw string the user supplied
	pwd            string
	source         *loader.SourceData
	plan           *execution.Plan
}

// loadedAndConfiguredTest contains the whole loadedTest, as well as the
// consolidated test config and the runner built from it.
type loadedAndConfiguredTest struct {
	*loadedTest
	config Config
	env    map[string]string
	runner *js.Runner
}

// loadTest reads the script and resolves the extensions it needs. Nothing of
// the script is executed yet. When resolution fails after the directives
// were parsed, the partially loaded test is returned along with the error.
func loadTest(gs *state.GlobalState, args []string) (*loadedTest, error) {
	sourceRootPath := args[0]
	gs.Logger.Debugf("Resolving and reading test '%s'...", sourceRootPath)

	pwd, err := gs.Getwd()
	if err != nil {
		return nil, err
	}
	src, err := loader.ReadSource(loader.CreateFilesystem(gs.FS), pwd, sourceRootPath, gs.Stdin)
	if err != nil {
		return nil, fmt.Errorf("couldn't load test '%s': %w", sourceRootPath, err)
	}
	gs.Logger.WithFields(logrus.Fields{
		"url":  src.URL,
		"size": len(src.Data),
	}).Debug("Loaded test source")

	plan, err := execution.Prepare(gs.Registry, consts.Version, gs.Logger, src.URL.String(), src.Data)
	if plan == nil {
		return nil, err
	}

	return &loadedTest{
		sourceRootPath: sourceRootPath,
		pwd:            pwd,
		source:         src,
		plan:           plan,
	}, err
}

// loadLocalTest loads the test, consolidates its options and compiles it.
func loadLocalTest(gs *state.GlobalState, cmd *cobra.Command, args []string) (*loadedAndConfiguredTest, error) {
	test, err := loadTest(gs, args)
	if err != nil {
		return nil, err
	}

	cliConf, err := getConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	conf, err := getConsolidatedConfig(gs, cliConf)
	if err != nil {
		return nil, err
	}

	env, err := getRuntimeEnv(gs, cmd.Flags())
	if err != nil {
		return nil, err
	}

	gs.Logger.Debug("Compiling the test script...")
	runner, err := js.New(gs.Logger, test.source, test.plan.Namespace, env)
	if err != nil {
		return nil, err
	}

	return &loadedAndConfiguredTest{
		loadedTest: test,
		config:     conf,
		env:        env,
		runner:     runner,
	}, nil
}

// buildTestRunState returns the state the scheduler runs the test with.
func (lct *loadedAndConfiguredTest) buildTestRunState(gs *state.GlobalState) *lib.TestRunState {
	return &lib.TestRunState{
		TestPreInitState: &lib.TestPreInitState{
			LookupEnv: gs.LookupEnv,
			Logger:    gs.Logger,
		},
		Options:   lct.config.Options,
		Runner:    lct.runner,
		Namespace: lct.plan.Namespace,
	}
}

func runtimeEnvFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", 0)
	flags.SortFlags = false
	flags.Bool("include-system-env-vars", true, "pass the real system environment variables to the runtime")
	flags.StringArrayP("env", "e", nil, "add/override environment variable with `VAR=value`")
	return flags
}

// getRuntimeEnv returns the __ENV of the script: the system environment if
// it is included, overridden by every --env flag.
func getRuntimeEnv(gs *state.GlobalState, flags *pflag.FlagSet) (map[string]string, error) {
	env := make(map[string]string)

	includeSystem, err := flags.GetBool("include-system-env-vars")
	if err != nil {
		return nil, err
	}
	if includeSystem {
		for k, v := range gs.Env {
			env[k] = v
		}
	}

	vars, err := flags.GetStringArray("env")
	if err != nil {
		return nil, err
	}
	for _, kv := range vars {
		k, v, ok := splitEnvVar(kv)
		if !ok {
			return nil, fmt.Errorf("invalid environment variable '%s', expected VAR=value", kv)
		}
		env[k] = v
	}
	return env, nil
}

func splitEnvVar(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	return k, v, ok && k != ""
}
