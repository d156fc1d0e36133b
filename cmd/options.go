package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/liuxd6825/k6x/lib"
)

func optionFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", 0)
	flags.SortFlags = false

	flags.String("executor", "", fmt.Sprintf(
		"how iterations are scheduled, '%s' or '%s' (derived from the other options by default)",
		lib.SharedIterationsType, lib.ConstantVUsType))
	flags.Int64P("vus", "u", lib.DefaultVUs, "number of virtual users")
	flags.StringP("duration", "d", "", "test duration limit, or the maximum duration of shared iterations")
	flags.Int64P("iterations", "i", 0, "script total iteration limit (among all VUs)")
	flags.Bool("no-setup", false, "don't run setup()")
	flags.Bool("no-teardown", false, "don't run teardown()")
	flags.String("setup-timeout", "", fmt.Sprintf("how long setup() may run (default %s)", lib.DefaultSetupTimeout))
	flags.String("teardown-timeout", "",
		fmt.Sprintf("how long teardown() may run (default %s)", lib.DefaultTeardownTimeout))
	return flags
}

func getOptions(flags *pflag.FlagSet) (lib.Options, error) {
	opts := lib.Options{
		Executor:   getNullString(flags, "executor"),
		VUs:        getNullInt64(flags, "vus"),
		Iterations: getNullInt64(flags, "iterations"),
		NoSetup:    getNullBool(flags, "no-setup"),
		NoTeardown: getNullBool(flags, "no-teardown"),
	}

	var err error
	if opts.Duration, err = getNullDuration(flags, "duration"); err != nil {
		return opts, err
	}
	if opts.SetupTimeout, err = getNullDuration(flags, "setup-timeout"); err != nil {
		return opts, err
	}
	if opts.TeardownTimeout, err = getNullDuration(flags, "teardown-timeout"); err != nil {
		return opts, err
	}
	return opts, nil
}
