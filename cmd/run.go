package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liuxd6825/k6x/cmd/state"
	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/execution"
)

// cmdRun handles the `k6x run` sub-command
type cmdRun struct {
	gs *state.GlobalState

	summaryExport string
}

func (c *cmdRun) run(cmd *cobra.Command, args []string) (err error) {
	printBanner(c.gs)

	test, err := loadLocalTest(c.gs, cmd, args)
	if err != nil {
		return err
	}

	scheduler, err := execution.NewScheduler(test.buildTestRunState(c.gs))
	if err != nil {
		return err
	}
	// NewScheduler fills the defaults in, show what will actually run.
	printExecutionDescription(c.gs, test.source.URL.String(), test.plan, scheduler.GetState().Options)

	logger := c.gs.Logger.WithField("run", scheduler.RunID())

	runCtx, runCancel := context.WithCancel(c.gs.Ctx)
	defer runCancel()

	// Trap Interrupts, SIGINTs and SIGTERMs.
	// The first signal stops the iterations gracefully, teardown still runs.
	gracefulStop := func(sig os.Signal) {
		logger.WithField("sig", sig).Debug("Stopping k6x in response to signal...")
		runCancel()
	}
	onHardStop := func(sig os.Signal) {
		logger.WithField("sig", sig).Error("Aborting k6x in response to signal")
	}
	stopSignalHandling := handleTestAbortSignals(c.gs, gracefulStop, onHardStop)
	defer stopSignalHandling()

	logger.Debug("Starting the test run...")
	res, runErr := scheduler.Run(runCtx)

	printSummary(c.gs, res)
	if c.summaryExport != "" {
		if err := c.exportSummary(res); err != nil {
			logger.WithError(err).Error("failed to export the summary")
		}
	}

	if runErr != nil {
		logger.WithFields(logrus.Fields{
			"status": res.Status,
			"phase":  res.FailedPhase,
		}).Debug("Test run aborted")
		return runErr
	}
	logger.Debug("Test run finished")
	return nil
}

// summaryExport is the JSON document --summary-export writes.
type summaryExport struct {
	*execution.Result
	Error string `json:"error,omitempty"`
}

func (c *cmdRun) exportSummary(res *execution.Result) error {
	export := summaryExport{Result: res}
	if res.Err != nil {
		export.Error, _ = errext.Format(res.Err)
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return err
	}
	return afero.WriteFile(c.gs.FS, c.summaryExport, buf.Bytes(), 0o644)
}

func (c *cmdRun) flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.AddFlagSet(optionFlagSet())
	flags.AddFlagSet(runtimeEnvFlagSet())
	flags.StringVar(&c.summaryExport, "summary-export", "", "output the end-of-test summary report to JSON file")
	return flags
}

func getCmdRun(gs *state.GlobalState) *cobra.Command {
	c := &cmdRun{gs: gs}

	exampleText := getExampleText(gs, `
  # Run a single VU, once.
  {{.}} run script.js

  # Run a single VU, 10 times.
  {{.}} run -i 10 script.js

  # Run 5 VUs, splitting 10 iterations between them.
  {{.}} run -u 5 -i 10 script.js

  # Run 5 VUs for 10s.
  {{.}} run -u 5 -d 10s script.js

  # Pass a value to the script, available as __ENV.TARGET.
  {{.}} run -e TARGET=staging script.js`[1:])

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start a test",
		Long: `Start a test.

This also executes the setup() function once, then the default function in
every VU, and finally the teardown() function once. The extensions the script
requires are resolved before any of it runs.`,
		Example: exampleText,
		Args:    exactArgsWithMsg(1, "arg should either be \"-\", if reading script from stdin, or a path to a script file"),
		RunE:    c.run,
	}

	runCmd.Flags().SortFlags = false
	runCmd.Flags().AddFlagSet(c.flagSet())

	return runCmd
}
