package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/liuxd6825/k6x/cmd/state"
	"github.com/liuxd6825/k6x/execution"
	"github.com/liuxd6825/k6x/lib"
)

const banner = `
  /\      |‾‾|  /‾‾/   /‾‾/ __  __
 /  \     |  |/  /    /  /  \ \/ /
/    \    |     (    /  ‾‾\  >  <
\     \   |  |\  \  |  (‾) |/ /\ \
 \_____\  |__| \__\  \____//_/  \_\`

func getBanner(noColor bool) string {
	c := getColor(noColor, color.FgCyan)
	return c.Sprint(banner)
}

func printBanner(gs *state.GlobalState) {
	if gs.Flags.Quiet {
		return
	}
	printToStdout(gs, fmt.Sprintf("%s\n\n", getBanner(gs.Flags.NoColor || !gs.Stdout.IsTTY)))
}

// printExecutionDescription shows what is about to run.
func printExecutionDescription(gs *state.GlobalState, filename string, plan *execution.Plan, opts lib.Options) {
	if gs.Flags.Quiet {
		return
	}
	noColor := gs.Flags.NoColor || !gs.Stdout.IsTTY
	valueColor := getColor(noColor, color.FgCyan)

	buf := &strings.Builder{}
	fmt.Fprintf(buf, "     execution: %s\n", valueColor.Sprint("local"))
	fmt.Fprintf(buf, "        script: %s\n", valueColor.Sprint(filename))
	if names := plan.Resolved.Names(); len(names) > 0 {
		pinned := make([]string, 0, len(names))
		for _, name := range names {
			pinned = append(pinned, fmt.Sprintf("%s@%s", name, plan.Resolved[name].Version))
		}
		fmt.Fprintf(buf, "    extensions: %s\n", valueColor.Sprint(strings.Join(pinned, ", ")))
	}
	fmt.Fprintf(buf, "      executor: %s\n", valueColor.Sprint(opts.Executor.String))

	switch opts.Executor.String {
	case lib.ConstantVUsType:
		fmt.Fprintf(buf, "     scenarios: %s looping VUs for %s\n",
			valueColor.Sprint(opts.VUs.Int64), valueColor.Sprint(opts.Duration.String()))
	default:
		fmt.Fprintf(buf, "     scenarios: %s iterations shared among %s VUs (maxDuration: %s)\n",
			valueColor.Sprint(opts.Iterations.Int64), valueColor.Sprint(opts.VUs.Int64),
			valueColor.Sprint(opts.Duration.String()))
	}
	printToStdout(gs, buf.String()+"\n")
}

// printSummary renders the end-of-run summary.
func printSummary(gs *state.GlobalState, res *execution.Result) {
	if gs.Flags.Quiet {
		return
	}
	noColor := gs.Flags.NoColor || !gs.Stdout.IsTTY
	valueColor := getColor(noColor, color.FgCyan)
	okColor := getColor(noColor, color.FgGreen)
	failColor := getColor(noColor, color.FgRed, color.Bold)
	faintColor := getColor(noColor, color.Faint)

	status := okColor.Sprint("✓ ", res.Status)
	if res.Aborted() {
		status = failColor.Sprintf("✗ %s in %s", res.Status, res.FailedPhase)
	}

	buf := &strings.Builder{}
	fmt.Fprintf(buf, "\n        status: %s\n", status)
	fmt.Fprintf(buf, "        run id: %s\n", faintColor.Sprint(res.RunID))
	fmt.Fprintf(buf, "      duration: %s\n", valueColor.Sprint(res.Duration.Round(time.Millisecond)))

	failed := valueColor.Sprint(res.FailedIterations)
	if res.FailedIterations > 0 {
		failed = failColor.Sprint(res.FailedIterations)
	}
	fmt.Fprintf(buf, "    iterations: %s complete, %s failed, %s dropped\n",
		valueColor.Sprint(res.FullIterations), failed, valueColor.Sprint(res.DroppedIterations))

	vuIDs := make([]uint64, 0, len(res.VUIterations))
	for id := range res.VUIterations {
		vuIDs = append(vuIDs, id)
	}
	sort.Slice(vuIDs, func(i, j int) bool { return vuIDs[i] < vuIDs[j] })
	for _, id := range vuIDs {
		fmt.Fprintf(buf, "         vu %2d: %s iterations\n", id, valueColor.Sprint(res.VUIterations[id]))
	}

	for _, ierr := range res.IterationErrors {
		fmt.Fprintf(buf, "     %s %s\n", failColor.Sprint("✗"), faintColor.Sprint(ierr.Error()))
	}

	printToStdout(gs, buf.String()+"\n")
}
