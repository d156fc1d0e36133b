package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liuxd6825/k6x/cmd/state"
	"github.com/liuxd6825/k6x/ext"
	"github.com/liuxd6825/k6x/lib/consts"
)

// inspectReport is what `k6x inspect` prints: the requirements of the
// script and the extension versions they resolve to in this binary. When
// resolution fails, Errors lists every requirement that couldn't be met and
// nothing is resolved.
type inspectReport struct {
	Source        string                   `json:"source" yaml:"source"`
	EngineVersion string                   `json:"engineVersion" yaml:"engineVersion"`
	Engine        ext.Constraint           `json:"engine" yaml:"engine"`
	Requirements  []ext.Requirement        `json:"requirements" yaml:"requirements"`
	Imports       []string                 `json:"imports" yaml:"imports"`
	Resolved      []*ext.ResolvedExtension `json:"resolved" yaml:"resolved"`
	Modules       []string                 `json:"modules" yaml:"modules"`
	Errors        []string                 `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type cmdInspect struct {
	gs     *state.GlobalState
	format string
}

func (c *cmdInspect) run(_ *cobra.Command, args []string) error {
	test, loadErr := loadTest(c.gs, args)
	if test == nil {
		return loadErr
	}

	plan := test.plan
	report := inspectReport{
		Source:        plan.Manifest.SourceID,
		EngineVersion: consts.Version,
		Engine:        plan.Manifest.Engine,
		Requirements:  plan.Manifest.Requirements,
		Imports:       plan.Manifest.Imports,
		Resolved:      make([]*ext.ResolvedExtension, 0, len(plan.Resolved)),
		Modules:       []string{},
	}
	if report.Imports == nil {
		report.Imports = []string{}
	}
	if loadErr != nil {
		report.Errors = failureList(loadErr)
	} else {
		for _, name := range plan.Resolved.Names() {
			report.Resolved = append(report.Resolved, plan.Resolved[name])
		}
		report.Modules = plan.Namespace.Specifiers()
	}

	var (
		out []byte
		err error
	)
	switch c.format {
	case "json":
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		out = buf.Bytes()
	case "yaml":
		if out, err = yaml.Marshal(report); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output format '%s'", c.format)
	}

	printToStdout(c.gs, string(out))
	return loadErr
}

// failureList returns the messages of every error joined into err.
func failureList(err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		list := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			list = append(list, e.Error())
		}
		return list
	}
	return []string{err.Error()}
}

func getCmdInspect(gs *state.GlobalState) *cobra.Command {
	c := &cmdInspect{gs: gs}

	inspectCmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Inspect the extension requirements of a script",
		Long: `Inspect the extension requirements of a script.

The "use k6" directives and the imports of the script are parsed and resolved
against the extensions of this binary. Nothing of the script is executed.`,
		Example: getExampleText(gs, `  {{.}} inspect script.js
  {{.}} inspect --format yaml script.js`),
		Args: exactArgsWithMsg(1, "arg should either be \"-\", if reading script from stdin, or a path to a script file"),
		RunE: c.run,
	}

	inspectCmd.Flags().SortFlags = false
	inspectCmd.Flags().StringVarP(&c.format, "format", "f", "json", "output format, 'json' or 'yaml'")

	return inspectCmd
}
