package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/k6x/cmd/state"
	"github.com/liuxd6825/k6x/ext"
	"github.com/liuxd6825/k6x/lib/consts"
)

func versionString(gs *state.GlobalState) string {
	v := consts.FullVersion() + "\n"

	if exts := gs.Registry.All(); len(exts) > 0 {
		extsDesc := make([]string, 0, len(exts))
		for _, e := range exts {
			extsDesc = append(extsDesc, fmt.Sprintf("  %s%s", ext.ModulePrefix, e.String()))
		}
		v += fmt.Sprintf("Extensions:\n%s\n", strings.Join(extsDesc, "\n"))
	}
	return v
}

type versionCmd struct {
	gs     *state.GlobalState
	isJSON bool
}

type versionDetails struct {
	Version    string             `json:"version"`
	GoVersion  string             `json:"go_version"`
	GoOS       string             `json:"go_os"`
	GoArch     string             `json:"go_arch"`
	Extensions []extensionDetails `json:"extensions,omitempty"`
}

type extensionDetails struct {
	Name     string   `json:"name"`
	Import   string   `json:"import"`
	Versions []string `json:"versions"`
	Exports  []string `json:"exports"`
}

func (c *versionCmd) run(cmd *cobra.Command, _ []string) error {
	if !c.isJSON {
		printToStdout(c.gs, versionString(c.gs))
		return nil
	}

	details := versionDetails{
		Version:   consts.Version,
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}
	for _, e := range c.gs.Registry.All() {
		details.Extensions = append(details.Extensions, extensionDetails{
			Name:     e.Name,
			Import:   ext.ModulePrefix + e.Name,
			Versions: e.VersionStrings(),
			Exports:  e.ExportNames(),
		})
	}

	jsonDetails, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed produce a JSON version details: %w", err)
	}

	_, err = fmt.Fprintln(c.gs.Stdout, string(jsonDetails))
	return err
}

func getCmdVersion(gs *state.GlobalState) *cobra.Command {
	versionCmd := &versionCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		Long:  `Show the application version, together with the registered extensions, and exit.`,
		Args:  cobra.NoArgs,
		RunE:  versionCmd.run,
	}

	cmd.Flags().BoolVar(&versionCmd.isJSON, "json", false, "if set, output version information will be in JSON format")

	return cmd
}
