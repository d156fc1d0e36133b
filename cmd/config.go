package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/liuxd6825/k6x/cmd/state"
	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/lib"
)

// Config is the run configuration read from one source: the config file,
// the environment or the command line flags.
type Config struct {
	lib.Options
}

// Apply overwrites c with every valid field of cfg.
func (c Config) Apply(cfg Config) Config {
	c.Options = c.Options.Apply(cfg.Options)
	return c
}

// Gets configuration from CLI flags.
func getConfig(flags *pflag.FlagSet) (Config, error) {
	opts, err := getOptions(flags)
	if err != nil {
		return Config{}, err
	}
	return Config{Options: opts}, nil
}

// readDiskConfig reads the config file, if there is one. A missing file is
// only an error when it was explicitly requested.
func readDiskConfig(gs *state.GlobalState) (Config, error) {
	path := gs.Flags.ConfigFilePath
	data, err := afero.ReadFile(gs.FS, path)
	if errors.Is(err, fs.ErrNotExist) && path == gs.DefaultFlags.ConfigFilePath {
		gs.Logger.WithField("path", path).Debug("No config file found")
		return Config{}, nil
	} else if err != nil {
		return Config{}, fmt.Errorf("couldn't read config file %q: %w", path, err)
	}

	conf, err := parseConfig(path, data)
	if err != nil {
		return Config{}, fmt.Errorf("couldn't parse config file %q: %w", path, err)
	}
	return conf, nil
}

// parseConfig decodes JSON, or YAML when the file extension says so. YAML
// documents are converted to JSON first, so both formats go through the same
// nullable decoders of the options.
func parseConfig(path string, data []byte) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Config{}, err
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return Config{}, err
		}
	}

	var conf Config
	if err := json.Unmarshal(data, &conf); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Reads configuration variables from the environment.
func readEnvConfig(envMap map[string]string) (Config, error) {
	conf := Config{}
	err := envconfig.Process("", &conf, func(key string) (string, bool) {
		v, ok := envMap[key]
		return v, ok
	})
	return conf, err
}

// getConsolidatedConfig assembles the final run options, in order of
// increasing precedence: defaults, config file, environment variables and
// CLI flags.
func getConsolidatedConfig(gs *state.GlobalState, cliConf Config) (Config, error) {
	fileConf, err := readDiskConfig(gs)
	if err != nil {
		return Config{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	envConf, err := readEnvConfig(gs.Env)
	if err != nil {
		return Config{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	conf := Config{}.Apply(fileConf).Apply(envConf).Apply(cliConf)
	conf.Options = conf.Options.WithDefaults()
	return conf, nil
}
