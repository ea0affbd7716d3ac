package main

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"strings"

	"github.com/scanforge/scanforge/pkg/cli"
	"github.com/scanforge/scanforge/pkg/config"
)

// commonFlags are accepted by every command that reads configuration.
type commonFlags struct {
	configFile string
	preset     string
	jsonLogs   bool
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "YAML config file overlaid on the preset")
	fs.StringVar(&c.preset, "preset", "", "bundled preset: "+joinPresets())
	fs.BoolVar(&c.jsonLogs, "json-logs", false, "log as JSON lines")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
}

func (c *commonFlags) logger(w io.Writer) *slog.Logger {
	return cli.NewLogger(w, cli.LogOptions{Verbose: c.verbose, JSON: c.jsonLogs})
}

// load resolves preset, then file. Flags are applied by the caller.
func (c *commonFlags) load() (config.Config, error) {
	cfg, err := config.Preset(c.preset)
	if err != nil {
		return config.Config{}, err
	}
	if c.configFile != "" {
		return cfg.LoadFile(c.configFile)
	}
	return cfg, nil
}

func joinPresets() string {
	return strings.Join(config.Presets(), ", ")
}

// parse parses args into fs, mapping -h and stray arguments onto the
// command errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return usageErrorf("%v", err)
	}
	if fs.NArg() > 0 {
		return usageErrorf("unexpected argument %q", fs.Arg(0))
	}
	return nil
}
