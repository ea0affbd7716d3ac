package main

import (
	"flag"
	"fmt"

	"gopkg.in/yaml.v3"
)

// runConfig prints the configuration a scan with the same -preset and
// -config would use, after validation.
func (a *app) runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var c commonFlags
	c.register(fs)
	check := fs.Bool("check", false, "only validate; print nothing on success")
	if err := parse(fs, args); err != nil {
		return err
	}

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *check {
		return nil
	}

	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}
