package main

import (
	"fmt"
	"io"

	"github.com/danmuck/hl7gate/internal/config"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	workers    int
	adminAddr  string
	port       string
	help       bool
}

func parseArgs(args []string, stderr io.Writer) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("hl7gate", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	flagSet.IntVar(&opts.workers, "workers", 0, "worker pool size (overrides config)")
	flagSet.StringVar(&opts.adminAddr, "admin-addr", "", "admin HTTP listen address, empty keeps the config value")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			opts.help = true
			return opts, flagSet, nil
		}
		return options{}, flagSet, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		opts.port = rest[0]
	}
	return opts, flagSet, nil
}

// resolveConfig layers file, environment and command line over the defaults.
// warn receives a message when the positional port is unusable.
func resolveConfig(opts options, getenv func(string) string, warn func(string)) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg, getenv)

	if opts.port != "" {
		port, ok := config.ParsePort(opts.port)
		if !ok && warn != nil {
			warn(fmt.Sprintf("invalid port %q, using %d", opts.port, config.DefaultPort))
		}
		cfg.Port = port
	}
	if opts.workers != 0 {
		cfg.Workers = opts.workers
	}
	if opts.adminAddr != "" {
		cfg.AdminAddr = opts.adminAddr
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `hl7gate accepts MLLP-framed HL7 v2 messages, stores each one and
replies with an HL7 acknowledgment.

Usage:
  hl7gate [flags] [port]

The port defaults to %d. The upload bucket is read from %s.

Flags:
%s`, config.DefaultPort, config.EnvBucket, flagSet.FlagUsages())
}
