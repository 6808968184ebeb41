// assetc compiles model, thing and save JSON inputs into the engine's binary
// asset files.
//
// Usage:
//
//	assetc [--config assetc.yaml] [--log-format text|json] [--log-level info] <command> [args]
//
// Commands:
//
//	model <author> <name>   build {author}-{name}.model
//	thing <author> <name>   build {author}-{name}.thing
//	save <name>             build {name}.city
//	all                     build every input, models first
//	inspect <file>          decode an asset file and print it as JSON
//	list [--kind k]         list indexed assets
//	keys                    print the active config key table
//	journal                 print the build journal
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"cityforge.dev/internal/build"
	"cityforge.dev/internal/config"
)

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }
func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

type env struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		logFormat  string
		logLevel   string
	)
	flagSet := pflag.NewFlagSet("assetc", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to assetc.yaml (defaults apply when empty)")
	flagSet.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &usageError{msg: err.Error()}
	}

	logger, err := newLogger(stderr, logFormat, logLevel)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return usagef("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := env{cfg: cfg, logger: logger, stdout: stdout}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "model", "thing", "save", "all":
		return runBuild(ctx, e, cmd, cmdArgs)
	case "inspect":
		return runInspect(e, cmdArgs)
	case "list":
		return runList(ctx, e, cmdArgs)
	case "keys":
		return runKeys(e, cmdArgs)
	case "journal":
		return runJournal(e, cmdArgs)
	case "help":
		printHelp(stdout, flagSet)
		return nil
	}
	return usagef("unknown command %q", cmd)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, usagef("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, usagef("invalid --log-format %q (want text or json)", format)
}

func runBuild(ctx context.Context, e env, cmd string, args []string) error {
	b, err := build.Open(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			e.logger.Warn("close builder", "err", err)
		}
	}()

	var res build.Result
	switch cmd {
	case "model", "thing":
		if len(args) != 2 {
			return usagef("usage: assetc %s <author> <name>", cmd)
		}
		if cmd == "model" {
			res, err = b.BuildModel(ctx, args[0], args[1])
		} else {
			res, err = b.BuildThing(ctx, args[0], args[1])
		}
	case "save":
		if len(args) != 1 {
			return usagef("usage: assetc save <name>")
		}
		res, err = b.BuildSave(ctx, args[0])
	case "all":
		if len(args) != 0 {
			return usagef("usage: assetc all")
		}
		results, err := b.BuildAll(ctx)
		for _, r := range results {
			fmt.Fprintln(e.stdout, r.Output)
		}
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, res.Output)
	return nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(w, `assetc compiles model, thing and save inputs into binary asset files.

Usage:
  assetc [flags] <command> [args]

Commands:
  model <author> <name>   build {author}-{name}.model
  thing <author> <name>   build {author}-{name}.thing
  save <name>             build {name}.city
  all                     build every input found in the configured dirs
  inspect <file>          decode a .model, .thing or .city file as JSON
  list [--kind k]         list indexed assets
  keys                    print the config key table
  journal [--errors]      print the build journal

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
