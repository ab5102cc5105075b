// Command mortise evaluates a building model written in the Mortise Lisp
// dialect, slices its elements into material layers, cuts their openings
// and reports the result.
//
// Usage:
//
//	mortise [-config settings.json] [-workers n] [-json] [-v] model.lisp
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exit. It returns 2 for usage errors
// and 1 when the model has errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mortise", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "JSON settings file")
	workers := fs.Int("workers", -1, "conversion workers, 0 for one per CPU")
	asJSON := fs.Bool("json", false, "print the JSON report with meshes")
	verbose := fs.Bool("v", false, "log debug output")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: mortise [flags] model.lisp")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			logger.Error().Err(err).Msg("Unable to load settings")
			return 2
		}
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		logger.Error().Err(err).Msg("Unable to read model")
		return 2
	}

	app, err := NewApp(cfg, diag.NewLogSink(logger))
	if err != nil {
		logger.Error().Err(err).Msg("Invalid settings")
		return 2
	}
	res := app.Evaluate(ctx, string(source))

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Error().Err(err).Msg("Unable to write report")
			return 1
		}
	} else {
		printSummary(stdout, res)
	}

	if len(res.Errors) > 0 {
		return 1
	}
	return 0
}

// printSummary writes one line per element followed by the errors and
// warnings.
func printSummary(w io.Writer, res EvalResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ELEMENT\tKIND\tSTATUS\tITEMS\tVOLUME")
	for _, e := range res.Elements {
		fmt.Fprintln(tw, e)
	}
	tw.Flush()

	for _, e := range res.Errors {
		fmt.Fprintln(w, "error:", format(e))
	}
	for _, e := range res.Warnings {
		fmt.Fprintln(w, "warning:", format(e))
	}
}

func format(e EvalErrorData) string {
	s := e.Message
	if e.Element != "" {
		s = e.Element + ": " + s
	}
	if e.Line > 0 {
		s = fmt.Sprintf("line %d: %s", e.Line, s)
	}
	return s
}
