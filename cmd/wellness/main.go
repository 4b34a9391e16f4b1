package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

func main() {
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "serve":
		return handleServe(args)
	case "score":
		return handleScore(args, out)
	case "chart":
		return handleChart(args, out)
	case "migrate":
		return handleMigrate(args, out)
	case "version":
		return handleVersion(out)
	case "help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `wellness - daily wellness scoring for care-facility residents

Usage: wellness <command> [options]

Commands:
  serve      Run the HTTP API and the nightly scoring worker
  score      Run one scoring pass now and print the report
  chart      Render a resident's score history to PNG
  migrate    Manage database migrations (see 'wellness migrate help')
  version    Show version information
  help       Show this help message

Common Flags:
  --config <file>   Scoring configuration (default: config/wellness.defaults.json if present)
  --db <path>       SQLite database path, overrides db_path from the configuration
  --debug           Enable debug logging

Examples:
  wellness serve --listen :8080
  wellness score --config /etc/wellness/wellness.json
  wellness chart --resident 3 --days 30 --out room12.png`)
}
