// procfleetctl is the command-line client for a running procfleetd.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ryym/procfleet/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr, apiKey, jwtToken string
	flag.StringVar(&addr, "addr", envOr("PROCFLEET_ADDR", "http://localhost:8080"), "procfleetd base URL")
	flag.StringVar(&apiKey, "api-key", os.Getenv("API_KEY"), "API key, if the daemon requires one")
	flag.StringVar(&jwtToken, "jwt", os.Getenv("JWT_TOKEN"), "bearer JWT, if the daemon requires one")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return nil
	}

	client := cli.NewClient(addr, apiKey, jwtToken)
	cmd, cmdArgs := args[0], args[1:]

	switch cmd {
	case "ps":
		return cli.RunList(client)
	case "run":
		return runCreate(client, cmdArgs)
	case "start":
		return runForEach(cmdArgs, func(name string) error {
			return cli.RunStart(client, name)
		})
	case "stop":
		return runStop(client, cmdArgs)
	case "restart":
		return runRestart(client, cmdArgs)
	case "rm":
		return cli.RunDelete(client, cmdArgs)
	case "write":
		return runWrite(client, cmdArgs)
	case "logs":
		return runLogs(client, cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runCreate(client *cli.Client, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	start := fs.Bool("start", true, "start the process immediately")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: procfleetctl run [-start=bool] <name> <command...>")
	}
	return cli.RunCreate(client, rest[0], rest[1:], *start)
}

func runStop(client *cli.Client, args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	kill := fs.Bool("kill", false, "send SIGKILL instead of a graceful SIGTERM")
	fs.Parse(args)
	return cli.RunStop(client, fs.Args(), *kill)
}

func runRestart(client *cli.Client, args []string) error {
	fs := flag.NewFlagSet("restart", flag.ExitOnError)
	killExisting := fs.Bool("kill", false, "send SIGKILL instead of a graceful SIGTERM")
	clearLogs := fs.Bool("clear-logs", false, "discard buffered logs on restart")
	fs.Parse(args)
	return cli.RunRestart(client, fs.Args(), *killExisting, *clearLogs)
}

func runWrite(client *cli.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: procfleetctl write <name> <line...>")
	}
	return cli.RunWrite(client, args[0], strings.Join(args[1:], " "))
}

func runLogs(client *cli.Client, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	follow := fs.Bool("f", false, "follow live output")
	lines := fs.Int("n", 100, "number of buffered lines to show")
	includeStderr := fs.Bool("stderr", true, "include stderr records")
	fs.Parse(args)

	names := fs.Args()
	if len(names) == 0 {
		return fmt.Errorf("usage: procfleetctl logs [-f] [-n lines] <name...>")
	}
	return cli.RunLogs(client, names, *lines, *includeStderr, *follow)
}

func runForEach(names []string, fn func(string) error) error {
	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println(`procfleetctl - control client for procfleetd

Usage:
  procfleetctl [options] <command> [args]

Options:
  -addr <url>      procfleetd base URL (default: http://localhost:8080)
  -api-key <key>   API key, if required
  -jwt <token>     bearer JWT, if required

Commands:
  ps                         List known processes
  run <name> <command...>    Register (and start) a new process
    -start=bool                 Start immediately (default: true)
  start <name...>            Start an existing process
  stop <name...>             Stop processes
    -kill                        Send SIGKILL instead of SIGTERM
  restart <name...>          Restart processes
    -kill                        Send SIGKILL instead of SIGTERM
    -clear-logs                  Discard buffered logs
  rm <name...>               Remove exited processes from the registry
  write <name> <line...>     Send one line to a process's stdin
  logs [-f] [-n lines] <name...>   Show (and optionally follow) logs`)
}
