package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spawnme/internal/app"
	"spawnme/internal/di"
)

var version = "dev"

const usage = `usage: spawnme [-config path] <command> [flags]

commands:
  templates list | add -title T -body B | show -id N | delete -id N
  send [-template N | -title T -body B] [-delay 30s | -delayed | -now]
  permission status | grant | deny | reset
  serve
  version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("spawnme", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	cfgPath := fs.String("config", "./spawnme.yaml", "path to config (json or yaml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintln(stdout, "spawnme", version)
		return 0
	}

	var handler func(ctx context.Context, a *app.App, args []string, out io.Writer) error
	mode := app.ModeCLI
	switch cmd {
	case "templates":
		handler = runTemplates
	case "send":
		handler = runSend
	case "permission":
		handler = runPermission
	case "serve":
		mode = app.ModeServe
		handler = runServe
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := di.InitializeApp(*cfgPath, mode, app.IO{In: stdin, Out: stderr})
	if err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	defer cleanup()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(stderr, "fatal start:", err)
		return 1
	}

	runErr := handler(ctx, a, rest, stdout)

	reason := app.StopCommandDone
	if ctx.Err() != nil {
		reason = app.StopSignal
	} else if a.Err() != nil {
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if runErr == nil {
		runErr = a.Err()
	}
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(stderr, "error:", runErr)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, a *app.App, args []string, _ io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("serve takes no arguments")
	}
	select {
	case <-ctx.Done():
		return nil
	case <-a.Done():
		return a.Err()
	}
}
