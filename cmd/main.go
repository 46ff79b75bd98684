package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	testd "github.com/ethereum-optimism/infra/op-testd"
	"github.com/ethereum-optimism/infra/op-testd/coordinator"
	"github.com/ethereum-optimism/infra/op-testd/events"
	"github.com/ethereum-optimism/infra/op-testd/exitcodes"
	"github.com/ethereum-optimism/infra/op-testd/flags"
	"github.com/ethereum-optimism/infra/op-testd/runner"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "op-testd"
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Usage = "Persistent test orchestration daemon"
	app.Description = "op-testd keeps a test suite registry resident and runs filtered test passes on demand, streaming progress to connected clients"
	app.Flags = flags.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if testd.IsTestFailureError(err) {
			os.Exit(exitcodes.TestFailure)
		}
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := testd.ReadConfig(cliCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		return testd.NewRuntimeError(err)
	}
	cfg.Version = cliCtx.App.Version

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return testd.NewRuntimeError(fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err))
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, logLevel, false))
	log.SetDefault(logger)

	daemon, err := testd.NewDaemon(logger, cfg)
	if err != nil {
		return testd.NewRuntimeError(err)
	}

	if cliCtx.Bool(flags.OnceFlag.Name) {
		return runOnce(cliCtx, daemon)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Start(); err != nil {
		return testd.NewRuntimeError(err)
	}
	select {
	case <-ctx.Done():
		logger.Info("caught signal, shutting down")
	case err := <-daemon.Fatal():
		daemon.Shutdown()
		return testd.NewRuntimeError(err)
	}
	daemon.Shutdown()
	return nil
}

// runOnce executes a single pass without binding any listeners. Events go
// to stdout as JSON lines and the run's outcome becomes the exit code.
func runOnce(cliCtx *cli.Context, daemon *testd.Daemon) error {
	reporter := runner.ReporterKind(cliCtx.String(flags.ReporterFlag.Name))
	if !reporter.Valid() {
		return testd.NewRuntimeError(fmt.Errorf("unknown reporter %q", reporter))
	}
	req := coordinator.RunRequest{
		NamePattern:    cliCtx.String(flags.GrepFlag.Name),
		FilePattern:    cliCtx.String(flags.FileFlag.Name),
		Invert:         cliCtx.Bool(flags.InvertFlag.Name),
		Reporter:       reporter,
		Bail:           cliCtx.Bool(flags.BailFlag.Name),
		SnapshotUpdate: cliCtx.Bool(flags.UpdateSnapshotsFlag.Name),
	}

	// The sender captures the real stdout before the run's output relay
	// swaps it out, so event lines bypass the capture.
	sender := events.NewWriterSender(os.Stdout)
	failures := daemon.Coordinator().Execute(daemon.RunContext(), req, sender)
	daemon.Shutdown()
	if failures > 0 {
		return testd.NewTestFailureError(failures)
	}
	return nil
}
