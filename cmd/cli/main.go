package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/benchgrid/internal/app"
	"github.com/vk/benchgrid/internal/cli"
)

// main is the entrypoint for the benchgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Interrupts stop admitting new runs; running jobs are killed through
	// their own contexts only when they time out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Args[1:], os.Getenv); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			stop()
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string, getenv func(string) string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW, getenv)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	benchgrid, err := app.NewApp(outW, appConfig)
	if err != nil {
		return cli.FromRunError(err)
	}
	defer benchgrid.Close()

	_, err = benchgrid.Run(ctx)
	return cli.FromRunError(err)
}
