package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/benchgrid/internal/app"
)

// StoreEnv supplies the store URI when -store is not given.
const StoreEnv = "BENCHGRID_STORE"

// ExitCodeRunsFailed is used in strict mode when any run did not succeed.
const ExitCodeRunsFailed = 3

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// FromRunError maps an application error to the process exit code.
func FromRunError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if errors.Is(err, app.ErrRunsFailed) {
		return &ExitError{Code: ExitCodeRunsFailed, Message: err.Error()}
	}
	return &ExitError{Code: 1, Message: err.Error()}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// getenv is consulted for settings that may come from the environment.
func Parse(args []string, output io.Writer, getenv func(string) string) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("benchgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
benchgrid - Sweeps simulator benchmarks over parameter grids with artifact provenance.

Usage:
  benchgrid [options] [CAMPAIGN_PATH]

Arguments:
  CAMPAIGN_PATH
    Path to a .hcl/.yaml campaign file or a directory containing them.

Options:
`)
		flagSet.PrintDefaults()
	}

	campaignFlag := flagSet.String("campaign", "", "Path to the campaign file or directory.")
	cFlag := flagSet.String("c", "", "Path to the campaign file or directory (shorthand).")
	workersFlag := flagSet.Int("workers", 4, "Maximum number of jobs running at once.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Override every job's timeout, e.g. 90m. 0 keeps the campaign's value.")
	storeFlag := flagSet.String("store", "", "Provenance and run ledger store: memory://, sqlite://PATH, postgres://DSN or redis://ADDR. Defaults to $"+StoreEnv+" or memory://.")
	outputRootFlag := flagSet.String("output-root", "", "Directory run output directories are created under. Defaults to the campaign directory.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	allowEmptyFlag := flagSet.Bool("allow-empty", false, "Succeed with no runs when the sweep prunes every combination.")
	planFlag := flagSet.Bool("plan", false, "Expand the sweep and print the runs without executing them.")
	buildFlag := flagSet.Bool("build", false, "Build and verify artifacts before running jobs.")
	rerunFlag := flagSet.Bool("rerun", false, "Run every job even if the ledger holds a successful result.")
	strictFlag := flagSet.Bool("strict", false, "Exit with code 3 when any run fails or times out.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *campaignFlag != "" {
		path = *campaignFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Campaign path determined.", "path", path)

	if path == "" {
		slog.Debug("No campaign path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	store := *storeFlag
	if store == "" && getenv != nil {
		store = getenv(StoreEnv)
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		CampaignPath:    path,
		Workers:         *workersFlag,
		Timeout:         *timeoutFlag,
		StoreURI:        store,
		OutputRoot:      *outputRootFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		AllowEmpty:      *allowEmptyFlag,
		PlanOnly:        *planFlag,
		Build:           *buildFlag,
		Rerun:           *rerunFlag,
		Strict:          *strictFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
