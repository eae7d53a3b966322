package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/eventgrid/internal/app"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Runner runs the server with fully resolved settings.
type Runner func(ctx context.Context, outW io.Writer, settings app.Settings) error

// RunApp is the default Runner.
func RunApp(version string) Runner {
	return func(ctx context.Context, outW io.Writer, settings app.Settings) error {
		a, err := app.New(outW, settings, version)
		if err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
		return a.Run(ctx)
	}
}

// NewRootCommand builds the eventgrid command tree.
func NewRootCommand(outW io.Writer, version string, run Runner) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventgrid",
		Short: "eventgrid - a runtime for event pipelines",
		Long: `eventgrid runs event pipelines: sources feed events through dataflow
pipelines into sinks, wired together by bindings. Artefacts can be loaded
from files at startup and managed at runtime through a REST API.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(outW)
	root.SetErr(outW)

	server := &cobra.Command{
		Use:   "server",
		Short: "Manage the eventgrid server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	server.AddCommand(newServerRunCommand(outW, run))
	root.AddCommand(server)
	return root
}

func newServerRunCommand(outW io.Writer, run Runner) *cobra.Command {
	var configPath string
	defaults := app.DefaultSettings()
	flags := defaults

	cmd := &cobra.Command{
		Use:   "run [ARTEFACT_PATH...]",
		Short: "Run the server, loading dataflow (.hcl) and declarative (.yaml) files first",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := app.DefaultSettings()
			if configPath != "" {
				if err := app.LoadSettingsFile(configPath, &settings); err != nil {
					return &ExitError{Code: 2, Message: err.Error()}
				}
			}
			overrideChanged(cmd, &settings, flags)
			if len(args) > 0 {
				settings.Artefacts = args
			}
			settings.LogLevel = strings.ToLower(settings.LogLevel)
			settings.LogFormat = strings.ToLower(settings.LogFormat)
			if err := settings.Validate(); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			return run(cmd.Context(), outW, settings)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to a TOML settings file.")
	f.IntVar(&flags.MailboxCapacity, "mailbox-capacity", defaults.MailboxCapacity, "Maximum number of pending world requests.")
	f.IntVar(&flags.InboxSize, "inbox-size", defaults.InboxSize, "Event buffer size of each pipeline and sink.")
	f.StringVar(&flags.APIHost, "api-host", defaults.APIHost, "Address the management API listens on.")
	f.BoolVar(&flags.NoAPI, "no-api", defaults.NoAPI, "Do not start the management API.")
	f.StringVar(&flags.PIDFile, "pid-file", defaults.PIDFile, "Write the process id to this file.")
	f.StringVar(&flags.LogLevel, "log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	f.StringVar(&flags.LogFormat, "log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	f.BoolVar(&flags.NoBanner, "no-banner", defaults.NoBanner, "Do not print the startup banner.")
	f.DurationVar(&flags.ShutdownTimeout, "shutdown-timeout", defaults.ShutdownTimeout, "How long to wait for a graceful shutdown.")
	return cmd
}

// overrideChanged copies the flags the user actually set over settings, so
// the settings file only loses to explicit flags.
func overrideChanged(cmd *cobra.Command, settings *app.Settings, flags app.Settings) {
	changed := cmd.Flags().Changed
	if changed("mailbox-capacity") {
		settings.MailboxCapacity = flags.MailboxCapacity
	}
	if changed("inbox-size") {
		settings.InboxSize = flags.InboxSize
	}
	if changed("api-host") {
		settings.APIHost = flags.APIHost
	}
	if changed("no-api") {
		settings.NoAPI = flags.NoAPI
	}
	if changed("pid-file") {
		settings.PIDFile = flags.PIDFile
	}
	if changed("log-level") {
		settings.LogLevel = flags.LogLevel
	}
	if changed("log-format") {
		settings.LogFormat = flags.LogFormat
	}
	if changed("no-banner") {
		settings.NoBanner = flags.NoBanner
	}
	if changed("shutdown-timeout") {
		settings.ShutdownTimeout = flags.ShutdownTimeout
	}
}

// PrintError writes err followed by every distinct error in its chain.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", err)
	prev := err.Error()
	for cause := unwrap(err); cause != nil; cause = unwrap(cause) {
		msg := cause.Error()
		if msg == prev {
			continue
		}
		fmt.Fprintf(w, "  caused by: %s\n", msg)
		prev = msg
	}
}

// unwrap follows the first branch of joined errors.
func unwrap(err error) error {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := u.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
		return nil
	}
	return errors.Unwrap(err)
}
