package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"shellpilot/pkg/shelltypes"
)

var runFlags struct {
	session      string
	reuse        bool
	cwd          string
	env          map[string]string
	yes          bool
	format       string
	follow       bool
	pollInterval time.Duration
}

// runCmd executes one command and prints its result
var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run one command and print its result",
	Long: `Run one command in a new or named session and print the structured result.
A single argument is taken as a complete command line; several arguments are
quoted and joined.

The process exits with the command's exit code, or 1 when the command was
rejected, failed to start or timed out.`,
	Example: `  shellpilot run -- npm test
  shellpilot run --timeout 5s --follow "npm run build"
  shellpilot run --session api --reuse -o xml -- curl -s localhost:3000/health`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

// shellsCmd lists the shells new sessions can use
var shellsCmd = &cobra.Command{
	Use:   "shells",
	Short: "List the shells available for new sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(settings, testMode)
		if err != nil {
			return err
		}
		defer a.close()
		cmd.Print(shellsTable(a.locator, a.orch.Negotiator().Entries()))
		return nil
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runFlags.session, "session", "s", "", "Session name [default: generated]")
	flags.BoolVar(&runFlags.reuse, "reuse", false, "Run in the named session if it is still alive")
	flags.StringVar(&runFlags.cwd, "cwd", "", "Working directory for a new session")
	flags.StringToStringVarP(&runFlags.env, "env", "e", nil, "Extra environment for a new session (KEY=VALUE)")
	flags.BoolVarP(&runFlags.yes, "yes", "y", false, "Approve without prompting")
	flags.StringVarP(&runFlags.format, "output", "o", formatText, "Result format (text|xml|json|yaml)")
	flags.BoolVar(&runFlags.follow, "follow", false, "Keep polling a command handed off to monitoring until it ends")
	flags.DurationVar(&runFlags.pollInterval, "poll-interval", time.Second, "Polling interval for --follow")
}

func runOnce(cmd *cobra.Command, args []string) error {
	if err := checkFormat(runFlags.format); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(settings, testMode)
	if err != nil {
		return err
	}
	defer a.close()

	opts := runOptions{
		session: runFlags.session,
		reuse:   runFlags.reuse,
		cwd:     runFlags.cwd,
		env:     runFlags.env,
	}
	status := newCLIStatus(a.log, lineConfirm(cmd.InOrStdin(), cmd.ErrOrStderr()), runFlags.yes)

	res, err := a.orch.Execute(ctx, a.request(commandLine(args), opts), status)
	if err != nil {
		return err
	}
	if err := renderResult(cmd.OutOrStdout(), res, runFlags.format); err != nil {
		return err
	}

	if runFlags.follow && res.Status == shelltypes.ResultTimeoutMonitoring {
		snap, err := a.follow(ctx, res.SessionName, runFlags.pollInterval)
		if err != nil && ctx.Err() == nil {
			return err
		}
		if err := renderSnapshot(cmd.OutOrStdout(), snap, runFlags.format); err != nil {
			return err
		}
		if snap.ExitCode != nil {
			return exitCode(*snap.ExitCode)
		}
		return ctx.Err()
	}
	return resultExit(res)
}

// commandLine turns arguments into one command line. A lone argument is used
// verbatim so pipelines and redirections survive.
func commandLine(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return shellquote.Join(args...)
}

// resultExit maps a result onto the process exit status.
func resultExit(res *shelltypes.ExecutionResult) error {
	switch res.Status {
	case shelltypes.ResultSuccess, shelltypes.ResultTimeoutMonitoring:
		return nil
	case shelltypes.ResultError:
		if res.ExitCode != nil {
			return exitCode(*res.ExitCode)
		}
	}
	return exitCodeError{code: 1}
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	if code < 0 || code > 255 {
		code = 1
	}
	return exitCodeError{code: code}
}
