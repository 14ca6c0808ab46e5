// Package main provides the shellpilot CLI: a command execution and monitoring
// engine for coding agents, usable one command at a time or as an interactive shell.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shellpilot/internal/config"
	"shellpilot/internal/logger"
	"shellpilot/internal/version"
)

var (
	configFile string
	testMode   bool

	// settings is the effective configuration source, loaded once flags are parsed.
	settings *viper.Viper
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shellpilot",
	Short: "shellpilot - command execution and monitoring for coding agents",
	Long: `shellpilot runs shell commands in persistent terminal sessions, tracks their
completion through shell integration, shapes their output and keeps watching
commands that outlive their timeout.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRepl, // Default behavior is the interactive shell
}

// replCmd is the explicit version of the default behavior
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive shell",
	Long: `Start an interactive shell. Lines that are not builtins run as commands in the
current session; type 'help' for the builtins.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			cmd.Println(version.GetBaseVersion())
			return
		}
		cmd.Println(version.GetDetailedVersion())
	},
}

// flagKeys maps configuration keys to the flags that override them.
var flagKeys = map[string]string{
	config.KeyLogLevel:        "log-level",
	config.KeyLogFile:         "log-file",
	config.KeyShell:           "shell",
	config.KeyTimeout:         "timeout",
	config.KeyMaxOutputChars:  "max-output",
	config.KeySandbox:         "sandbox",
	config.KeyAutoMonitor:     "monitor",
	config.KeyPreFilter:       "prefilter",
	config.KeyRequireApproval: "approve",
	config.KeyPatternFile:     "patterns",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file [default: $XDG_CONFIG_HOME/shellpilot/config.yaml]")
	flags.String("log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String("log-file", "", "Write logs to file instead of stderr")
	flags.BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")

	// Engine settings; unset flags fall back to the config file and environment
	flags.String("shell", "bash", "Shell kind or path for new sessions")
	flags.Duration("timeout", 0, "How long to wait for a command before monitoring it [default: 30s]")
	flags.Int("max-output", 0, "Output budget in characters [default: 30000]")
	flags.Bool("sandbox", true, "Refuse destructive commands")
	flags.Bool("monitor", true, "Keep watching commands that exceed the timeout")
	flags.Bool("prefilter", false, "Drop noise lines before truncating output")
	flags.Bool("approve", false, "Ask for approval before every command")
	flags.String("patterns", "", "YAML file with pre-filter patterns")

	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(shellsCmd)
	versionCmd.Flags().Bool("short", false, "Print only major.minor.patch")
	rootCmd.AddCommand(versionCmd)

	// Configure settings and logger before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	v, err := config.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := bindFlags(v, rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Configure(v.GetString(config.KeyLogLevel), v.GetString(config.KeyLogFile), testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	settings = v
}

// bindFlags lets the persistent flags of cmd override their configuration keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, name := range flagKeys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}
	return nil
}

// exitCodeError makes the process exit with code without printing anything.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
