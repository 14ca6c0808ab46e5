package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell/v2"
	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"shellpilot/internal/config"
	"shellpilot/internal/logger"
	"shellpilot/internal/version"
)

// defaultSession is where interactive lines run until "use" picks another one.
const defaultSession = "main"

// repl is the state of the interactive shell.
type repl struct {
	*app

	mu      sync.Mutex
	session string
	format  string
}

// contextWriter prints through an ishell context.
type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func runRepl(_ *cobra.Command, _ []string) error {
	a, err := newApp(settings, testMode)
	if err != nil {
		return err
	}
	defer a.close()

	if settings.ConfigFileUsed() != "" {
		config.Watch(settings, a.reload)
	}

	r := &repl{app: a, session: defaultSession, format: formatText}
	logger.Info("Starting shellpilot", "version", version.GetVersion(), "shell", a.config().Shell)

	sh := ishell.New()
	sh.SetPrompt("shellpilot> ")
	sh.Println(version.GetFormattedVersion() + " - command execution and monitoring")
	sh.Println("Lines run in session '" + defaultSession + "'. Type 'help' for builtins, 'exit' to quit.")

	r.register(sh)
	sh.NotFound(func(c *ishell.Context) {
		r.run(c, strings.Join(c.RawArgs, " "))
	})

	sh.Run()
	return nil
}

func (r *repl) current() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.format
}

// sessionArg returns the first argument, or the current session.
func (r *repl) sessionArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	session, _ := r.current()
	return session
}

// run executes line in the current session. Ctrl-C cancels the wait.
func (r *repl) run(c *ishell.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	session, format := r.current()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	confirm := func(prompt string) (string, error) {
		c.Print(prompt)
		return c.ReadLine(), nil
	}
	status := newCLIStatus(r.log, confirm, false)
	req := r.request(line, runOptions{session: session, reuse: true})

	res, err := r.orch.Execute(ctx, req, status)
	if err != nil {
		c.Err(err)
		return
	}
	if err := renderResult(contextWriter{c}, res, format); err != nil {
		c.Err(err)
	}
}

func (r *repl) register(sh *ishell.Shell) {
	sh.AddCmd(&ishell.Cmd{
		Name: "run",
		Help: "run a command whose name clashes with a builtin",
		Func: func(c *ishell.Context) {
			r.run(c, shellquote.Join(c.Args...))
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name:     "use",
		Help:     "switch the session new lines run in",
		LongHelp: "use <session>  run the following lines in <session>, spawning it on first use\nuse            show the current session",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				session, _ := r.current()
				c.Println(session)
				return
			}
			r.mu.Lock()
			r.session = c.Args[0]
			r.mu.Unlock()
			c.Println("now using " + c.Args[0])
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "sessions",
		Help: "list sessions",
		Func: func(c *ishell.Context) {
			c.Print(sessionsTable(r.orch.ListSessions(), r.orch.Monitored()))
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "poll",
		Help: "show a monitored command: poll [session]",
		Func: func(c *ishell.Context) {
			session := r.sessionArg(c.Args)
			snap, ok := r.orch.Poll(session)
			if !ok {
				c.Println("no monitored command in " + session)
				return
			}
			_, format := r.current()
			if err := renderSnapshot(contextWriter{c}, snap, format); err != nil {
				c.Err(err)
			}
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "monitors",
		Help: "list sessions with a monitored command",
		Func: func(c *ishell.Context) {
			names := r.orch.Monitored()
			if len(names) == 0 {
				c.Println("no monitored commands")
				return
			}
			c.Println(strings.Join(names, "\n"))
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "cancel",
		Help: "stop monitoring a command, leaving it running: cancel [session]",
		Func: func(c *ishell.Context) {
			session := r.sessionArg(c.Args)
			if !r.orch.Cancel(session) {
				c.Println("nothing to cancel in " + session)
				return
			}
			c.Println("stopped monitoring " + session)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "close",
		Help: "close a session and its shell: close <session>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: close <session>")
				return
			}
			if err := r.orch.CloseSession(c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			c.Println("closed " + c.Args[0])
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "forget session metadata, the protocol cache and the output history",
		Func: func(c *ishell.Context) {
			r.orch.Clear()
			c.Println("cleared")
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "shells",
		Help: "list shells available for new sessions",
		Func: func(c *ishell.Context) {
			c.Print(shellsTable(r.locator, r.orch.Negotiator().Entries()))
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "format",
		Help: "set the result format: format text|xml|json|yaml",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				_, format := r.current()
				c.Println(format)
				return
			}
			if err := checkFormat(c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			r.mu.Lock()
			r.format = c.Args[0]
			r.mu.Unlock()
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "config",
		Help: "show the request defaults",
		Func: func(c *ishell.Context) {
			c.Print(configTable(r.config()))
		},
	})

	sh.AddCmd(r.historyCmd())
}

func (r *repl) historyCmd() *ishell.Cmd {
	cmd := &ishell.Cmd{
		Name: "history",
		Help: "search, analyze, export or clear the output history",
		Func: func(c *ishell.Context) {
			c.Println(c.Cmd.HelpText())
		},
	}

	store := r.orch.History()
	sub := func(name, help string, fn func(args []string, w io.Writer) error) {
		cmd.AddCmd(&ishell.Cmd{
			Name: name,
			Help: help,
			Func: func(c *ishell.Context) {
				if err := fn(c.Args, contextWriter{c}); err != nil {
					c.Err(err)
				}
			},
		})
	}
	sub("search", "search [flags] <query>, --help for flags", func(args []string, w io.Writer) error {
		return historySearch(store, args, w, time.Now())
	})
	sub("analyze", "analyze [flags], --help for flags", func(args []string, w io.Writer) error {
		return historyAnalyze(store, args, w, time.Now())
	})
	sub("export", "export [flags], --help for flags", func(args []string, w io.Writer) error {
		return historyExport(store, args, w, time.Now())
	})
	sub("clear", "clear [session]", func(args []string, w io.Writer) error {
		return historyClear(store, args, w)
	})
	return cmd
}

// configTable lists the effective request defaults.
func configTable(cfg *config.Config) string {
	t := newTable("SETTING", "VALUE")
	rows := [][2]string{
		{config.KeyShell, cfg.Shell},
		{config.KeyTimeout, cfg.Timeout.String()},
		{config.KeyHandshakeTimeout, cfg.HandshakeTimeout.String()},
		{config.KeyCacheTTL, cfg.CacheTTL.String()},
		{config.KeyMaxOutputChars, fmt.Sprint(cfg.MaxOutputChars)},
		{config.KeyProgressInterval, cfg.ProgressInterval.String()},
		{config.KeySandbox, fmt.Sprint(cfg.Sandbox)},
		{config.KeyAutoMonitor, fmt.Sprint(cfg.AutoMonitor)},
		{config.KeyPreFilter, fmt.Sprint(cfg.PreFilter)},
		{config.KeyRequireApproval, fmt.Sprint(cfg.RequireApproval)},
		{config.KeyPatternFile, cfg.PatternFile},
	}
	for _, row := range rows {
		t.Row(row[0], row[1])
	}
	return t.String() + "\n"
}
