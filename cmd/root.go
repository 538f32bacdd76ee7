/*
Package cmd implements the b2 command-line tool.

Every command is declared once in the registry and named from its identifier.
Run builds a fresh cobra tree per invocation, so nothing here is global
state: tests run many invocations side by side with their own streams,
environment and storage client.
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/output"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitFault = 2
)

// Version information (set by main)
var (
	version   = "dev"
	buildTime = "unknown"
)

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
}

// Env is everything one invocation reads from and writes to.
type Env struct {
	// Args excludes the program name.
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	// API is the storage client. Nil builds one on the account store named
	// by the environment.
	API API
	// Hooks are added to the invocation logger.
	Hooks []logrus.Hook
	// ReadSecret reads a line without echo. Nil reads from the terminal.
	ReadSecret func(prompt string) (string, error)
}

// globalFlags are accepted by every command.
type globalFlags struct {
	verbose   bool
	debugLogs bool
	logConfig string
}

// app is the state shared by the commands of one invocation.
type app struct {
	env     Env
	api     API
	printer *output.Printer
	logger  *logrus.Logger
	flags   globalFlags
	current descriptor
	stdin   *bufio.Reader
	// closeLog releases the log destination opened by the logging setup.
	closeLog func()
}

// Execute runs the process command line and returns the exit code. An error
// is returned only for a fault, which main reports with its stack.
func Execute() (int, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return Run(ctx, Env{
		Args:   os.Args[1:],
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	})
}

// Run dispatches one command line.
func Run(ctx context.Context, env Env) (int, error) {
	if env.Getenv == nil {
		env.Getenv = func(string) string { return "" }
	}
	if env.Stdin == nil {
		env.Stdin = strings.NewReader("")
	}
	charset := output.CharsetFromEnv(env.Getenv)
	a := &app{
		env:      env,
		api:      env.API,
		printer:  output.New(env.Stdout, env.Stderr, charset),
		logger:   logrus.New(),
		closeLog: func() {},
	}
	// Silent until a logging flag says otherwise.
	a.logger.SetOutput(io.Discard)
	a.logger.SetLevel(logrus.WarnLevel)
	for _, hook := range env.Hooks {
		a.logger.AddHook(hook)
	}
	defer func() { a.closeLog() }()

	if a.api == nil {
		store := b2.NewStore(b2.DefaultStorePath(env.Getenv))
		a.api = b2.NewClient(store, b2.WithLogger(a.logger))
	}

	err := a.dispatch(ctx)
	code, fault := a.finish(err)
	if a.current.ID != "" {
		a.logger.Infof(`\\ %s %s %s //`, bannerSeparator, centered(fmt.Sprintf("exit=%d", code), 8), bannerSeparator)
	}
	return code, fault
}

func (a *app) dispatch(ctx context.Context) error {
	root := a.newRootCommand()
	args := a.env.Args
	root.InitDefaultHelpCmd()
	found, _, err := root.Find(args)
	if err != nil {
		return clierr.Syntaxf("invalid choice: '%s' (choose from %s)", commandToken(args), quoted(commandNames()))
	}
	if found == root && !askedForHelp(args) {
		return clierr.Syntaxf("the following arguments are required: command")
	}
	if d, ok := lookup(found.Name()); ok && found.Parent() == root {
		a.current = d
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// commandToken returns the first argument that is neither a global flag nor
// the value of one.
func commandToken(args []string) string {
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--logConfig":
			i++
		case strings.HasPrefix(arg, "-"):
		default:
			return arg
		}
	}
	return ""
}

func askedForHelp(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "b2",
		Short: "Command-line tool for B2 Cloud Storage",
		Long: `Command-line tool for B2 Cloud Storage.

Run 'b2 authorize-account' first. The account is stored in ~/.b2_account_info
unless B2_ACCOUNT_INFO names another file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			if err := c.ValidateFlagGroups(); err != nil {
				return clierr.Wrap(clierr.Syntax, err)
			}
			return a.setupLogging(c)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.env.Stdin)
	root.SetOut(a.env.Stdout)
	root.SetErr(a.env.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.Syntax, err)
	})

	pf := root.PersistentFlags()
	pf.BoolVar(&a.flags.verbose, "verbose", false, "Log debug messages to stderr")
	pf.BoolVar(&a.flags.debugLogs, "debugLogs", false, "Append debug messages to "+debugLogFile)
	pf.StringVar(&a.flags.logConfig, "logConfig", "", "YAML logging configuration file")

	for _, d := range registry {
		c := d.New(a)
		c.Use = strings.TrimSpace(d.Name() + " " + c.Use)
		c.Flags().SortFlags = false
		root.AddCommand(c)
	}
	return root
}

// finish renders err and maps it to an exit code. Only faults are returned.
func (a *app) finish(err error) (int, error) {
	if err == nil {
		return ExitOK, nil
	}
	kind, ok := clierr.KindOf(err)
	if !ok {
		kind = classify(err)
	}
	entry := a.logger.WithField("kind", kind.String())
	switch kind {
	case clierr.Syntax:
		entry.WithError(err).Debug("command line rejected")
		a.printer.PrintStderr("ERROR: " + err.Error())
		a.printer.PrintStderr(fmt.Sprintf("Run '%s' for usage.", a.helpHint()))
	case clierr.Configuration, clierr.Domain:
		entry.WithError(err).Error("command failed")
		a.printer.PrintStderr("ERROR: " + err.Error())
	case clierr.Credentials:
		entry.WithError(err).Error("command failed")
		a.printer.PrintStderr("ERROR: " + err.Error() + "  Use: b2 authorize-account")
	case clierr.Interrupted:
		entry.Info("interrupted")
		a.printer.Print("\nInterrupted.  Shutting down...\n")
	default:
		a.logger.Errorf("unexpected fault: %+v", err)
		return ExitFault, err
	}
	return ExitError, nil
}

func (a *app) helpHint() string {
	if a.current.ID == "" {
		return "b2 --help"
	}
	return "b2 " + a.current.Name() + " --help"
}

// classify tags the errors the storage client returns untagged.
func classify(err error) clierr.Kind {
	switch {
	case errors.Is(err, b2.ErrMissingAccountData):
		return clierr.Credentials
	case b2.IsDomainError(err):
		return clierr.Domain
	}
	return clierr.Fault
}

func quoted(names []string) string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = "'" + name + "'"
	}
	return strings.Join(out, ", ")
}
