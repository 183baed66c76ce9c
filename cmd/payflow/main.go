// Command payflow is a terminal client for the PayFlow wallet backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/payflow/internal/app"
	"github.com/R3E-Network/payflow/internal/cli"
	"github.com/R3E-Network/payflow/internal/config"
	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/logging"
)

const prog = "payflow"

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in; run `payflow login` first")

// env is what a command runs against.
type env struct {
	app *app.App
	out *cli.Printer
	in  *bufio.Reader
}

type command struct {
	name    string
	summary string
	// public commands run without a session.
	public bool
	// local commands never build the client.
	local bool
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{}

func register(cmds ...command) {
	for _, c := range cmds {
		commands[c.name] = c
	}
}

func sortedCommands() []cli.Command {
	out := make([]cli.Command, 0, len(commands))
	for _, c := range commands {
		out = append(out, cli.Command{Name: c.name, Summary: c.summary})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, cli.NewPrinter())
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, out *cli.Printer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(out.ErrOut())
	configPath := fs.String("config", "", "configuration file (default "+config.DefaultPath+")")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "log format: text or json")
	apiURL := fs.String("api-url", "", "backend API base URL")
	fs.Usage = func() { usage(out.ErrOut(), fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "help" {
		usage(out.ErrOut(), fs)
		if len(rest) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		out.Fail(fmt.Sprintf("unknown command %q", rest[0]))
		usage(out.ErrOut(), fs)
		return 2
	}

	e := &env{out: out, in: bufio.NewReader(stdin)}
	if !cmd.local {
		cfg, err := config.Load(*configPath)
		if err != nil {
			out.Fail(err.Error())
			return 1
		}
		if *logLevel != "" {
			cfg.Logging.Level = *logLevel
		}
		if *logFormat != "" {
			cfg.Logging.Format = *logFormat
		}
		if *apiURL != "" {
			cfg.API.BaseURL = *apiURL
			if err := cfg.Validate(); err != nil {
				out.Fail(err.Error())
				return 1
			}
		}

		a, err := app.New(ctx, app.Options{
			Config:   cfg,
			Logger:   logging.New(prog, cfg.Logging.Level, cfg.Logging.Format),
			Notifier: out,
		})
		if err != nil {
			out.Fail(err.Error())
			return 1
		}
		defer a.Close()
		e.app = a

		if !cmd.public && !a.Session.IsAuthenticated() {
			out.Fail(errNotLoggedIn.Error())
			return 1
		}
	}

	if err := cmd.run(ctx, e, rest[1:]); err != nil {
		return report(out, err)
	}
	return 0
}

// report prints err unless a store already surfaced it through the notifier.
func report(out *cli.Printer, err error) int {
	var details *apperrors.Details
	switch {
	case errors.As(err, &details):
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		out.Fail(err.Error())
	}
	return 1
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [global flags] <command> [flags]\n\nCommands:\n", prog)
	width := 0
	for _, c := range sortedCommands() {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	for _, c := range sortedCommands() {
		fmt.Fprintf(w, "  %-*s  %s\n", width, c.Name, c.Summary)
	}
	fmt.Fprintln(w, "\nGlobal flags:")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nRun '%s <command> -h' for command flags.\n", prog)
}

// newFlags creates a command flag set that reports errors instead of exiting.
func newFlags(e *env, name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(prog+" "+name, flag.ContinueOnError)
	fs.SetOutput(e.out.ErrOut())
	fs.Usage = func() {
		fmt.Fprintf(e.out.ErrOut(), "Usage: %s %s %s\n", prog, name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// errUsage marks a flag error that the flag package already printed.
var errUsage = errors.New("usage")

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// prompt reads one line from stdin, printing label first.
func prompt(e *env, label string) (string, error) {
	fmt.Fprint(e.out.ErrOut(), label+": ")
	line, err := e.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
