// Package cli is the taffy command line driver.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/evaluator"
	"github.com/funvibe/taffy/internal/store"
)

// Exit statuses.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	usageMessage = `Usage: taffy [options] [file]
       taffy [options] -e <source>

Options:
  -e <source>       evaluate source instead of a file
  --config <path>   use this taffy.yaml instead of searching for one
  --store <path>    load globals from and save them to a sqlite store
  --version         print the version and exit
  -h, --help        print this help
`
)

// options is the parsed command line.
type options struct {
	source    string
	hasSource bool
	file      string
	config    string
	store     string
	version   bool
	help      bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	value := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires an argument", flag)
		}
		return args[i+1], nil
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		// --flag=value
		if strings.HasPrefix(arg, "--") {
			if name, v, ok := strings.Cut(arg, "="); ok {
				switch name {
				case "--config":
					opts.config = v
				case "--store":
					opts.store = v
				default:
					return nil, fmt.Errorf("unknown option %s", name)
				}
				continue
			}
		}
		switch arg {
		case "-e", "--eval":
			v, err := value(i, arg)
			if err != nil {
				return nil, err
			}
			opts.source, opts.hasSource = v, true
			i++
		case "--config", "-config":
			v, err := value(i, arg)
			if err != nil {
				return nil, err
			}
			opts.config = v
			i++
		case "--store", "-store":
			v, err := value(i, arg)
			if err != nil {
				return nil, err
			}
			opts.store = v
			i++
		case "-v", "-version", "--version":
			opts.version = true
		case "-h", "-help", "--help", "help":
			opts.help = true
		default:
			if strings.HasPrefix(arg, "-") && arg != "-" {
				return nil, fmt.Errorf("unknown option %s", arg)
			}
			if opts.file != "" {
				return nil, fmt.Errorf("unexpected argument %s", arg)
			}
			opts.file = arg
		}
	}
	if opts.hasSource && opts.file != "" {
		return nil, errors.New("-e and a file cannot be combined")
	}
	return opts, nil
}

// Run runs the command line in args (args[0] is the program name) and
// returns the exit status.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return Main(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// Main is Run with explicit streams.
func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (status int) {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(stderr, "Internal error: %v\n", r)
			fmt.Fprintln(stderr, "This is a bug. Please report it.")
			status = ExitFailure
		}
	}()

	if len(args) > 0 {
		args = args[1:]
	}
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n\n%s", err, usageMessage)
		return ExitUsage
	}
	if opts.help {
		fmt.Fprint(stdout, usageMessage)
		return ExitOK
	}
	if opts.version {
		fmt.Fprintln(stdout, "taffy "+config.Version)
		return ExitOK
	}

	source, filename, err := readSource(opts, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return ExitUsage
	}

	dir := "."
	if opts.file != "" && opts.file != "-" {
		dir = filepath.Dir(opts.file)
	}
	cfg, err := config.Load(opts.config, dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return ExitFailure
	}
	if opts.store != "" {
		cfg.Store.Path = opts.store
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return ExitFailure
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	rt, err := evaluator.New(evaluator.Options{Config: cfg, Logger: logger, Out: stdout})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return ExitFailure
	}
	defer rt.Close()

	var db *store.Store
	if opts.store != "" {
		if db, err = rt.OpenStore(ctx, opts.store); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return ExitFailure
		}
		if err := rt.LoadGlobals(ctx, db); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return ExitFailure
		}
	}

	_, err = rt.EvalString(ctx, source, filename)
	status = report(stderr, err)

	if db != nil && status == ExitOK {
		if err := rt.SaveGlobals(ctx, db); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return ExitFailure
		}
	}
	return status
}

// readSource picks the program text: -e, a file, or piped stdin.
func readSource(opts *options, stdin io.Reader) (string, string, error) {
	if opts.hasSource {
		return opts.source, "<eval>", nil
	}
	if opts.file != "" && opts.file != "-" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", "", fmt.Errorf("reading %s: %w", opts.file, err)
		}
		path, err := filepath.Abs(opts.file)
		if err != nil {
			path = opts.file
		}
		return string(data), path, nil
	}
	if f, ok := stdin.(*os.File); ok && opts.file == "" {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", "", errors.New("no program given; pass a file, -e or pipe from stdin")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), "<stdin>", nil
}

// report prints an uncaught exception and maps err to an exit status.
func report(stderr io.Writer, err error) int {
	if err == nil || errors.Is(err, evaluator.ErrExit) {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "interrupted")
		return ExitFailure
	}
	var ex *evaluator.Exception
	if !errors.As(err, &ex) {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return ExitFailure
	}
	p := newPainter(stderr)
	fmt.Fprintln(stderr, p.paint(red, "Uncaught "+ex.Error()))
	if trace := evaluator.FormatBacktrace(ex.Backtrace); trace != "" {
		fmt.Fprint(stderr, p.paint(dim, trace))
	}
	return ExitFailure
}
