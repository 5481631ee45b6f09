// Package cli provides the pdfmu command-line interface.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/digitorus/pdfmu/config"
	"github.com/digitorus/pdfmu/operation"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Writers used for results and failures. Tests replace them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

type command struct {
	name    string
	summary string
	run     func(g *globals, args []string) error
}

var commands = []command{
	{"update-version", "Update the PDF version of a document", updateVersionCommand},
	{"update-properties", "Update the document information properties", updatePropertiesCommand},
	{"sign", "Sign a document with a key from a keystore", signCommand},
	{"inspect", "Show the version, properties and signatures of a document", inspectCommand},
}

// globals holds the options shared by all commands.
type globals struct {
	config config.Config
	report *reporter
}

// Run executes the CLI with the given arguments and exits with the
// resulting code. args[0] is the program name.
func Run(args []string) {
	osExit(Execute(args[1:]))
}

// Execute runs the command line args, without the program name, and returns
// the exit code: 0 on success, the failure code otherwise.
func Execute(args []string) int {
	log.SetFlags(0)
	log.SetPrefix("pdfmu: ")
	log.SetOutput(stderr)

	fs := flag.NewFlagSet("pdfmu", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("output-format", "", "Output format: text or json")
	configPath := fs.String("config", "", "Configuration file (default "+config.DefaultLocation+")")
	quiet := fs.Bool("quiet", false, "Do not log progress messages")
	showVersion := fs.Bool("version", false, "Show version information")
	fs.Usage = func() { usage(fs) }

	report := &reporter{format: "text", out: stdout, err: stderr}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return report.failure(invalidArguments(err))
	}
	if *format != "" {
		if err := report.setFormat(*format); err != nil {
			return report.failure(err)
		}
	}
	if *quiet {
		log.SetOutput(io.Discard)
	}
	if *showVersion {
		fmt.Fprintf(stdout, "pdfmu version %s\n", Version)
		fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
		return 0
	}

	cfg, err := config.Read(*configPath)
	if err != nil {
		return report.failure(err)
	}
	if *format == "" {
		if err := report.setFormat(cfg.Output.Format); err != nil {
			return report.failure(err)
		}
	}

	if fs.NArg() < 1 {
		usage(fs)
		return report.failure(operation.New(operation.ArgumentsInvalid, nil, operation.A("reason", "no command given")))
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			if err := c.run(&globals{config: cfg, report: report}, fs.Args()[1:]); err != nil {
				if errors.Is(err, flag.ErrHelp) {
					return 0
				}
				return report.failure(err)
			}
			return 0
		}
	}
	if name == "help" {
		usage(fs)
		return 0
	}
	return report.failure(operation.New(operation.ArgumentsInvalid, nil, operation.A("reason", "unknown command "+name)))
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "Usage: pdfmu [options] <command> [command options] <input.pdf>\n\n")
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "\nOptions:")
	fs.PrintDefaults()
	fmt.Fprintln(w, "\nUse 'pdfmu <command> -h' for command-specific help")
}
