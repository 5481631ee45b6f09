package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/output"
)

// newFlagSet returns a flag set for the named command. Usage prints
// synopsis followed by the defaults.
func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfmu %s %s\n\nOptions:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses args with fs. Flags may follow the positional
// arguments, which are returned in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if err == flag.ErrHelp {
				return nil, err
			}
			return nil, invalidArguments(err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// inputArg returns the single input document of a command.
func inputArg(fs *flag.FlagSet, positional []string) (string, error) {
	if len(positional) != 1 {
		fs.Usage()
		return "", operation.New(operation.ArgumentsInvalid, nil,
			operation.A("reason", fmt.Sprintf("expected one input file, got %d", len(positional))))
	}
	return positional[0], nil
}

// outputFlags are shared by all mutating commands.
type outputFlags struct {
	path  string
	force bool
}

func (o *outputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&o.path, "output", "", "Output file (default: update the input in place)")
	fs.StringVar(&o.path, "o", "", "Shorthand for -output")
	fs.BoolVar(&o.force, "force", false, "Overwrite the output file if it exists")
	fs.BoolVar(&o.force, "f", false, "Shorthand for -force")
}

func (o *outputFlags) target() output.Target {
	return output.Target{Path: o.path, Overwrite: o.force}
}

// isSet reports whether the flag name was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// keyValues collects repeated KEY=VALUE flags.
type keyValues map[string]string

func (kv keyValues) String() string {
	pairs := make([]string, 0, len(kv))
	for k, v := range kv {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (kv keyValues) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", s)
	}
	kv[key] = value
	return nil
}

// secret resolves a password given directly or through an environment
// variable. Nil means neither was given.
func secret(fs *flag.FlagSet, flagName, value, envFlagName, envVar string) (*string, error) {
	if isSet(fs, flagName) {
		return &value, nil
	}
	if envVar == "" {
		return nil, nil
	}
	v, ok := os.LookupEnv(envVar)
	if !ok {
		return nil, operation.New(operation.ArgumentsInvalid, nil,
			operation.A("reason", fmt.Sprintf("environment variable %s named by -%s is not set", envVar, envFlagName)))
	}
	return &v, nil
}
