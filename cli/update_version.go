package cli

import (
	"fmt"
	"io"

	"github.com/digitorus/pdfmu"
	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/version"
)

func updateVersionCommand(g *globals, args []string) error {
	fs := newFlagSet("update-version", "[options] <input.pdf>")

	var out outputFlags
	out.register(fs)
	requested := fs.String("version", g.config.Version.Default, "PDF version to set")
	fs.StringVar(requested, "v", g.config.Version.Default, "Shorthand for -version")
	onlyIfLower := fs.Bool("only-if-lower", false, "Only update documents with a lower version")
	allowLower := fs.Bool("allow-lower", false, "Allow lowering the version")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	input, err := inputArg(fs, positional)
	if err != nil {
		return err
	}
	v, err := version.Parse(*requested)
	if err != nil {
		return operation.New(operation.ArgumentsInvalid, err, operation.A("reason", err.Error()))
	}

	res, err := pdfmu.UpdateVersion(pdfmu.NewSession(), input, out.target(), v, *allowLower, *onlyIfLower)
	if err != nil {
		return err
	}
	return g.report.result(res, func(w io.Writer) {
		if res.Changed {
			fmt.Fprintf(w, "PDF version: %s\n", res.Version)
		} else {
			fmt.Fprintf(w, "PDF version: %s (unchanged)\n", res.Version)
		}
	})
}
