package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/digitorus/pdfmu"
)

func inspectCommand(g *globals, args []string) error {
	fs := newFlagSet("inspect", "<input.pdf>")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	input, err := inputArg(fs, positional)
	if err != nil {
		return err
	}

	res, err := pdfmu.Inspect(input)
	if err != nil {
		return err
	}
	return g.report.result(res, func(w io.Writer) { printInspection(w, res) })
}

func printInspection(w io.Writer, res *pdfmu.InspectResult) {
	fmt.Fprintf(w, "PDF version: %s (header %s)\n", res.Version, res.Header)
	fmt.Fprintf(w, "Size: %d bytes\n", res.Size)
	if res.Encrypted {
		fmt.Fprintln(w, "Encrypted: yes")
	}

	keys := make([]string, 0, len(res.Properties))
	for k := range res.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Properties:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, res.Properties[k])
	}

	fmt.Fprintf(w, "Signatures: %d\n", len(res.Signatures))
	for _, sig := range res.Signatures {
		if !sig.Signed {
			fmt.Fprintf(w, "  %s (not signed)\n", sig.Name)
			continue
		}
		fmt.Fprintf(w, "  %s (%s)\n", sig.Name, sig.Filter)
		for _, f := range []struct{ label, value string }{
			{"Reason", sig.Reason},
			{"Location", sig.Location},
			{"Contact", sig.Contact},
			{"Date", sig.Date},
		} {
			if f.value != "" {
				fmt.Fprintf(w, "    %s: %s\n", f.label, f.value)
			}
		}
	}
}
