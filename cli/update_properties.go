package cli

import (
	"github.com/digitorus/pdfmu"
)

// propertyFlags maps the shorthand flags to information dictionary keys.
var propertyFlags = []struct {
	flag, key string
}{
	{"title", "Title"},
	{"subject", "Subject"},
	{"author", "Author"},
	{"keywords", "Keywords"},
	{"creator", "Creator"},
	{"producer", "Producer"},
}

func updatePropertiesCommand(g *globals, args []string) error {
	fs := newFlagSet("update-properties", "[options] <input.pdf>")

	var out outputFlags
	out.register(fs)
	values := make(map[string]*string, len(propertyFlags))
	for _, p := range propertyFlags {
		values[p.flag] = fs.String(p.flag, "", "Set the "+p.key+" property (empty removes it)")
	}
	custom := keyValues{}
	fs.Var(custom, "set", "Set the property KEY to VALUE (KEY=VALUE, repeatable)")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	input, err := inputArg(fs, positional)
	if err != nil {
		return err
	}

	updates := make(map[string]string, len(custom)+len(propertyFlags))
	for k, v := range custom {
		updates[k] = v
	}
	for _, p := range propertyFlags {
		if isSet(fs, p.flag) {
			updates[p.key] = *values[p.flag]
		}
	}

	res, _, err := pdfmu.UpdateProperties(pdfmu.NewSession(), input, out.target(), updates)
	if err != nil {
		return err
	}
	return g.report.result(res, nil)
}
