package operation

import "regexp"

// MessagePattern turns an error whose only structure is its message into a
// Failure. Named groups of Expr become message arguments, in addition to the
// fixed Args.
//
// This is the only place where library messages are matched against text;
// business logic works with kinds.
type MessagePattern struct {
	Kind Kind
	Expr *regexp.Regexp
	Args map[string]any
}

// Match returns a Failure for the first pattern whose expression matches the
// message of err, or nil when none does. err becomes the cause.
func Match(err error, patterns ...MessagePattern) *Failure {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, p := range patterns {
		m := p.Expr.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		f := New(p.Kind, err)
		for k, v := range p.Args {
			setArg(f, k, v)
		}
		for i, name := range p.Expr.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			setArg(f, name, m[i])
		}
		return f
	}
	return nil
}

func setArg(f *Failure, name string, value any) {
	if f.Args == nil {
		f.Args = make(map[string]any)
	}
	f.Args[name] = value
}
