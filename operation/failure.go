package operation

import (
	"errors"
	"fmt"
	"regexp"
)

// Arg is a named message argument.
type Arg struct {
	Name  string
	Value any
}

// A builds a message argument.
func A(name string, value any) Arg {
	return Arg{Name: name, Value: value}
}

// Failure is the error value returned by pdfmu operations. It is created where
// the condition is detected and travels up unchanged to the reporter.
type Failure struct {
	Kind  Kind
	Cause error
	Args  map[string]any
}

// New creates a failure of the given kind. cause may be nil.
func New(kind Kind, cause error, args ...Arg) *Failure {
	f := &Failure{Kind: kind, Cause: cause}
	if len(args) > 0 {
		f.Args = make(map[string]any, len(args))
		for _, a := range args {
			f.Args[a.Name] = a.Value
		}
	}
	return f
}

// Code returns the numeric code of the failure kind.
func (f *Failure) Code() int {
	return f.Kind.Code()
}

// Message renders the kind template with the failure arguments.
func (f *Failure) Message() string {
	return Substitute(f.Kind.Template(), f.Args)
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return f.Message() + ": " + f.Cause.Error()
	}
	return f.Message()
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Is reports whether target is a failure of the same kind, so that
// errors.Is(err, operation.New(operation.OutputExists, nil)) works.
func (f *Failure) Is(target error) bool {
	var t *Failure
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == f.Kind && t.Cause == nil && t.Args == nil
}

// Arg returns the value of a named argument.
func (f *Failure) Arg(name string) (any, bool) {
	v, ok := f.Args[name]
	return v, ok
}

// KindOf returns the kind of the first Failure in the chain of err, or Unknown.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Unknown
}

// AsFailure returns err as a Failure, wrapping anything else as Unknown.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return New(Unknown, err)
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Substitute replaces ${name} placeholders with the matching argument.
// Placeholders without an argument are kept verbatim.
func Substitute(template string, args map[string]any) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := args[name]
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
}
