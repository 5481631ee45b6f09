package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/digitorus/pdfmu/operation"
)

const jsonRPCVersion = "2.0"

type rpcResult struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result"`
}

type rpcFailure struct {
	JSONRPC string             `json:"jsonrpc"`
	Error   operation.RPCError `json:"error"`
}

// reporter renders results on out and failures on err.
type reporter struct {
	format string
	out    io.Writer
	err    io.Writer
}

func (r *reporter) setFormat(format string) error {
	switch f := strings.ToLower(format); f {
	case "text", "json":
		r.format = f
		return nil
	}
	return operation.New(operation.ArgumentsInvalid, nil, operation.A("reason", "unknown output format "+format))
}

// result writes v as the JSON-RPC result, or calls text in text mode.
func (r *reporter) result(v any, text func(w io.Writer)) error {
	if r.format == "json" {
		return json.NewEncoder(r.out).Encode(rpcResult{JSONRPC: jsonRPCVersion, Result: v})
	}
	if text != nil {
		text(r.out)
	}
	return nil
}

// failure reports err and returns its exit code.
func (r *reporter) failure(err error) int {
	f := operation.AsFailure(err)
	if f == nil {
		f = operation.New(operation.Unknown, err)
	}

	if r.format == "json" {
		if encErr := json.NewEncoder(r.err).Encode(rpcFailure{JSONRPC: jsonRPCVersion, Error: f.RPCError()}); encErr == nil {
			return f.Code()
		}
	}
	fmt.Fprintf(r.err, "Error %d: %s\n", f.Code(), f.Message())
	if f.Cause != nil {
		fmt.Fprintf(r.err, "Caused by: %T: %v\n", f.Cause, f.Cause)
	}
	return f.Code()
}

func invalidArguments(err error) *operation.Failure {
	return operation.New(operation.ArgumentsInvalid, err, operation.A("reason", err.Error()))
}
