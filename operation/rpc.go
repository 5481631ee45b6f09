package operation

import "fmt"

// RPCError is the structured error record handed to the output formatter.
type RPCError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    *RPCData `json:"data,omitempty"`
}

// RPCData carries the nested cause and the message arguments.
type RPCData struct {
	CauseClass   string         `json:"causeClass,omitempty"`
	CauseMessage string         `json:"causeMessage,omitempty"`
	Arguments    map[string]any `json:"arguments,omitempty"`
}

// RPCError renders the failure. Data is only present when the failure has a
// cause or arguments.
func (f *Failure) RPCError() RPCError {
	re := RPCError{
		Code:    f.Code(),
		Message: f.Message(),
	}
	if f.Cause != nil || len(f.Args) > 0 {
		re.Data = &RPCData{}
		if f.Cause != nil {
			re.Data.CauseClass = fmt.Sprintf("%T", f.Cause)
			re.Data.CauseMessage = f.Cause.Error()
		}
		if len(f.Args) > 0 {
			re.Data.Arguments = make(map[string]any, len(f.Args))
			for k, v := range f.Args {
				re.Data.Arguments[k] = jsonValue(v)
			}
		}
	}
	return re
}

// jsonValue keeps JSON-native values and stringifies the rest.
func jsonValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return v
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
