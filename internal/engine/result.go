package engine

import (
	"github.com/morozRed/unitsmith/internal/failure"
)

// Result is the structured answer every operation gives its caller.
type Result struct {
	Success bool         `json:"success"`
	Kind    failure.Kind `json:"kind,omitempty"`
	Message string       `json:"message"`
	Line    int          `json:"line,omitempty"`
	Output  string       `json:"output,omitempty"`
	Detail  any          `json:"detail,omitempty"`
}

// Report turns an operation outcome into a Result. A nil err reports
// success with message; otherwise the failure's kind, message, line and
// captured output are carried over and detail is kept for partial results.
func Report(message string, detail any, err error) Result {
	if err == nil {
		return Result{Success: true, Message: message, Detail: detail}
	}
	res := Result{Kind: failure.KindOf(err), Message: err.Error(), Detail: detail}
	if fe, ok := failure.As(err); ok {
		res.Line = fe.Line
		res.Output = fe.Output
	}
	return res
}
