package compiler

import (
	"errors"
	"fmt"
)

// ErrCompilationFailed is matched by every *CompilationError.
var ErrCompilationFailed = errors.New("compilation failed")

// CompilationError reports a compilation that produced error diagnostics.
// Nothing is emitted when it is returned.
type CompilationError struct {
	Project     string
	Module      string
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	errs := Filter(e.Diagnostics, SeverityError)
	msg := fmt.Sprintf("compile %s (module %s): %d error(s)", e.Project, e.Module, len(errs))
	if len(errs) > 0 {
		msg += ": " + errs[0].String()
	}
	return msg
}

// Is reports whether target is ErrCompilationFailed.
func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilationFailed
}
