package starlark

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.starlark.net/starlark"
)

// LoadFunc resolves a load() statement to the module's exported members.
type LoadFunc func(thread *starlark.Thread, module string) (starlark.StringDict, error)

// ExecutionContext provides the globals and thread setup used to execute
// compiled units.
type ExecutionContext struct {
	// Host holds the host object's members, bound as top-level names.
	Host starlark.StringDict

	// References holds one namespace value per reference binding.
	References starlark.StringDict

	// Output receives print() output. Nil discards it.
	Output io.Writer

	// Load resolves load() statements. Nil rejects every load.
	Load LoadFunc

	// globals is the combined set of all predeclared values
	globals starlark.StringDict

	// mu protects globals and Output writes
	mu sync.RWMutex
}

// NewExecutionContext creates a context and builds its globals.
func NewExecutionContext(host, refs starlark.StringDict, opts ...ContextOption) (*ExecutionContext, error) {
	ctx := &ExecutionContext{
		Host:       host,
		References: refs,
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if err := ctx.buildGlobals(nil); err != nil {
		return nil, err
	}
	return ctx, nil
}

// buildGlobals constructs the combined globals dict.
func (ctx *ExecutionContext) buildGlobals(carried starlark.StringDict) error {
	globals, err := Predeclared(ctx.Host, ctx.References, carried)
	if err != nil {
		return err
	}
	ctx.mu.Lock()
	ctx.globals = globals
	ctx.mu.Unlock()
	return nil
}

// Globals returns the predeclared dictionary for execution.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.globals
}

// Carry adds the globals produced by a previous unit or submission.
// Host members and references keep precedence.
func (ctx *ExecutionContext) Carry(globals starlark.StringDict) error {
	ctx.mu.RLock()
	carried := make(starlark.StringDict, len(ctx.globals)+len(globals))
	for k, v := range ctx.globals {
		if _, host := ctx.Host[k]; host {
			continue
		}
		if _, ref := ctx.References[k]; ref {
			continue
		}
		carried[k] = v
	}
	ctx.mu.RUnlock()

	for k, v := range globals {
		carried[k] = v
	}
	return ctx.buildGlobals(carried)
}

// NewThread creates a thread wired to the context's output and loader.
func (ctx *ExecutionContext) NewThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			if ctx.Output == nil {
				return
			}
			ctx.mu.Lock()
			_, _ = fmt.Fprintln(ctx.Output, msg)
			ctx.mu.Unlock()
		},
	}
	if ctx.Load != nil {
		load := ctx.Load
		thread.Load = func(t *starlark.Thread, module string) (starlark.StringDict, error) {
			return load(t, module)
		}
	} else {
		thread.Load = func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load of %q is not supported here", module)
		}
	}
	return thread
}

// EvalError represents an error raised while executing a unit.
type EvalError struct {
	File      string
	Message   string
	Backtrace string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// WrapEvalError converts a Starlark execution error into an *EvalError.
func WrapEvalError(file string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &EvalError{
			File:      file,
			Message:   evalErr.Msg,
			Backtrace: evalErr.Backtrace(),
		}
	}
	return &EvalError{File: file, Message: err.Error()}
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithOutput sets the print() destination.
func WithOutput(w io.Writer) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.Output = w
	}
}

// WithLoader sets the load() resolver.
func WithLoader(load LoadFunc) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.Load = load
	}
}
