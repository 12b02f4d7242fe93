// Package compiler turns the documents of a project into an emitted module.
//
// A Backend compiles one project per Request. The default backend,
// StarlarkBackend, parses and resolves every document, orders them by
// their cross-document uses and encodes the compiled programs into a
// module image together with a debug symbol table.
package compiler

import (
	"context"
	"slices"

	"github.com/leapstack-labs/leapcode/internal/reference"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// Backend compiles a project.
// It returns a *CompilationError when any error diagnostic was produced.
type Backend interface {
	Compile(ctx context.Context, req *Request) (*Result, error)
}

// ProjectBinding is a compiled referenced project, bound under its namespace.
type ProjectBinding struct {
	Project   string
	Namespace string
	Result    *Result
}

// Request describes one compilation.
type Request struct {
	Project   string
	Namespace string
	Module    string
	Kind      workspace.Kind
	Documents []*workspace.Document

	// Host is the host object type of a script project.
	Host *starctx.HostType
	// References are bound as namespaces under their names.
	References []reference.Descriptor
	// Projects are referenced projects, compiled beforehand.
	Projects []ProjectBinding
	// Includes resolves load() statements. Nil leaves every load unresolved.
	Includes reference.Resolver
	// Previous is the preceding submission, whose names stay in scope.
	Previous *Result
}

// Result is a successful compilation.
type Result struct {
	Project     string
	Module      string
	Image       []byte // encoded module image
	Symbols     []byte // encoded debug symbols
	Exports     []string
	Carried     []string
	Diagnostics []Diagnostic // warnings and infos only
}

// DecodeImage decodes the module image.
func (r *Result) DecodeImage() (*Image, error) {
	return DecodeImage(r.Image)
}

// DecodeSymbols decodes the debug symbols.
func (r *Result) DecodeSymbols() (*Symbols, error) {
	return DecodeSymbols(r.Symbols)
}

// Scope returns every name a following submission can see: the names
// carried into this one plus its own exports.
func (r *Result) Scope() []string {
	if r == nil {
		return nil
	}
	names := slices.Concat(r.Carried, r.Exports)
	slices.Sort(names)
	return slices.Compact(names)
}
