package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapcode/internal/dag"
	"github.com/leapstack-labs/leapcode/internal/reference"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"github.com/leapstack-labs/leapcode/internal/workspace"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/sync/errgroup"
)

// StarlarkBackend compiles documents with the Starlark compiler.
type StarlarkBackend struct {
	logger *slog.Logger
}

// BackendOption configures a StarlarkBackend.
type BackendOption func(*StarlarkBackend)

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *StarlarkBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewStarlarkBackend creates the default backend.
func NewStarlarkBackend(opts ...BackendOption) *StarlarkBackend {
	b := &StarlarkBackend{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// unit is the per-document compilation state.
type unit struct {
	doc      *workspace.Document
	file     *syntax.File
	globals  []*syntax.Ident // top-level bindings, first occurrence
	prog     *starlark.Program
	exports  []string
	includes []reference.Descriptor // parallel to the file's load statements
	diags    []Diagnostic
}

func (u *unit) diag(sev Severity, pos syntax.Position, format string, args ...any) {
	u.diags = append(u.diags, Diagnostic{
		Severity: sev,
		Document: u.doc.Name(),
		Path:     u.doc.Path(),
		Line:     int(pos.Line),
		Column:   int(pos.Col),
		Message:  fmt.Sprintf(format, args...),
	})
}

// compilation carries the state of one Compile call.
type compilation struct {
	req   *Request
	units []*unit
	diags []Diagnostic // project-level

	host    map[string]bool
	refs    map[string]bool // reference and project namespaces
	carried map[string]bool
	owner   map[string]int // global name -> index of defining unit
}

func (c *compilation) diag(sev Severity, format string, args ...any) {
	c.diags = append(c.diags, Diagnostic{Severity: sev, Message: fmt.Sprintf(format, args...)})
}

// Compile implements Backend.
func (b *StarlarkBackend) Compile(ctx context.Context, req *Request) (*Result, error) {
	c := &compilation{
		req:     req,
		host:    make(map[string]bool),
		refs:    make(map[string]bool),
		carried: make(map[string]bool),
		owner:   make(map[string]int),
	}
	for _, doc := range req.Documents {
		c.units = append(c.units, &unit{doc: doc})
	}

	c.checkShape()
	c.bindScope()

	if err := c.parse(ctx); err != nil {
		return nil, err
	}
	c.collectGlobals()
	c.resolveIncludes()

	if err := c.resolve(ctx); err != nil {
		return nil, err
	}
	order := c.order()

	diags := c.diagnostics()
	if HasErrors(diags) {
		b.logger.Debug("compilation failed",
			"project", req.Project,
			"module", req.Module,
			"errors", len(Filter(diags, SeverityError)))
		return nil, &CompilationError{Project: req.Project, Module: req.Module, Diagnostics: diags}
	}

	res, err := c.emit(order, diags)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("compiled",
		"project", req.Project,
		"module", req.Module,
		"units", len(order),
		"warnings", len(diags))
	return res, nil
}

// checkShape validates the project-level shape of the request.
func (c *compilation) checkShape() {
	switch c.req.Kind {
	case workspace.KindScript:
		if len(c.units) == 0 {
			c.diag(SeverityError, "script project %s has no document", c.req.Project)
		} else if len(c.units) > 1 {
			c.diag(SeverityError, "script project %s has %d documents", c.req.Project, len(c.units))
		}
	default:
		if c.req.Host != nil {
			c.diag(SeverityError, "code project %s cannot bind a host object", c.req.Project)
		}
		if len(c.units) == 0 {
			c.diag(SeverityWarning, "project %s has no documents", c.req.Project)
		}
	}
}

// bindScope collects the names predeclared for every document.
func (c *compilation) bindScope() {
	for _, name := range c.req.Host.MemberNames() {
		c.host[name] = true
	}
	for _, ref := range c.req.References {
		if c.host[ref.Name] {
			c.diag(SeverityError, "reference %q conflicts with a host member", ref.Name)
		}
		if c.refs[ref.Name] {
			c.diag(SeverityError, "reference %q is bound twice", ref.Name)
		}
		c.refs[ref.Name] = true
	}
	for _, p := range c.req.Projects {
		if c.host[p.Namespace] || c.refs[p.Namespace] {
			c.diag(SeverityError, "namespace %q of project %s conflicts with another binding", p.Namespace, p.Project)
		}
		c.refs[p.Namespace] = true
	}
	for _, name := range c.req.Previous.Scope() {
		c.carried[name] = true
	}
}

// parse parses every document in parallel.
func (c *compilation) parse(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, u := range c.units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := starctx.FileOptions().Parse(u.doc.Path(), u.doc.Text(), syntax.RetainComments)
			if err != nil {
				var serr syntax.Error
				if errors.As(err, &serr) {
					u.diag(SeverityError, serr.Pos, "%s", serr.Msg)
				} else {
					u.diag(SeverityError, syntax.Position{}, "%v", err)
				}
				return nil
			}
			u.file = f
			return nil
		})
	}
	return g.Wait()
}

// collectGlobals records which unit defines each top-level name and
// reports definitions that clash across documents.
func (c *compilation) collectGlobals() {
	for i, u := range c.units {
		if u.file == nil {
			continue
		}
		u.globals = starctx.TopLevelBindings(u.file.Stmts)
		for _, id := range u.globals {
			if prev, ok := c.owner[id.Name]; ok {
				u.diag(SeverityError, id.NamePos, "%s is already defined in %s", id.Name, c.units[prev].doc.Name())
				continue
			}
			c.owner[id.Name] = i
			switch {
			case c.host[id.Name]:
				u.diag(SeverityWarning, id.NamePos, "%s shadows a host member", id.Name)
			case c.refs[id.Name]:
				u.diag(SeverityWarning, id.NamePos, "%s shadows a reference", id.Name)
			}
		}
	}
}

// resolveIncludes resolves every load() statement and checks the loaded
// names exist.
func (c *compilation) resolveIncludes() {
	for _, u := range c.units {
		if u.file == nil {
			continue
		}
		for _, stmt := range u.file.Stmts {
			load, ok := stmt.(*syntax.LoadStmt)
			if !ok {
				continue
			}
			module, _ := load.Module.Value.(string)
			if c.req.Includes == nil {
				u.diag(SeverityError, load.Load, "cannot resolve load(%q): includes are not available", module)
				continue
			}
			d, err := c.req.Includes.Resolve(module)
			if err != nil {
				u.diag(SeverityError, load.Load, "cannot resolve load(%q): %v", module, err)
				continue
			}
			u.includes = append(u.includes, d)

			exports, err := descriptorExports(d)
			if err != nil {
				u.diag(SeverityError, load.Load, "load(%q): %v", module, err)
				continue
			}
			for _, from := range load.From {
				if !slices.Contains(exports, from.Name) {
					u.diag(SeverityError, from.NamePos, "load(%q): %s is not exported", module, from.Name)
				}
			}
		}
	}
}

// descriptorExports lists the names a descriptor exports, without
// executing it.
func descriptorExports(d reference.Descriptor) ([]string, error) {
	switch d.Kind() {
	case reference.KindModule:
		return starctx.SortedKeys(d.Module.Members), nil
	case reference.KindImage:
		data, err := os.ReadFile(d.Path) //nolint:gosec // G304: path comes from a resolved reference
		if err != nil {
			return nil, err
		}
		return ImageExports(data)
	default:
		data, err := os.ReadFile(d.Path) //nolint:gosec // G304: path comes from a resolved reference
		if err != nil {
			return nil, err
		}
		parsed, err := reference.ParseSource(d.Path, data)
		if err != nil {
			return nil, err
		}
		return parsed.Exports(), nil
	}
}

// resolve resolves and compiles every parsed document in parallel.
func (c *compilation) resolve(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, u := range c.units {
		if u.file == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			isPredeclared := func(name string) bool {
				if c.host[name] || c.refs[name] || c.carried[name] {
					return true
				}
				owner, ok := c.owner[name]
				return ok && owner != i
			}
			prog, err := starlark.FileProgram(u.file, isPredeclared)
			if err != nil {
				var list resolve.ErrorList
				if errors.As(err, &list) {
					for _, e := range list {
						u.diag(SeverityError, e.Pos, "%s", e.Msg)
					}
				} else {
					u.diag(SeverityError, syntax.Position{}, "%v", err)
				}
				return nil
			}
			u.prog = prog
			u.exports = moduleExports(u.file)
			return nil
		})
	}
	return g.Wait()
}

func moduleExports(f *syntax.File) []string {
	mod, ok := f.Module.(*resolve.Module)
	if !ok {
		return nil
	}
	var names []string
	for _, b := range mod.Globals {
		if b.First != nil && !strings.HasPrefix(b.First.Name, "_") {
			names = append(names, b.First.Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// order returns unit indexes in initialization order: a document whose
// top-level code uses a global of another document runs after it.
// Cycles are reported as diagnostics.
func (c *compilation) order() []int {
	g := dag.NewGraph()
	for i, u := range c.units {
		g.AddNode(u.doc.Name(), i)
	}
	for i, u := range c.units {
		if u.prog == nil {
			continue
		}
		for _, id := range topLevelUses(u.file) {
			owner, ok := c.owner[id.Name]
			if !ok || owner == i {
				continue
			}
			_ = g.AddEdge(c.units[owner].doc.Name(), u.doc.Name())
		}
	}

	names, err := g.TopologicalSort()
	if err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			c.diag(SeverityError, "documents depend on each other at initialization: %s", strings.Join(cycle.Path, " -> "))
		} else {
			c.diag(SeverityError, "%v", err)
		}
		return nil
	}

	order := make([]int, 0, len(names))
	for _, name := range names {
		data, _ := g.Data(name)
		order = append(order, data.(int))
	}
	return order
}

// topLevelUses returns predeclared identifiers used by code that runs at
// module initialization. Function bodies run later and are skipped;
// parameter defaults are evaluated at definition time and are included.
func topLevelUses(f *syntax.File) []*syntax.Ident {
	var uses []*syntax.Ident
	var walk func(n syntax.Node) bool
	walk = func(n syntax.Node) bool {
		switch x := n.(type) {
		case *syntax.DefStmt:
			for _, p := range x.Params {
				syntax.Walk(p, walk)
			}
			return false
		case *syntax.LambdaExpr:
			for _, p := range x.Params {
				syntax.Walk(p, walk)
			}
			return false
		case *syntax.Ident:
			if b, ok := x.Binding.(*resolve.Binding); ok && b.Scope == resolve.Predeclared {
				uses = append(uses, x)
			}
		}
		return true
	}
	for _, stmt := range f.Stmts {
		syntax.Walk(stmt, walk)
	}
	return uses
}

// diagnostics returns project-level diagnostics followed by each
// document's, in document order.
func (c *compilation) diagnostics() []Diagnostic {
	diags := slices.Clone(c.diags)
	for _, u := range c.units {
		diags = append(diags, u.diags...)
	}
	return diags
}

// emit encodes the module image and debug symbols.
func (c *compilation) emit(order []int, diags []Diagnostic) (*Result, error) {
	req := c.req
	img := &Image{
		Format:    ImageFormat,
		Compiler:  starlark.CompilerVersion,
		Name:      req.Module,
		Project:   req.Project,
		Namespace: req.Namespace,
		Kind:      req.Kind.String(),
		Host:      req.Host.Clone(),
		Carried:   req.Previous.Scope(),
	}

	defaults := starctx.DefaultModules()
	for _, ref := range req.References {
		img.References = append(img.References, imageRef(ref, defaults))
	}
	for _, p := range req.Projects {
		img.References = append(img.References, ImageRef{
			Name:  p.Namespace,
			Kind:  RefProject,
			Image: p.Result.Image,
		})
	}

	syms := &Symbols{Module: req.Module, Project: req.Project}
	var exports []string
	for _, i := range order {
		u := c.units[i]

		var buf bytes.Buffer
		if err := u.prog.Write(&buf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", u.doc.Name(), err)
		}
		img.Units = append(img.Units, Unit{
			Document: u.doc.Name(),
			Path:     u.doc.Path(),
			Program:  buf.Bytes(),
			Exports:  u.exports,
		})
		exports = append(exports, u.exports...)

		loads := 0
		for _, stmt := range u.file.Stmts {
			load, ok := stmt.(*syntax.LoadStmt)
			if !ok {
				continue
			}
			module, _ := load.Module.Value.(string)
			if _, seen := img.Include(module); !seen {
				ref := imageRef(u.includes[loads], defaults)
				ref.Load = module
				img.Includes = append(img.Includes, ref)
			}
			loads++
		}

		syms.Documents = append(syms.Documents, documentSymbols(u))
	}
	slices.Sort(exports)
	img.Exports = slices.Compact(exports)

	imgData, err := EncodeImage(img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	symData, err := EncodeSymbols(syms)
	if err != nil {
		return nil, fmt.Errorf("encode symbols: %w", err)
	}

	return &Result{
		Project:     req.Project,
		Module:      req.Module,
		Image:       imgData,
		Symbols:     symData,
		Exports:     img.Exports,
		Carried:     img.Carried,
		Diagnostics: diags,
	}, nil
}

func imageRef(d reference.Descriptor, defaults starlark.StringDict) ImageRef {
	switch d.Kind() {
	case reference.KindModule:
		if _, ok := defaults[d.Name]; ok {
			return ImageRef{Name: d.Name, Kind: RefBuiltin}
		}
		return ImageRef{Name: d.Name, Kind: RefModule}
	case reference.KindImage:
		return ImageRef{Name: d.Name, Kind: RefImage, Path: d.Path}
	default:
		return ImageRef{Name: d.Name, Kind: RefSource, Path: d.Path}
	}
}

func documentSymbols(u *unit) DocumentSymbols {
	ds := DocumentSymbols{
		Document: u.doc.Name(),
		Path:     u.doc.Path(),
		Version:  u.doc.Version(),
		Hash:     contentHash(u.doc.Text()),
	}
	defs := make(map[string]*syntax.DefStmt)
	for _, stmt := range u.file.Stmts {
		switch s := stmt.(type) {
		case *syntax.DefStmt:
			defs[s.Name.Name] = s
		case *syntax.LoadStmt:
			for _, to := range s.To {
				ds.Symbols = append(ds.Symbols, Symbol{
					Name:   to.Name,
					Kind:   "load",
					Line:   int(to.NamePos.Line),
					Column: int(to.NamePos.Col),
				})
			}
		}
	}
	for _, id := range u.globals {
		sym := Symbol{
			Name:   id.Name,
			Kind:   "var",
			Line:   int(id.NamePos.Line),
			Column: int(id.NamePos.Col),
		}
		if def, ok := defs[id.Name]; ok && def.Name == id {
			sym.Kind = "def"
			sym.Doc = reference.Docstring(def.Body)
		}
		ds.Symbols = append(ds.Symbols, sym)
	}
	return ds
}
