package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// MapDocs is a static documentation provider.
type MapDocs map[string]string

// Describe implements DocProvider.
func (m MapDocs) Describe(symbol string) (string, bool) {
	doc, ok := m[symbol]
	return doc, ok
}

// moduleDocs describes the members of an in-memory module by their type.
func moduleDocs(module string, members starlark.StringDict) MapDocs {
	docs := make(MapDocs, len(members))
	for name, v := range members {
		if b, ok := v.(*starlark.Builtin); ok {
			docs[name] = fmt.Sprintf("%s.%s: builtin %s", module, name, b.Name())
			continue
		}
		docs[name] = fmt.Sprintf("%s.%s: %s", module, name, v.Type())
	}
	return docs
}

// ParsedFunction represents a function extracted from a .star file.
type ParsedFunction struct {
	Name      string   // Function name
	Args      []string // Argument names (with defaults like "x=None")
	Docstring string   // Docstring if present
	Line      int      // Line number for go-to-definition
}

// Signature returns a human-readable signature for a function.
func (f *ParsedFunction) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}

// ParsedSource is the statically parsed outline of a .star file.
type ParsedSource struct {
	Name      string // Binding name (filename without extension)
	FilePath  string
	Functions []*ParsedFunction
	Values    []string // exported non-function top-level names
}

// Exports returns every exported top-level name.
func (ps *ParsedSource) Exports() []string {
	names := make([]string, 0, len(ps.Functions)+len(ps.Values))
	for _, fn := range ps.Functions {
		names = append(names, fn.Name)
	}
	names = append(names, ps.Values...)
	sort.Strings(names)
	return names
}

// ParseSource statically parses a .star file and extracts exported
// function metadata. The file is not executed.
func ParseSource(filename string, content []byte) (*ParsedSource, error) {
	f, err := starctx.FileOptions().Parse(filename, content, 0)
	if err != nil {
		return nil, &ParseError{File: filename, Message: err.Error()}
	}

	ps := &ParsedSource{
		Name:     BindingName(filename),
		FilePath: filename,
	}

	funcs := make(map[string]bool)
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			continue
		}
		// Skip private functions (start with _)
		if strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		funcs[def.Name.Name] = true
		ps.Functions = append(ps.Functions, &ParsedFunction{
			Name:      def.Name.Name,
			Line:      int(def.Name.NamePos.Line),
			Args:      extractArgs(def.Params),
			Docstring: Docstring(def.Body),
		})
	}

	for _, id := range starctx.TopLevelBindings(f.Stmts) {
		if !funcs[id.Name] && !strings.HasPrefix(id.Name, "_") {
			ps.Values = append(ps.Values, id.Name)
		}
	}
	sort.Strings(ps.Values)
	return ps, nil
}

// extractArgs converts syntax parameters to string representations.
func extractArgs(params []syntax.Expr) []string {
	var args []string
	for _, param := range params {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
		case *syntax.BinaryExpr:
			if p.Op == syntax.EQ {
				if ident, ok := p.X.(*syntax.Ident); ok {
					args = append(args, ident.Name+"="+exprToString(p.Y))
				}
			}
		case *syntax.UnaryExpr:
			// *args or **kwargs
			prefix := "*"
			if p.Op == syntax.STARSTAR {
				prefix = "**"
			}
			if ident, ok := p.X.(*syntax.Ident); ok {
				args = append(args, prefix+ident.Name)
			} else if p.X == nil {
				args = append(args, "*")
			}
		}
	}
	return args
}

// Docstring returns the docstring of a function body, if present.
func Docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	exprStmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := exprStmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, ok := lit.Value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func exprToString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprToString(e.X)
		}
		return exprToString(e.X)
	default:
		return "..."
	}
}

// ParseError represents an error during static parsing.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + filepath.Base(e.File) + ": " + e.Message
}

// SourceDocs provides documentation for a .star reference. The file is
// parsed on first use.
type SourceDocs struct {
	path string

	once   sync.Once
	parsed *ParsedSource
	err    error
}

// NewSourceDocs creates a documentation provider for a .star file.
func NewSourceDocs(path string) *SourceDocs {
	return &SourceDocs{path: path}
}

// Parsed returns the parsed outline, parsing the file on first call.
func (d *SourceDocs) Parsed() (*ParsedSource, error) {
	d.once.Do(func() {
		content, err := os.ReadFile(d.path) //nolint:gosec // G304: path comes from a resolved reference
		if err != nil {
			d.err = err
			return
		}
		d.parsed, d.err = ParseSource(d.path, content)
	})
	return d.parsed, d.err
}

// Describe implements DocProvider.
func (d *SourceDocs) Describe(symbol string) (string, bool) {
	parsed, err := d.Parsed()
	if err != nil {
		return "", false
	}
	return parsed.Describe(symbol)
}

// Describe returns the signature and docstring of an exported function,
// or the qualified name of an exported value.
func (ps *ParsedSource) Describe(symbol string) (string, bool) {
	for _, fn := range ps.Functions {
		if fn.Name != symbol {
			continue
		}
		if fn.Docstring == "" {
			return fn.Signature(), true
		}
		return fn.Signature() + "\n\n" + fn.Docstring, true
	}
	for _, v := range ps.Values {
		if v == symbol {
			return fmt.Sprintf("%s.%s", ps.Name, v), true
		}
	}
	return "", false
}
