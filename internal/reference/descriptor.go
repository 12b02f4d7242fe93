// Package reference resolves logical reference names into loadable
// reference descriptors. Resolution is layered: the default base set,
// dynamically supplied references, then an ordered list of search paths.
package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"go.starlark.net/starlark"
)

// File extensions understood by path references.
const (
	SourceExt = ".star" // Starlark source, executed on load
	ImageExt  = ".lcm"  // emitted module image
)

// ErrUnresolved is returned when no layer can resolve a reference name.
var ErrUnresolved = errors.New("unresolved reference")

// Kind identifies how a descriptor is loaded.
type Kind int

const (
	// KindModule is an in-memory module handle.
	KindModule Kind = iota
	// KindSource is a Starlark source file.
	KindSource
	// KindImage is an emitted module image.
	KindImage
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindSource:
		return "source"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Module is an in-memory module handle.
type Module struct {
	Name    string
	Members starlark.StringDict
}

// DocProvider answers documentation lookups for the symbols of a reference.
type DocProvider interface {
	Describe(symbol string) (string, bool)
}

// Descriptor is a resolved, loadable reference.
// Exactly one of Path or Module is set.
type Descriptor struct {
	// Name is the binding name under which the reference is visible.
	Name string
	// Path is the absolute path of a source file or module image.
	Path string
	// Module is the in-memory handle for module references.
	Module *Module
	// Docs is an optional documentation provider.
	Docs DocProvider
}

// Kind reports how the descriptor is loaded.
func (d Descriptor) Kind() Kind {
	if d.Module != nil {
		return KindModule
	}
	if strings.EqualFold(filepath.Ext(d.Path), ImageExt) {
		return KindImage
	}
	return KindSource
}

// String returns a short human readable form.
func (d Descriptor) String() string {
	if d.Module != nil {
		return fmt.Sprintf("%s (module)", d.Name)
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Path)
}

// Validate checks the descriptor is well formed.
func (d Descriptor) Validate() error {
	if err := starctx.ValidateIdent(d.Name); err != nil {
		return fmt.Errorf("reference name: %w", err)
	}
	switch {
	case d.Module != nil && d.Path != "":
		return fmt.Errorf("reference %s: path and module are mutually exclusive", d.Name)
	case d.Module == nil && d.Path == "":
		return fmt.Errorf("reference %s: path or module is required", d.Name)
	case d.Path != "" && !filepath.IsAbs(d.Path):
		return fmt.Errorf("reference %s: path must be absolute: %s", d.Name, d.Path)
	}
	return nil
}

// FromModule creates an in-memory descriptor.
func FromModule(name string, members starlark.StringDict) Descriptor {
	return Descriptor{Name: name, Module: &Module{Name: name, Members: members}}
}

// FromPath creates a path descriptor for an existing source file or image.
// Relative paths are resolved against baseDir. An empty name derives the
// binding name from the file name.
func FromPath(path, name, baseDir string) (Descriptor, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != SourceExt && ext != ImageExt {
		return Descriptor{}, fmt.Errorf("reference %s: unsupported file type %q", path, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrUnresolved, path, err)
	}
	if info.IsDir() {
		return Descriptor{}, fmt.Errorf("%w: %s is a directory", ErrUnresolved, path)
	}

	if name == "" {
		name = BindingName(path)
	}
	d := Descriptor{Name: name, Path: path}
	if ext == SourceExt {
		d.Docs = NewSourceDocs(path)
	}
	return d, d.Validate()
}

// BindingName derives a binding name from a file path or reference name:
// "lib/str_utils.star" becomes "str_utils".
func BindingName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IncludeName derives a valid binding name for a file found on a search
// path. load() binds by module string, so the name only has to be a valid
// identifier: "my-lib.star" becomes "my_lib".
func IncludeName(path string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, BindingName(path))
	if starctx.ValidateIdent(name) != nil {
		name = "_" + name
	}
	return name
}

// Defaults returns the default base reference set.
func Defaults() []Descriptor {
	mods := starctx.DefaultModules()
	out := make([]Descriptor, 0, len(mods))
	for _, name := range starctx.SortedKeys(mods) {
		out = append(out, Descriptor{
			Name:   name,
			Module: &Module{Name: name, Members: starctx.ModuleMembers(mods[name])},
			Docs:   moduleDocs(name, starctx.ModuleMembers(mods[name])),
		})
	}
	return out
}
