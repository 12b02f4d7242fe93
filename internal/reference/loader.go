package reference

import (
	"fmt"
	"os"
	"strings"

	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ImageLoader loads the exported members of an emitted module image.
type ImageLoader func(path string) (starlark.StringDict, error)

// LoadError represents an error loading a reference.
type LoadError struct {
	Reference string
	File      string
	Message   string
}

func (e *LoadError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("load reference %s: %s", e.Reference, e.Message)
	}
	return fmt.Sprintf("load reference %s (%s): %s", e.Reference, e.File, e.Message)
}

// Members returns the exported members of a descriptor. Source files are
// executed; images are delegated to loadImage.
func Members(d Descriptor, loadImage ImageLoader) (starlark.StringDict, error) {
	switch d.Kind() {
	case KindModule:
		return d.Module.Members, nil
	case KindImage:
		if loadImage == nil {
			return nil, &LoadError{Reference: d.Name, File: d.Path, Message: "module images cannot be loaded here"}
		}
		members, err := loadImage(d.Path)
		if err != nil {
			return nil, &LoadError{Reference: d.Name, File: d.Path, Message: err.Error()}
		}
		return members, nil
	default:
		return LoadSource(d.Name, d.Path)
	}
}

// Namespace returns the value bound under a descriptor's name: a module
// whose attributes are the descriptor's members.
func Namespace(d Descriptor, loadImage ImageLoader) (starlark.Value, error) {
	members, err := Members(d, loadImage)
	if err != nil {
		return nil, err
	}
	return &starlarkstruct.Module{Name: d.Name, Members: members}, nil
}

// LoadSource executes a .star file and returns its exports
// (top-level names not starting with _).
func LoadSource(name, path string) (starlark.StringDict, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a resolved reference
	if err != nil {
		return nil, &LoadError{
			Reference: name,
			File:      path,
			Message:   fmt.Sprintf("failed to read file: %v", err),
		}
	}

	thread := &starlark.Thread{
		Name: "load:" + name,
		Print: func(_ *starlark.Thread, _ string) {
			// Ignore prints during reference loading
		},
	}

	globals, err := starlark.ExecFileOptions(starctx.FileOptions(), thread, path, content, nil)
	if err != nil {
		return nil, &LoadError{
			Reference: name,
			File:      path,
			Message:   fmt.Sprintf("starlark execution error: %v", err),
		}
	}

	exports := make(starlark.StringDict)
	for k, v := range globals {
		if !strings.HasPrefix(k, "_") {
			exports[k] = v
		}
	}
	return exports, nil
}
