package starlark

import (
	"fmt"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DefaultModules returns the base modules available to every project.
// Each module is bound under its key, e.g. json.encode(...).
func DefaultModules() starlark.StringDict {
	return starlark.StringDict{
		"json": json.Module,
		"math": math.Module,
		"time": time.Module,
		"struct": &starlarkstruct.Module{
			Name: "struct",
			Members: starlark.StringDict{
				"make": starlark.NewBuiltin("make", starlarkstruct.Make),
			},
		},
	}
}

// ModuleMembers returns the exported members of a module-like value.
// Structs and modules expose their fields; any other value yields nil.
func ModuleMembers(v starlark.Value) starlark.StringDict {
	switch m := v.(type) {
	case *starlarkstruct.Module:
		return m.Members
	case *starlarkstruct.Struct:
		d := make(starlark.StringDict)
		m.ToStringDict(d)
		return d
	}
	return nil
}

// Predeclared merges host bindings, reference namespaces and carried
// globals into one predeclared dictionary. Later groups may not shadow
// earlier ones.
func Predeclared(host starlark.StringDict, refs starlark.StringDict, carried starlark.StringDict) (starlark.StringDict, error) {
	globals := make(starlark.StringDict, len(host)+len(refs)+len(carried))
	for name, v := range host {
		globals[name] = v
	}
	for name, v := range refs {
		if _, ok := globals[name]; ok {
			return nil, fmt.Errorf("reference %q conflicts with host member", name)
		}
		globals[name] = v
	}
	for name, v := range carried {
		if _, ok := globals[name]; ok {
			continue
		}
		globals[name] = v
	}
	return globals, nil
}

// ValidateIdent checks that name is a valid Starlark identifier.
func ValidateIdent(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("identifier must start with letter or underscore: %s", name)
			}
		} else {
			if !isLetter(r) && !isDigit(r) && r != '_' {
				return fmt.Errorf("identifier contains invalid character: %s", name)
			}
		}
	}

	if starlark.Universe.Has(name) {
		return fmt.Errorf("identifier shadows a universal builtin: %s", name)
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
