// Package starlark provides the Starlark environment shared by the compiler
// and the runner: host object bindings, Go <-> Starlark value conversion and
// the default base modules every project can reference.
package starlark

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// HostMember describes a single member of a host object type.
type HostMember struct {
	Name string `json:"name"`
	Doc  string `json:"doc,omitempty"`
}

// HostType describes the host object a script project is bound to.
// Its members become implicit top-level bindings of the script.
type HostType struct {
	Name    string       `json:"name"`
	Members []HostMember `json:"members"`
}

// NewHostType creates a host type with undocumented members.
func NewHostType(name string, members ...string) *HostType {
	h := &HostType{Name: name}
	for _, m := range members {
		h.Members = append(h.Members, HostMember{Name: m})
	}
	return h
}

// MemberNames returns the member names in declaration order.
func (h *HostType) MemberNames() []string {
	if h == nil {
		return nil
	}
	names := make([]string, len(h.Members))
	for i, m := range h.Members {
		names[i] = m.Name
	}
	return names
}

// Has reports whether name is a member of the host type.
func (h *HostType) Has(name string) bool {
	if h == nil {
		return false
	}
	for _, m := range h.Members {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Doc returns the documentation of a member.
func (h *HostType) Doc(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	for _, m := range h.Members {
		if m.Name == name {
			return m.Doc, m.Doc != ""
		}
	}
	return "", false
}

// Validate checks member names are valid, unique identifiers.
func (h *HostType) Validate() error {
	if h == nil {
		return nil
	}
	if h.Name == "" {
		return fmt.Errorf("host type name is required")
	}
	seen := make(map[string]bool, len(h.Members))
	for _, m := range h.Members {
		if err := ValidateIdent(m.Name); err != nil {
			return fmt.Errorf("host type %s: %w", h.Name, err)
		}
		if seen[m.Name] {
			return fmt.Errorf("host type %s: duplicate member %q", h.Name, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Clone returns a deep copy of the host type.
func (h *HostType) Clone() *HostType {
	if h == nil {
		return nil
	}
	c := &HostType{Name: h.Name, Members: make([]HostMember, len(h.Members))}
	copy(c.Members, h.Members)
	return c
}

// HostObject is a host type together with member values.
type HostObject struct {
	Type   *HostType
	Values map[string]any
}

// Bindings converts the host object's members into Starlark values.
// Members without a value are bound to None.
func (o *HostObject) Bindings() (starlark.StringDict, error) {
	if o == nil || o.Type == nil {
		return starlark.StringDict{}, nil
	}
	dict := make(starlark.StringDict, len(o.Type.Members))
	for _, m := range o.Type.Members {
		v, err := GoToStarlark(o.Values[m.Name])
		if err != nil {
			return nil, fmt.Errorf("host member %s.%s: %w", o.Type.Name, m.Name, err)
		}
		dict[m.Name] = v
	}
	return dict, nil
}

// ToStarlark converts the host object to a Starlark struct value.
func (o *HostObject) ToStarlark() (starlark.Value, error) {
	members, err := o.Bindings()
	if err != nil {
		return nil, err
	}
	name := "host"
	if o != nil && o.Type != nil {
		name = o.Type.Name
	}
	return starlarkstruct.FromStringDict(starlark.String(name), members), nil
}

// SortedKeys returns the keys of a StringDict in sorted order.
func SortedKeys(d starlark.StringDict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []any, map[string]any
// and values that already implement starlark.Value.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil

	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := GoToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %T", item[0])
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}
