package reference

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Resolver resolves a reference name to a descriptor.
type Resolver interface {
	Resolve(name string) (Descriptor, error)
}

// CachedResolver is the layered reference resolver shared by the
// workspace. Layers are consulted in order:
//
//  1. the default base set
//  2. dynamically added references
//  3. the search paths, in insertion order
//
// Search path lookups are cached per request name. Any change to the
// search paths or dynamic references drops the cache.
type CachedResolver struct {
	mu       sync.RWMutex
	defaults []Descriptor
	dynamic  []Descriptor
	paths    []string
	gen      uint64
	cache    map[string]Descriptor

	group     singleflight.Group
	listeners []func(paths []string)
	logger    *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// ResolverOption configures a CachedResolver.
type ResolverOption func(*CachedResolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *CachedResolver) {
		r.logger = logger
	}
}

// WithDefaults replaces the default base set.
func WithDefaults(defaults []Descriptor) ResolverOption {
	return func(r *CachedResolver) {
		r.defaults = slices.Clone(defaults)
	}
}

// NewCachedResolver creates a resolver over the default base set.
func NewCachedResolver(opts ...ResolverOption) *CachedResolver {
	r := &CachedResolver{
		defaults: Defaults(),
		cache:    make(map[string]Descriptor),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddReferences adds dynamic references. Names must be unique across the
// default set and previously added references.
func (r *CachedResolver) AddReferences(refs ...Descriptor) error {
	for _, d := range refs {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.defaults)+len(r.dynamic)+len(refs))
	for _, d := range r.defaults {
		seen[d.Name] = true
	}
	for _, d := range r.dynamic {
		seen[d.Name] = true
	}
	for _, d := range refs {
		if seen[d.Name] {
			return fmt.Errorf("reference %q already exists", d.Name)
		}
		seen[d.Name] = true
	}

	r.dynamic = append(r.dynamic, refs...)
	r.invalidateLocked()
	r.logger.Debug("references added", "count", len(refs))
	return nil
}

// AddReferencePaths adds path references, resolving relative paths
// against baseDir. Binding names derive from the file names.
func (r *CachedResolver) AddReferencePaths(baseDir string, paths ...string) ([]Descriptor, error) {
	refs := make([]Descriptor, 0, len(paths))
	for _, p := range paths {
		d, err := FromPath(p, "", baseDir)
		if err != nil {
			return nil, err
		}
		refs = append(refs, d)
	}
	if err := r.AddReferences(refs...); err != nil {
		return nil, err
	}
	return refs, nil
}

// References returns the default set followed by the dynamic references.
func (r *CachedResolver) References() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.defaults)+len(r.dynamic))
	out = append(out, r.defaults...)
	return append(out, r.dynamic...)
}

// DefaultNames returns the names of the default base set.
func (r *CachedResolver) DefaultNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.defaults))
	for i, d := range r.defaults {
		names[i] = d.Name
	}
	return names
}

// SearchPaths returns the current search paths in order.
func (r *CachedResolver) SearchPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.paths)
}

// AddSearchPaths appends search paths, ignoring ones already present.
// Relative paths are resolved against baseDir.
func (r *CachedResolver) AddSearchPaths(baseDir string, paths ...string) {
	r.mu.Lock()
	changed := false
	for _, p := range paths {
		p = absPath(baseDir, p)
		if slices.Contains(r.paths, p) {
			continue
		}
		r.paths = append(r.paths, p)
		changed = true
	}
	current, listeners := r.changedLocked(changed)
	r.mu.Unlock()

	notify(listeners, current)
}

// RemoveSearchPaths removes search paths. Unknown paths are ignored.
func (r *CachedResolver) RemoveSearchPaths(baseDir string, paths ...string) {
	r.mu.Lock()
	changed := false
	for _, p := range paths {
		p = absPath(baseDir, p)
		if i := slices.Index(r.paths, p); i >= 0 {
			r.paths = slices.Delete(r.paths, i, i+1)
			changed = true
		}
	}
	current, listeners := r.changedLocked(changed)
	r.mu.Unlock()

	notify(listeners, current)
}

// OnSearchPathsChanged registers fn to be called with the new search
// path list after every change.
func (r *CachedResolver) OnSearchPathsChanged(fn func(paths []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Invalidate drops all cached search path resolutions.
func (r *CachedResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

// Stats returns the cache hit and miss counts.
func (r *CachedResolver) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// Resolve resolves name against the current state of every layer.
func (r *CachedResolver) Resolve(name string) (Descriptor, error) {
	return r.View().Resolve(name)
}

// View pins the current layers. A compilation resolves every reference
// through one view, so concurrent search path changes neither affect it
// nor receive its cache entries.
func (r *CachedResolver) View() *View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &View{
		r:        r,
		gen:      r.gen,
		defaults: slices.Clone(r.defaults),
		dynamic:  slices.Clone(r.dynamic),
		paths:    slices.Clone(r.paths),
	}
}

func (r *CachedResolver) changedLocked(changed bool) ([]string, []func([]string)) {
	if !changed {
		return nil, nil
	}
	r.invalidateLocked()
	r.logger.Debug("search paths changed", "paths", r.paths)
	return slices.Clone(r.paths), slices.Clone(r.listeners)
}

func (r *CachedResolver) invalidateLocked() {
	r.gen++
	clear(r.cache)
}

func (r *CachedResolver) lookup(gen uint64, name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if gen != r.gen {
		return Descriptor{}, false
	}
	d, ok := r.cache[name]
	return d, ok
}

func (r *CachedResolver) store(gen uint64, name string, d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.gen {
		r.cache[name] = d
	}
}

func notify(listeners []func([]string), paths []string) {
	for _, fn := range listeners {
		fn(paths)
	}
}

func absPath(baseDir, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// View is a point-in-time view of a CachedResolver's layers.
type View struct {
	r        *CachedResolver
	gen      uint64
	defaults []Descriptor
	dynamic  []Descriptor
	paths    []string
	noPaths  bool
}

// WithoutSearchPaths returns a view that only consults the default set
// and the dynamic references.
func (v *View) WithoutSearchPaths() *View {
	c := *v
	c.noPaths = true
	return &c
}

// SearchPaths returns the search paths pinned by the view.
func (v *View) SearchPaths() []string {
	if v.noPaths {
		return nil
	}
	return slices.Clone(v.paths)
}

// Resolve resolves name through the view's layers.
func (v *View) Resolve(name string) (Descriptor, error) {
	for _, d := range v.defaults {
		if d.Name == name {
			return d, nil
		}
	}
	for _, d := range v.dynamic {
		if d.Name == name {
			return d, nil
		}
	}

	if v.noPaths {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
	}

	if filepath.IsAbs(name) {
		return FromPath(name, IncludeName(name), "")
	}

	if d, ok := v.r.lookup(v.gen, name); ok {
		v.r.hits.Add(1)
		return d, nil
	}

	key := strconv.FormatUint(v.gen, 10) + "\x00" + name
	res, err, _ := v.r.group.Do(key, func() (any, error) {
		v.r.misses.Add(1)
		d, err := findInPaths(v.paths, name)
		if err != nil {
			return Descriptor{}, err
		}
		v.r.store(v.gen, name, d)
		return d, nil
	})
	if err != nil {
		return Descriptor{}, err
	}
	return res.(Descriptor), nil
}

// findInPaths searches paths in order for name, name.star or name.lcm.
func findInPaths(paths []string, name string) (Descriptor, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, name+SourceExt, name+ImageExt)
	}
	var lastErr error
	for _, dir := range paths {
		for _, c := range candidates {
			p := filepath.Join(dir, c)
			info, err := os.Stat(p)
			if err != nil || info.IsDir() {
				continue
			}
			d, err := FromPath(p, IncludeName(p), "")
			if err != nil {
				lastErr = err
				continue
			}
			return d, nil
		}
	}
	if lastErr != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrUnresolved, name, lastErr)
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
}
