// Package runner executes emitted module images.
//
// A module's units run in order against one shared set of predeclared
// names: the host object's members, one namespace per reference and the
// globals of the units that ran before. Every later unit's globals are
// added to the same set, so functions may call into documents that
// initialize after them.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/reference"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
)

// Runner executes module images.
type Runner struct {
	logger  *slog.Logger
	output  io.Writer
	modules map[string]starlark.StringDict

	mu     sync.Mutex
	images map[string]starlark.StringDict // loaded .lcm exports by path
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOutput sets where print() output goes. By default it is discarded.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.output = w
	}
}

// WithReferences supplies the in-memory modules images refer to by name.
// Path references are ignored; images record their paths.
func WithReferences(refs ...reference.Descriptor) Option {
	return func(r *Runner) {
		for _, d := range refs {
			if d.Module != nil {
				r.modules[d.Name] = d.Module.Members
			}
		}
	}
}

// New creates a runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:  slog.New(slog.DiscardHandler),
		modules: make(map[string]starlark.StringDict),
		images:  make(map[string]starlark.StringDict),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run decodes and executes a module image and returns its exports. The
// host object is bound when the module was compiled for a host type;
// members it has no value for are None.
func (r *Runner) Run(ctx context.Context, data []byte, host *starctx.HostObject) (starlark.StringDict, error) {
	img, err := compiler.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return r.Exec(ctx, img, host, nil)
}

// Exec executes a decoded image with carried globals from earlier
// submissions in scope.
func (r *Runner) Exec(ctx context.Context, img *compiler.Image, host *starctx.HostObject, carried starlark.StringDict) (starlark.StringDict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hostVals, err := hostBindings(img, host)
	if err != nil {
		return nil, err
	}
	refs := make(starlark.StringDict, len(img.References))
	for _, ref := range img.References {
		v, err := r.namespace(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", img.Name, err)
		}
		refs[ref.Name] = v
	}

	loaded := make(map[string]starlark.StringDict)
	load := func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		if members, ok := loaded[module]; ok {
			return members, nil
		}
		ref, ok := img.Include(module)
		if !ok {
			return nil, fmt.Errorf("module %s does not include %q", img.Name, module)
		}
		members, err := r.members(ctx, ref)
		if err != nil {
			return nil, err
		}
		loaded[module] = members
		return members, nil
	}

	ectx, err := starctx.NewExecutionContext(hostVals, refs,
		starctx.WithOutput(r.output),
		starctx.WithLoader(load))
	if err != nil {
		return nil, err
	}
	if len(carried) > 0 {
		if err := ectx.Carry(carried); err != nil {
			return nil, err
		}
	}

	programs, err := img.Programs()
	if err != nil {
		return nil, err
	}

	thread := ectx.NewThread(img.Name)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	globals := ectx.Globals()
	for i, prog := range programs {
		unitGlobals, err := prog.Init(thread, globals)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, starctx.WrapEvalError(img.Units[i].Path, err)
		}
		for name, v := range unitGlobals {
			globals[name] = v
		}
	}

	exports := make(starlark.StringDict, len(img.Exports))
	for _, name := range img.Exports {
		if v, ok := globals[name]; ok {
			exports[name] = v
		}
	}
	r.logger.Debug("module executed", "module", img.Name, "units", len(programs), "exports", len(exports))
	return exports, nil
}

// LoadImage executes the module image at path and returns its exports.
// Results are cached by path. It satisfies reference.ImageLoader.
func (r *Runner) LoadImage(path string) (starlark.StringDict, error) {
	return r.loadImage(context.Background(), path)
}

func (r *Runner) loadImage(ctx context.Context, path string) (starlark.StringDict, error) {
	r.mu.Lock()
	cached, ok := r.images[path]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path recorded in a compiled image
	if err != nil {
		return nil, fmt.Errorf("read module image: %w", err)
	}
	exports, err := r.Run(ctx, data, nil)
	if err != nil {
		return nil, fmt.Errorf("load module image %s: %w", path, err)
	}
	exports.Freeze()

	r.mu.Lock()
	r.images[path] = exports
	r.mu.Unlock()
	return exports, nil
}

// namespace returns the value bound under a reference's name.
func (r *Runner) namespace(ctx context.Context, ref compiler.ImageRef) (starlark.Value, error) {
	if ref.Kind == compiler.RefBuiltin {
		v, ok := starctx.DefaultModules()[ref.Name]
		if !ok {
			return nil, fmt.Errorf("unknown builtin module %q", ref.Name)
		}
		return v, nil
	}
	members, err := r.members(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &starlarkstruct.Module{Name: ref.Name, Members: members}, nil
}

// members returns the exported members of a reference.
func (r *Runner) members(ctx context.Context, ref compiler.ImageRef) (starlark.StringDict, error) {
	switch ref.Kind {
	case compiler.RefBuiltin:
		v, ok := starctx.DefaultModules()[ref.Name]
		if !ok {
			return nil, fmt.Errorf("unknown builtin module %q", ref.Name)
		}
		return starctx.ModuleMembers(v), nil
	case compiler.RefModule:
		members, ok := r.modules[ref.Name]
		if !ok {
			return nil, &reference.LoadError{Reference: ref.Name, Message: "in-memory module was not supplied to the runner"}
		}
		return members, nil
	case compiler.RefSource:
		return reference.LoadSource(ref.Name, ref.Path)
	case compiler.RefImage:
		return r.loadImage(ctx, ref.Path)
	case compiler.RefProject:
		exports, err := r.Run(ctx, ref.Image, nil)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", ref.Name, err)
		}
		exports.Freeze()
		return exports, nil
	default:
		return nil, fmt.Errorf("reference %s has unknown kind %q", ref.Name, ref.Kind)
	}
}

func hostBindings(img *compiler.Image, host *starctx.HostObject) (starlark.StringDict, error) {
	if img.Host == nil {
		return nil, nil
	}
	obj := &starctx.HostObject{Type: img.Host}
	if host != nil {
		obj.Values = host.Values
	}
	return obj.Bindings()
}
