package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/reference"
	"github.com/leapstack-labs/leapcode/internal/state"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// Compile compiles every document of a project into a module. An empty
// module name defaults to the project's namespace.
//
// Referenced projects are compiled first, in dependency order, from the
// same snapshot. Any error diagnostic fails the compile with a
// *compiler.CompilationError and nothing is emitted.
func (e *Engine) Compile(ctx context.Context, projectName, moduleName string) (*compiler.Result, error) {
	return e.compile(ctx, projectName, moduleName, nil)
}

// CompileSubmission compiles the document of a script project as a
// submission following previous, whose names stay in scope.
func (e *Engine) CompileSubmission(ctx context.Context, projectName, moduleName string, previous *compiler.Result) (*compiler.Result, error) {
	p, err := e.project(projectName)
	if err != nil {
		return nil, err
	}
	if p.Kind() != workspace.KindScript {
		return nil, fmt.Errorf("project %s is not a script project", projectName)
	}
	return e.compile(ctx, projectName, moduleName, previous)
}

// Emit compiles a project and writes <module>.lcm and <module>.lcs into
// dir, resolved against the working directory.
func (e *Engine) Emit(ctx context.Context, projectName, moduleName, dir string) (*compiler.Result, compiler.Emitted, error) {
	res, err := e.Compile(ctx, projectName, moduleName)
	if err != nil {
		return nil, compiler.Emitted{}, err
	}
	out, err := compiler.WriteResult(e.fs, e.ws.Resolve(dir), res)
	if err != nil {
		return nil, compiler.Emitted{}, err
	}
	e.logger.Info("module emitted",
		"project", projectName,
		"module", res.Module,
		"image", out.Image,
		"bytes", len(res.Image))
	return res, out, nil
}

func (e *Engine) compile(ctx context.Context, projectName, moduleName string, previous *compiler.Result) (*compiler.Result, error) {
	snap := e.ws.CurrentSolution()
	view := e.resolver.View()

	p, ok := snap.ProjectByName(projectName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", workspace.ErrUnknownProject, projectName)
	}
	if moduleName == "" {
		moduleName = p.Namespace()
	}

	start := time.Now()
	res, err := e.compileSnapshot(ctx, snap, view, p, moduleName, previous)
	e.record(ctx, p, moduleName, res, err, time.Since(start))
	return res, err
}

func (e *Engine) compileSnapshot(
	ctx context.Context,
	snap *workspace.Solution,
	view *reference.View,
	p *workspace.Project,
	moduleName string,
	previous *compiler.Result,
) (*compiler.Result, error) {
	g, err := snap.Graph()
	if err != nil {
		return nil, err
	}

	results := make(map[workspace.ProjectID]*compiler.Result)
	for _, id := range g.GetUpstreamNodes(string(p.ID())) {
		dep, ok := snap.Project(workspace.ProjectID(id))
		if !ok {
			return nil, fmt.Errorf("%w: %s", workspace.ErrUnknownReference, id)
		}
		res, err := e.backend.Compile(ctx, e.request(snap, view, dep, dep.Namespace(), results, nil))
		if err != nil {
			return nil, fmt.Errorf("referenced project %s: %w", dep.Name(), err)
		}
		results[dep.ID()] = res
	}

	return e.backend.Compile(ctx, e.request(snap, view, p, moduleName, results, previous))
}

func (e *Engine) request(
	snap *workspace.Solution,
	view *reference.View,
	p *workspace.Project,
	moduleName string,
	results map[workspace.ProjectID]*compiler.Result,
	previous *compiler.Result,
) *compiler.Request {
	req := &compiler.Request{
		Project:    p.Name(),
		Namespace:  p.Namespace(),
		Module:     moduleName,
		Kind:       p.Kind(),
		Documents:  p.Documents(),
		Host:       p.Host(),
		References: p.References(),
		Previous:   previous,
	}
	for _, id := range p.ProjectReferences() {
		dep, _ := snap.Project(id)
		req.Projects = append(req.Projects, compiler.ProjectBinding{
			Project:   dep.Name(),
			Namespace: dep.Namespace(),
			Result:    results[id],
		})
	}
	// Code projects only load what is referenced explicitly.
	if p.Kind() == workspace.KindScript {
		req.Includes = view
	} else {
		req.Includes = view.WithoutSearchPaths()
	}
	return req
}

// record stores a compile in the history. Failures to record are logged,
// never returned.
func (e *Engine) record(ctx context.Context, p *workspace.Project, moduleName string, res *compiler.Result, compileErr error, elapsed time.Duration) {
	if e.store == nil {
		return
	}
	rec := &state.CompileRecord{
		Project:   p.Name(),
		Module:    moduleName,
		Kind:      p.Kind().String(),
		Status:    state.CompileStatusSucceeded,
		Documents: p.DocumentCount(),
		Duration:  elapsed,
	}

	var diags []compiler.Diagnostic
	switch {
	case compileErr == nil:
		diags = res.Diagnostics
		sum := sha256.Sum256(res.Image)
		rec.ImageSize = len(res.Image)
		rec.ImageHash = hex.EncodeToString(sum[:])
	default:
		rec.Status = state.CompileStatusFailed
		rec.Message = compileErr.Error()
		var cerr *compiler.CompilationError
		if errors.As(compileErr, &cerr) {
			diags = cerr.Diagnostics
		}
	}
	for _, d := range diags {
		switch d.Severity {
		case compiler.SeverityError:
			rec.Errors++
		case compiler.SeverityWarning:
			rec.Warnings++
		}
		rec.Diagnostics = append(rec.Diagnostics, state.DiagnosticRecord{
			Severity: d.Severity.String(),
			Document: d.Document,
			Line:     d.Line,
			Column:   d.Column,
			Message:  d.Message,
		})
	}

	// The compile context may already be canceled.
	ctx = context.WithoutCancel(ctx)
	if err := e.store.RecordCompile(ctx, rec); err != nil {
		e.logger.Warn("failed to record compile", "project", rec.Project, "error", err)
		return
	}
	if e.historyLimit > 0 {
		if _, err := e.store.PruneCompiles(ctx, e.historyLimit); err != nil {
			e.logger.Warn("failed to prune compile history", "error", err)
		}
	}
}
