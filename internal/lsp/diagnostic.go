package lsp

import (
	"context"
	"errors"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

const diagnosticSource = "leapcode"

// publishDiagnostics compiles a project and publishes the diagnostics of
// each of its documents. Documents without diagnostics get an empty list
// so stale markers are cleared.
func (s *Server) publishDiagnostics(project string) {
	byURI := make(map[string][]Diagnostic)
	for _, uri := range s.index.URIs(project) {
		byURI[uri] = []Diagnostic{}
	}

	for uri, diags := range s.compileDiagnostics(project) {
		byURI[uri] = append(byURI[uri], diags...)
	}

	for uri, diags := range byURI {
		s.sendNotification("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
			URI:         uri,
			Diagnostics: diags,
		})
	}
}

// compileDiagnostics compiles a project and groups its diagnostics by
// document URI. A failing referenced project reports into its own documents.
func (s *Server) compileDiagnostics(project string) map[string][]Diagnostic {
	res, err := s.eng.Compile(context.Background(), project, "")

	var diags []compiler.Diagnostic
	var compErr *compiler.CompilationError
	switch {
	case errors.As(err, &compErr):
		diags = compErr.Diagnostics
	case err != nil:
		s.logger.Warn("Compile failed", "project", project, "error", err)
		return nil
	default:
		diags = res.Diagnostics
	}

	out := make(map[string][]Diagnostic)
	for _, d := range diags {
		if d.Path == "" {
			continue
		}
		uri := s.index.URIForPath(d.Path)
		var doc *workspace.Document
		if ref, ok := s.index.Lookup(uri); ok {
			doc, _ = s.eng.Document(ref.Name, ref.Project)
		}
		out[uri] = append(out[uri], toLSPDiagnostic(doc, d))
	}
	return out
}

// toLSPDiagnostic converts a compiler diagnostic. Compiler positions are
// 1-based with rune columns; the range covers the identifier at the position.
func toLSPDiagnostic(doc *workspace.Document, d compiler.Diagnostic) Diagnostic {
	out := Diagnostic{
		Severity: toLSPSeverity(d.Severity),
		Source:   diagnosticSource,
		Message:  d.Message,
	}
	if d.Line <= 0 {
		return out
	}

	line := uint32(d.Line - 1)
	out.Range = Range{Start: Position{Line: line}, End: Position{Line: line}}
	if doc == nil {
		return out
	}
	text, err := doc.Line(d.Line - 1)
	if err != nil {
		return out
	}

	col := 0
	if d.Column > 0 {
		col = runeOffset(text, d.Column-1)
	}
	end := col
	for end < len(text) && isWordChar(text[end]) {
		end++
	}
	out.Range.Start.Character = utf16Column(text, col)
	out.Range.End.Character = utf16Column(text, end)
	return out
}

func toLSPSeverity(s compiler.Severity) DiagnosticSeverity {
	switch s {
	case compiler.SeverityError:
		return DiagnosticSeverityError
	case compiler.SeverityWarning:
		return DiagnosticSeverityWarning
	case compiler.SeverityInfo:
		return DiagnosticSeverityInformation
	default:
		return DiagnosticSeverityHint
	}
}
