package lsp

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/leapcode/internal/reference"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// cursor resolves the document and line under a position.
func (s *Server) cursor(params TextDocumentPositionParams) (DocumentRef, string, int, bool) {
	ref, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return DocumentRef{}, "", 0, false
	}
	doc, err := s.eng.Document(ref.Name, ref.Project)
	if err != nil {
		return DocumentRef{}, "", 0, false
	}
	line, err := doc.Line(int(params.Position.Line))
	if err != nil {
		return DocumentRef{}, "", 0, false
	}
	return ref, line, byteColumn(line, params.Position.Character), true
}

// getHover describes the symbol under the cursor.
func (s *Server) getHover(params HoverParams) *Hover {
	ref, line, col, ok := s.cursor(params.TextDocumentPositionParams)
	if !ok {
		return nil
	}

	word, start, end := wordAt(line, col)
	if word == "" {
		return nil
	}
	namespace, symbol := splitQualified(word)
	desc, ok := s.eng.Describe(ref.Project, namespace, symbol)
	if !ok {
		return nil
	}

	pos := params.Position
	return &Hover{
		Contents: MarkupContent{Kind: MarkupKindMarkdown, Value: formatDescription(desc)},
		Range: &Range{
			Start: Position{Line: pos.Line, Character: utf16Column(line, start)},
			End:   Position{Line: pos.Line, Character: utf16Column(line, end)},
		},
	}
}

// formatDescription renders the first line as code and the rest as text.
func formatDescription(desc string) string {
	sig, rest, _ := strings.Cut(desc, "\n")
	out := "```python\n" + sig + "\n```"
	if rest = strings.TrimSpace(rest); rest != "" {
		out += "\n\n" + rest
	}
	return out
}

// getCompletions lists the names visible at the cursor. After "ns." the
// members of that namespace are listed.
func (s *Server) getCompletions(params CompletionParams) []CompletionItem {
	ref, line, col, ok := s.cursor(params.TextDocumentPositionParams)
	if !ok {
		return nil
	}
	p, ok := s.eng.Workspace().CurrentSolution().ProjectByName(ref.Project)
	if !ok {
		return nil
	}

	before := line[:col]
	start := len(before)
	for start > 0 && (isWordChar(before[start-1]) || before[start-1] == '.') {
		start--
	}
	namespace, prefix := splitQualified(before[start:])

	var items []CompletionItem
	if namespace != "" {
		items = s.namespaceCompletions(p, namespace)
	} else {
		items = s.scopeCompletions(p)
	}
	return filterCompletions(items, prefix)
}

func (s *Server) scopeCompletions(p *workspace.Project) []CompletionItem {
	var items []CompletionItem
	if host := p.Host(); host != nil {
		for _, m := range host.Members {
			items = append(items, CompletionItem{
				Label:         m.Name,
				Kind:          CompletionItemKindProperty,
				Detail:        host.Name,
				Documentation: m.Doc,
			})
		}
	}
	for _, d := range p.References() {
		items = append(items, CompletionItem{Label: d.Name, Kind: CompletionItemKindModule, Detail: d.Kind().String()})
	}
	snap := s.eng.Workspace().CurrentSolution()
	for _, id := range p.ProjectReferences() {
		if dep, ok := snap.Project(id); ok {
			items = append(items, CompletionItem{Label: dep.Namespace(), Kind: CompletionItemKindModule, Detail: "project " + dep.Name()})
		}
	}
	return append(items, documentCompletions(p.Documents())...)
}

func (s *Server) namespaceCompletions(p *workspace.Project, namespace string) []CompletionItem {
	for _, d := range p.References() {
		if d.Name != namespace {
			continue
		}
		switch d.Kind() {
		case reference.KindModule:
			items := make([]CompletionItem, 0, len(d.Module.Members))
			for name := range d.Module.Members {
				items = append(items, CompletionItem{Label: name, Kind: CompletionItemKindVariable, Detail: namespace})
			}
			return items
		case reference.KindSource:
			parsed, err := reference.NewSourceDocs(d.Path).Parsed()
			if err != nil {
				return nil
			}
			return parsedCompletions(parsed)
		default:
			return nil
		}
	}

	snap := s.eng.Workspace().CurrentSolution()
	for _, id := range p.ProjectReferences() {
		if dep, ok := snap.Project(id); ok && dep.Namespace() == namespace {
			return documentCompletions(dep.Documents())
		}
	}
	return nil
}

func documentCompletions(docs []*workspace.Document) []CompletionItem {
	var items []CompletionItem
	for _, doc := range docs {
		parsed, err := reference.ParseSource(doc.Name(), []byte(doc.Text()))
		if err != nil {
			continue
		}
		items = append(items, parsedCompletions(parsed)...)
	}
	return items
}

func parsedCompletions(parsed *reference.ParsedSource) []CompletionItem {
	items := make([]CompletionItem, 0, len(parsed.Functions)+len(parsed.Values))
	for _, fn := range parsed.Functions {
		items = append(items, CompletionItem{
			Label:         fn.Name,
			Kind:          CompletionItemKindFunction,
			Detail:        fn.Signature(),
			Documentation: fn.Docstring,
		})
	}
	for _, v := range parsed.Values {
		items = append(items, CompletionItem{Label: v, Kind: CompletionItemKindVariable})
	}
	return items
}

// filterCompletions keeps the items starting with prefix, deduplicated
// by label and sorted.
func filterCompletions(items []CompletionItem, prefix string) []CompletionItem {
	seen := make(map[string]bool, len(items))
	out := make([]CompletionItem, 0, len(items))
	for _, item := range items {
		if seen[item.Label] || !strings.HasPrefix(item.Label, prefix) {
			continue
		}
		seen[item.Label] = true
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
