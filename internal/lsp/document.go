package lsp

import (
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/leapstack-labs/leapcode/internal/engine"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// DocumentRef ties an editor URI to a workspace document.
type DocumentRef struct {
	URI     string
	Project string
	Name    string
	ID      workspace.DocumentID
}

// DocumentIndex maps editor URIs to the workspace documents they hold.
type DocumentIndex struct {
	mu     sync.RWMutex
	root   string
	byURI  map[string]DocumentRef
	byPath map[string]string // logical path -> URI
}

// NewDocumentIndex creates an empty index for a workspace root.
func NewDocumentIndex(root string) *DocumentIndex {
	return &DocumentIndex{
		root:   root,
		byURI:  make(map[string]DocumentRef),
		byPath: make(map[string]string),
	}
}

// Rebuild indexes every document of the engine's current solution.
func (x *DocumentIndex) Rebuild(eng *engine.Engine) {
	byURI := make(map[string]DocumentRef)
	byPath := make(map[string]string)
	for _, p := range eng.Workspace().CurrentSolution().Projects() {
		for _, doc := range p.Documents() {
			uri := x.uriOf(doc.Path())
			byURI[uri] = DocumentRef{URI: uri, Project: p.Name(), Name: doc.Name(), ID: doc.ID()}
			byPath[doc.Path()] = uri
		}
	}

	x.mu.Lock()
	x.byURI = byURI
	x.byPath = byPath
	x.mu.Unlock()
}

// Lookup returns the document behind a URI.
func (x *DocumentIndex) Lookup(uri string) (DocumentRef, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ref, ok := x.byURI[uri]
	return ref, ok
}

// URIForPath returns the URI of a document's logical path.
func (x *DocumentIndex) URIForPath(path string) string {
	x.mu.RLock()
	uri, ok := x.byPath[path]
	x.mu.RUnlock()
	if ok {
		return uri
	}
	return x.uriOf(path)
}

// URIs returns the URIs of a project's documents in sorted order.
func (x *DocumentIndex) URIs(project string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var uris []string
	for uri, ref := range x.byURI {
		if ref.Project == project {
			uris = append(uris, uri)
		}
	}
	sort.Strings(uris)
	return uris
}

func (x *DocumentIndex) uriOf(path string) string {
	p := filepath.FromSlash(path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(x.root, p)
	}
	return PathToURI(p)
}

// toWorkspacePosition converts an LSP position (UTF-16 columns) into a
// workspace position (byte columns). Positions past the last line, which
// clients send for whole-document ranges, map to the end of the document.
func toWorkspacePosition(doc *workspace.Document, pos Position) workspace.Position {
	if int(pos.Line) >= doc.LineCount() {
		return doc.EndPosition()
	}
	line, err := doc.Line(int(pos.Line))
	if err != nil {
		return workspace.Position{Line: int(pos.Line)}
	}
	return workspace.Position{Line: int(pos.Line), Column: byteColumn(line, pos.Character)}
}

func toWorkspaceRange(doc *workspace.Document, r Range) workspace.Range {
	return workspace.Range{
		Start: toWorkspacePosition(doc, r.Start),
		End:   toWorkspacePosition(doc, r.End),
	}
}

// byteColumn returns the byte offset of a UTF-16 column within line.
func byteColumn(line string, character uint32) int {
	units := uint32(0)
	for i, r := range line {
		if units >= character {
			return i
		}
		units += utf16Len(r)
	}
	return len(line)
}

// utf16Column returns the UTF-16 column of a byte offset within line.
func utf16Column(line string, byteCol int) uint32 {
	if byteCol > len(line) {
		byteCol = len(line)
	}
	units := uint32(0)
	for _, r := range line[:byteCol] {
		units += utf16Len(r)
	}
	return units
}

// runeOffset returns the byte offset of the n-th rune of line.
func runeOffset(line string, n int) int {
	i := 0
	for off := range line {
		if i == n {
			return off
		}
		i++
	}
	return len(line)
}

func utf16Len(r rune) uint32 {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}

// wordAt returns the dotted identifier around a byte column, for example
// "json.encode" when the column is inside "encode".
func wordAt(line string, col int) (word string, start, end int) {
	if col > len(line) {
		col = len(line)
	}
	start = col
	for start > 0 && (isWordChar(line[start-1]) || line[start-1] == '.') {
		start--
	}
	end = col
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	return strings.Trim(line[start:end], "."), start, end
}

// splitQualified splits "ns.name" into its namespace and name.
func splitQualified(word string) (namespace, name string) {
	if i := strings.LastIndex(word, "."); i >= 0 {
		return word[:i], word[i+1:]
	}
	return "", word
}

// isWordChar returns true if the character is part of an identifier.
func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}

// URIToPath converts a file:// URI to a file system path.
func URIToPath(uri string) string {
	const prefix = "file://"
	if !strings.HasPrefix(uri, prefix) {
		return uri
	}
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return filepath.FromSlash(u.Path)
	}
	return uri[len(prefix):]
}

// PathToURI converts a file system path to a file:// URI.
func PathToURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
