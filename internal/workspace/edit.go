package workspace

import "fmt"

// Position is a 0-based line and byte column.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// FullRange returns the range covering all of doc's text.
func FullRange(doc *Document) Range {
	return Range{End: doc.EndPosition()}
}

// ApplyChange returns doc's text with r replaced by text.
// It fails with ErrInvalidRange when r is out of bounds or inverted.
func ApplyChange(doc *Document, r Range, text string) (string, error) {
	start, err := doc.Offset(r.Start.Line, r.Start.Column)
	if err != nil {
		return "", fmt.Errorf("range start: %w", err)
	}
	end, err := doc.Offset(r.End.Line, r.End.Column)
	if err != nil {
		return "", fmt.Errorf("range end: %w", err)
	}
	if end < start {
		return "", fmt.Errorf("%w: end %d:%d before start %d:%d",
			ErrInvalidRange, r.End.Line, r.End.Column, r.Start.Line, r.Start.Column)
	}

	old := doc.Text()
	return old[:start] + text + old[end:], nil
}
