package workspace

import "fmt"

// Document is an immutable text document belonging to one project.
// A new text produces a new value via WithText.
type Document struct {
	id      DocumentID
	project ProjectID
	name    string
	path    string
	text    string
	version int
	lines   []int // byte offsets of line starts
}

// NewDocument creates a document at version 1.
func NewDocument(project ProjectID, name, path, text string) *Document {
	return &Document{
		id:      NewDocumentID(),
		project: project,
		name:    name,
		path:    path,
		text:    text,
		version: 1,
		lines:   computeLineOffsets(text),
	}
}

// ID returns the document ID.
func (d *Document) ID() DocumentID { return d.id }

// ProjectID returns the ID of the owning project.
func (d *Document) ProjectID() ProjectID { return d.project }

// Name returns the document name, unique within its project.
func (d *Document) Name() string { return d.name }

// Path returns the logical path, relative to the working directory.
func (d *Document) Path() string { return d.path }

// Text returns the full document text.
func (d *Document) Text() string { return d.text }

// Version starts at 1 and increases by one for every new text.
func (d *Document) Version() int { return d.version }

// LineCount returns the number of lines.
func (d *Document) LineCount() int { return len(d.lines) }

// WithText returns a copy holding text with the version incremented.
func (d *Document) WithText(text string) *Document {
	c := *d
	c.text = text
	c.version = d.version + 1
	c.lines = computeLineOffsets(text)
	return &c
}

// Line returns the content of a line, excluding its newline.
func (d *Document) Line(line int) (string, error) {
	if line < 0 || line >= len(d.lines) {
		return "", fmt.Errorf("%w: line %d out of range [0,%d)", ErrInvalidRange, line, len(d.lines))
	}
	start, end := d.lineBounds(line)
	return d.text[start:end], nil
}

// Offset converts a 0-based line and byte column to a byte offset.
// The column may equal the line length (end of line) but not exceed it.
func (d *Document) Offset(line, col int) (int, error) {
	if line < 0 || line >= len(d.lines) {
		return 0, fmt.Errorf("%w: line %d out of range [0,%d)", ErrInvalidRange, line, len(d.lines))
	}
	start, end := d.lineBounds(line)
	if col < 0 || start+col > end {
		return 0, fmt.Errorf("%w: column %d out of range on line %d (length %d)", ErrInvalidRange, col, line, end-start)
	}
	return start + col, nil
}

// Position converts a byte offset to a 0-based line and byte column.
// Offsets outside the text are clamped.
func (d *Document) Position(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.text) {
		offset = len(d.text)
	}

	lo, hi := 0, len(d.lines)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if d.lines[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, offset - d.lines[lo]
}

// EndPosition returns the position just past the last character.
func (d *Document) EndPosition() Position {
	line, col := d.Position(len(d.text))
	return Position{Line: line, Column: col}
}

func (d *Document) lineBounds(line int) (start, end int) {
	start = d.lines[line]
	end = len(d.text)
	if line+1 < len(d.lines) {
		end = d.lines[line+1] - 1 // Exclude newline
	}
	return start, end
}

// computeLineOffsets calculates byte offsets for each line start.
func computeLineOffsets(content string) []int {
	offsets := []int{0} // First line starts at offset 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}
