package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Symbol is a top-level definition recorded for debugging.
type Symbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"` // "def", "var" or "load"
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Doc    string `json:"doc,omitempty"`
}

// DocumentSymbols holds the debug information of one compiled document.
type DocumentSymbols struct {
	Document string   `json:"document"`
	Path     string   `json:"path"`
	Version  int      `json:"version"`
	Hash     string   `json:"hash"`
	Symbols  []Symbol `json:"symbols"`
}

// Symbols is the debug symbol table emitted next to a module image.
type Symbols struct {
	Module    string            `json:"module"`
	Project   string            `json:"project"`
	Documents []DocumentSymbols `json:"documents"`
}

// Lookup finds a top-level symbol by name.
func (s *Symbols) Lookup(name string) (DocumentSymbols, Symbol, bool) {
	for _, d := range s.Documents {
		for _, sym := range d.Symbols {
			if sym.Name == name && sym.Kind != "load" {
				return d, sym, true
			}
		}
	}
	return DocumentSymbols{}, Symbol{}, false
}

// EncodeSymbols serializes a symbol table as indented JSON.
func EncodeSymbols(s *Symbols) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSymbols parses a symbol table.
func DecodeSymbols(data []byte) (*Symbols, error) {
	var s Symbols
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}
	return &s, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
