package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"go.starlark.net/starlark"
)

// ImageFormat is the version of the module image layout.
const ImageFormat = 1

// ErrIncompatibleImage is returned when an image was produced by a
// different image format or Starlark compiler version.
var ErrIncompatibleImage = errors.New("incompatible module image")

// Reference kinds recorded in an image.
const (
	RefBuiltin = "builtin" // default base module, rebuilt by the runner
	RefModule  = "module"  // in-memory module supplied by the host at run time
	RefSource  = "source"  // .star file executed at run time
	RefImage   = "image"   // .lcm file loaded at run time
	RefProject = "project" // referenced project, embedded as an image
)

// ImageRef records how a reference binding or load() is satisfied.
type ImageRef struct {
	Name  string `json:"name"`
	Load  string `json:"load,omitempty"` // load() module string, for includes
	Kind  string `json:"kind"`
	Path  string `json:"path,omitempty"`
	Image []byte `json:"image,omitempty"` // encoded image, for project references
}

// Unit is one compiled document.
type Unit struct {
	Document string   `json:"document"`
	Path     string   `json:"path"`
	Program  []byte   `json:"program"`
	Exports  []string `json:"exports"`
}

// Image is the decoded form of an emitted module.
// Units are stored in initialization order.
type Image struct {
	Format     int               `json:"format"`
	Compiler   int               `json:"compiler"`
	Name       string            `json:"name"`
	Project    string            `json:"project"`
	Namespace  string            `json:"namespace"`
	Kind       string            `json:"kind"`
	Host       *starctx.HostType `json:"host,omitempty"`
	References []ImageRef        `json:"references,omitempty"`
	Includes   []ImageRef        `json:"includes,omitempty"`
	Carried    []string          `json:"carried,omitempty"` // names carried from a previous submission
	Units      []Unit            `json:"units"`
	Exports    []string          `json:"exports"`
}

// Include returns the reference recorded for a load() module string.
func (img *Image) Include(load string) (ImageRef, bool) {
	for _, ref := range img.Includes {
		if ref.Load == load {
			return ref, true
		}
	}
	return ImageRef{}, false
}

// Programs decodes the compiled program of every unit, in order.
func (img *Image) Programs() ([]*starlark.Program, error) {
	progs := make([]*starlark.Program, len(img.Units))
	for i, u := range img.Units {
		prog, err := starlark.CompiledProgram(bytes.NewReader(u.Program))
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.Document, err)
		}
		progs[i] = prog
	}
	return progs, nil
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// EncodeImage serializes and compresses an image.
func EncodeImage(img *Image) ([]byte, error) {
	return encode(img)
}

// DecodeImage decompresses and parses an image, checking it was produced
// by a compatible format and compiler.
func DecodeImage(data []byte) (*Image, error) {
	var img Image
	if err := decode(data, &img); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Format != ImageFormat {
		return nil, fmt.Errorf("%w: format %d, want %d", ErrIncompatibleImage, img.Format, ImageFormat)
	}
	if img.Compiler != starlark.CompilerVersion {
		return nil, fmt.Errorf("%w: compiler version %d, want %d", ErrIncompatibleImage, img.Compiler, starlark.CompilerVersion)
	}
	return &img, nil
}

// ImageExports returns the exported names of an encoded image.
func ImageExports(data []byte) ([]string, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return img.Exports, nil
}

func encode(v any) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

func decode(data []byte, v any) error {
	_, dec, err := codecs()
	if err != nil {
		return err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
