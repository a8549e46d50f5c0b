// Package table decodes uploaded spreadsheet bytes into uniform records.
package table

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when bytes cannot be read as any supported
// tabular format, or the workbook holds no sheets.
var ErrUnsupportedFormat = errors.New("unsupported or corrupt file format")

// Decoder turns raw file bytes into a Dataset.
type Decoder interface {
	Decode(ctx context.Context, name string, raw []byte) (*Dataset, error)
}

// Format is one supported file format.
type Format interface {
	Name() string
	// Sniff reports whether the format claims the file, by content or name.
	Sniff(name string, head []byte) bool
	Decode(raw []byte) (*Dataset, error)
}

var registry []Format

// Register adds a format. Earlier registrations are tried first.
func Register(f Format) {
	registry = append(registry, f)
}

func init() {
	Register(xlsxFormat{})
	Register(xlsFormat{})
	Register(csvFormat{})
}

// WorkbookDecoder picks the first registered format that claims the file.
type WorkbookDecoder struct {
	formats []Format
}

// NewDecoder returns a decoder over the given formats, or the registry when none are given.
func NewDecoder(formats ...Format) *WorkbookDecoder {
	if len(formats) == 0 {
		formats = registry
	}
	return &WorkbookDecoder{formats: formats}
}

const sniffLen = 4096

func (d *WorkbookDecoder) Decode(ctx context.Context, name string, raw []byte) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	head := raw
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	for _, f := range d.formats {
		if !f.Sniff(name, head) {
			continue
		}
		ds, err := f.Decode(raw)
		if err != nil {
			if errors.Is(err, ErrUnsupportedFormat) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, f.Name(), err)
		}
		return ds, nil
	}
	return nil, fmt.Errorf("%w: %s is not a recognised spreadsheet", ErrUnsupportedFormat, displayName(name))
}

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func displayName(name string) string {
	if name == "" {
		return "file"
	}
	return filepath.Base(name)
}
