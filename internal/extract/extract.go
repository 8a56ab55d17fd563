// Package extract turns uploaded lecture documents into plain text.
package extract

import (
	"fmt"
	"strings"
)

// UnsupportedFormatError is returned for files whose suffix is not a known document format.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Path)
}

// ExtractionError is returned when a document of a known format cannot be read.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type decoder func(data []byte) (string, error)

// Suffixes are matched in order and case-sensitively.
var formats = []struct {
	suffix string
	decode decoder
}{
	{".pdf", pdfText},
	{".doc", docText},
	{".docx", docxText},
}

// Extractor dispatches on the file name suffix. It holds no state and is safe for concurrent use.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text of data, using path only to pick the format.
func (e *Extractor) Extract(data []byte, path string) (string, error) {
	for _, f := range formats {
		if !strings.HasSuffix(path, f.suffix) {
			continue
		}
		text, err := f.decode(data)
		if err != nil {
			return "", &ExtractionError{Path: path, Err: err}
		}
		return text, nil
	}
	return "", &UnsupportedFormatError{Path: path}
}
