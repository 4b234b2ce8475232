// Package extract turns uploaded course material into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupported is returned for file extensions without an extractor.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrInvalidDocument is returned when a file cannot be parsed as its type.
	ErrInvalidDocument = errors.New("invalid document")
)

// MaxFileSize bounds the bytes read from a single material file.
const MaxFileSize = 50 << 20

// Func extracts text from the raw bytes of one file.
type Func func(data []byte) (string, error)

var extractors = map[string]Func{
	"txt":  plainText,
	"md":   plainText,
	"pdf":  pdfText,
	"docx": docxText,
	"html": htmlText,
	"htm":  htmlText,
}

// FileType returns the lower-cased extension of filename without the dot.
func FileType(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Supported reports whether filename has an extractor.
func Supported(filename string) bool {
	_, ok := extractors[FileType(filename)]
	return ok
}

// SupportedTypes lists the handled extensions, sorted.
func SupportedTypes() []string {
	out := make([]string, 0, len(extractors))
	for ext := range extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Text reads r and extracts plain text according to the extension of filename.
func Text(filename string, r io.Reader) (string, error) {
	fn, ok := extractors[FileType(filename)]
	if !ok {
		return "", fmt.Errorf("%s: %w", filename, ErrUnsupported)
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("%s: file exceeds %d bytes: %w", filename, MaxFileSize, ErrInvalidDocument)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filename, err)
	}
	return text, nil
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidDocument)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}
