// Package segment splits document text into overlapping fixed-size fragments.
package segment

import (
	"errors"
	"fmt"
)

// Default fragment geometry used by ingestion when nothing is configured.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// ErrConfig is returned when size and overlap cannot produce a terminating
// segmentation.
var ErrConfig = errors.New("invalid segmentation config")

// Validate reports whether size and overlap describe a valid segmentation.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrConfig, overlap, size)
	}
	return nil
}

// Span is the character range [Start, End) of one fragment.
type Span struct {
	Start int
	End   int
}

// Spans returns the fragment ranges for a text of length n characters.
// Fragment i starts at i*(size-overlap); the last one ends at n. No fragment
// is emitted after one that already reaches the end of the text.
func Spans(n, size, overlap int) ([]Span, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	step := size - overlap
	spans := make([]Span, 0, Count(n, size, overlap))
	for start := 0; ; start += step {
		end := min(start+size, n)
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			break
		}
	}
	return spans, nil
}

// Split segments text into fragments of at most size characters, each
// overlapping the previous one by overlap characters. Offsets count Unicode
// code points, so multi-byte letters are never cut in half.
//
// Empty text yields an empty slice and no error; callers decide whether that
// is a "no content" condition.
func Split(text string, size, overlap int) ([]string, error) {
	runes := []rune(text)
	spans, err := Spans(len(runes), size, overlap)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.Start:s.End])
	}
	return out, nil
}

// Count returns the number of fragments Split produces for a text of n
// characters: ceil((n-overlap)/(size-overlap)), at least 1 for n > 0.
// It assumes a valid configuration.
func Count(n, size, overlap int) int {
	if n == 0 {
		return 0
	}
	step := size - overlap
	rest := n - overlap
	if rest <= 0 {
		return 1
	}
	return (rest + step - 1) / step
}
