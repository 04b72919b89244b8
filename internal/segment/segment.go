// Package segment turns paragraphs into post-sized fragments.
//
// A fragment is the paragraph text (or a slice of it) followed by a single space
// and the document tag. When a paragraph does not fit, it is cut at the last
// space that leaves room for the continuation marker and the tag; every
// fragment but the last of a paragraph carries the marker.
//
// Lengths are counted in runes, so a multi-byte character costs one unit of
// the budget and cuts never land inside a UTF-8 sequence.
package segment

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxLen = 140
	DefaultMarker = "..."
)

// Policy decides what happens to a single word that cannot fit in one fragment.
type Policy int

const (
	// HardSplit cuts the word at the budget boundary.
	HardSplit Policy = iota
	// Reject fails the paragraph with ErrWordTooLong.
	Reject
)

func (p Policy) String() string {
	switch p {
	case HardSplit:
		return "split"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "split" (default for empty input) or "reject".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "split", "hard_split":
		return HardSplit, nil
	case "reject":
		return Reject, nil
	default:
		return HardSplit, fmt.Errorf("unknown overlong policy %q (use split or reject)", s)
	}
}

var (
	ErrWordTooLong    = errors.New("word too long for post budget")
	ErrBudgetTooSmall = errors.New("post budget too small for tag")
)

// Segmenter holds the fragment budget. The zero value is not usable; use New
// or fill every field.
type Segmenter struct {
	MaxLen int
	Marker string
	Policy Policy
}

func New(maxLen int, marker string, policy Policy) Segmenter {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return Segmenter{MaxLen: maxLen, Marker: marker, Policy: policy}
}

// Segment splits with the default marker and the hard-split policy.
func Segment(paragraph, tag string, maxLen int) ([]string, error) {
	return New(maxLen, DefaultMarker, HardSplit).Segment(paragraph, tag)
}

// Segment returns the ordered fragments for one paragraph. A blank paragraph
// yields no fragments.
func (s Segmenter) Segment(paragraph, tag string) ([]string, error) {
	text := []rune(strings.TrimSpace(paragraph))
	if len(text) == 0 {
		return nil, nil
	}

	tagLen := utf8.RuneCountInString(tag)
	suffix := " " + tag
	contSuffix := s.Marker + " " + tag

	// ptr is the index the backward scan starts from; a cut at index i keeps
	// i runes, so the head never exceeds the budget left after marker and tag.
	ptr := s.MaxLen - utf8.RuneCountInString(s.Marker) - 1 - tagLen - 1

	var out []string
	for len(text) > 0 {
		if len(text)+1+tagLen <= s.MaxLen {
			out = append(out, string(text)+suffix)
			break
		}
		if ptr < 1 {
			return nil, fmt.Errorf("%w: max_len=%d tag=%q", ErrBudgetTooSmall, s.MaxLen, tag)
		}

		cut := -1
		for i := ptr; i >= 1; i-- {
			if text[i] == ' ' {
				cut = i
				break
			}
		}

		var head, rest []rune
		if cut > 0 {
			head, rest = text[:cut], text[cut+1:]
		} else {
			if s.Policy == Reject {
				return nil, fmt.Errorf("%w: %q", ErrWordTooLong, firstWord(text))
			}
			head, rest = text[:ptr], text[ptr:]
		}

		out = append(out, strings.TrimRight(string(head), " \t")+contSuffix)
		text = []rune(strings.TrimLeft(string(rest), " \t"))
	}
	return out, nil
}

func firstWord(text []rune) string {
	for i, r := range text {
		if r == ' ' {
			return string(text[:i])
		}
	}
	return string(text)
}
