// Package document reads tagged text files and turns them into fragment
// sequences via the segmenter.
//
// Document format:
//
//	#tag                 <- line 1, must start with the tag marker
//	first paragraph,     <- paragraphs are runs of non-blank lines
//	possibly wrapped
//	                     <- blank line ends a paragraph
//	second paragraph
package document

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/xxh3"

	"shawbot/internal/segment"
)

const DefaultTagMarker = "#"

// Document is a loaded, segmented source file.
type Document struct {
	Path      string
	Tag       string
	Fragments []string
	// Fingerprint is the xxh3 hash of the raw file bytes.
	Fingerprint uint64
}

func (d *Document) FingerprintHex() string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%016x", d.Fingerprint)
}

type Loader struct {
	seg    segment.Segmenter
	marker string
}

func NewLoader(seg segment.Segmenter, tagMarker string) *Loader {
	if tagMarker == "" {
		tagMarker = DefaultTagMarker
	}
	return &Loader{seg: seg, marker: tagMarker}
}

// Load reads path and segments it. Every failure is a *LoadError.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Kind: KindIOFailure, Path: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Kind: KindIOFailure, Path: path, Err: err}
	}
	return l.Parse(path, data)
}

// Parse segments an in-memory document. name is only used for reporting.
func (l *Loader) Parse(name string, data []byte) (*Document, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, &LoadError{Kind: KindIOFailure, Path: name, Err: err}
		}
		return nil, &LoadError{Kind: KindEmptyDocument, Path: name}
	}
	tag := strings.TrimSpace(strings.TrimPrefix(sc.Text(), bom))
	if tag == "" || !strings.HasPrefix(tag, l.marker) {
		return nil, &LoadError{Kind: KindMissingTag, Path: name, Err: fmt.Errorf("first line %q", truncate(tag, 40))}
	}

	doc := &Document{Path: name, Tag: tag, Fingerprint: xxh3.Hash(data)}

	var para []string
	flush := func() error {
		if len(para) == 0 {
			return nil
		}
		text := strings.TrimRight(strings.Join(para, " "), " \t")
		para = para[:0]
		frags, err := l.seg.Segment(text, tag)
		if err != nil {
			return err
		}
		doc.Fragments = append(doc.Fragments, frags...)
		return nil
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, &LoadError{Kind: KindSegmentFailure, Path: name, Err: err}
			}
			continue
		}
		para = append(para, line)
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{Kind: KindIOFailure, Path: name, Err: err}
	}
	if err := flush(); err != nil {
		return nil, &LoadError{Kind: KindSegmentFailure, Path: name, Err: err}
	}
	return doc, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
