package document

import (
	"errors"
	"fmt"
)

// Kind classifies a load failure.
type Kind int

const (
	KindIOFailure Kind = iota + 1
	KindEmptyDocument
	KindMissingTag
	KindSegmentFailure
)

func (k Kind) String() string {
	switch k {
	case KindIOFailure:
		return "io_failure"
	case KindEmptyDocument:
		return "empty_document"
	case KindMissingTag:
		return "missing_tag"
	case KindSegmentFailure:
		return "segment_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against a *LoadError.
var (
	ErrIO             = errors.New("document i/o failure")
	ErrEmptyDocument  = errors.New("document is empty")
	ErrMissingTag     = errors.New("document has no tag line")
	ErrSegmentFailure = errors.New("document could not be segmented")
)

// LoadError is returned by Loader.Load for every failure.
type LoadError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Kind)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMissingTag) and friends match by kind.
func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrIO:
		return e.Kind == KindIOFailure
	case ErrEmptyDocument:
		return e.Kind == KindEmptyDocument
	case ErrMissingTag:
		return e.Kind == KindMissingTag
	case ErrSegmentFailure:
		return e.Kind == KindSegmentFailure
	}
	return false
}
