package paint

import (
	"errors"
)

// Kind names a failure class of the painting pipeline.
type Kind string

const (
	KindInvalidColorFormat Kind = "InvalidColorFormat"
	KindInvalidCoordinates Kind = "InvalidCoordinates"
	KindInvalidImage       Kind = "InvalidImage"
	KindSourceUnreadable   Kind = "SourceUnreadable"
	KindModelUnavailable   Kind = "ModelUnavailable"
	KindNoMasksAvailable   Kind = "NoMasksAvailable"
	KindWriteFailed        Kind = "WriteFailed"
	KindTimeout            Kind = "Timeout"
)

var (
	ErrInvalidColorFormat = errors.New("invalid color format")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidImage       = errors.New("invalid image")
	ErrSourceUnreadable   = errors.New("source unreadable")
	ErrModelUnavailable   = errors.New("model unavailable")
	ErrNoMasksAvailable   = errors.New("no masks available")
	ErrWriteFailed        = errors.New("write failed")
	ErrTimeout            = errors.New("timeout")
)

// kindErrors is ordered; KindOf reports the first match.
var kindErrors = []struct {
	kind Kind
	err  error
}{
	{KindInvalidColorFormat, ErrInvalidColorFormat},
	{KindInvalidCoordinates, ErrInvalidCoordinates},
	{KindInvalidImage, ErrInvalidImage},
	{KindTimeout, ErrTimeout},
	{KindSourceUnreadable, ErrSourceUnreadable},
	{KindModelUnavailable, ErrModelUnavailable},
	{KindNoMasksAvailable, ErrNoMasksAvailable},
	{KindWriteFailed, ErrWriteFailed},
}

// Err returns the sentinel error for the kind, or nil for an unknown kind.
func (k Kind) Err() error {
	for _, entry := range kindErrors {
		if entry.kind == k {
			return entry.err
		}
	}
	return nil
}

// IsValidation reports whether the kind is an input problem that is
// detected before any processing starts.
func (k Kind) IsValidation() bool {
	return k == KindInvalidColorFormat || k == KindInvalidCoordinates || k == KindInvalidImage
}

// KindOf returns the kind of the first sentinel found in err's chain.
// Timeout takes precedence over the processing kinds.
func KindOf(err error) (Kind, bool) {
	for _, entry := range kindErrors {
		if errors.Is(err, entry.err) {
			return entry.kind, true
		}
	}
	return "", false
}
