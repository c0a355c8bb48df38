package pipeline

import (
	"image"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// Outcome tags the variant of a Result.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomeProcessingFailed Outcome = "processing_failed"
)

// Result is one of Success, ValidationFailure or ProcessingFailure.
type Result interface {
	Outcome() Outcome
	isResult()
}

// Success describes a written artifact. Point is the image-relative point
// actually used; Substituted is set when the requested point was out of
// bounds and the image centre was used instead.
type Success struct {
	OutputRef   string      `json:"outputRef"`
	Score       float64     `json:"score"`
	Point       image.Point `json:"point"`
	Substituted bool        `json:"substituted"`
}

// ValidationFailure is returned before any processing starts.
type ValidationFailure struct {
	Reason string     `json:"reason"`
	Field  string     `json:"field"`
	Kind   paint.Kind `json:"kind"`
}

// ProcessingFailure is returned when a step after validation failed. Err
// carries the cause for logging and is never serialised.
type ProcessingFailure struct {
	Reason string     `json:"reason"`
	Kind   paint.Kind `json:"kind"`
	Err    error      `json:"-"`
}

func (Success) Outcome() Outcome           { return OutcomeSuccess }
func (ValidationFailure) Outcome() Outcome { return OutcomeValidationFailed }
func (ProcessingFailure) Outcome() Outcome { return OutcomeProcessingFailed }

func (Success) isResult()           {}
func (ValidationFailure) isResult() {}
func (ProcessingFailure) isResult() {}

// Error makes failures usable with errors.Is against the paint sentinels.
func (f ValidationFailure) Error() string { return f.Reason }
func (f ValidationFailure) Unwrap() error { return f.Kind.Err() }
func (f ProcessingFailure) Error() string { return f.Reason }
func (f ProcessingFailure) Unwrap() []error {
	errs := []error{f.Kind.Err()}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

func processingFailure(kind paint.Kind, err error) ProcessingFailure {
	return ProcessingFailure{Reason: kind.Err().Error(), Kind: kind, Err: err}
}
