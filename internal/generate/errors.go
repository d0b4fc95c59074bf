package generate

import (
	"errors"
	"fmt"
)

// Fatal failure kinds for one generation. Callers branch with errors.Is; the
// API layer maps each kind to its own status code and user-facing message.
var (
	ErrUpload           = errors.New("upload failed")
	ErrCreate           = errors.New("job creation rejected")
	ErrGenerationFailed = errors.New("generation failed")
	ErrTimeout          = errors.New("generation timed out")
)

// Error wraps one of the sentinel kinds with upstream detail.
type Error struct {
	Kind   error  // one of the sentinels above
	Detail string // upstream status/body or error field, verbatim
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

func (e *Error) Unwrap() error { return e.Err }

func fail(kind error, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// UserMessage is what the HTTP layer should show. The upstream error field,
// when present, beats a generic message.
func UserMessage(err error) string {
	var ge *Error
	if errors.As(err, &ge) && ge.Detail != "" {
		return ge.Detail
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return "Generation took too long. Please try again."
	case errors.Is(err, ErrUpload):
		return "Could not store your photo. Please try again."
	case errors.Is(err, ErrCreate):
		return "The image service rejected the request."
	case errors.Is(err, ErrGenerationFailed):
		return "Generation failed. Please try a different photo or style."
	}
	return "Something went wrong. Please try again."
}
