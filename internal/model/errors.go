package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recognition core. Callers classify with errors.Is.
var (
	// ErrMalformedImage indicates the captcha bytes could not be decoded or
	// segmented into the expected glyph layout.
	ErrMalformedImage = errors.New("malformed captcha image")

	// ErrModelUnavailable indicates a recognizer's trained model artifact is
	// missing. Recoverable: callers fall back to the remaining recognizers.
	ErrModelUnavailable = errors.New("recognizer model unavailable")

	// ErrTemplateLibraryEmpty indicates the template store holds no patterns.
	ErrTemplateLibraryEmpty = errors.New("template library is empty")

	// ErrWrongCaptcha indicates the server rejected the captcha digits.
	// Never surfaced to callers directly; absorbed by the retry loop.
	ErrWrongCaptcha = errors.New("server rejected captcha digits")

	// ErrRetriesExhausted indicates the attempt budget ran out before the
	// server accepted a submission.
	ErrRetriesExhausted = errors.New("captcha retries exhausted")

	// ErrSessionUsed indicates a session was reused after its single
	// fetch+submit pair was consumed.
	ErrSessionUsed = errors.New("session already consumed")
)

// FatalError is a non-captcha rejection from the server. It terminates a
// query without retry and propagates unmodified to the caller.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal query error: %s", e.Reason)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
