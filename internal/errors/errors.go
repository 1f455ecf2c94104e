package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a voicenote failure.
type Code string

const (
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeAlreadyRecording Code = "ALREADY_RECORDING"
	CodeNotRecording     Code = "NOT_RECORDING"
	CodeCapability       Code = "CAPABILITY"
	CodeUploadFailed     Code = "UPLOAD_FAILED"
	CodeRetryExhausted   Code = "RETRY_EXHAUSTED"
	CodeDraftNotFound    Code = "DRAFT_NOT_FOUND"
	CodeInternal         Code = "INTERNAL"
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewInvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

func NewAlreadyRecording() *Error {
	return &Error{Code: CodeAlreadyRecording, Message: "a recording session is already active"}
}

func NewNotRecording() *Error {
	return &Error{Code: CodeNotRecording, Message: "no recording to send"}
}

// NewCapability wraps an encoder failure for the given operation (init, start, stop, cancel).
func NewCapability(op string, err error) *Error {
	return &Error{Code: CodeCapability, Message: fmt.Sprintf("encoder %s failed", op), Err: err}
}

func NewUploadFailed(err error) *Error {
	return &Error{Code: CodeUploadFailed, Message: "file upload failed", Err: err}
}

func NewRetryExhausted(attempts int, err error) *Error {
	return &Error{Code: CodeRetryExhausted, Message: fmt.Sprintf("post creation failed after %d attempts", attempts), Err: err}
}

func NewDraftNotFound(key string) *Error {
	return &Error{Code: CodeDraftNotFound, Message: fmt.Sprintf("draft not found: %s", key)}
}

func NewInternal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// Is reports whether err or anything it wraps is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the code of the outermost *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
