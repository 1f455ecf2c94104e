package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := NewInvalidInput("channel id is required")
	expected := "INVALID_INPUT: channel id is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	err := NewUploadFailed(stderrors.New("connection reset"))
	expected := "UPLOAD_FAILED: file upload failed: connection reset"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := NewRetryExhausted(30, cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if err.Message != "post creation failed after 30 attempts" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIs(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", NewCapability("stop", stderrors.New("exit 1")))
	if !Is(wrapped, CodeCapability) {
		t.Error("expected wrapped error to match CodeCapability")
	}
	if Is(wrapped, CodeInvalidInput) {
		t.Error("did not expect wrapped error to match CodeInvalidInput")
	}
	if Is(stderrors.New("plain"), CodeInternal) {
		t.Error("did not expect plain error to match")
	}
	if Is(nil, CodeInternal) {
		t.Error("did not expect nil to match")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewAlreadyRecording()); got != CodeAlreadyRecording {
		t.Errorf("CodeOf = %q, want %q", got, CodeAlreadyRecording)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf = %q, want %q", got, CodeInternal)
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err  *Error
		code Code
	}{
		{NewNotRecording(), CodeNotRecording},
		{NewDraftNotFound("audioFile_1.mp3"), CodeDraftNotFound},
		{NewInternal(nil), CodeInternal},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("Code = %q, want %q", tc.err.Code, tc.code)
		}
	}
}
