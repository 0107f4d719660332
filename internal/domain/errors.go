package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedInput  = errors.New("unsupported input")
	ErrMalformedEncoding = errors.New("malformed encoding")
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrEmptyResponse     = errors.New("empty response")
	ErrRemoteService     = errors.New("remote service failure")
	ErrPrecondition      = errors.New("precondition failed")
	ErrAlreadyInFlight   = errors.New("edit already in flight")
)

// RemoteError describes a failed call to the image-editing model. Message is
// written for end users and is what sessions surface on failure.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote service status %d: %s", e.StatusCode, e.Message)
	}
	return "remote service: " + e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemoteService}
	}
	return []error{ErrRemoteService, e.Err}
}

// EmptyResponseError is returned when a model reply carries no image. Text
// holds any commentary the model sent instead.
type EmptyResponseError struct {
	Text string
}

func (e *EmptyResponseError) Error() string {
	if e.Text == "" {
		return ErrEmptyResponse.Error()
	}
	return ErrEmptyResponse.Error() + ": " + e.Text
}

func (e *EmptyResponseError) Unwrap() error { return ErrEmptyResponse }

// DisplayMessage reduces any workflow failure to a single message suitable
// for showing to the user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) && strings.TrimSpace(remote.Message) != "" {
		return remote.Message
	}
	var empty *EmptyResponseError
	if errors.As(err, &empty) && strings.TrimSpace(empty.Text) != "" {
		return "The model did not return an image: " + strings.TrimSpace(empty.Text)
	}
	switch {
	case errors.Is(err, ErrEmptyResponse):
		return "The model did not return an edited image. Please try a different instruction."
	case errors.Is(err, ErrInvalidRequest):
		return "Please upload an image and enter an instruction."
	case errors.Is(err, ErrMalformedEncoding):
		return "The image could not be encoded for the model."
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "An unknown error occurred."
	}
	return upperFirst(msg)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
