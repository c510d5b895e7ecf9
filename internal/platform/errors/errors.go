package errors

import (
	stderrors "errors"
	"maps"
	"slices"
	"strings"
)

// Error is a coded domain error. Metadata carries the ids a caller needs to
// act on the failure and is rendered after the message.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error renders the message followed by sorted metadata, for example
// "message not found (id=m1)".
func (e *Error) Error() string {
	message := e.Message
	if message == "" && e.Cause != nil {
		message = e.Cause.Error()
	}
	if len(e.Metadata) == 0 {
		return message
	}
	pairs := make([]string, 0, len(e.Metadata))
	for _, key := range slices.Sorted(maps.Keys(e.Metadata)) {
		pairs = append(pairs, key+"="+e.Metadata[key])
	}
	return message + " (" + strings.Join(pairs, ", ") + ")"
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New returns an error with code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata returns an error carrying a copy of metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: maps.Clone(metadata)}
}

// Wrap returns an error with code and message around cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first domain error in err's chain, or
// CodeUnknown.
func CodeOf(err error) Code {
	if domainErr, ok := as(err); ok {
		return domainErr.Code
	}
	return CodeUnknown
}

// MetadataOf returns the metadata of the first domain error in err's chain.
func MetadataOf(err error) map[string]string {
	if domainErr, ok := as(err); ok {
		return maps.Clone(domainErr.Metadata)
	}
	return nil
}

func as(err error) (*Error, bool) {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
