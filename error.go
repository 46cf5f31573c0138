// Copyright 2024-2026 The Stitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stitch

import (
	"errors"
	"fmt"
	"io"
)

// An Error pairs a Code with an underlying Go error. Every error returned
// by this module's clients, channels, and transports is an *Error;
// applications inspect them with errors.As or the CodeOf shortcut.
//
// Failures while processing one accepted request are confined to that
// request: they surface to the caller or the accept loop's log, never to
// other in-flight requests.
type Error struct {
	code Code
	err  error
}

// NewError annotates any Go error with a code.
func NewError(c Code, underlying error) *Error {
	return &Error{code: c, err: underlying}
}

func (e *Error) Error() string {
	text := e.err.Error()
	if text == "" {
		return e.code.String()
	}
	return e.code.String() + ": " + text
}

// Unwrap allows errors.Is and errors.As access to the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the error's classification.
func (e *Error) Code() Code {
	return e.code
}

// CodeOf returns the error's code if it is or wraps an *Error, and
// CodeUnknown otherwise.
func CodeOf(err error) Code {
	if stitchErr, ok := asError(err); ok {
		return stitchErr.Code()
	}
	return CodeUnknown
}

// errorf calls fmt.Errorf with the supplied template and arguments, then
// wraps the resulting error.
func errorf(c Code, template string, args ...any) *Error {
	return NewError(c, fmt.Errorf(template, args...))
}

// asError uses errors.As to unwrap any error and look for an *Error.
func asError(err error) (*Error, bool) {
	var stitchErr *Error
	ok := errors.As(err, &stitchErr)
	return stitchErr, ok
}

// asTypedError coerces any error into an *Error, wrapping foreign errors
// with the fallback code. io.EOF passes through untouched so end-of-stream
// checks keep working with errors.Is.
func asTypedError(err error, fallback Code) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return err
	}
	if _, ok := asError(err); ok {
		return err
	}
	return NewError(fallback, err)
}
