package obslink

/*
MIT License

Copyright (c) 2024-2026 the obslink authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	stderrors "errors"
	"fmt"
)

/*Kind classifies errors coming out of the session layer. Callers use the
kind to pick a retry policy: NotConnected is always recoverable by calling
Connect, Communication and Timeout are recoverable by retrying or
reconnecting, InvalidResponse and Parse usually indicate a firmware or
protocol mismatch if they repeat.*/
type Kind int

const (
	//KindNotConnected means no transport is currently open.
	KindNotConnected Kind = iota + 1
	//KindCommunication means a write failed, the stream ended, or response
	//matching exhausted its read budget.
	KindCommunication
	//KindTimeout means a command or connection wait exceeded its deadline.
	KindTimeout
	//KindInvalidResponse means the device answered with something the codec
	//recognizes as a rejection or the wrong shape.
	KindInvalidResponse
	//KindParse means a response line could not be decoded at all.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not connected"
	case KindCommunication:
		return "communication error"
	case KindTimeout:
		return "timeout"
	case KindInvalidResponse:
		return "invalid response"
	case KindParse:
		return "parse error"
	}
	return "unknown error"
}

/*Error is the error type returned by this package. Besides carrying a Kind
it answers the usual net.Error questions (Timeout, Temporary) so transport
level errors can be probed without caring what the transport is.*/
type Error struct {
	kind      Kind
	timeout   bool
	temporary bool
	err       error
}

func newErr(kind Kind, timeout, temporary bool, err error) *Error {
	return &Error{kind: kind, timeout: timeout, temporary: temporary, err: err}
}

/*NewError wraps err with a classification. Codec packages use it to tag
decode failures and rejections; timeout/temporary are derived from the kind.*/
func NewError(kind Kind, err error) *Error {
	switch kind {
	case KindTimeout:
		return newErr(kind, true, true, err)
	case KindNotConnected:
		return newErr(kind, false, true, err)
	}
	return newErr(kind, false, false, err)
}

//errNotConnected is the stock "no transport open" error.
func errNotConnected() *Error {
	return newErr(KindNotConnected, false, true, stderrors.New("no transport currently open"))
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.kind.String()
	}
	return fmt.Sprintf("%v: %v", e.kind, e.err)
}

//Kind returns the classification of this error.
func (e *Error) Kind() Kind { return e.kind }

//Timeout conforms to net.Error
func (e *Error) Timeout() bool { return e.timeout }

//Temporary conforms to net.Error
func (e *Error) Temporary() bool { return e.temporary }

//Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.err }

/*IsTimeout returns true if the passed error arose from an operation taking
longer than allowed. Calling this with a nil error panics, as asking whether
nothing timed out is a caller bug.*/
func IsTimeout(err error) bool {
	if err == nil {
		panic("IsTimeout called with a nil error")
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Timeout()
	}
	return false
}

/*IsTemporary returns true if the passed error might clear on its own. Calling
this with a nil error panics.*/
func IsTemporary(err error) bool {
	if err == nil {
		panic("IsTemporary called with a nil error")
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Temporary()
	}
	return false
}

//IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

//IsNotConnected reports whether err means no transport is open.
func IsNotConnected(err error) bool { return IsKind(err, KindNotConnected) }
