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
	"fmt"
	"regexp"
	"time"
)

/*Reader is the receive half of an open transport. ReadLine blocks until a
full newline-terminated message arrives, the configured read timeout elapses
(an *Error with Timeout() true), or the stream ends (io.EOF). The returned
line has its terminator and surrounding whitespace stripped.*/
type Reader interface {
	ReadLine() (string, error)
}

/*Writer is the send half of an open transport. WriteMessage appends the line
terminator and flushes. Shutdown closes the underlying stream; after Shutdown
the paired Reader drains to io.EOF.*/
type Writer interface {
	WriteMessage(msg string) error
	Shutdown() error
}

/*Transport is a line-oriented duplex stream that can be opened repeatedly.
Each successful Open yields a fresh Reader/Writer pair over a newly
established connection; the previous pair, if any, is dead once its Writer
has been shut down. Implementations must be usable from a single opener at a
time - serialized access is the Manager's job, not the transport's.*/
type Transport interface {
	fmt.Stringer
	Open(timeout time.Duration) (Reader, Writer, error)
}

var known = map[*regexp.Regexp]func(string, time.Duration) (Transport, error){
	netRe: func(dial string, readTimeout time.Duration) (Transport, error) {
		return NewNetTransport(dial, readTimeout)
	},
	serialRe: func(dial string, readTimeout time.Duration) (Transport, error) {
		return NewSerialTransport(dial, readTimeout)
	},
}

/*NewTransport returns a Transport for the passed dial string. dial must
match a known dial format (see the serial and net transports). readTimeout
bounds every ReadLine on the opened halves; zero disables the bound, which is
what a Link wants for its dedicated reader pump.*/
func NewTransport(dial string, readTimeout time.Duration) (Transport, error) {
	for re, funcptr := range known {
		if re.MatchString(dial) {
			return funcptr(dial, readTimeout)
		}
	}
	return nil, newErr(KindCommunication, false, false, fmt.Errorf("no known way to open a transport from %q", dial))
}
