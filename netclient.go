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

package obslink

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"
)

var _ Transport = &NetTransport{}
var netRe = regexp.MustCompile(`^(tcp|tcp4|tcp6)://(.*:[a-zA-Z0-9]+)$`)

/*NetTransport opens an outgoing TCP connection. Dial strings are of the form
"tcp|tcp4|tcp6://<host>:<port>".

readTimeout, when non-zero, sets a deadline on every ReadLine; timed-out
reads come back as an *Error whose Timeout() is true. A Link passes zero here
because its reader pump is meant to block until the peer speaks or the
connection dies.*/
type NetTransport struct {
	network, address string
	readTimeout      time.Duration
}

/*NewNetTransport builds a NetTransport from the passed dial string.*/
func NewNetTransport(dial string, readTimeout time.Duration) (*NetTransport, error) {
	if !netRe.MatchString(dial) {
		return nil, newErr(KindCommunication, false, false, fmt.Errorf("net dial string %q not in correct form", dial))
	}
	matches := netRe.FindAllStringSubmatch(dial, -1) //capture groups used
	return &NetTransport{
		network:     matches[0][1],
		address:     matches[0][2],
		readTimeout: readTimeout,
	}, nil
}

/*String conforms to the fmt.Stringer interface*/
func (nt *NetTransport) String() string {
	return fmt.Sprintf("%v connection to %v", nt.network, nt.address)
}

/*Open dials the remote end within timeout and returns the connection's read
and write halves. Dial errors carry Timeout()/Temporary() through from the
net layer.*/
func (nt *NetTransport) Open(timeout time.Duration) (Reader, Writer, error) {
	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: 1 * time.Second,
	}
	conn, err := dialer.Dial(nt.network, nt.address)
	if err != nil {
		timedOut := false
		if nerr, ok := err.(net.Error); ok {
			timedOut = nerr.Timeout()
		}
		kind := KindCommunication
		if timedOut {
			kind = KindTimeout
		}
		return nil, nil, newErr(kind, timedOut, true, err)
	}
	return &netReader{conn: conn, buf: bufio.NewReader(conn), readTimeout: nt.readTimeout},
		&netWriter{conn: conn}, nil
}

type netReader struct {
	conn        net.Conn
	buf         *bufio.Reader
	readTimeout time.Duration
}

func (r *netReader) ReadLine() (string, error) {
	for {
		if r.readTimeout > 0 {
			r.conn.SetReadDeadline(time.Now().Add(r.readTimeout))
		}
		line, err := r.buf.ReadString('\n')
		switch {
		case err == nil:
		case err == io.EOF:
			return "", io.EOF
		default:
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return "", newErr(KindTimeout, true, true, err)
			}
			return "", newErr(KindCommunication, false, false, err)
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
}

type netWriter struct {
	conn net.Conn
}

func (w *netWriter) WriteMessage(msg string) error {
	raw := []byte(msg + "\n")
	n, err := w.conn.Write(raw)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return newErr(KindTimeout, true, true, err)
		}
		return newErr(KindCommunication, false, false, err)
	}
	if n != len(raw) {
		return newErr(KindCommunication, false, false, fmt.Errorf("wrote %d of %d bytes", n, len(raw)))
	}
	return nil
}

func (w *netWriter) Shutdown() error {
	return w.conn.Close()
}
