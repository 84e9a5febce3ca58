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
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

var _ Transport = &SerialTransport{}
var serialRe = regexp.MustCompile(`^(?:serial|rs232)://([^:]+):([0-9]+)$`)

/*SerialTransport opens a serial device in 8N1 mode. Dial strings are of the
form "serial://<device>:<baud>" or "rs232://<device>:<baud>".*/
type SerialTransport struct {
	dev         string
	mode        *serial.Mode
	readTimeout time.Duration
}

/*NewSerialTransport builds a SerialTransport from the passed dial string.
readTimeout bounds each ReadLine on the opened reader half; zero blocks
indefinitely.*/
func NewSerialTransport(dial string, readTimeout time.Duration) (*SerialTransport, error) {
	if !serialRe.MatchString(dial) {
		return nil, newErr(KindCommunication, false, false, fmt.Errorf("serial dial string %q not in correct form", dial))
	}
	matches := serialRe.FindAllStringSubmatch(dial, -1) //capture groups used
	baud, _ := strconv.ParseInt(matches[0][2], 10, 64)
	return &SerialTransport{
		dev: matches[0][1],
		mode: &serial.Mode{
			BaudRate: int(baud),
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		readTimeout: readTimeout,
	}, nil
}

/*String conforms to the fmt.Stringer interface*/
func (st *SerialTransport) String() string {
	return fmt.Sprintf("serial connection to %v:%d 8N1", st.dev, st.mode.BaudRate)
}

/*Open opens the serial device and returns its read and write halves. The
timeout argument is accepted for interface symmetry; opening a local device
node either succeeds or fails immediately.*/
func (st *SerialTransport) Open(timeout time.Duration) (Reader, Writer, error) {
	_ = timeout
	port, err := serial.Open(st.dev, st.mode)
	if err != nil {
		return nil, nil, newErr(KindCommunication, false, false, errors.Wrapf(err, "unable to open serial device %q", st.dev))
	}
	if st.readTimeout > 0 {
		if err := port.SetReadTimeout(st.readTimeout); err != nil {
			port.Close()
			return nil, nil, newErr(KindCommunication, false, false, errors.Wrap(err, "unable to set serial read timeout"))
		}
	}
	return &serialReader{port: port}, &serialWriter{port: port}, nil
}

/*serialReader assembles newline-terminated messages from raw port reads. The
port signals an expired read timeout by returning zero bytes and a nil
error.*/
type serialReader struct {
	port serial.Port
	buf  []byte
}

func (r *serialReader) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := strings.TrimSpace(string(r.buf[:i]))
			r.buf = r.buf[i+1:]
			if line == "" {
				continue
			}
			return line, nil
		}
		chunk := make([]byte, 256)
		n, err := r.port.Read(chunk)
		switch {
		case err == io.EOF:
			return "", io.EOF
		case err != nil:
			return "", newErr(KindCommunication, false, false, err)
		case n == 0: //read timeout expired
			return "", newErr(KindTimeout, true, true, errors.New("serial read timed out"))
		}
		r.buf = append(r.buf, chunk[:n]...)
	}
}

type serialWriter struct {
	port serial.Port
}

func (w *serialWriter) WriteMessage(msg string) error {
	raw := []byte(msg + "\n")
	n, err := w.port.Write(raw)
	if err != nil {
		return newErr(KindCommunication, false, false, errors.Wrap(err, "serial write failed"))
	}
	if n != len(raw) {
		return newErr(KindCommunication, false, false, errors.Errorf("wrote %d of %d bytes", n, len(raw)))
	}
	return nil
}

func (w *serialWriter) Shutdown() error {
	return w.port.Close()
}
