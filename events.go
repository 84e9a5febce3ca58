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

import "time"

//EventKind identifies a Link lifecycle event.
type EventKind int

const (
	//EventConnectionLost fires when the reader pump observes end of stream
	//or a read error. Reason carries the cause.
	EventConnectionLost EventKind = iota + 1
	//EventReconnecting fires once per reconnect attempt, before the wait.
	EventReconnecting
	//EventReconnected fires after a reconnect attempt succeeds.
	EventReconnected
	/*EventReconnectFailed fires exactly once per reconnect loop that exits
	without reconnecting: disabled mid-loop, attempts exhausted, or
	cancelled. Reason always says which.*/
	EventReconnectFailed
	//EventMessage carries an unsolicited line from the remote end.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnectionLost:
		return "connection lost"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnected:
		return "reconnected"
	case EventReconnectFailed:
		return "reconnect failed"
	case EventMessage:
		return "message"
	}
	return "unknown"
}

/*Event is one entry on a Link's lifecycle/event stream. Consumers use it for
logging and telemetry; the core never depends on anyone consuming events.*/
type Event struct {
	Kind EventKind
	At   time.Time

	//Attempt and MaxAttempts are set on EventReconnecting. MaxAttempts is
	//zero when retries are unbounded.
	Attempt     int
	MaxAttempts int

	//Reason is set on EventConnectionLost and EventReconnectFailed.
	Reason string

	//Line is set on EventMessage.
	Line string
}
