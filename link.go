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
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/obsworks/obslink/logw"
)

/*Demux is the codec boundary for Link: given an incoming line, it extracts
the numeric id of the request the line answers. Lines that answer nothing
(server-initiated notifications) return ok false and are surfaced as
EventMessage events instead.*/
type Demux interface {
	Correlate(line string) (id uint64, ok bool)
}

//ReconnectPolicy controls the Link's automatic reconnection loop.
type ReconnectPolicy struct {
	//Enabled is the initial auto-reconnect setting; SetAutoReconnect can
	//flip it at runtime.
	Enabled bool

	//Interval is how long to wait between attempts. The wait is skipped
	//before the first attempt.
	Interval time.Duration

	//MaxRetries bounds the number of attempts per loss. Zero means retry
	//until cancelled.
	MaxRetries int
}

//LinkConfig configures a Link.
type LinkConfig struct {
	//Dial is the transport dial string, e.g. "tcp://phd2host:4400".
	Dial string

	//OpenTimeout bounds each connection attempt. Defaults to 5s.
	OpenTimeout time.Duration

	//EventBuffer is the capacity of the event channel. Events are dropped,
	//with a log line, when the consumer falls behind. Defaults to 32.
	EventBuffer int

	Reconnect ReconnectPolicy
}

func (cfg *LinkConfig) setDefaults() {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 32
	}
}

type linkResult struct {
	line string
	err  error
}

/*Link is the client side of a long-lived duplex line stream where responses
are correlated to requests by numeric id rather than by shape, and where the
remote end pushes unsolicited notifications between responses. A dedicated
reader pump owns the read half: it completes pending round trips via the
Demux and forwards everything else on the event channel.

When the pump observes end of stream it fails every pending round trip,
emits EventConnectionLost, and, if auto-reconnect is enabled, starts a
bounded reconnection loop per the ReconnectPolicy. Link is safe for
concurrent use.*/
type Link struct {
	cfg       LinkConfig
	demux     Demux
	transport Transport

	wmu    sync.Mutex
	writer Writer

	pmu     sync.Mutex
	pending map[uint64]chan linkResult

	events chan Event

	connected     *atomic.Bool
	reconnecting  *atomic.Bool
	autoReconnect *atomic.Bool

	cancelMu sync.Mutex
	cancel   chan struct{}
}

/*NewLink builds a Link over the transport named by cfg.Dial. The Link starts
out disconnected; call Connect. ReadLine deadlines are left to the pump, so
the transport is opened without a read timeout.*/
func NewLink(cfg LinkConfig, demux Demux) (*Link, error) {
	if demux == nil {
		return nil, errors.New("demux is required")
	}
	cfg.setDefaults()
	t, err := NewTransport(cfg.Dial, 0)
	if err != nil {
		return nil, err
	}
	return &Link{
		cfg:           cfg,
		demux:         demux,
		transport:     t,
		pending:       map[uint64]chan linkResult{},
		events:        make(chan Event, cfg.EventBuffer),
		connected:     atomic.NewBool(false),
		reconnecting:  atomic.NewBool(false),
		autoReconnect: atomic.NewBool(cfg.Reconnect.Enabled),
	}, nil
}

//Events returns the lifecycle/notification channel. Never closed.
func (l *Link) Events() <-chan Event { return l.events }

//Connected reports whether the link currently has an open stream.
func (l *Link) Connected() bool { return l.connected.Load() }

//Reconnecting reports whether a reconnection loop is in flight.
func (l *Link) Reconnecting() bool { return l.reconnecting.Load() }

//AutoReconnect reports whether the link will try to reconnect after a loss.
func (l *Link) AutoReconnect() bool { return l.autoReconnect.Load() }

/*SetAutoReconnect flips the auto-reconnect flag. Disabling it also cancels
any reconnection loop currently waiting between attempts.*/
func (l *Link) SetAutoReconnect(enabled bool) {
	l.autoReconnect.Store(enabled)
	if !enabled {
		l.fireCancel()
	}
}

/*StopReconnection cancels an in-flight reconnection loop without touching
the auto-reconnect flag. The loop exits with EventReconnectFailed at its next
cancellation point. No-op when no loop is running.*/
func (l *Link) StopReconnection() {
	l.fireCancel()
}

/*Connect opens the stream and starts the reader pump. Calling Connect on a
connected link is a no-op.*/
func (l *Link) Connect() error {
	if l.connected.Load() {
		return nil
	}
	reader, writer, err := l.transport.Open(l.cfg.OpenTimeout)
	if err != nil {
		return err
	}
	l.setWriter(writer)
	l.connected.Store(true)
	go l.pump(reader)
	logw.Infof("connected to %v", l.transport)
	return nil
}

/*Close disables auto-reconnect, cancels any reconnection loop, tears down
the stream and fails all pending round trips. The link can be reconnected
later with Connect.*/
func (l *Link) Close() error {
	l.autoReconnect.Store(false)
	l.fireCancel()
	l.connected.Store(false)
	err := l.dropWriter()
	l.failPending(errNotConnected())
	return err
}

/*RoundTrip sends payload down the stream and waits up to timeout for the
line the Demux correlates to id. The caller owns id allocation and must
render id into the payload itself. On timeout the pending slot is removed,
so a late response is treated as unsolicited.*/
func (l *Link) RoundTrip(id uint64, payload string, timeout time.Duration) (string, error) {
	if !l.connected.Load() {
		return "", errNotConnected()
	}

	ch := make(chan linkResult, 1)
	l.pmu.Lock()
	if _, dup := l.pending[id]; dup {
		l.pmu.Unlock()
		return "", errors.Errorf("request id %d already in flight", id)
	}
	l.pending[id] = ch
	l.pmu.Unlock()

	if err := l.write(payload); err != nil {
		l.forget(id)
		return "", err
	}

	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(timeout):
		l.forget(id)
		return "", newErr(KindTimeout, true, true, errors.Errorf("no response to request %d within %v", id, timeout))
	}
}

/*Notify sends payload without registering for a response. Used for
fire-and-forget messages where the protocol does not answer.*/
func (l *Link) Notify(payload string) error {
	if !l.connected.Load() {
		return errNotConnected()
	}
	return l.write(payload)
}

func (l *Link) write(payload string) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.writer == nil {
		return errNotConnected()
	}
	logw.Debugf("%v tx: %q", l.transport, payload)
	if err := l.writer.WriteMessage(payload); err != nil {
		return newErr(KindCommunication, false, false, errors.Wrap(err, "write failed"))
	}
	return nil
}

func (l *Link) setWriter(w Writer) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.writer = w
}

func (l *Link) dropWriter() error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.writer == nil {
		return nil
	}
	err := l.writer.Shutdown()
	l.writer = nil
	return err
}

/*pump owns the read half of one stream incarnation. It exits when the read
side errors, which also happens when Close or a teardown shuts the writer
down underneath it.*/
func (l *Link) pump(reader Reader) {
	var reason string
	for {
		line, err := reader.ReadLine()
		if err != nil {
			reason = fmt.Sprintf("read failed: %v", err)
			break
		}
		logw.Debugf("%v rx: %q", l.transport, line)
		if id, ok := l.demux.Correlate(line); ok {
			l.complete(id, line)
			continue
		}
		l.emit(Event{Kind: EventMessage, Line: line})
	}

	wasConnected := l.connected.CAS(true, false)
	l.dropWriter()
	l.failPending(newErr(KindNotConnected, false, true, errors.New(reason)))
	if !wasConnected {
		//torn down deliberately, Close already spoke for us
		return
	}
	logw.Warningf("%v: %s", l.transport, reason)
	l.emit(Event{Kind: EventConnectionLost, Reason: reason})
	if l.autoReconnect.Load() {
		go l.reconnectLoop()
	}
}

func (l *Link) complete(id uint64, line string) {
	l.pmu.Lock()
	ch, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	l.pmu.Unlock()
	if !ok {
		//late or unsolicited response, nobody is waiting
		l.emit(Event{Kind: EventMessage, Line: line})
		return
	}
	ch <- linkResult{line: line}
}

func (l *Link) forget(id uint64) {
	l.pmu.Lock()
	delete(l.pending, id)
	l.pmu.Unlock()
}

//failPending fails every in-flight round trip. Pending requests are never
//silently dropped on teardown; each waiter gets the error.
func (l *Link) failPending(err error) {
	l.pmu.Lock()
	pending := l.pending
	l.pending = map[uint64]chan linkResult{}
	l.pmu.Unlock()
	for _, ch := range pending {
		ch <- linkResult{err: err}
	}
}

/*reconnectLoop runs one bounded reconnection cycle. Exactly one
EventReconnectFailed is emitted when the loop exits without reconnecting:
auto-reconnect turned off mid-loop, MaxRetries exhausted, or cancellation.
The interval wait is skipped before the first attempt and is raced against
cancellation so StopReconnection takes effect promptly.*/
func (l *Link) reconnectLoop() {
	l.reconnecting.Store(true)
	defer l.reconnecting.Store(false)

	cancel := l.armCancel()
	max := l.cfg.Reconnect.MaxRetries
	for attempt := 1; ; attempt++ {
		if !l.autoReconnect.Load() {
			l.emit(Event{Kind: EventReconnectFailed, Reason: "auto-reconnect disabled"})
			return
		}
		if max > 0 && attempt > max {
			logw.Warningf("%v: giving up after %d reconnect attempts", l.transport, max)
			l.emit(Event{Kind: EventReconnectFailed, Reason: fmt.Sprintf("max retries (%d) exceeded", max)})
			return
		}
		logw.Infof("%v: reconnect attempt %d/%s", l.transport, attempt, boundStr(max))
		l.emit(Event{Kind: EventReconnecting, Attempt: attempt, MaxAttempts: max})

		if attempt > 1 {
			select {
			case <-time.After(l.cfg.Reconnect.Interval):
			case <-cancel:
				l.emit(Event{Kind: EventReconnectFailed, Reason: "reconnection cancelled"})
				return
			}
		}

		reader, writer, err := l.transport.Open(l.cfg.OpenTimeout)
		if err != nil {
			logw.Debugf("%v: reconnect attempt %d failed: %v", l.transport, attempt, err)
			continue
		}
		l.setWriter(writer)
		l.connected.Store(true)
		go l.pump(reader)
		logw.Infof("%v: reconnected after %d attempts", l.transport, attempt)
		l.emit(Event{Kind: EventReconnected})
		return
	}
}

func boundStr(max int) string {
	if max <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", max)
}

//armCancel installs a fresh cancellation channel for one reconnection loop.
func (l *Link) armCancel() chan struct{} {
	l.cancelMu.Lock()
	defer l.cancelMu.Unlock()
	l.cancel = make(chan struct{})
	return l.cancel
}

func (l *Link) fireCancel() {
	l.cancelMu.Lock()
	defer l.cancelMu.Unlock()
	if l.cancel == nil {
		return
	}
	select {
	case <-l.cancel:
	default:
		close(l.cancel)
	}
}

//emit never blocks; when the consumer falls behind the event is dropped.
func (l *Link) emit(e Event) {
	e.At = time.Now()
	select {
	case l.events <- e:
	default:
		logw.Debugf("event channel full, dropping %v", e.Kind)
	}
}
