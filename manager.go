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
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/obsworks/obslink/logw"
)

/*Snapshot is a copyable view of cached device state. The Manager owns the
live value; readers only ever see clones, so a consumer can never observe a
half-updated snapshot.*/
type Snapshot interface {
	Clone() Snapshot
}

/*Exchanger is the command channel handed to a Driver. Exchange renders the
command, writes it on the wire, and reads until a line matches the command's
correlation regexps, discarding stale traffic along the way.*/
type Exchanger interface {
	Exchange(cmd Command, args ...interface{}) Response
}

/*Driver is the device-specific half of a Manager. Handshake runs once per
physical connection to validate the link and seed the cached state. Poll runs
once per tick and returns the refreshed state; last is a clone of the
previous snapshot (nil on the very first tick after a handshake failure path,
which cannot happen in practice since Handshake must have seeded it).

Both calls receive the Manager's serialized command channel. They must not
retain it past the call.*/
type Driver interface {
	Handshake(x Exchanger) (Snapshot, error)
	Poll(x Exchanger, last Snapshot) (Snapshot, error)
}

const (
	defaultOpenTimeout   = 5 * time.Second
	defaultStopGrace     = 5 * time.Second
	defaultResponseReads = 5
)

/*ManagerConfig carries everything a Manager needs. Transport and Driver are
required; PollInterval must be positive. The zero values of the remaining
fields select the defaults noted on each.*/
type ManagerConfig struct {
	Transport Transport
	Driver    Driver

	//OpenTimeout bounds the transport open on first connect. Default 5s.
	OpenTimeout time.Duration

	//PollInterval is the background status poll period. Required.
	PollInterval time.Duration

	/*StopGrace bounds how long Disconnect waits for the polling task to
	observe the shutdown signal before abandoning it. Default 5s.*/
	StopGrace time.Duration

	/*ResponseReads bounds how many lines one exchange will read while
	looking for a matching response. Default 5.*/
	ResponseReads int

	/*Unsolicited, when set, recognizes device-originated messages (events,
	telemetry pushes) by shape. Matching lines read during an exchange are
	handed to OnUnsolicited instead of being logged as stale. They still
	count against ResponseReads so the read loop stays bounded.*/
	Unsolicited   *regexp.Regexp
	OnUnsolicited func(line string)
}

func (cfg *ManagerConfig) setDefaults() error {
	if cfg.Transport == nil {
		return errors.New("manager: transport required")
	}
	if cfg.Driver == nil {
		return errors.New("manager: driver required")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("manager: poll interval must be > 0")
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if cfg.ResponseReads <= 0 {
		cfg.ResponseReads = defaultResponseReads
	}
	return nil
}

/*Manager shares one physical transport between any number of logical
devices. Reference counting opens the transport on the first Connect and
closes it on the last Disconnect, so separate API personalities exposed on
one physical port can come and go independently without double-opening the
wire or closing it out from under a sibling.

All exported methods are safe for concurrent use.*/
type Manager struct {
	cfg ManagerConfig

	refs      *atomic.Int32
	available *atomic.Bool

	//cmdMu serializes command traffic: one exchange on the wire at a time.
	cmdMu sync.Mutex

	//ioMu guards only the half pointers, never held across IO.
	ioMu   sync.Mutex
	reader Reader
	writer Writer

	stateMu    sync.RWMutex
	state      Snapshot
	lastUpdate time.Time

	pollMu   sync.Mutex
	pollStop chan struct{}
	pollDone chan struct{}
}

/*NewManager returns a Manager for the passed config. The transport is not
opened until the first Connect.*/
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:       cfg,
		refs:      atomic.NewInt32(0),
		available: atomic.NewBool(false),
	}, nil
}

/*Connect increments the connection reference count. The first holder opens
the transport, runs the driver handshake to seed the cached state, and starts
the polling supervisor; if any of that fails the count is rolled back and the
error propagated, leaving nothing half-connected. Later holders only
increment and return, so connecting is idempotent from a caller's view.*/
func (m *Manager) Connect() error {
	if count := m.refs.Inc(); count > 1 {
		logw.Debugf("additional device connecting (connection count: %d)", count)
		return nil
	}

	logw.Debug("first device connecting, opening transport")
	reader, writer, err := m.cfg.Transport.Open(m.cfg.OpenTimeout)
	if err != nil {
		m.refs.Dec()
		return errors.Wrapf(err, "unable to open %v", m.cfg.Transport)
	}

	m.ioMu.Lock()
	m.reader, m.writer = reader, writer
	m.ioMu.Unlock()

	snap, err := m.cfg.Driver.Handshake(session{m})
	if err != nil {
		writer.Shutdown()
		m.ioMu.Lock()
		m.reader, m.writer = nil, nil
		m.ioMu.Unlock()
		m.refs.Dec()
		return errors.Wrapf(err, "handshake failed on %v", m.cfg.Transport)
	}

	m.stateMu.Lock()
	m.state = snap
	m.lastUpdate = time.Now()
	m.stateMu.Unlock()

	m.available.Store(true)
	logw.Infof("%v open (connection count: 1)", m.cfg.Transport)

	m.startPolling()
	return nil
}

/*Disconnect decrements the connection reference count. Only the caller whose
decrement reaches zero tears anything down: the polling supervisor is stopped
(signal, bounded grace wait, forced abandonment), the write half is shut down,
both halves are dropped, and the cached state is reset. Disconnecting an
already fully disconnected manager is a logged no-op.*/
func (m *Manager) Disconnect() {
	for {
		count := m.refs.Load()
		if count == 0 {
			logw.Debug("disconnect called with connection count already at 0")
			return
		}
		if !m.refs.CAS(count, count-1) {
			continue
		}
		if count == 1 {
			m.teardown()
		} else {
			logw.Debugf("device disconnecting (connection count: %d)", count-1)
		}
		return
	}
}

func (m *Manager) teardown() {
	logw.Debug("last device disconnecting, closing transport")

	//Clear the flag first so the polling loop sees it at its next tick
	//boundary and exits cleanly.
	m.available.Store(false)
	m.stopPolling()

	m.ioMu.Lock()
	writer := m.writer
	m.reader, m.writer = nil, nil
	m.ioMu.Unlock()
	if writer != nil {
		//Also unblocks any command still stuck in a read: closing the
		//stream makes its ReadLine return.
		writer.Shutdown()
	}

	m.stateMu.Lock()
	m.state = nil
	m.lastUpdate = time.Time{}
	m.stateMu.Unlock()

	logw.Infof("%v closed (connection count: 0)", m.cfg.Transport)
}

/*IsAvailable reports whether the transport is currently open. It is a
relaxed read of an atomic flag, set only at the end of a successful connect
and cleared at the start of teardown (or on detected connection loss), so
callers can fail fast without contending with command traffic.*/
func (m *Manager) IsAvailable() bool {
	return m.available.Load()
}

/*Cached returns a clone of the current state snapshot and the time of its
last update. It never touches the transport. The snapshot is nil when no
handshake has run since the last teardown.*/
func (m *Manager) Cached() (Snapshot, time.Time) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.state == nil {
		return nil, m.lastUpdate
	}
	return m.state.Clone(), m.lastUpdate
}

/*Mutate applies fn to a clone of the current snapshot and stores the result,
all under the state write lock. Drivers use it for cache fields that are not
part of the poll cycle (a move target, a hub state tracked out of band).*/
func (m *Manager) Mutate(fn func(last Snapshot) Snapshot) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	var last Snapshot
	if m.state != nil {
		last = m.state.Clone()
	}
	m.state = fn(last)
}

/*Exchange sends a command through the serialized command channel. It fails
fast with a not-connected error when the transport is unavailable; use this
from foreground callers. The driver's handshake and poll paths go through the
internal session instead, which skips the availability fast-path.*/
func (m *Manager) Exchange(cmd Command, args ...interface{}) Response {
	if !m.available.Load() {
		return Response{Err: errNotConnected()}
	}
	return m.exchange(cmd, args...)
}

//session is the Exchanger handed to the Driver.
type session struct{ m *Manager }

func (s session) Exchange(cmd Command, args ...interface{}) Response {
	return s.m.exchange(cmd, args...)
}

func (m *Manager) exchange(cmd Command, args ...interface{}) (rsp Response) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	start := time.Now()
	defer func() { rsp.Duration = time.Since(start) }()

	m.ioMu.Lock()
	reader, writer := m.reader, m.writer
	m.ioMu.Unlock()
	if reader == nil || writer == nil {
		return Response{Err: errNotConnected()}
	}

	wire, err := cmd.Render(args...)
	if err != nil {
		return Response{Err: err}
	}

	logw.Debugf("sending command: %s", sanitize(wire))
	if werr := writer.WriteMessage(wire); werr != nil {
		return Response{Err: werr}
	}

	/*Read until a line matches, within a bounded number of reads. Stale
	replies from a previous interaction and unsolicited chatter are
	discarded, never returned to the caller.*/
	discarded := 0
	for attempt := 0; attempt < m.cfg.ResponseReads; attempt++ {
		if cmd.Timeout > 0 && time.Since(start) > cmd.Timeout {
			return Response{Discarded: discarded,
				Err: newErr(KindTimeout, true, true, errors.Errorf("%s timed out before a matching response", cmd.Name))}
		}

		line, rerr := reader.ReadLine()
		if rerr != nil {
			if IsTimeout(rerr) {
				return Response{Discarded: discarded, Err: rerr}
			}
			//End of stream or a hard transport error: the connection is
			//gone, not merely slow.
			m.markLost(rerr)
			return Response{Discarded: discarded,
				Err: newErr(KindCommunication, false, false, errors.Wrap(rerr, "connection closed"))}
		}

		switch {
		case cmd.Rejects(line):
			return Response{Line: line, Discarded: discarded,
				Err: newErr(KindInvalidResponse, false, false, errors.Errorf("%s rejected: %s", cmd.Name, sanitize(line)))}
		case cmd.Accepts(line):
			logw.Debugf("received response: %s", sanitize(line))
			return Response{Line: line, Discarded: discarded}
		case m.cfg.Unsolicited != nil && m.cfg.Unsolicited.MatchString(line):
			if m.cfg.OnUnsolicited != nil {
				m.cfg.OnUnsolicited(line)
			}
			discarded++
		default:
			logw.Debugf("discarding stale response (attempt %d, command %s): %s", attempt+1, cmd.Name, sanitize(line))
			discarded++
		}
	}

	return Response{Discarded: discarded,
		Err: newErr(KindCommunication, false, false,
			errors.Errorf("no response matching %s after %d reads", cmd.Name, m.cfg.ResponseReads))}
}

//markLost clears the availability flag after a dead read so pollers stop and
//foreground callers fail fast until someone reconnects.
func (m *Manager) markLost(cause error) {
	if m.available.CAS(true, false) {
		logw.Warningf("%v lost: %v", m.cfg.Transport, cause)
	}
}

func (m *Manager) startPolling() {
	//A fresh signal pair per connect cycle, so the manager can be reused
	//across connect/disconnect cycles.
	stop, done := make(chan struct{}), make(chan struct{})
	m.pollMu.Lock()
	m.pollStop, m.pollDone = stop, done
	m.pollMu.Unlock()
	go m.pollLoop(stop, done)
}

func (m *Manager) pollLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logw.Debug("polling stopped: shutdown signal received")
			return
		case <-ticker.C:
		}

		if !m.available.Load() {
			logw.Debug("polling stopped: transport closed")
			return
		}

		m.stateMu.RLock()
		var last Snapshot
		if m.state != nil {
			last = m.state.Clone()
		}
		m.stateMu.RUnlock()

		snap, err := m.cfg.Driver.Poll(session{m}, last)
		if err != nil {
			//Transient poll failures are expected; the next tick is the
			//retry.
			logw.Warningf("poll failed on %v: %v", m.cfg.Transport, err)
			continue
		}

		m.stateMu.Lock()
		m.state = snap
		m.lastUpdate = time.Now()
		m.stateMu.Unlock()
	}
}

func (m *Manager) stopPolling() {
	m.pollMu.Lock()
	stop, done := m.pollStop, m.pollDone
	m.pollStop, m.pollDone = nil, nil
	m.pollMu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	select {
	case <-done:
		logw.Debug("polling task stopped gracefully")
	case <-time.After(m.cfg.StopGrace):
		//The transport is about to be closed anyway; an orphaned in-flight
		//command will error out on its own.
		logw.Warningf("polling task did not stop within %v, abandoning it", m.cfg.StopGrace)
	}
}
