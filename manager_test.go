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
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"
)

/*scriptIO is both halves of a scripted wire: every WriteMessage runs the
respond hook and queues its lines for subsequent ReadLines.*/
type scriptIO struct {
	owner *scriptTransport

	mu        sync.Mutex
	queue     []string
	closed    bool
	failReads bool
	wrote     []string
}

func (s *scriptIO) ReadLine() (string, error) {
	for i := 0; i < 200; i++ {
		s.mu.Lock()
		if s.closed || s.failReads {
			s.mu.Unlock()
			return "", io.EOF
		}
		if len(s.queue) > 0 {
			line := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return line, nil
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	return "", newErr(KindTimeout, true, true, errors.New("no scripted line"))
}

func (s *scriptIO) WriteMessage(msg string) error {
	responses := s.owner.respondTo(msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return newErr(KindCommunication, false, false, errors.New("stream closed"))
	}
	s.wrote = append(s.wrote, msg)
	s.queue = append(s.queue, responses...)
	return nil
}

func (s *scriptIO) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptIO) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

//hangUp makes reads fail while writes still land, like a peer that died
//mid-conversation.
func (s *scriptIO) hangUp() {
	s.mu.Lock()
	s.failReads = true
	s.mu.Unlock()
}

//scriptTransport hands out scripted halves and counts opens.
type scriptTransport struct {
	mu       sync.Mutex
	opens    int
	failOpen bool
	respond  func(wire string) []string
	last     *scriptIO
}

func (t *scriptTransport) String() string { return "scripted test wire" }

func (t *scriptTransport) Open(timeout time.Duration) (Reader, Writer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failOpen {
		return nil, nil, newErr(KindCommunication, false, true, errors.New("wire is down"))
	}
	t.opens++
	t.last = &scriptIO{owner: t}
	return t.last, t.last, nil
}

func (t *scriptTransport) respondTo(wire string) []string {
	t.mu.Lock()
	fn := t.respond
	t.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(wire)
}

func (t *scriptTransport) setRespond(fn func(wire string) []string) {
	t.mu.Lock()
	t.respond = fn
	t.mu.Unlock()
}

func (t *scriptTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

var cmdPing = Command{
	Name:      "ping",
	Timeout:   time.Second,
	Prototype: "PING",
	Response:  regexp.MustCompile(`^PONG$`),
	Error:     regexp.MustCompile(`^NOPE$`),
}

//countSnap counts completed polls.
type countSnap struct{ polls int }

func (c *countSnap) Clone() Snapshot {
	d := *c
	return &d
}

type pingDriver struct {
	handshakeErr error

	//when release is non-nil, Poll blocks on it; started is closed once the
	//first blocking poll is in flight.
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (d *pingDriver) Handshake(x Exchanger) (Snapshot, error) {
	if d.handshakeErr != nil {
		return nil, d.handshakeErr
	}
	if rsp := x.Exchange(cmdPing); rsp.Err != nil {
		return nil, rsp.Err
	}
	return &countSnap{}, nil
}

func (d *pingDriver) Poll(x Exchanger, last Snapshot) (Snapshot, error) {
	if d.release != nil {
		d.once.Do(func() { close(d.started) })
		<-d.release
	}
	if rsp := x.Exchange(cmdPing); rsp.Err != nil {
		return nil, rsp.Err
	}
	snap := last.(*countSnap)
	snap.polls++
	return snap, nil
}

func pong(wire string) []string {
	if wire == "PING" {
		return []string{"PONG"}
	}
	return nil
}

func newTestManager(t *testing.T, tr *scriptTransport, d Driver, interval time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Transport:    tr,
		Driver:       d,
		PollInterval: interval,
		StopGrace:    100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err == nil {
		t.Error("empty config should not validate")
	}
	if _, err := NewManager(ManagerConfig{Transport: &scriptTransport{}}); err == nil {
		t.Error("missing driver should not validate")
	}
	if _, err := NewManager(ManagerConfig{Transport: &scriptTransport{}, Driver: &pingDriver{}}); err == nil {
		t.Error("missing poll interval should not validate")
	}
}

func TestManager_RefCounting(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)

	//a pile of concurrent connects must open the wire exactly once
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Connect()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal("connect failed:", err)
		}
	}
	if n := tr.openCount(); n != 1 {
		t.Errorf("wanted exactly 1 open, got %d", n)
	}
	if !m.IsAvailable() {
		t.Error("manager should be available after connect")
	}

	//all but the last disconnect leave the wire open
	for i := 0; i < 7; i++ {
		m.Disconnect()
		if !m.IsAvailable() {
			t.Fatalf("disconnect #%d should not close the wire", i+1)
		}
	}
	m.Disconnect()
	if m.IsAvailable() {
		t.Error("last disconnect should close the wire")
	}

	//extra disconnects are harmless no-ops
	m.Disconnect()
	if n := tr.openCount(); n != 1 {
		t.Errorf("open count moved to %d after disconnects", n)
	}
}

func TestManager_Reuse(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)

	for cycle := 0; cycle < 3; cycle++ {
		if err := m.Connect(); err != nil {
			t.Fatalf("cycle %d connect failed: %v", cycle, err)
		}
		if !m.IsAvailable() {
			t.Fatalf("cycle %d should be available", cycle)
		}
		if snap, _ := m.Cached(); snap == nil {
			t.Fatalf("cycle %d should have a handshake snapshot", cycle)
		}
		m.Disconnect()
		if m.IsAvailable() {
			t.Fatalf("cycle %d should be closed", cycle)
		}
		if snap, _ := m.Cached(); snap != nil {
			t.Fatalf("cycle %d should have dropped the snapshot", cycle)
		}
	}
	if n := tr.openCount(); n != 3 {
		t.Errorf("wanted 3 opens over 3 cycles, got %d", n)
	}
}

func TestManager_ConnectRollback(t *testing.T) {
	tr := &scriptTransport{failOpen: true, respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)

	if err := m.Connect(); err == nil {
		t.Fatal("connect over a dead wire should fail")
	}
	if m.IsAvailable() {
		t.Error("failed connect should leave the manager unavailable")
	}

	//the count must have rolled back: fixing the wire and reconnecting works
	tr.mu.Lock()
	tr.failOpen = false
	tr.mu.Unlock()
	if err := m.Connect(); err != nil {
		t.Fatal("connect after repair failed:", err)
	}
	defer m.Disconnect()
	if !m.IsAvailable() {
		t.Error("manager should be available after repair")
	}
}

func TestManager_HandshakeRollback(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	d := &pingDriver{handshakeErr: errors.New("wrong firmware")}
	m := newTestManager(t, tr, d, time.Hour)

	if err := m.Connect(); err == nil {
		t.Fatal("failing handshake should fail the connect")
	}
	if m.IsAvailable() {
		t.Error("failed handshake should leave the manager unavailable")
	}
	tr.mu.Lock()
	last := tr.last
	tr.mu.Unlock()
	if !last.isClosed() {
		t.Error("failed handshake should shut the wire down")
	}

	d.handshakeErr = nil
	if err := m.Connect(); err != nil {
		t.Fatal("connect after handshake repair failed:", err)
	}
	m.Disconnect()
}

func TestManager_ExchangeNotConnected(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)
	rsp := m.Exchange(cmdPing)
	if rsp.Err == nil || !IsNotConnected(rsp.Err) {
		t.Errorf("wanted a not-connected error, got %v", rsp.Err)
	}
}

func TestManager_StaleDiscard(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	defer m.Disconnect()

	//a few stale lines before the match are discarded, not returned
	tr.setRespond(func(wire string) []string {
		return []string{"PPBA:stale", "old junk", "PONG"}
	})
	rsp := m.Exchange(cmdPing)
	if rsp.Err != nil {
		t.Fatal("exchange through stale lines failed:", rsp.Err)
	}
	if rsp.Line != "PONG" || rsp.Discarded != 2 {
		t.Errorf("wanted PONG with 2 discards, got %q with %d", rsp.Line, rsp.Discarded)
	}

	//five lines of junk exhaust the read budget
	tr.setRespond(func(wire string) []string {
		return []string{"a", "b", "c", "d", "e", "PONG"}
	})
	rsp = m.Exchange(cmdPing)
	if rsp.Err == nil || !IsKind(rsp.Err, KindCommunication) {
		t.Errorf("wanted a communication error after 5 junk reads, got %v", rsp.Err)
	}
	if rsp.Discarded != 5 {
		t.Errorf("wanted 5 discards, got %d", rsp.Discarded)
	}
}

func TestManager_ErrorResponse(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	defer m.Disconnect()

	tr.setRespond(func(wire string) []string { return []string{"NOPE"} })
	rsp := m.Exchange(cmdPing)
	if rsp.Err == nil || !IsKind(rsp.Err, KindInvalidResponse) {
		t.Errorf("wanted an invalid-response error, got %v", rsp.Err)
	}
	if rsp.Line != "NOPE" {
		t.Errorf("rejection should carry the offending line, got %q", rsp.Line)
	}
}

func TestManager_UnsolicitedHook(t *testing.T) {
	tr := &scriptTransport{respond: pong}

	var mu sync.Mutex
	var pushed []string
	m, err := NewManager(ManagerConfig{
		Transport:    tr,
		Driver:       &pingDriver{},
		PollInterval: time.Hour,
		Unsolicited:  regexp.MustCompile(`^!EVT:`),
		OnUnsolicited: func(line string) {
			mu.Lock()
			pushed = append(pushed, line)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	defer m.Disconnect()

	tr.setRespond(func(wire string) []string {
		return []string{"!EVT:lid open", "PONG"}
	})
	rsp := m.Exchange(cmdPing)
	if rsp.Err != nil || rsp.Line != "PONG" {
		t.Fatalf("exchange through an event failed: %v %q", rsp.Err, rsp.Line)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pushed) != 1 || pushed[0] != "!EVT:lid open" {
		t.Errorf("unsolicited hook saw %v", pushed)
	}
}

func TestManager_Polling(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, 10*time.Millisecond)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	defer m.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, at := m.Cached()
		if snap != nil && snap.(*countSnap).polls >= 2 && !at.IsZero() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("polling never refreshed the snapshot")
}

/*TestManager_ExchangeSerialized races foreground exchanges against a fast
poll loop and checks the wire discipline: a command may only land once the
previous command's response has been read back.*/
func TestManager_ExchangeSerialized(t *testing.T) {
	tr := &scriptTransport{}

	var (
		mu       sync.Mutex
		writes   int
		overlaps int
	)
	tr.setRespond(func(wire string) []string {
		//a response still queued at write time means the previous command
		//was never read back before this one hit the wire
		tr.mu.Lock()
		s := tr.last
		tr.mu.Unlock()
		s.mu.Lock()
		unread := len(s.queue)
		s.mu.Unlock()

		mu.Lock()
		writes++
		if unread > 0 {
			overlaps++
		}
		mu.Unlock()
		return []string{"PONG"}
	})

	m := newTestManager(t, tr, &pingDriver{}, time.Millisecond)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if rsp := m.Exchange(cmdPing); rsp.Err != nil {
					t.Error("exchange failed:", rsp.Err)
					return
				}
			}
		}()
	}
	wg.Wait()
	m.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	if writes < 200 {
		t.Errorf("expected at least 200 writes, saw %d", writes)
	}
	if overlaps > 0 {
		t.Errorf("%d commands hit the wire before the previous response was read", overlaps)
	}
}

func TestManager_StopGraceBound(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	d := &pingDriver{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	m := newTestManager(t, tr, d, 10*time.Millisecond)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-d.started:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never started")
	}

	//the poller is wedged inside Poll; Disconnect must give up after the
	//grace period instead of hanging
	begin := time.Now()
	m.Disconnect()
	elapsed := time.Since(begin)
	if elapsed < 100*time.Millisecond {
		t.Errorf("disconnect returned before the stop grace: %v", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("disconnect blocked far past the stop grace: %v", elapsed)
	}
	if m.IsAvailable() {
		t.Error("manager should be unavailable after an abandoning disconnect")
	}
	close(d.release) //let the orphan die
}

func TestManager_MarkLost(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	defer m.Disconnect()

	//the peer hangs up: the next exchange fails and flips availability
	tr.mu.Lock()
	last := tr.last
	tr.mu.Unlock()
	last.hangUp()

	rsp := m.Exchange(cmdPing)
	if rsp.Err == nil {
		t.Fatal("exchange over a hung-up wire should fail")
	}
	if m.IsAvailable() {
		t.Error("a dead read should mark the manager unavailable")
	}
}

func TestManager_Mutate(t *testing.T) {
	tr := &scriptTransport{respond: pong}
	m := newTestManager(t, tr, &pingDriver{}, time.Hour)
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	defer m.Disconnect()

	m.Mutate(func(last Snapshot) Snapshot {
		snap := last.(*countSnap)
		snap.polls = 42
		return snap
	})
	snap, _ := m.Cached()
	if snap.(*countSnap).polls != 42 {
		t.Error("mutate did not stick")
	}

	//the caller's copy must be independent of the live state
	snap.(*countSnap).polls = 7
	again, _ := m.Cached()
	if again.(*countSnap).polls != 42 {
		t.Error("cached snapshot should be a copy")
	}
}
