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

/*Package safemon watches a flag file written by some external weather or
cloud sensor and answers "is it safe to keep the roof open". The file is the
whole protocol: it must exist, be fresh, and contain the safe token. Any
doubt (missing file, stale file, read error, unsafe token) resolves to
unsafe.*/
package safemon

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/obsworks/obslink/logw"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultStopGrace    = 5 * time.Second
)

//Options configures a Monitor. Path is required.
type Options struct {
	//Path is the flag file to watch.
	Path string

	/*MaxAge marks the file stale, and therefore unsafe, when its
	modification time is older than this. Zero disables the age bound.*/
	MaxAge time.Duration

	/*SafeToken must appear in the file content for a safe verdict. Empty
	means any readable, fresh file is safe unless UnsafeToken appears.*/
	SafeToken string

	//UnsafeToken forces an unsafe verdict when it appears, even alongside
	//the safe token.
	UnsafeToken string

	//CaseSensitive controls token matching. Default is case-insensitive.
	CaseSensitive bool

	//PollInterval is the re-evaluation period. Default 10s.
	PollInterval time.Duration

	/*StopGrace bounds how long Stop waits for the polling task to observe
	the shutdown signal before abandoning it. Default 5s.*/
	StopGrace time.Duration
}

func (o *Options) setDefaults() error {
	if o.Path == "" {
		return errors.New("safemon: path required")
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.StopGrace <= 0 {
		o.StopGrace = defaultStopGrace
	}
	return nil
}

//Status is one safety verdict. Reason explains an unsafe verdict.
type Status struct {
	Safe      bool
	Reason    string
	CheckedAt time.Time
}

//Monitor polls the flag file in the background and caches the verdict.
type Monitor struct {
	opts Options

	running *atomic.Bool

	mu     sync.RWMutex
	status Status

	stopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

//New builds a Monitor. Polling does not start until Start.
func New(opts Options) (*Monitor, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	return &Monitor{
		opts:    opts,
		running: atomic.NewBool(false),
	}, nil
}

/*Start evaluates the file once, synchronously, then starts the background
poll. Starting a running monitor is a no-op.*/
func (m *Monitor) Start() {
	if !m.running.CAS(false, true) {
		return
	}
	m.store(m.evaluate())

	stop, done := make(chan struct{}), make(chan struct{})
	m.stopMu.Lock()
	m.stop, m.done = stop, done
	m.stopMu.Unlock()
	go m.loop(stop, done)
}

/*Stop signals the polling task and waits up to StopGrace for it to exit,
abandoning it with a warning if it does not. The monitor can be restarted.*/
func (m *Monitor) Stop() {
	if !m.running.CAS(true, false) {
		return
	}
	m.stopMu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.stopMu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	select {
	case <-done:
		logw.Debug("safety monitor stopped gracefully")
	case <-time.After(m.opts.StopGrace):
		logw.Warningf("safety monitor did not stop within %v, abandoning it", m.opts.StopGrace)
	}
}

//Running reports whether the background poll is active.
func (m *Monitor) Running() bool { return m.running.Load() }

//IsSafe returns the cached verdict. A stopped or never-started monitor is
//unsafe.
func (m *Monitor) IsSafe() bool {
	if !m.running.Load() {
		return false
	}
	return m.Status().Safe
}

//Status returns the cached verdict with its reason and timestamp.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logw.Debug("safety polling stopped: shutdown signal received")
			return
		case <-ticker.C:
		}

		next := m.evaluate()
		prev := m.Status()
		if next.Safe != prev.Safe {
			logw.Infof("safety verdict changed: safe=%t (%s)", next.Safe, next.Reason)
		}
		m.store(next)
	}
}

func (m *Monitor) store(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

//evaluate reads the flag file and produces a verdict. Every failure path is
//unsafe with a reason.
func (m *Monitor) evaluate() Status {
	now := time.Now()
	unsafe := func(reason string) Status {
		return Status{Safe: false, Reason: reason, CheckedAt: now}
	}

	info, err := os.Stat(m.opts.Path)
	if err != nil {
		return unsafe("flag file unreadable: " + err.Error())
	}
	if m.opts.MaxAge > 0 {
		if age := now.Sub(info.ModTime()); age > m.opts.MaxAge {
			return unsafe("flag file stale: " + age.Truncate(time.Second).String() + " old")
		}
	}

	raw, err := os.ReadFile(m.opts.Path)
	if err != nil {
		return unsafe("flag file unreadable: " + err.Error())
	}
	content := string(raw)
	safeToken, unsafeToken := m.opts.SafeToken, m.opts.UnsafeToken
	if !m.opts.CaseSensitive {
		content = strings.ToLower(content)
		safeToken = strings.ToLower(safeToken)
		unsafeToken = strings.ToLower(unsafeToken)
	}

	if unsafeToken != "" && strings.Contains(content, unsafeToken) {
		return unsafe("unsafe token present")
	}
	if safeToken != "" && !strings.Contains(content, safeToken) {
		return unsafe("safe token missing")
	}
	return Status{Safe: true, Reason: "", CheckedAt: now}
}
