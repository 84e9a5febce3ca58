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

package safemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFlag(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "safety.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

//verdict runs one evaluation without starting the background poll.
func verdict(t *testing.T, opts Options) Status {
	t.Helper()
	m, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return m.evaluate()
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("missing path should fail")
	}
	m, err := New(Options{Path: "/somewhere/safety.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Running() || m.IsSafe() {
		t.Error("fresh monitor should be stopped and unsafe")
	}
}

func TestEvaluate(t *testing.T) {
	path := writeFlag(t, "Roof Status: SAFE\n")

	if s := verdict(t, Options{Path: path, SafeToken: "safe"}); !s.Safe {
		t.Errorf("safe token present should be safe: %+v", s)
	}
	//token matching folds case by default
	if s := verdict(t, Options{Path: path, SafeToken: "SaFe"}); !s.Safe {
		t.Errorf("case folding should apply: %+v", s)
	}
	if s := verdict(t, Options{Path: path, SafeToken: "SaFe", CaseSensitive: true}); s.Safe {
		t.Errorf("case sensitive mismatch should be unsafe: %+v", s)
	}
	if s := verdict(t, Options{Path: path, SafeToken: "clear skies"}); s.Safe {
		t.Errorf("missing safe token should be unsafe: %+v", s)
	} else if !strings.Contains(s.Reason, "missing") {
		t.Errorf("reason should name the missing token: %q", s.Reason)
	}
	//no tokens configured: a readable fresh file is safe
	if s := verdict(t, Options{Path: path}); !s.Safe {
		t.Errorf("tokenless fresh file should be safe: %+v", s)
	}
}

func TestEvaluate_UnsafeToken(t *testing.T) {
	path := writeFlag(t, "status: SAFE but RAIN detected\n")

	//the unsafe token wins even with the safe token present
	s := verdict(t, Options{Path: path, SafeToken: "safe", UnsafeToken: "rain"})
	if s.Safe {
		t.Errorf("unsafe token should override: %+v", s)
	}
	if !strings.Contains(s.Reason, "unsafe token") {
		t.Errorf("reason should name the unsafe token: %q", s.Reason)
	}
}

func TestEvaluate_MissingAndStale(t *testing.T) {
	s := verdict(t, Options{Path: filepath.Join(t.TempDir(), "nope.txt")})
	if s.Safe {
		t.Errorf("missing file should be unsafe: %+v", s)
	}
	if !strings.Contains(s.Reason, "unreadable") {
		t.Errorf("reason should say unreadable: %q", s.Reason)
	}

	path := writeFlag(t, "safe\n")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	s = verdict(t, Options{Path: path, SafeToken: "safe", MaxAge: time.Minute})
	if s.Safe {
		t.Errorf("stale file should be unsafe: %+v", s)
	}
	if !strings.Contains(s.Reason, "stale") {
		t.Errorf("reason should say stale: %q", s.Reason)
	}
	//zero MaxAge disables the age bound
	if s := verdict(t, Options{Path: path, SafeToken: "safe"}); !s.Safe {
		t.Errorf("age bound should be off by default: %+v", s)
	}
}

func TestMonitor_Lifecycle(t *testing.T) {
	path := writeFlag(t, "safe\n")
	m, err := New(Options{
		Path:         path,
		SafeToken:    "safe",
		PollInterval: 20 * time.Millisecond,
		StopGrace:    time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	m.Start()
	if !m.Running() {
		t.Fatal("monitor should be running after start")
	}
	//the first evaluation is synchronous
	if !m.IsSafe() {
		t.Error("safe flag file should read safe immediately")
	}
	m.Start() //no-op on a running monitor
	if !m.Running() {
		t.Error("double start broke the monitor")
	}

	//flip the file to a verdict without the token and wait for a poll
	if err := os.WriteFile(path, []byte("danger\n"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for m.IsSafe() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.IsSafe() {
		t.Error("monitor never noticed the flag change")
	}

	m.Stop()
	if m.Running() {
		t.Error("monitor should be stopped")
	}
	if m.IsSafe() {
		t.Error("stopped monitor must answer unsafe")
	}
	m.Stop() //no-op on a stopped monitor

	//restart works
	if err := os.WriteFile(path, []byte("safe\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m.Start()
	if !m.IsSafe() {
		t.Error("restarted monitor should evaluate afresh")
	}
	m.Stop()
}
