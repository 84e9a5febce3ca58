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

package phd2

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/obsworks/obslink"
)

/*newGuiderSvr emulates the PHD2 event server: a Version and AppState event
on accept, then JSON-RPC request/response with the occasional pushed event.*/
func newGuiderSvr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal("unable to start server:", err)
	}
	t.Cleanup(func() { lis.Close() })
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go serveGuider(conn)
		}
	}()
	return "tcp://" + lis.Addr().String()
}

func serveGuider(conn net.Conn) {
	defer conn.Close()
	fmt.Fprintf(conn, `{"Event":"Version","PHDVersion":"2.6.13","PHDSubver":"","MsgVersion":1}`+"\n")
	fmt.Fprintf(conn, `{"Event":"AppState","State":"Looping"}`+"\n")

	buf := bufio.NewReader(conn)
	for {
		line, err := buf.ReadString('\n')
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			continue
		}
		switch req.Method {
		case "get_app_state":
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","result":"Looping","id":%d}`+"\n", req.ID)
		case "get_connected":
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","result":true,"id":%d}`+"\n", req.ID)
		case "get_paused":
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","result":false,"id":%d}`+"\n", req.ID)
		case "loop", "set_connected", "stop_capture", "set_paused":
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","result":0,"id":%d}`+"\n", req.ID)
		case "guide":
			//a guide starts the frame stream
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","result":0,"id":%d}`+"\n", req.ID)
			fmt.Fprintf(conn, `{"Event":"StartGuiding"}`+"\n")
			fmt.Fprintf(conn, `{"Event":"GuideStep","Frame":1,"SNR":28.4,"Mount":"EQ6"}`+"\n")
		default:
			fmt.Fprintf(conn, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found: %s"},"id":%d}`+"\n", req.Method, req.ID)
		}
	}
}

func newGuiderClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{Dial: newGuiderSvr(t), RPCTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal("unable to build client:", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatal("connect failed:", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

//waitNotification drains the stream until the named event arrives.
func waitNotification(t *testing.T, c *Client, name string) Notification {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-c.Notifications():
			if n.Name == name {
				return n
			}
		case <-deadline:
			t.Fatalf("never saw a %s notification", name)
		}
	}
}

func TestClient_SessionCache(t *testing.T) {
	c := newGuiderClient(t)

	//the accept-time events populate the cache asynchronously
	deadline := time.Now().Add(5 * time.Second)
	for c.Version() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Version() != "2.6.13" {
		t.Errorf("version cache is off: %q", c.Version())
	}
	if c.AppStateCached() != "Looping" {
		t.Errorf("app state cache is off: %q", c.AppStateCached())
	}
}

func TestClient_Calls(t *testing.T) {
	c := newGuiderClient(t)

	state, err := c.AppState()
	if err != nil || state != "Looping" {
		t.Errorf("get_app_state is off: %q %v", state, err)
	}
	connected, err := c.EquipmentConnected()
	if err != nil || !connected {
		t.Errorf("get_connected is off: %t %v", connected, err)
	}
	paused, err := c.Paused()
	if err != nil || paused {
		t.Errorf("get_paused is off: %t %v", paused, err)
	}
	if err := c.StartLoop(); err != nil {
		t.Error("loop failed:", err)
	}
	if err := c.Pause(true); err != nil {
		t.Error("pause failed:", err)
	}
	if err := c.Resume(); err != nil {
		t.Error("resume failed:", err)
	}

	//the emulated server knows no shutdown method
	err = c.Shutdown()
	if !obslink.IsKind(err, obslink.KindInvalidResponse) {
		t.Errorf("server error should be invalid-response kind, got %v", err)
	}
}

func TestClient_GuideStream(t *testing.T) {
	c := newGuiderClient(t)

	settle := SettleParams{Pixels: 1.5, Time: 8, Timeout: 40}
	if err := c.Guide(settle, false); err != nil {
		t.Fatal("guide failed:", err)
	}

	n := waitNotification(t, c, "GuideStep")
	var step GuideStepEvent
	if err := n.Decode(&step); err != nil {
		t.Fatal(err)
	}
	if step.Frame != 1 || step.SNR != 28.4 {
		t.Errorf("guide step is off: %+v", step)
	}

	//StartGuiding folds into the app state cache
	deadline := time.Now().Add(2 * time.Second)
	for c.AppStateCached() != "Guiding" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.AppStateCached() != "Guiding" {
		t.Errorf("app state should track StartGuiding, got %q", c.AppStateCached())
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, err := New(Options{Dial: "tcp://localhost:4400"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.AppState(); !obslink.IsNotConnected(err) {
		t.Errorf("rpc before connect should be not-connected, got %v", err)
	}
}

func TestClient_CloseReleasesConsumer(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		c, err := New(Options{Dial: "tcp://localhost:4400"})
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Close(); err != nil {
			t.Fatal("close failed:", err)
		}
		c.Close() //closing twice is harmless
	}

	//each New spawned an event consumer; all of them must wind down
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("event consumers leaked: %d goroutines before, %d after", before, runtime.NumGoroutine())
}
