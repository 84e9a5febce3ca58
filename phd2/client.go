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

/*Package phd2 is a client for the PHD2 guiding application's JSON-RPC event
server (TCP port 4400). PHD2 interleaves RPC responses with a stream of
server-initiated events on the same socket, so the client runs over an
obslink.Link: responses are correlated to requests by their numeric id and
everything else surfaces as a Notification.

The client keeps a small session cache (server version, application state)
maintained from the event stream, so AppStateCached and Version answer
without a round trip.*/
package phd2

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/obsworks/obslink"
	"github.com/obsworks/obslink/logw"
)

const defaultRPCTimeout = 10 * time.Second

//Options configures a Client. Dial is required.
type Options struct {
	//Dial names the event server, e.g. "tcp://localhost:4400".
	Dial string

	//RPCTimeout bounds each request/response round trip. Default 10s.
	RPCTimeout time.Duration

	Reconnect obslink.ReconnectPolicy

	//NotifyBuffer is the capacity of the Notifications channel; pushes are
	//dropped with a log line when the consumer falls behind. Default 64.
	NotifyBuffer int
}

//SettleParams describe when a guide or dither is considered settled:
//distance under Pixels for Time seconds, giving up after Timeout seconds.
type SettleParams struct {
	Pixels  float64 `json:"pixels"`
	Time    int     `json:"time"`
	Timeout int     `json:"timeout"`
}

//Client is a PHD2 session.
type Client struct {
	link    *obslink.Link
	timeout time.Duration
	nextID  *atomic.Uint64

	notify    chan Notification
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	version  string
	appState string
}

//New builds a Client. Nothing is dialed until Connect.
func New(opts Options) (*Client, error) {
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = defaultRPCTimeout
	}
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = 64
	}
	link, err := obslink.NewLink(obslink.LinkConfig{
		Dial:      opts.Dial,
		Reconnect: opts.Reconnect,
	}, demux{})
	if err != nil {
		return nil, err
	}
	c := &Client{
		link:    link,
		timeout: opts.RPCTimeout,
		nextID:  atomic.NewUint64(0),
		notify:  make(chan Notification, opts.NotifyBuffer),
		done:    make(chan struct{}),
	}
	go c.consume()
	return c, nil
}

/*Connect dials the event server. The Version event PHD2 sends on accept
arrives asynchronously; Version may briefly answer empty right after
Connect returns.*/
func (c *Client) Connect() error { return c.link.Connect() }

/*Close tears the session down, stops any reconnection in progress, and
releases the event consumer. Safe to call more than once.*/
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.link.Close()
}

//Connected reports whether the session is currently up.
func (c *Client) Connected() bool { return c.link.Connected() }

//Reconnecting reports whether a reconnection loop is in flight.
func (c *Client) Reconnecting() bool { return c.link.Reconnecting() }

//SetAutoReconnect flips automatic reconnection at runtime.
func (c *Client) SetAutoReconnect(enabled bool) { c.link.SetAutoReconnect(enabled) }

//StopReconnection cancels an in-flight reconnection loop.
func (c *Client) StopReconnection() { c.link.StopReconnection() }

//Notifications returns the server event stream. Never closed.
func (c *Client) Notifications() <-chan Notification { return c.notify }

//Version returns the PHD2 version learned from the Version event, empty
//until the first such event arrives.
func (c *Client) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

//AppStateCached returns the last application state seen on the event
//stream without touching the wire.
func (c *Client) AppStateCached() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appState
}

/*consume drains the link's event stream until Close, maintaining the
session cache and forwarding notifications.*/
func (c *Client) consume() {
	for {
		var ev obslink.Event
		select {
		case ev = <-c.link.Events():
		case <-c.done:
			return
		}
		switch ev.Kind {
		case obslink.EventMessage:
			n, ok := parseNotification(ev.Line)
			if !ok {
				logw.Debugf("ignoring unparseable push: %q", ev.Line)
				continue
			}
			c.track(n)
			select {
			case c.notify <- n:
			default:
				logw.Debugf("notification channel full, dropping %s", n.Name)
			}
		case obslink.EventConnectionLost:
			logw.Warningf("phd2 connection lost: %s", ev.Reason)
		case obslink.EventReconnecting:
			logw.Infof("phd2 reconnect attempt %d", ev.Attempt)
		case obslink.EventReconnected:
			logw.Info("phd2 reconnected")
		case obslink.EventReconnectFailed:
			logw.Warningf("phd2 reconnect failed: %s", ev.Reason)
		}
	}
}

//track folds session-relevant events into the cache.
func (c *Client) track(n Notification) {
	switch n.Name {
	case "Version":
		var v VersionEvent
		if err := n.Decode(&v); err == nil {
			c.mu.Lock()
			c.version = v.PHDVersion
			c.mu.Unlock()
		}
	case "AppState":
		var s AppStateEvent
		if err := n.Decode(&s); err == nil {
			c.mu.Lock()
			c.appState = s.State
			c.mu.Unlock()
		}
	case "LoopingExposuresStopped":
		c.mu.Lock()
		c.appState = "Stopped"
		c.mu.Unlock()
	case "StartGuiding", "GuidingResumed":
		c.mu.Lock()
		c.appState = "Guiding"
		c.mu.Unlock()
	case "Paused":
		c.mu.Lock()
		c.appState = "Paused"
		c.mu.Unlock()
	}
}

//call runs one JSON-RPC round trip and decodes the result into out.
func (c *Client) call(method string, params interface{}, out interface{}) error {
	id := c.nextID.Inc()
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return obslink.NewError(obslink.KindParse, errors.Wrapf(err, "marshal %s request", method))
	}
	line, err := c.link.RoundTrip(id, string(payload), c.timeout)
	if err != nil {
		return errors.Wrapf(err, "%s", method)
	}
	return decodeResult(line, out)
}

//AppState asks the server for its current application state.
func (c *Client) AppState() (string, error) {
	var state string
	if err := c.call("get_app_state", nil, &state); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.appState = state
	c.mu.Unlock()
	return state, nil
}

//EquipmentConnected reports whether PHD2's gear is connected.
func (c *Client) EquipmentConnected() (bool, error) {
	var connected bool
	err := c.call("get_connected", nil, &connected)
	return connected, err
}

//SetEquipmentConnected connects or disconnects PHD2's gear.
func (c *Client) SetEquipmentConnected(connected bool) error {
	return c.call("set_connected", []interface{}{connected}, nil)
}

//StartLoop starts looping exposures without guiding.
func (c *Client) StartLoop() error {
	return c.call("loop", nil, nil)
}

/*Guide starts guiding, settling per the passed params. recalibrate forces a
new calibration first. Completion is signalled by a SettleDone notification,
not by the RPC response.*/
func (c *Client) Guide(settle SettleParams, recalibrate bool) error {
	params := map[string]interface{}{
		"settle":      settle,
		"recalibrate": recalibrate,
	}
	return c.call("guide", params, nil)
}

/*Dither shifts the lock position by a random amount up to pixels and
settles per the passed params. Completion is signalled by SettleDone.*/
func (c *Client) Dither(pixels float64, raOnly bool, settle SettleParams) error {
	params := map[string]interface{}{
		"amount": pixels,
		"raOnly": raOnly,
		"settle": settle,
	}
	return c.call("dither", params, nil)
}

//StopCapture stops guiding and looping.
func (c *Client) StopCapture() error {
	return c.call("stop_capture", nil, nil)
}

//Paused reports whether guiding is paused.
func (c *Client) Paused() (bool, error) {
	var paused bool
	err := c.call("get_paused", nil, &paused)
	return paused, err
}

//Pause pauses guiding; full also pauses looping.
func (c *Client) Pause(full bool) error {
	params := []interface{}{true}
	if full {
		params = append(params, "full")
	}
	return c.call("set_paused", params, nil)
}

//Resume resumes guiding after a Pause.
func (c *Client) Resume() error {
	return c.call("set_paused", []interface{}{false}, nil)
}

//Shutdown asks the PHD2 application to exit.
func (c *Client) Shutdown() error {
	return c.call("shutdown", nil, nil)
}
