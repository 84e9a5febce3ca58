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

/*Package qfocuser drives a QHY Q-Focuser over a serial line. The focuser
speaks newline-terminated JSON; the device never pushes anything
unsolicited, but it has no notion of request ids beyond echoing cmd_id back
as idx, so responses are correlated by shape like any other line protocol.

The device does not report whether it is moving. Movement is inferred: a
move sets a target in the cached state and the position poll clears the
moving flag once the counter reaches the target.*/
package qfocuser

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/obsworks/obslink"
)

const (
	defaultPollInterval = time.Second
	defaultSpeed        = 2
)

//State is the cached focuser state.
type State struct {
	Position int64
	//Target is the destination of the move in flight; only meaningful
	//while Moving is true.
	Target int64
	Moving bool

	OuterTemp float64 //probe temperature, degrees C
	ChipTemp  float64 //controller temperature, degrees C
	Voltage   float64 //input voltage, V

	Firmware string
	Board    string
}

//Clone implements obslink.Snapshot.
func (s *State) Clone() obslink.Snapshot {
	c := *s
	return &c
}

type versionResponse struct {
	Firmware string `json:"firmware_version"`
	Board    string `json:"board_version"`
}

type temperatureResponse struct {
	//Raw fixed-point values: temperatures are millidegrees, voltage is
	//tenths of a volt.
	OuterTemp float64 `json:"o_t"`
	ChipTemp  float64 `json:"c_t"`
	Voltage   float64 `json:"c_r"`
}

type positionResponse struct {
	Position *int64 `json:"pos"`
}

//driver implements obslink.Driver for the focuser.
type driver struct {
	speed uint8
}

/*Handshake reads the version, programs the configured speed, and seeds the
cached state with an initial position and temperature read.*/
func (d driver) Handshake(x obslink.Exchanger) (obslink.Snapshot, error) {
	rsp := x.Exchange(Commands["Get Version"])
	if rsp.Err != nil {
		return nil, errors.Wrap(rsp.Err, "version")
	}
	var ver versionResponse
	if err := json.Unmarshal([]byte(rsp.Line), &ver); err != nil {
		return nil, obslink.NewError(obslink.KindParse, errors.Wrap(err, "version response"))
	}

	if rsp := x.Exchange(Commands["Set Speed"], d.speed); rsp.Err != nil {
		return nil, errors.Wrap(rsp.Err, "set speed")
	}

	st := &State{Firmware: ver.Firmware, Board: ver.Board}
	if err := pollPosition(x, st); err != nil {
		return nil, err
	}
	if err := pollTemperature(x, st); err != nil {
		return nil, err
	}
	return st, nil
}

//Poll refreshes position and temperature on the cached state.
func (driver) Poll(x obslink.Exchanger, last obslink.Snapshot) (obslink.Snapshot, error) {
	st, ok := last.(*State)
	if !ok {
		return nil, errors.New("poll before handshake")
	}
	if err := pollPosition(x, st); err != nil {
		return nil, err
	}
	if err := pollTemperature(x, st); err != nil {
		return nil, err
	}
	return st, nil
}

/*pollPosition refreshes the position counter and detects move completion:
once the counter reaches the target the moving flag clears.*/
func pollPosition(x obslink.Exchanger, st *State) error {
	rsp := x.Exchange(Commands["Get Position"])
	if rsp.Err != nil {
		return errors.Wrap(rsp.Err, "position")
	}
	var pos positionResponse
	if err := json.Unmarshal([]byte(rsp.Line), &pos); err != nil {
		return obslink.NewError(obslink.KindParse, errors.Wrap(err, "position response"))
	}
	if pos.Position == nil {
		return obslink.NewError(obslink.KindParse, errors.Errorf("position response %q missing pos", rsp.Line))
	}

	st.Position = *pos.Position
	if st.Moving && st.Position == st.Target {
		st.Moving = false
	}
	return nil
}

func pollTemperature(x obslink.Exchanger, st *State) error {
	rsp := x.Exchange(Commands["Read Temperature"])
	if rsp.Err != nil {
		return errors.Wrap(rsp.Err, "temperature")
	}
	var t temperatureResponse
	if err := json.Unmarshal([]byte(rsp.Line), &t); err != nil {
		return obslink.NewError(obslink.KindParse, errors.Wrap(err, "temperature response"))
	}

	st.OuterTemp = t.OuterTemp / 1000.0
	st.ChipTemp = t.ChipTemp / 1000.0
	st.Voltage = t.Voltage / 10.0
	return nil
}

//Options configures a Device. Dial is required.
type Options struct {
	//Dial names the serial port, e.g. "serial:///dev/ttyUSB1:9600".
	Dial string

	//PollInterval is the background position/temperature refresh period.
	//Default 1s.
	PollInterval time.Duration

	//ReadTimeout bounds individual serial reads. Default 1s.
	ReadTimeout time.Duration

	//Speed is programmed into the device at handshake. Default 2.
	Speed uint8

	//MaxStep bounds absolute move targets when positive.
	MaxStep int64
}

//Device is a handle on the focuser.
type Device struct {
	m       *obslink.Manager
	maxStep int64
}

//New builds a Device. The port is not opened until Connect.
func New(opts Options) (*Device, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.Speed == 0 {
		opts.Speed = defaultSpeed
	}
	t, err := obslink.NewTransport(opts.Dial, opts.ReadTimeout)
	if err != nil {
		return nil, err
	}
	m, err := obslink.NewManager(obslink.ManagerConfig{
		Transport:    t,
		Driver:       driver{speed: opts.Speed},
		PollInterval: opts.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	return &Device{m: m, maxStep: opts.MaxStep}, nil
}

//Manager exposes the underlying Manager so sibling consumers can share it.
func (d *Device) Manager() *obslink.Manager { return d.m }

//Connect joins the shared connection, opening the port if first.
func (d *Device) Connect() error { return d.m.Connect() }

//Disconnect leaves the shared connection, closing the port if last.
func (d *Device) Disconnect() { d.m.Disconnect() }

//IsAvailable reports whether the port is currently open.
func (d *Device) IsAvailable() bool { return d.m.IsAvailable() }

//State returns a copy of the cached focuser state and its last update time.
func (d *Device) State() (State, time.Time, error) {
	snap, at := d.m.Cached()
	st, ok := snap.(*State)
	if !ok || st == nil {
		return State{}, at, obslink.NewError(obslink.KindNotConnected, errors.New("no cached state"))
	}
	return *st, at, nil
}

/*Move starts a move to an absolute position. The target and moving flag are
recorded in the cached state before the command goes out, so IsMoving
observes the move even if the first position poll lands mid-travel.*/
func (d *Device) Move(position int64) error {
	if position < 0 || (d.maxStep > 0 && position > d.maxStep) {
		return errors.Errorf("position %d outside [0, %d]", position, d.maxStep)
	}

	d.m.Mutate(func(last obslink.Snapshot) obslink.Snapshot {
		if st, ok := last.(*State); ok && st != nil {
			st.Target = position
			st.Moving = true
			return st
		}
		return last
	})

	rsp := d.m.Exchange(Commands["Absolute Move"], position)
	if rsp.Err != nil {
		//The move never started; do not leave the flag dangling.
		d.clearMove()
		return rsp.Err
	}
	return nil
}

/*IsMoving actively refreshes the position rather than waiting for the next
poll tick, so a tight move/wait loop sees completion promptly.*/
func (d *Device) IsMoving() (bool, error) {
	st, _, err := d.State()
	if err != nil {
		return false, err
	}
	if !st.Moving {
		return false, nil
	}

	if err := d.refreshPosition(); err != nil {
		return false, err
	}
	st, _, err = d.State()
	if err != nil {
		return false, err
	}
	return st.Moving, nil
}

//Abort halts any movement in progress and clears the moving flag.
func (d *Device) Abort() error {
	rsp := d.m.Exchange(Commands["Abort"])
	if rsp.Err != nil {
		return rsp.Err
	}
	d.clearMove()
	return nil
}

//SetSpeed sets the movement speed.
func (d *Device) SetSpeed(speed uint8) error {
	rsp := d.m.Exchange(Commands["Set Speed"], speed)
	return rsp.Err
}

//SetReverse reverses the motor direction sense.
func (d *Device) SetReverse(enabled bool) error {
	rev := 0
	if enabled {
		rev = 1
	}
	rsp := d.m.Exchange(Commands["Set Reverse"], rev)
	return rsp.Err
}

//Sync sets the position counter to the passed value without moving.
func (d *Device) Sync(position int64) error {
	rsp := d.m.Exchange(Commands["Sync Position"], position)
	if rsp.Err != nil {
		return rsp.Err
	}
	d.m.Mutate(func(last obslink.Snapshot) obslink.Snapshot {
		if st, ok := last.(*State); ok && st != nil {
			st.Position = position
			return st
		}
		return last
	})
	return nil
}

//refreshPosition runs one position poll outside the ticker cadence.
func (d *Device) refreshPosition() error {
	rsp := d.m.Exchange(Commands["Get Position"])
	if rsp.Err != nil {
		return rsp.Err
	}
	var pos positionResponse
	if err := json.Unmarshal([]byte(rsp.Line), &pos); err != nil {
		return obslink.NewError(obslink.KindParse, errors.Wrap(err, "position response"))
	}
	if pos.Position == nil {
		return obslink.NewError(obslink.KindParse, errors.Errorf("position response %q missing pos", rsp.Line))
	}

	d.m.Mutate(func(last obslink.Snapshot) obslink.Snapshot {
		st, ok := last.(*State)
		if !ok || st == nil {
			return last
		}
		st.Position = *pos.Position
		if st.Moving && st.Position == st.Target {
			st.Moving = false
		}
		return st
	})
	return nil
}

func (d *Device) clearMove() {
	d.m.Mutate(func(last obslink.Snapshot) obslink.Snapshot {
		if st, ok := last.(*State); ok && st != nil {
			st.Moving = false
			return st
		}
		return last
	})
}
