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

/*Package ppba drives a Pegasus Astro Pocket Powerbox Advance over a serial
line. The box is a power distribution hub with two switched 12V outputs, two
PWM dew heaters, a USB hub, and an environment probe; several logical devices
(switch panel, observing conditions) typically share the single physical
port, which is why everything runs through a reference-counted
obslink.Manager.

The USB hub state is write-only at the protocol level: it never appears in
the PA status record, so it is tracked in the cached state from the set
commands instead.*/
package ppba

import (
	"time"

	"github.com/pkg/errors"

	"github.com/obsworks/obslink"
)

/*Instantaneous sensor reads use a small averaging window rather than none,
which smooths single-sample spikes without introducing visible lag.*/
const instantaneousWindow = 10 * time.Second

const defaultPollInterval = 5 * time.Second

//State is the cached device state: the last parsed status and power
//statistics, the firmware version learned at handshake, the out-of-band USB
//hub flag, and the environment rolling means.
type State struct {
	Firmware string
	Status   Status
	Stats    PowerStats
	UsbHub   bool

	TempMean     obslink.RollingMean
	HumidityMean obslink.RollingMean
	DewpointMean obslink.RollingMean
}

//Clone implements obslink.Snapshot.
func (s *State) Clone() obslink.Snapshot {
	c := *s
	c.TempMean = s.TempMean.Clone()
	c.HumidityMean = s.HumidityMean.Clone()
	c.DewpointMean = s.DewpointMean.Clone()
	return &c
}

//driver implements obslink.Driver for the powerbox. window seeds the
//averaging window of the environment means at handshake.
type driver struct {
	window time.Duration
}

/*Handshake pings the box, reads the firmware version, and seeds the cached
state with one full status and power stats round. A box that answers the ping
but garbles the status is treated as a failed handshake.*/
func (d driver) Handshake(x obslink.Exchanger) (obslink.Snapshot, error) {
	if rsp := x.Exchange(Commands["Ping"]); rsp.Err != nil {
		return nil, errors.Wrap(rsp.Err, "ping")
	}

	ver := x.Exchange(Commands["Firmware Version"])
	if ver.Err != nil {
		return nil, errors.Wrap(ver.Err, "firmware version")
	}

	window := d.window
	if window <= 0 {
		window = instantaneousWindow
	}
	st := &State{
		Firmware:     ver.Line,
		TempMean:     obslink.NewRollingMean(window),
		HumidityMean: obslink.NewRollingMean(window),
		DewpointMean: obslink.NewRollingMean(window),
	}
	if err := refresh(x, st); err != nil {
		return nil, err
	}
	return st, nil
}

//Poll refreshes status and power statistics on the cached state.
func (driver) Poll(x obslink.Exchanger, last obslink.Snapshot) (obslink.Snapshot, error) {
	st, ok := last.(*State)
	if !ok {
		return nil, errors.New("poll before handshake")
	}
	if err := refresh(x, st); err != nil {
		return nil, err
	}
	return st, nil
}

//refresh runs one status + power stats round and folds the results into st.
func refresh(x obslink.Exchanger, st *State) error {
	rsp := x.Exchange(Commands["Status"])
	if rsp.Err != nil {
		return errors.Wrap(rsp.Err, "status")
	}
	status, err := ParseStatus(rsp.Line)
	if err != nil {
		return obslink.NewError(obslink.KindParse, err)
	}

	rsp = x.Exchange(Commands["Power Stats"])
	if rsp.Err != nil {
		return errors.Wrap(rsp.Err, "power stats")
	}
	stats, err := ParsePowerStats(rsp.Line)
	if err != nil {
		return obslink.NewError(obslink.KindParse, err)
	}

	st.Status = status
	st.Stats = stats
	st.TempMean.Add(status.Temperature)
	st.HumidityMean.Add(status.Humidity)
	st.DewpointMean.Add(status.Dewpoint)
	return nil
}

//Options configures a Device. Dial is required.
type Options struct {
	//Dial names the serial port, e.g. "serial:///dev/ttyUSB0:9600".
	Dial string

	//PollInterval is the background status refresh period. Default 5s.
	PollInterval time.Duration

	//ReadTimeout bounds individual serial reads. Default 1s.
	ReadTimeout time.Duration

	/*MeanWindow is the initial averaging window of the environment rolling
	means. Zero selects the instantaneous window; SetMeanWindow changes it
	at runtime.*/
	MeanWindow time.Duration
}

//Device is a handle on the powerbox for one logical consumer.
type Device struct {
	m *obslink.Manager
}

//New builds a Device. The port is not opened until Connect.
func New(opts Options) (*Device, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	t, err := obslink.NewTransport(opts.Dial, opts.ReadTimeout)
	if err != nil {
		return nil, err
	}
	m, err := obslink.NewManager(obslink.ManagerConfig{
		Transport:    t,
		Driver:       driver{window: opts.MeanWindow},
		PollInterval: opts.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	return &Device{m: m}, nil
}

/*NewWithManager wraps an existing Manager, for consumers sharing one port.
The Manager must have been built with this package's driver (via New on the
first consumer or an equivalent config).*/
func NewWithManager(m *obslink.Manager) *Device {
	return &Device{m: m}
}

//Manager exposes the underlying Manager so sibling consumers can share it.
func (d *Device) Manager() *obslink.Manager { return d.m }

//Connect joins the shared connection, opening the port if first.
func (d *Device) Connect() error { return d.m.Connect() }

//Disconnect leaves the shared connection, closing the port if last.
func (d *Device) Disconnect() { d.m.Disconnect() }

//IsAvailable reports whether the port is currently open.
func (d *Device) IsAvailable() bool { return d.m.IsAvailable() }

/*State returns a copy of the cached device state and its last update time.
It never touches the wire; a not-connected error means no handshake has run
since the last disconnect.*/
func (d *Device) State() (State, time.Time, error) {
	snap, at := d.m.Cached()
	st, ok := snap.(*State)
	if !ok || st == nil {
		return State{}, at, obslink.NewError(obslink.KindNotConnected, errors.New("no cached state"))
	}
	return *st, at, nil
}

//SetQuad12V switches the quad 12V output.
func (d *Device) SetQuad12V(on bool) error {
	return d.set(Commands["Set Quad 12V"], func(st *State) { st.Status.Quad12V = on }, onOff(on))
}

//SetAdjustable switches the adjustable voltage output.
func (d *Device) SetAdjustable(on bool) error {
	return d.set(Commands["Set Adjustable Output"], func(st *State) { st.Status.AdjustableOutput = on }, onOff(on))
}

//SetDewA sets dew heater A's PWM duty cycle.
func (d *Device) SetDewA(pwm uint8) error {
	return d.set(Commands["Set Dew Heater A"], func(st *State) { st.Status.DewA = pwm }, int(pwm))
}

//SetDewB sets dew heater B's PWM duty cycle.
func (d *Device) SetDewB(pwm uint8) error {
	return d.set(Commands["Set Dew Heater B"], func(st *State) { st.Status.DewB = pwm }, int(pwm))
}

/*SetUsbHub switches the USB hub. The hub state never comes back in the
status record, so this is the only place the cached flag is maintained.*/
func (d *Device) SetUsbHub(on bool) error {
	return d.set(Commands["Set USB Hub"], func(st *State) { st.UsbHub = on }, onOff(on))
}

//SetAutoDew enables or disables automatic dew control.
func (d *Device) SetAutoDew(on bool) error {
	return d.set(Commands["Set Auto-Dew"], func(st *State) { st.Status.AutoDew = on }, onOff(on))
}

/*SetMeanWindow changes the averaging window of the environment rolling
means. Zero selects the instantaneous window.*/
func (d *Device) SetMeanWindow(window time.Duration) {
	if window <= 0 {
		window = instantaneousWindow
	}
	d.m.Mutate(func(last obslink.Snapshot) obslink.Snapshot {
		st, ok := last.(*State)
		if !ok || st == nil {
			return last
		}
		st.TempMean.SetWindow(window)
		st.HumidityMean.SetWindow(window)
		st.DewpointMean.SetWindow(window)
		return st
	})
}

/*set sends one echo-correlated set command and, on success, folds the new
value into the cached state so readers see it before the next poll.*/
func (d *Device) set(cmd obslink.Command, apply func(st *State), args ...interface{}) error {
	rsp := d.m.Exchange(cmd, args...)
	if rsp.Err != nil {
		return rsp.Err
	}
	d.m.Mutate(func(last obslink.Snapshot) obslink.Snapshot {
		if st, ok := last.(*State); ok && st != nil {
			apply(st)
			return st
		}
		return last
	})
	return nil
}
