package ppba

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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

/*Status is the parsed form of the PA status record:
  PPBA:voltage:current:temp:humidity:dewpoint:quad:adj:dewA:dewB:autodew:warn:pwradj
*/
type Status struct {
	Voltage          float64 //input voltage, V
	Current          float64 //total draw, A
	Temperature      float64 //probe temperature, degrees C
	Humidity         float64 //relative humidity, percent
	Dewpoint         float64 //degrees C
	Quad12V          bool
	AdjustableOutput bool
	DewA             uint8 //PWM duty, 0-255
	DewB             uint8 //PWM duty, 0-255
	AutoDew          bool
	PowerWarning     bool
	PowerAdj         uint8 //adjustable output level
}

/*PowerStats is the parsed form of the PS statistics record:
  PS:averageAmps:ampHours:wattHours:uptime_ms
*/
type PowerStats struct {
	AverageAmps float64
	AmpHours    float64
	WattHours   float64
	UptimeMs    uint64
}

//UptimeHours converts the device uptime counter to hours.
func (p PowerStats) UptimeHours() float64 {
	return float64(p.UptimeMs) / 3600000.0
}

//ParseStatus parses a PA status response line.
func ParseStatus(line string) (Status, error) {
	var s Status
	parts := strings.Split(strings.TrimSpace(line), ":")
	if parts[0] != "PPBA" {
		return s, errors.Errorf("expected PPBA prefix, got %q", line)
	}
	if len(parts) < 13 {
		return s, errors.Errorf("expected 13 fields in status response, got %d: %q", len(parts), line)
	}

	var err error
	if s.Voltage, err = parseFloat(parts[1], "voltage"); err != nil {
		return s, err
	}
	if s.Current, err = parseFloat(parts[2], "current"); err != nil {
		return s, err
	}
	if s.Temperature, err = parseFloat(parts[3], "temperature"); err != nil {
		return s, err
	}
	if s.Humidity, err = parseFloat(parts[4], "humidity"); err != nil {
		return s, err
	}
	if s.Dewpoint, err = parseFloat(parts[5], "dewpoint"); err != nil {
		return s, err
	}
	if s.Quad12V, err = parseBool(parts[6], "quad_12v"); err != nil {
		return s, err
	}
	if s.AdjustableOutput, err = parseBool(parts[7], "adjustable_output"); err != nil {
		return s, err
	}
	if s.DewA, err = parseByte(parts[8], "dew_a"); err != nil {
		return s, err
	}
	if s.DewB, err = parseByte(parts[9], "dew_b"); err != nil {
		return s, err
	}
	if s.AutoDew, err = parseBool(parts[10], "auto_dew"); err != nil {
		return s, err
	}
	if s.PowerWarning, err = parseBool(parts[11], "power_warning"); err != nil {
		return s, err
	}
	if s.PowerAdj, err = parseByte(parts[12], "power_adj"); err != nil {
		return s, err
	}
	return s, nil
}

//ParsePowerStats parses a PS statistics response line.
func ParsePowerStats(line string) (PowerStats, error) {
	var p PowerStats
	parts := strings.Split(strings.TrimSpace(line), ":")
	if parts[0] != "PS" {
		return p, errors.Errorf("expected PS prefix, got %q", line)
	}
	if len(parts) < 5 {
		return p, errors.Errorf("expected 5 fields in power stats response, got %d: %q", len(parts), line)
	}

	var err error
	if p.AverageAmps, err = parseFloat(parts[1], "average_amps"); err != nil {
		return p, err
	}
	if p.AmpHours, err = parseFloat(parts[2], "amp_hours"); err != nil {
		return p, err
	}
	if p.WattHours, err = parseFloat(parts[3], "watt_hours"); err != nil {
		return p, err
	}
	uptime, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return p, errors.Errorf("invalid uptime_ms value %q", parts[4])
	}
	p.UptimeMs = uptime
	return p, nil
}

func parseFloat(s, field string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("invalid %s value %q", field, s)
	}
	return v, nil
}

func parseByte(s, field string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Errorf("invalid %s value %q", field, s)
	}
	return uint8(v), nil
}

func parseBool(s, field string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, errors.Errorf("invalid %s boolean value %q", field, s)
}
