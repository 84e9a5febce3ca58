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
	"regexp"
	"time"

	"github.com/obsworks/obslink"
)

/*The device speaks a newline-terminated ASCII protocol at 9600 8N1. Query
commands answer with a prefixed colon-delimited record; set commands answer
by echoing the command, which is what the Response regexps of the setters
match.*/
var Commands = obslink.Commands{
	"Ping": obslink.Command{
		Name:        "Ping",
		Timeout:     time.Second,
		Prototype:   "P#",
		Response:    regexp.MustCompile(`^PPBA_OK$`),
		Description: "Liveness probe, answered with PPBA_OK",
	},
	"Firmware Version": obslink.Command{
		Name:        "Firmware Version",
		Timeout:     time.Second,
		Prototype:   "PV",
		Response:    regexp.MustCompile(`^[0-9]+(\.[0-9]+)+$`),
		Description: "Report the firmware version",
	},
	"Status": obslink.Command{
		Name:        "Status",
		Timeout:     2 * time.Second,
		Prototype:   "PA",
		Response:    regexp.MustCompile(`^PPBA(:[^:]*){12}$`),
		Description: "Full status record: power, environment, outputs",
	},
	"Power Stats": obslink.Command{
		Name:        "Power Stats",
		Timeout:     2 * time.Second,
		Prototype:   "PS",
		Response:    regexp.MustCompile(`^PS(:[^:]*){4}$`),
		Description: "Power statistics: average amps, amp/watt hours, uptime",
	},
	"Set Quad 12V": obslink.Command{
		Name:          "Set Quad 12V",
		Timeout:       time.Second,
		Prototype:     "P1:%d",
		CommandRegexp: regexp.MustCompile(`^P1:[01]$`),
		Response:      regexp.MustCompile(`^P1:[01]$`),
		Description:   "Switch the quad 12V output on or off",
	},
	"Set Adjustable Output": obslink.Command{
		Name:          "Set Adjustable Output",
		Timeout:       time.Second,
		Prototype:     "P2:%d",
		CommandRegexp: regexp.MustCompile(`^P2:[01]$`),
		Response:      regexp.MustCompile(`^P2:[01]$`),
		Description:   "Switch the adjustable output on or off",
	},
	"Set Dew Heater A": obslink.Command{
		Name:          "Set Dew Heater A",
		Timeout:       time.Second,
		Prototype:     "P3:%d",
		CommandRegexp: regexp.MustCompile(`^P3:([0-9]|[1-9][0-9]|1[0-9][0-9]|2[0-4][0-9]|25[0-5])$`),
		Response:      regexp.MustCompile(`^P3:[0-9]{1,3}$`),
		Description:   "Set dew heater A PWM duty (0-255)",
	},
	"Set Dew Heater B": obslink.Command{
		Name:          "Set Dew Heater B",
		Timeout:       time.Second,
		Prototype:     "P4:%d",
		CommandRegexp: regexp.MustCompile(`^P4:([0-9]|[1-9][0-9]|1[0-9][0-9]|2[0-4][0-9]|25[0-5])$`),
		Response:      regexp.MustCompile(`^P4:[0-9]{1,3}$`),
		Description:   "Set dew heater B PWM duty (0-255)",
	},
	"Set USB Hub": obslink.Command{
		Name:          "Set USB Hub",
		Timeout:       time.Second,
		Prototype:     "PU:%d",
		CommandRegexp: regexp.MustCompile(`^PU:[01]$`),
		Response:      regexp.MustCompile(`^PU:[01]$`),
		Description:   "Switch the USB hub on or off",
	},
	"Set Auto-Dew": obslink.Command{
		Name:          "Set Auto-Dew",
		Timeout:       time.Second,
		Prototype:     "PD:%d",
		CommandRegexp: regexp.MustCompile(`^PD:[01]$`),
		Response:      regexp.MustCompile(`^PD:[01]$`),
		Description:   "Enable or disable automatic dew control",
	},
}

func onOff(on bool) int {
	if on {
		return 1
	}
	return 0
}
