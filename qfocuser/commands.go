package qfocuser

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
	"strconv"
	"time"

	"github.com/obsworks/obslink"
)

/*The focuser speaks newline-terminated JSON objects. A command carries a
cmd_id field; the response echoes it back as idx, which is what the Response
regexps correlate on (the trailing [,}\s] keeps idx 1 from matching idx 11).
Numeric command ids:

  1 version, 2 relative move, 3 abort, 4 temperature, 5 position,
  6 absolute move, 7 reverse, 11 sync, 13 speed, 16 hold current, 19 pdn
*/
var Commands = obslink.Commands{
	"Get Version": obslink.Command{
		Name:        "Get Version",
		Timeout:     time.Second,
		Prototype:   `{"cmd_id":1}`,
		Response:    idxRe(1),
		Description: "Report firmware and board versions",
	},
	"Relative Move": obslink.Command{
		Name:          "Relative Move",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":2,"dir":%d,"step":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":2,"dir":-?1,"step":[0-9]+\}$`),
		Response:      idxRe(2),
		Description:   "Move a number of steps in one direction (dir 1 in, -1 out)",
	},
	"Abort": obslink.Command{
		Name:        "Abort",
		Timeout:     time.Second,
		Prototype:   `{"cmd_id":3}`,
		Response:    idxRe(3),
		Description: "Halt any movement in progress",
	},
	"Read Temperature": obslink.Command{
		Name:        "Read Temperature",
		Timeout:     time.Second,
		Prototype:   `{"cmd_id":4}`,
		Response:    idxRe(4),
		Description: "Read probe/chip temperature and input voltage",
	},
	"Get Position": obslink.Command{
		Name:        "Get Position",
		Timeout:     time.Second,
		Prototype:   `{"cmd_id":5}`,
		Response:    idxRe(5),
		Description: "Read the current position counter",
	},
	"Absolute Move": obslink.Command{
		Name:          "Absolute Move",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":6,"tar":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":6,"tar":-?[0-9]+\}$`),
		Response:      idxRe(6),
		Description:   "Start a move to an absolute position",
	},
	"Set Reverse": obslink.Command{
		Name:          "Set Reverse",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":7,"rev":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":7,"rev":[01]\}$`),
		Response:      idxRe(7),
		Description:   "Reverse the motor direction sense",
	},
	"Sync Position": obslink.Command{
		Name:          "Sync Position",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":11,"init_val":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":11,"init_val":-?[0-9]+\}$`),
		Response:      idxRe(11),
		Description:   "Set the position counter without moving",
	},
	"Set Speed": obslink.Command{
		Name:          "Set Speed",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":13,"speed":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":13,"speed":[0-9]{1,3}\}$`),
		Response:      idxRe(13),
		Description:   "Set the movement speed",
	},
	"Set Hold Current": obslink.Command{
		Name:          "Set Hold Current",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":16,"ihold":%d,"irun":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":16,"ihold":[0-9]{1,3},"irun":[0-9]{1,3}\}$`),
		Response:      idxRe(16),
		Description:   "Set motor hold and run currents",
	},
	"Set PDN Mode": obslink.Command{
		Name:          "Set PDN Mode",
		Timeout:       time.Second,
		Prototype:     `{"cmd_id":19,"pdn_d":%d}`,
		CommandRegexp: regexp.MustCompile(`^\{"cmd_id":19,"pdn_d":[0-9]+\}$`),
		Response:      idxRe(19),
		Description:   "Set the motor power-down mode",
	},
}

//idxRe matches a JSON response whose idx field equals id.
func idxRe(id int) *regexp.Regexp {
	return regexp.MustCompile(`^\{.*"idx"\s*:\s*` + strconv.Itoa(id) + `\s*[,}].*$`)
}
