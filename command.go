package obslink

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
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

/*Command represents one request in a command/response vocabulary. A codec
package defines one Command per device operation; the Manager's command
channel renders it, writes it on the wire, and matches incoming lines against
its correlation regexps.*/
type Command struct {
	/*Name is the human name of the command, typically without arguments. If
	the Prototype is something like "P3:%d", the Name should make sense to
	your average human being: like "Set Dew Heater A".*/
	Name string

	/*Timeout is the max time the command channel will spend waiting for a
	matching response before giving up with a timeout error.*/
	Timeout time.Duration

	/*Prototype is the command prototype that is fed, with any arguments, to
	fmt.Sprintf and sent down the line. That is,
	    fmt.Sprintf(Prototype, args...)
	is what goes on the wire (terminator added by the transport).*/
	Prototype string

	/*CommandRegexp, when non-nil, is a sanity check on the rendered command:
	the fmt.Sprintf result must match it before being sent. It catches wrong
	argument counts and out-of-range substitutions at render time rather than
	on the wire.*/
	CommandRegexp *regexp.Regexp

	//Response matches good/positive/affirmative responses. Required.
	Response *regexp.Regexp

	//Error matches bad/negative/failure responses. Optional.
	Error *regexp.Regexp

	//Description is a brief human readable explanation of the command.
	Description string
}

/*sanitize derenders ASCII control sequences to readable equivalents*/
func sanitize(i interface{}) string {
	var str string
	switch s := i.(type) {
	case *regexp.Regexp:
		if s == nil {
			return "-"
		}
		str = s.String()
	case string:
		str = s
	}
	return strings.Replace(strings.Replace(str, "\r", "\\r", -1), "\n", "\\n", -1)
}

//String implements the Stringer interface
func (c Command) String() string {
	return fmt.Sprintf("%s: %v Prototype:%q CommandRegexp:%q Expect:%q Error:%q", c.Name, c.Timeout, sanitize(c.Prototype), sanitize(c.CommandRegexp), sanitize(c.Response), sanitize(c.Error))
}

/*Render returns the wire form of the command with any optional arguments
substituted via
  fmt.Sprintf(Prototype, args...)
If the resulting string contains a "%!" sequence, the arguments did not fit
the prototype and a parse-kind error is returned. If CommandRegexp is set and
the rendered command does not match it, the same happens.*/
func (c Command) Render(args ...interface{}) (string, error) {
	str := fmt.Sprintf(c.Prototype, args...)
	//checking for wrong or invalid arguments
	if strings.Contains(str, "%!") {
		return str, newErr(KindParse, false, false, fmt.Errorf("arguments do not satisfy prototype %q", c.Prototype))
	}
	if c.CommandRegexp != nil && !c.CommandRegexp.MatchString(str) {
		return str, newErr(KindParse, false, false, fmt.Errorf("rendered command %q does not match %q", str, c.CommandRegexp))
	}
	return str, nil
}

//Accepts reports whether line is a positive response to this command.
func (c Command) Accepts(line string) bool {
	return c.Response != nil && c.Response.MatchString(line)
}

//Rejects reports whether line is a failure response to this command.
func (c Command) Rejects(line string) bool {
	return c.Error != nil && c.Error.MatchString(line)
}

//Commands is a map of Command structures where the key should be Command.Name
type Commands map[string]Command

//String implements the Stringer() interface
func (c Commands) String() string {
	cmds := sort.StringSlice{}
	for cmd := range c {
		cmds = append(cmds, cmd)
	}
	cmds.Sort()

	buf := bytes.NewBufferString("")
	tw := tablewriter.NewWriter(buf)
	tw.SetAutoWrapText(false)
	tw.SetHeader([]string{"Name", "Timeout", "Prototype", "Command Regex", "Resp Regex", "Error Regex"})

	for _, cc := range cmds {
		cmd := c[cc]
		tw.Append([]string{
			cc,
			cmd.Timeout.String(),
			sanitize(cmd.Prototype),
			sanitize(cmd.CommandRegexp),
			sanitize(cmd.Response),
			sanitize(cmd.Error),
		})
	}
	tw.Render()
	return buf.String()
}

/*Contains returns true if the command set contains all of the passed named
commands. It checks the key values, not the embedded Command.Name values*/
func (c Commands) Contains(named ...string) bool {
	if c == nil || len(named) == 0 {
		return false
	}
	for _, name := range named {
		if _, ok := c[name]; !ok {
			return false
		}
	}
	return true
}

/*Clone returns a deep copy of the Commands*/
func (c Commands) Clone() Commands {
	r := Commands{}
	for name, cmd := range c {
		r[name] = cmd
	}
	return r
}

/*MergeCommands takes multiple command sets and returns a single command set*/
func MergeCommands(cmds ...Commands) Commands {
	c := Commands{}
	for _, cmdset := range cmds {
		for name, cmd := range cmdset {
			c[name] = cmd
		}
	}
	return c
}

/*Response is what the command channel hands back from an exchange.

Line is the response line that matched the command's Response regexp (or, on
failure, the last line read). Err is nil on a match, a timeout error if the
wait expired, or some other error on lower level trouble. Duration is how
long the exchange took. Discarded counts the stale or unsolicited lines that
were read and dropped before the match.*/
type Response struct {
	Line      string
	Err       error
	Duration  time.Duration
	Discarded int
}

//String implements the Stringer interface
func (r Response) String() string {
	return fmt.Sprintf("Response> Rx: %q\tErrors: %v\tDuration: %v\tDiscarded: %d", r.Line, r.Err, r.Duration, r.Discarded)
}
