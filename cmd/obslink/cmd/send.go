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

package cmd

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obsworks/obslink"
)

var sendCmd = &cobra.Command{
	Use:   "send <line> | send --codec <codec> <command> [args...]",
	Short: "Send one line (or one named command) and print what comes back",
	Long: `Without --codec, the arguments are joined into one raw line, written to
the device, and everything read back within the wait window is printed.

With --codec, the first argument names a command in that codec's
vocabulary; the rest are substituted into its prototype. Reading stops at
the first line the command's response regexps accept or reject.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dial := viper.GetString("transport.dial")
		if dial == "" {
			return errors.New("no dial string (use --dial or a config file)")
		}
		wait, _ := cmd.Flags().GetDuration("wait")
		codec, _ := cmd.Flags().GetString("codec")

		t, err := obslink.NewTransport(dial, wait)
		if err != nil {
			return err
		}
		reader, writer, err := t.Open(5 * time.Second)
		if err != nil {
			return err
		}
		defer writer.Shutdown()

		if codec == "" {
			return sendRaw(reader, writer, join(args))
		}
		cmds, ok := codecs[codec]
		if !ok {
			return errors.Errorf("unknown codec %q (have %v)", codec, codecNames())
		}
		c, ok := cmds[args[0]]
		if !ok {
			return errors.Errorf("codec %s has no command %q", codec, args[0])
		}
		return sendCommand(reader, writer, c, args[1:])
	},
}

//sendRaw writes one line and prints every line read until the read timeout
//hits, which is the wait window ending.
func sendRaw(reader obslink.Reader, writer obslink.Writer, line string) error {
	if err := writer.WriteMessage(line); err != nil {
		return err
	}
	for {
		rsp, err := reader.ReadLine()
		if err != nil {
			if obslink.IsTimeout(err) {
				return nil
			}
			return err
		}
		fmt.Println(rsp)
	}
}

func sendCommand(reader obslink.Reader, writer obslink.Writer, c obslink.Command, rawArgs []string) error {
	args := make([]interface{}, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = atoiOr(a)
	}
	wire, err := c.Render(args...)
	if err != nil {
		return err
	}
	if err := writer.WriteMessage(wire); err != nil {
		return err
	}

	deadline := time.Now().Add(c.Timeout)
	for time.Now().Before(deadline) {
		line, err := reader.ReadLine()
		if err != nil {
			if obslink.IsTimeout(err) {
				continue
			}
			return err
		}
		switch {
		case c.Rejects(line):
			return errors.Errorf("rejected: %s", line)
		case c.Accepts(line):
			fmt.Println(line)
			return nil
		default:
			fmt.Println("(discarded)", line)
		}
	}
	return errors.Errorf("no response to %s within %v", c.Name, c.Timeout)
}

//atoiOr keeps numeric arguments numeric so %d prototypes render.
func atoiOr(s string) interface{} {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		return n
	}
	return s
}

func join(args []string) string {
	line := ""
	for i, a := range args {
		if i > 0 {
			line += " "
		}
		line += a
	}
	return line
}

func init() {
	sendCmd.Flags().StringP("codec", "c", "", "interpret the arguments via this codec's vocabulary")
	sendCmd.Flags().DurationP("wait", "w", time.Second, "how long to wait for responses")
	rootCmd.AddCommand(sendCmd)
}
