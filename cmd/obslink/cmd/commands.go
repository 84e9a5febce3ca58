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
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/obsworks/obslink"
	"github.com/obsworks/obslink/ppba"
	"github.com/obsworks/obslink/qfocuser"
)

//codecs maps the --codec flag to each device's command vocabulary.
var codecs = map[string]obslink.Commands{
	"ppba":     ppba.Commands,
	"qfocuser": qfocuser.Commands,
}

func codecNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Print a device codec's command vocabulary",
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, _ := cmd.Flags().GetString("codec")
		if codec == "" {
			for _, name := range codecNames() {
				fmt.Printf("%s:\n%s\n", name, codecs[name])
			}
			return nil
		}
		cmds, ok := codecs[codec]
		if !ok {
			return errors.Errorf("unknown codec %q (have %v)", codec, codecNames())
		}
		fmt.Print(cmds)
		return nil
	},
}

func init() {
	commandsCmd.Flags().StringP("codec", "c", "", "codec to print (default all)")
	rootCmd.AddCommand(commandsCmd)
}
