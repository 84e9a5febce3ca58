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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obsworks/obslink/journal"
	"github.com/obsworks/obslink/logw"
	"github.com/obsworks/obslink/ppba"
	"github.com/obsworks/obslink/qfocuser"
)

/*watched is what a device must offer the watch loop: a shared-connection
lifecycle and a printable, journalable state.*/
type watched interface {
	Connect() error
	Disconnect()
	IsAvailable() bool
	//describe returns a one-line summary and the raw state for the journal.
	describe() (string, interface{}, time.Time, error)
}

type watchedPpba struct{ *ppba.Device }

func (w watchedPpba) describe() (string, interface{}, time.Time, error) {
	st, at, err := w.State()
	if err != nil {
		return "", nil, at, err
	}
	line := fmt.Sprintf("%.1fV %.2fA quad=%t adj=%t dewA=%d dewB=%d %.1fC %.0f%%RH",
		st.Status.Voltage, st.Status.Current, st.Status.Quad12V, st.Status.AdjustableOutput,
		st.Status.DewA, st.Status.DewB, st.Status.Temperature, st.Status.Humidity)
	return line, st.Status, at, nil
}

type watchedFocuser struct{ *qfocuser.Device }

func (w watchedFocuser) describe() (string, interface{}, time.Time, error) {
	st, at, err := w.State()
	if err != nil {
		return "", nil, at, err
	}
	line := fmt.Sprintf("pos=%d moving=%t %.2fC %.1fV", st.Position, st.Moving, st.OuterTemp, st.Voltage)
	return line, st, at, nil
}

var watchCmd = &cobra.Command{
	Use:   "watch <codec>",
	Short: "Connect to a device and print its state until interrupted",
	Long: `Connects to the device, lets the background poll run, and prints the
cached state once per interval. With --journal (or journal: in the config
file) every sample is also appended to a bolt journal for post-mortems.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"ppba", "qfocuser"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dial := viper.GetString("transport.dial")
		if dial == "" {
			return errors.New("no dial string (use --dial or a config file)")
		}
		interval, _ := cmd.Flags().GetDuration("interval")

		var dev watched
		switch args[0] {
		case "ppba":
			mean := time.Duration(viper.GetInt("transport.mean_window_seconds")) * time.Second
			d, err := ppba.New(ppba.Options{Dial: dial, PollInterval: interval, MeanWindow: mean})
			if err != nil {
				return err
			}
			dev = watchedPpba{d}
		case "qfocuser":
			d, err := qfocuser.New(qfocuser.Options{Dial: dial, PollInterval: interval})
			if err != nil {
				return err
			}
			dev = watchedFocuser{d}
		default:
			return errors.Errorf("unknown codec %q (have [ppba qfocuser])", args[0])
		}

		var jnl *journal.Journal
		if path := journalPath(cmd); path != "" {
			var err error
			if jnl, err = journal.Open(path); err != nil {
				return err
			}
			defer jnl.Close()
		}

		if err := dev.Connect(); err != nil {
			return err
		}
		defer dev.Disconnect()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				fmt.Println()
				return nil
			case <-ticker.C:
			}
			if !dev.IsAvailable() {
				return errors.New("connection lost")
			}

			line, state, at, err := dev.describe()
			if err != nil {
				logw.Warningf("state read failed: %v", err)
				continue
			}
			fmt.Printf("%s  %s\n", at.Format("15:04:05"), line)
			if jnl != nil {
				if _, err := jnl.Append(args[0], at, state); err != nil {
					logw.Warningf("journal append failed: %v", err)
				}
			}
		}
	},
}

func journalPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("journal"); path != "" {
		return path
	}
	return viper.GetString("journal")
}

func init() {
	watchCmd.Flags().DurationP("interval", "i", 5*time.Second, "poll and print interval")
	watchCmd.Flags().StringP("journal", "j", "", "append samples to this bolt journal file")
	rootCmd.AddCommand(watchCmd)
}
