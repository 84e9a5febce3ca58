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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obsworks/obslink/logw"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "obslink",
	Short: "Diagnostics for observatory device links",
	Long: `obslink talks to the devices this module drives (Pegasus powerbox,
QHY focuser) over their serial or TCP links, for bench testing and
post-mortems without the full application stack.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logw.Setup(viper.GetBool("verbose"), os.Stdout)
	},
}

//Execute runs the root command; errors have already been printed by cobra.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./obslink.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log wire-level chatter")
	rootCmd.PersistentFlags().StringP("dial", "d", "", `dial string, e.g. "serial:///dev/ttyUSB0:9600" or "tcp://host:port"`)

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("transport.dial", rootCmd.PersistentFlags().Lookup("dial"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("obslink")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("OBSLINK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
