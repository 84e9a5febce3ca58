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
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

/*TransportConfig is the YAML shape of one device link. Durations are plain
integers in the unit the field name says, which keeps hand-edited configs
free of Go duration syntax.*/
type TransportConfig struct {
	//Dial is a transport dial string, e.g. "serial:///dev/ttyUSB0:9600" or
	//"tcp://10.0.0.5:9999".
	Dial string `yaml:"dial"`

	OpenTimeoutMs  int `yaml:"open_timeout_ms"`
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
	StopGraceMs    int `yaml:"stop_grace_ms"`
	ResponseReads  int `yaml:"response_reads"`
	MeanWindowSecs int `yaml:"mean_window_seconds"`
}

//ReconnectConfig is the YAML shape of a ReconnectPolicy.
type ReconnectConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	MaxRetries      int  `yaml:"max_retries"`
}

//Config is the top level YAML configuration document.
type Config struct {
	Verbose   bool            `yaml:"verbose"`
	Transport TransportConfig `yaml:"transport"`
	Reconnect ReconnectConfig `yaml:"reconnect"`

	//Journal, when non-empty, is the path of the bolt file the watch loop
	//journals snapshots into.
	Journal string `yaml:"journal"`
}

//LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config %s", path)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

//Validate checks the config for values that cannot possibly work.
func (c *Config) Validate() error {
	if c.Transport.Dial == "" {
		return errors.New("transport.dial is required")
	}
	if _, err := NewTransport(c.Transport.Dial, 0); err != nil {
		return errors.Wrap(err, "transport.dial")
	}
	if c.Transport.OpenTimeoutMs < 0 || c.Transport.ReadTimeoutMs < 0 ||
		c.Transport.PollIntervalMs < 0 || c.Transport.StopGraceMs < 0 {
		return errors.New("transport timeouts must not be negative")
	}
	if c.Transport.ResponseReads < 0 {
		return errors.New("transport.response_reads must not be negative")
	}
	if c.Transport.MeanWindowSecs < 0 {
		return errors.New("transport.mean_window_seconds must not be negative")
	}
	if c.Reconnect.IntervalSeconds < 0 || c.Reconnect.MaxRetries < 0 {
		return errors.New("reconnect values must not be negative")
	}
	return nil
}

/*ManagerConfig converts the YAML shape into a ManagerConfig. Transport and
Driver construction stay with the caller since they need more than the file
contents.*/
func (c *Config) ManagerConfig(t Transport, d Driver) ManagerConfig {
	return ManagerConfig{
		Transport:     t,
		Driver:        d,
		OpenTimeout:   time.Duration(c.Transport.OpenTimeoutMs) * time.Millisecond,
		PollInterval:  time.Duration(c.Transport.PollIntervalMs) * time.Millisecond,
		StopGrace:     time.Duration(c.Transport.StopGraceMs) * time.Millisecond,
		ResponseReads: c.Transport.ResponseReads,
	}
}

/*MeanWindow converts the configured environment averaging window. Zero
passes through, so drivers with a window option treat it as their default
(e.g. ppba.Options.MeanWindow).*/
func (c *Config) MeanWindow() time.Duration {
	return time.Duration(c.Transport.MeanWindowSecs) * time.Second
}

//LinkConfig converts the YAML shape into a LinkConfig.
func (c *Config) LinkConfig() LinkConfig {
	return LinkConfig{
		Dial:        c.Transport.Dial,
		OpenTimeout: time.Duration(c.Transport.OpenTimeoutMs) * time.Millisecond,
		Reconnect: ReconnectPolicy{
			Enabled:    c.Reconnect.Enabled,
			Interval:   time.Duration(c.Reconnect.IntervalSeconds) * time.Second,
			MaxRetries: c.Reconnect.MaxRetries,
		},
	}
}
