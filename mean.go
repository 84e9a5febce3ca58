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

import "time"

type meanSample struct {
	at    time.Time
	value float64
}

/*RollingMean is a time-windowed average for noisy sensor values. Samples are
appended with their timestamp and anything older than the window, relative to
the newest insertion, is evicted from the front. The zero value is not useful;
use NewRollingMean.

A RollingMean is not safe for concurrent use on its own. In practice it lives
inside a Snapshot that is only ever mutated by the single poll/handshake
writer path and copied out to readers.*/
type RollingMean struct {
	samples []meanSample
	window  time.Duration
}

//NewRollingMean returns a RollingMean averaging over the passed window.
func NewRollingMean(window time.Duration) RollingMean {
	return RollingMean{window: window}
}

//Add appends a sample taken now and evicts anything that has aged out.
func (m *RollingMean) Add(value float64) {
	m.AddAt(time.Now(), value)
}

/*AddAt appends a sample taken at the passed time. Timestamps are assumed
monotonic; insertion always appends, then evicts from the front everything
older than the window relative to the newest retained sample.*/
func (m *RollingMean) AddAt(at time.Time, value float64) {
	m.samples = append(m.samples, meanSample{at: at, value: value})
	m.evict(at)
}

func (m *RollingMean) evict(now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for ; i < len(m.samples); i++ {
		if !m.samples[i].at.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		m.samples = append(m.samples[:0:0], m.samples[i:]...)
	}
}

/*Mean returns the arithmetic average of the retained samples. The second
return is false when no samples are retained, in which case the average is
undefined.*/
func (m *RollingMean) Mean() (float64, bool) {
	if len(m.samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range m.samples {
		sum += s.value
	}
	return sum / float64(len(m.samples)), true
}

/*SetWindow changes the averaging window. Samples outside the new window are
evicted immediately.*/
func (m *RollingMean) SetWindow(window time.Duration) {
	m.window = window
	if n := len(m.samples); n > 0 {
		m.evict(m.samples[n-1].at)
	}
}

//Window returns the current averaging window.
func (m *RollingMean) Window() time.Duration { return m.window }

//Len returns the number of samples currently retained.
func (m *RollingMean) Len() int { return len(m.samples) }

/*SinceLastSample returns the age of the newest sample. The second return is
false when no sample has ever been added.*/
func (m *RollingMean) SinceLastSample() (time.Duration, bool) {
	if len(m.samples) == 0 {
		return 0, false
	}
	return time.Since(m.samples[len(m.samples)-1].at), true
}

/*Clone returns an independent copy, so a Snapshot holding RollingMeans can
hand copies to readers without sharing backing arrays with the writer.*/
func (m RollingMean) Clone() RollingMean {
	c := RollingMean{window: m.window}
	c.samples = append(c.samples, m.samples...)
	return c
}
