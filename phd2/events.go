package phd2

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

import "encoding/json"

/*Notification is one server-initiated event. Name is the Event member of
the JSON object; Raw is the full line for decoding the event-specific
members with one of the typed Decode helpers (or ad hoc).*/
type Notification struct {
	Name string
	Raw  json.RawMessage
}

//parseNotification extracts the event name from a pushed line. The second
//return is false for lines that are not event objects.
func parseNotification(line string) (Notification, bool) {
	var probe struct {
		Event string `json:"Event"`
	}
	if err := json.Unmarshal([]byte(line), &probe); err != nil || probe.Event == "" {
		return Notification{}, false
	}
	return Notification{Name: probe.Event, Raw: json.RawMessage(line)}, true
}

//VersionEvent is sent once right after the server accepts a connection.
type VersionEvent struct {
	PHDVersion string `json:"PHDVersion"`
	PHDSubver  string `json:"PHDSubver"`
	MsgVersion int    `json:"MsgVersion"`
}

//AppStateEvent reports an application state change (Stopped, Looping,
//Guiding, Paused, Calibrating, ...).
type AppStateEvent struct {
	State string `json:"State"`
}

//GuideStepEvent carries per-frame guiding statistics.
type GuideStepEvent struct {
	Frame            int     `json:"Frame"`
	Time             float64 `json:"Time"`
	Mount            string  `json:"Mount"`
	RADistanceRaw    float64 `json:"RADistanceRaw"`
	DecDistanceRaw   float64 `json:"DECDistanceRaw"`
	RADistanceGuide  float64 `json:"RADistanceGuide"`
	DecDistanceGuide float64 `json:"DECDistanceGuide"`
	StarMass         float64 `json:"StarMass"`
	SNR              float64 `json:"SNR"`
	AvgDist          float64 `json:"AvgDist"`
}

//SettleDoneEvent reports the end of a settle after a guide or dither.
//Status 0 means the settle succeeded.
type SettleDoneEvent struct {
	Status        int    `json:"Status"`
	Error         string `json:"Error"`
	TotalFrames   int    `json:"TotalFrames"`
	DroppedFrames int    `json:"DroppedFrames"`
}

//StarLostEvent reports that the guide star was lost.
type StarLostEvent struct {
	Frame     int     `json:"Frame"`
	Time      float64 `json:"Time"`
	StarMass  float64 `json:"StarMass"`
	SNR       float64 `json:"SNR"`
	AvgDist   float64 `json:"AvgDist"`
	ErrorCode int     `json:"ErrorCode"`
	Status    string  `json:"Status"`
}

//GuidingDitheredEvent reports the lock position shift of a dither.
type GuidingDitheredEvent struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

//Decode unmarshals the event-specific members into out.
func (n Notification) Decode(out interface{}) error {
	return json.Unmarshal(n.Raw, out)
}
