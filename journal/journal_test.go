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

package journal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

type fakeSnap struct {
	Voltage float64 `json:"voltage"`
	Note    string  `json:"note,omitempty"`
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal("unable to open journal:", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_AppendRecent(t *testing.T) {
	j := openTestJournal(t)

	t0 := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seq, err := j.Append("powerbox", t0.Add(time.Duration(i)*time.Minute), fakeSnap{Voltage: 12.0 + float64(i)})
		if err != nil {
			t.Fatal("append failed:", err)
		}
		if seq != uint64(i+1) {
			t.Errorf("sequence should count up, got %d on append %d", seq, i)
		}
	}

	//Recent answers the newest n in chronological order
	entries, err := j.Recent("powerbox", 3)
	if err != nil {
		t.Fatal("recent failed:", err)
	}
	if len(entries) != 3 {
		t.Fatalf("wanted 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != uint64(i+3) {
			t.Errorf("entry %d has sequence %d", i, e.Seq)
		}
		var snap fakeSnap
		if err := json.Unmarshal(e.Data, &snap); err != nil {
			t.Fatal("entry data should decode:", err)
		}
		if snap.Voltage != 12.0+float64(i+2) {
			t.Errorf("entry %d voltage is off: %v", i, snap.Voltage)
		}
		if !e.At.Equal(t0.Add(time.Duration(i+2) * time.Minute)) {
			t.Errorf("entry %d timestamp is off: %v", i, e.At)
		}
	}

	//asking for more than exists returns what there is
	if entries, _ := j.Recent("powerbox", 100); len(entries) != 5 {
		t.Errorf("wanted all 5 entries, got %d", len(entries))
	}
	//an unknown device is empty, not an error
	if entries, err := j.Recent("dome", 10); err != nil || len(entries) != 0 {
		t.Errorf("unknown device should be empty: %d entries, %v", len(entries), err)
	}
}

func TestJournal_Each(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 4; i++ {
		if _, err := j.Append("focuser", time.Now(), fakeSnap{Voltage: float64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	var seqs []uint64
	err := j.Each("focuser", func(e Entry) error {
		seqs = append(seqs, e.Seq)
		return nil
	})
	if err != nil {
		t.Fatal("each failed:", err)
	}
	if len(seqs) != 4 {
		t.Fatalf("wanted 4 entries, got %d", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Errorf("walk order is off: %v", seqs)
		}
	}
}

func TestJournal_Prune(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 10; i++ {
		if _, err := j.Append("powerbox", time.Now(), fakeSnap{Voltage: float64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := j.Prune("powerbox", 3)
	if err != nil {
		t.Fatal("prune failed:", err)
	}
	if removed != 7 {
		t.Errorf("wanted 7 removed, got %d", removed)
	}
	entries, err := j.Recent("powerbox", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("wanted 3 survivors, got %d", len(entries))
	}
	//the newest entries survive
	if entries[0].Seq != 8 || entries[2].Seq != 10 {
		t.Errorf("wrong survivors: %d..%d", entries[0].Seq, entries[2].Seq)
	}

	//pruning below the count and unknown devices are no-ops
	if removed, err := j.Prune("powerbox", 100); err != nil || removed != 0 {
		t.Errorf("over-keep prune should remove nothing: %d %v", removed, err)
	}
	if removed, err := j.Prune("dome", 1); err != nil || removed != 0 {
		t.Errorf("unknown device prune should remove nothing: %d %v", removed, err)
	}
}

func TestJournal_Devices(t *testing.T) {
	j := openTestJournal(t)

	if names, err := j.Devices(); err != nil || len(names) != 0 {
		t.Errorf("fresh journal should list no devices: %v %v", names, err)
	}

	j.Append("powerbox", time.Now(), fakeSnap{Voltage: 12.5})
	j.Append("focuser", time.Now(), fakeSnap{Voltage: 12.4})
	j.Append("powerbox", time.Now(), fakeSnap{Voltage: 12.6})

	names, err := j.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("wanted 2 devices, got %v", names)
	}
	//bolt iterates buckets in key order
	if names[0] != "focuser" || names[1] != "powerbox" {
		t.Errorf("device list is off: %v", names)
	}
}
