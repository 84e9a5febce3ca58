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

/*Package journal persists device snapshots to a local bolt file, one bucket
per device, keyed by an append sequence. It exists for post-mortems: when a
night goes wrong, the watch loop's journal says what the powerbox voltage or
the focuser temperature was doing at the time.*/
package journal

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

//Journal is an append-only snapshot store. Safe for concurrent use.
type Journal struct {
	db *bolt.DB
}

//Entry is one journaled snapshot.
type Entry struct {
	Seq  uint64          `json:"-"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

//Open opens (or creates) a journal file.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open journal %s", path)
	}
	return &Journal{db: db}, nil
}

//Close releases the underlying file.
func (j *Journal) Close() error {
	return j.db.Close()
}

/*Append journals one snapshot for the named device and returns its
sequence number. v must marshal to JSON.*/
func (j *Journal) Append(device string, at time.Time, v interface{}) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to encode snapshot for %s", device)
	}
	raw, err := json.Marshal(Entry{At: at, Data: data})
	if err != nil {
		return 0, err
	}

	var seq uint64
	err = j.db.Update(func(tx *bolt.Tx) error {
		buck, err := tx.CreateBucketIfNotExists([]byte(device))
		if err != nil {
			return err
		}
		seq, _ = buck.NextSequence()
		return buck.Put(seqKey(seq), raw)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "unable to journal snapshot for %s", device)
	}
	return seq, nil
}

//Recent returns up to n newest entries for the device, oldest first. A
//device with no journal yields an empty slice, not an error.
func (j *Journal) Recent(device string, n int) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(device))
		if buck == nil {
			return nil
		}
		c := buck.Cursor()
		for k, v := c.Last(); k != nil && len(entries) < n; k, v = c.Prev() {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	//walked newest to oldest; flip for chronological order
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}

//Each walks all entries for the device in sequence order.
func (j *Journal) Each(device string, fn func(Entry) error) error {
	return j.db.View(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(device))
		if buck == nil {
			return nil
		}
		return buck.ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			return fn(e)
		})
	})
}

//Prune drops all but the newest keep entries for the device and returns how
//many were removed.
func (j *Journal) Prune(device string, keep int) (int, error) {
	removed := 0
	err := j.db.Update(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(device))
		if buck == nil {
			return nil
		}
		total := buck.Stats().KeyN
		c := buck.Cursor()
		for k, _ := c.First(); k != nil && total-removed > keep; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "unable to prune journal for %s", device)
	}
	return removed, nil
}

//Devices lists the devices that have journaled at least once.
func (j *Journal) Devices() ([]string, error) {
	var names []string
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func decodeEntry(k, v []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(v, &e); err != nil {
		return e, errors.Wrap(err, "corrupt journal entry")
	}
	e.Seq = binary.BigEndian.Uint64(k)
	return e, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
