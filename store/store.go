// Package store connects to the data store and manages tracking state
// and session records
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ayoisaiah/tally/internal/record"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

const (
	recordsBucket = "records"
	stateBucket   = "state"
)

var pathToDB string

var errTallyRunning = errors.New(
	"is the tally daemon already running? Only one instance can be active at a time",
)

// Client is a BoltDB database client.
type Client struct {
	*bolt.DB
}

func (c *Client) GetState(keys ...string) (map[string][]byte, error) {
	m := make(map[string][]byte, len(keys))

	err := c.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))

		for _, k := range keys {
			v := b.Get([]byte(k))
			if v == nil {
				continue
			}

			// bolt values are only valid for the life of the transaction
			m[k] = append([]byte(nil), v...)
		}

		return nil
	})

	return m, err
}

func (c *Client) SetState(mapping map[string][]byte) error {
	return c.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))

		for k, v := range mapping {
			err := b.Put([]byte(k), v)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (c *Client) GetTrackingState() (*record.TrackingState, error) {
	var s record.TrackingState

	m, err := c.GetState(
		KeyTrackingEnabled,
		KeyAudioTrackingEnabled,
		KeyAudioTotal,
	)
	if err != nil {
		return nil, err
	}

	// malformed values fall back to the defaults: tracking disabled,
	// zero accumulated audio
	if v, ok := m[KeyTrackingEnabled]; ok {
		s.TrackingEnabled, _ = strconv.ParseBool(string(v))
	}

	if v, ok := m[KeyAudioTrackingEnabled]; ok {
		s.AudioTrackingEnabled, _ = strconv.ParseBool(string(v))
	}

	if v, ok := m[KeyAudioTotal]; ok {
		s.AudioTotal, _ = strconv.ParseFloat(string(v), 64)
	}

	return &s, nil
}

func (c *Client) SaveTrackingState(s *record.TrackingState) error {
	return c.SetState(map[string][]byte{
		KeyTrackingEnabled:      []byte(strconv.FormatBool(s.TrackingEnabled)),
		KeyAudioTrackingEnabled: []byte(strconv.FormatBool(s.AudioTrackingEnabled)),
		KeyAudioTotal: []byte(
			strconv.FormatFloat(s.AudioTotal, 'f', -1, 64),
		),
	})
}

func (c *Client) UpdateRecord(r *record.Record) error {
	key := timeutil.ToKey(r.StartTime)

	value, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return c.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Put(key, value)
	})
}

func (c *Client) GetRecords() ([]record.Record, error) {
	var records []record.Record

	err := c.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket([]byte(recordsBucket)).Cursor()

		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var r record.Record

			err := json.Unmarshal(v, &r)
			if err != nil {
				return err
			}

			records = append(records, r)
		}

		return nil
	})

	return records, err
}

func (c *Client) DeleteRecord(startTime time.Time) error {
	return c.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Delete(timeutil.ToKey(startTime))
	})
}

func (c *Client) DeleteAllRecords() error {
	return c.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(recordsBucket))
		if err != nil {
			return err
		}

		_, err = tx.CreateBucket([]byte(recordsBucket))

		return err
	})
}

func (c *Client) Open() error {
	db, err := openDB(pathToDB)
	if err != nil {
		return err
	}

	*c = Client{
		db,
	}

	return nil
}

// openDB creates or opens a database and locks it.
func openDB(pathToDB string) (*bolt.DB, error) {
	var fileMode fs.FileMode = 0o600

	db, err := bolt.Open(
		pathToDB,
		fileMode,
		&bolt.Options{Timeout: 1 * time.Second},
	)
	if err != nil {
		// a held file lock surfaces as a timeout
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errTallyRunning
		}

		return nil, err
	}

	return db, nil
}

// NewClient returns a wrapper to a BoltDB connection.
func NewClient(dbPath string) (*Client, error) {
	pathToDB = dbPath

	db, err := openDB(pathToDB)
	if err != nil {
		return nil, err
	}
	// Create the necessary buckets for storing data if they do not exist already
	err = db.Update(func(tx *bolt.Tx) error {
		_, err = tx.CreateBucketIfNotExists([]byte(recordsBucket))
		if err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists([]byte(stateBucket))

		return err
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		db,
	}, nil
}
