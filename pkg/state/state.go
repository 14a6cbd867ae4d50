// Package state keeps a journal of the last value set on every feature, so
// set points survive restarts of the daemon.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lumasullo/lantz/pkg/units"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

const BucketPrefix = "setpoints_"

// SetPoint is the last value written to a feature or to one key of it
type SetPoint struct {
	Feature string    `json:"feature"`
	Key     any       `json:"key,omitempty"`
	Value   any       `json:"value"`
	Units   string    `json:"units,omitempty"`
	Time    time.Time `json:"time"`
}

// Quantity returns the value as a quantity when it was recorded with units
func (s SetPoint) Quantity() (units.Quantity, bool) {
	f, ok := s.Value.(float64)
	if !ok || s.Units == "" {
		return units.Quantity{}, false
	}
	return units.Q(f, s.Units), true
}

type State struct {
	DB *bbolt.DB
}

// NewState opens or creates the journal at path
func NewState(path string) (*State, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening state %s: %w", path, err)
	}
	return &State{DB: db}, nil
}

// Close releases the bbolt file lock so another process can open the journal
func (s *State) Close() error {
	return s.DB.Close()
}

func BucketName(instrument string) string {
	return fmt.Sprintf("%s%s", BucketPrefix, instrument)
}

func entryKey(feature string, key any) string {
	if key == nil {
		return feature
	}
	return fmt.Sprintf("%s[%v]", feature, key)
}

// Record stores value as the set point of feature (and key, for dict features)
func (s *State) Record(instrument, feature string, key, value any) error {
	sp := SetPoint{Feature: feature, Key: key, Value: value, Time: time.Now().UTC()}
	if q, ok := value.(units.Quantity); ok {
		sp.Value, sp.Units = q.Magnitude, q.Unit
	}
	data, err := json.Marshal(sp)
	if err != nil {
		return err
	}
	log.Debugf("Recording set point %s.%s", instrument, entryKey(feature, key))
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketName(instrument)))
		if err != nil {
			return err
		}
		return b.Put([]byte(entryKey(feature, key)), data)
	})
}

// SetPoints returns the journal of one instrument sorted by feature and key
func (s *State) SetPoints(instrument string) ([]SetPoint, error) {
	var sps []SetPoint
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(instrument)))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var sp SetPoint
			if err := json.Unmarshal(v, &sp); err != nil {
				return fmt.Errorf("set point %s: %w", k, err)
			}
			sps = append(sps, sp)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	sort.Slice(sps, func(i, j int) bool {
		return entryKey(sps[i].Feature, sps[i].Key) < entryKey(sps[j].Feature, sps[j].Key)
	})
	return sps, nil
}

// SetPoint returns one journal entry
func (s *State) SetPoint(instrument, feature string, key any) (SetPoint, bool, error) {
	var sp SetPoint
	var found bool
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(instrument)))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(entryKey(feature, key)))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &sp)
	})
	return sp, found, err
}
