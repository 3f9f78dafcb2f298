// Package history records published deployments in a local bolt database.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

// DefaultFile is the history database path relative to the service root.
const DefaultFile = ".azsvc/history.db"

const publishBucket = "publishes"

// Record is one completed publish.
type Record struct {
	ID             uint64    `json:"id"`
	ServiceName    string    `json:"serviceName"`
	Slot           string    `json:"slot"`
	Action         string    `json:"action"`
	DeploymentName string    `json:"deploymentName"`
	Label          string    `json:"label"`
	PackageURL     string    `json:"packageUrl"`
	Status         string    `json:"status"`
	URL            string    `json:"url,omitempty"`
	PublishedAt    time.Time `json:"publishedAt"`
}

// Store is an open history database.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Add appends a record and sets its ID.
func (s *Store) Add(r *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(publishBucket))
		if err != nil {
			return err
		}
		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		r.ID = id
		value, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return bucket.Put(key(id), value)
	})
}

// List returns up to limit records, newest first, optionally restricted to
// one service. A limit of 0 returns everything.
func (s *Store) List(service string, limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(publishBucket))
		if bucket == nil {
			// Bucket not created yet
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if service != "" && r.ServiceName != service {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func key(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}
