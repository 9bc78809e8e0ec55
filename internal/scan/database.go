package scan

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "scans"

// DB defines the interface for scan persistence
type DB interface {
	// Create stores a new job; it fails if the ID is taken
	Create(job *Job) error

	// Update overwrites an existing job
	Update(job *Job) error

	// Get retrieves a job by ID
	Get(id string) (*Job, error)

	// List returns all jobs in no particular order
	List() ([]*Job, error)

	// Delete removes a job
	Delete(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) put(job *Job, mustExist bool) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		exists := bucket.Get([]byte(job.ID)) != nil
		switch {
		case mustExist && !exists:
			return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
		case !mustExist && exists:
			return fmt.Errorf("scan already exists: %s", job.ID)
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshaling scan: %w", err)
		}
		return bucket.Put([]byte(job.ID), data)
	})
}

// Create saves a new scan to the database
func (b *BoltDB) Create(job *Job) error {
	return b.put(job, false)
}

// Update saves changes to an existing scan
func (b *BoltDB) Update(job *Job) error {
	return b.put(job, true)
}

// Get retrieves a scan by ID
func (b *BoltDB) Get(id string) (*Job, error) {
	var job *Job
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns all scans
func (b *BoltDB) List() ([]*Job, error) {
	jobs := make([]*Job, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Delete removes a scan from the database
func (b *BoltDB) Delete(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
