package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
)

// Errors
var (
	Error = errs.Class("catalog")

	// ErrNotFound means no entry exists for the requested id
	ErrNotFound = errs.Class("not found")
)

var (
	entriesBucket = []byte("entries")
	byTimeBucket  = []byte("by_time")
)

// Entry describes one stored artifact. Immutable except DownloadCount
type Entry struct {
	ID              string            `json:"id"`
	Filename        string            `json:"filename"`
	Category        assemble.Category `json:"category"`
	SizeBytes       int64             `json:"sizeBytes"`
	StorageLocation string            `json:"storageLocation"`
	DownloadLink    string            `json:"downloadLink"`
	CreatedAt       time.Time         `json:"createdAt"`
	DownloadCount   int64             `json:"downloadCount"`
}

// Catalog maps generated ids to stored artifacts, backed by BoltDB
type Catalog struct {
	logger  *zap.Logger
	db      *bolt.DB
	baseURL string
}

// NewCatalog opens (or creates) the catalog database
func NewCatalog(logger *zap.Logger, path, baseURL string) (*Catalog, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(byTimeBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, Error.Wrap(err)
	}

	return &Catalog{logger: logger, db: db, baseURL: baseURL}, nil
}

// Register stores a new entry under a fresh id and returns it
func (c *Catalog) Register(filename string, category assemble.Category, sizeBytes int64, storageLocation string) (*Entry, error) {
	entry := Entry{
		ID:              uuid.NewString(),
		Filename:        filename,
		Category:        category,
		SizeBytes:       sizeBytes,
		StorageLocation: storageLocation,
		CreatedAt:       time.Now().UTC(),
	}
	entry.DownloadLink = fmt.Sprintf("%s/files/%s", c.baseURL, entry.ID)

	err := c.db.Update(func(tx *bolt.Tx) error {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := tx.Bucket(entriesBucket).Put([]byte(entry.ID), encoded); err != nil {
			return err
		}
		return tx.Bucket(byTimeBucket).Put(timeKey(entry.CreatedAt, entry.ID), []byte(entry.ID))
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	c.logger.Info("artifact registered",
		zap.String("id", entry.ID),
		zap.String("filename", entry.Filename),
		zap.String("category", string(entry.Category)),
		zap.Int64("sizeBytes", entry.SizeBytes))
	return &entry, nil
}

// Fetch returns the entry for id and counts the retrieval. The increment
// happens inside the lookup transaction, so concurrent fetches never lose a
// count
func (c *Catalog) Fetch(id string) (*Entry, error) {
	var entry Entry

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound.New("%s", id)
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}

		entry.DownloadCount++
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
	if err != nil {
		if ErrNotFound.Has(err) {
			return nil, err
		}
		return nil, Error.Wrap(err)
	}
	return &entry, nil
}

// ListRecent returns entries newest first, bounded by limit
func (c *Catalog) ListRecent(limit int) ([]Entry, error) {
	var entries []Entry

	err := c.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(byTimeBucket).Cursor()
		b := tx.Bucket(entriesBucket)

		for k, id := index.Last(); k != nil; k, id = index.Prev() {
			data := b.Get(id)
			if data == nil {
				continue
			}
			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return entries, nil
}

// Stats reports how many artifacts are cataloged and their combined size
func (c *Catalog) Stats() (count int, totalBytes int64, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(_, data []byte) error {
			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			count++
			totalBytes += entry.SizeBytes
			return nil
		})
	})
	if err != nil {
		return 0, 0, Error.Wrap(err)
	}
	return count, totalBytes, nil
}

// Close closes the catalog database
func (c *Catalog) Close() error {
	return c.db.Close()
}

// timeKey orders the index bucket by creation time; the id suffix keeps keys
// unique for entries created on the same nanosecond
func timeKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d-%s", t.UnixNano(), id))
}
