package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/arcade-scan/internal/scanning"
)

var (
	ErrNotFound        = errors.New("item not found")
	ErrUnknownCategory = errors.New("unknown category")
)

var buckets = map[scanning.Category]string{
	scanning.CategoryMachine: "machines",
	scanning.CategoryPrize:   "prizes",
	scanning.CategoryPart:    "parts",
}

// DB defines the interface for catalog storage
type DB interface {
	// SaveItem creates or replaces an item
	SaveItem(item *Item) error

	// GetItem retrieves an item by category and barcode
	GetItem(category scanning.Category, barcode string) (*Item, error)

	// ListItems returns every item in a category
	ListItems(category scanning.Category) ([]*Item, error)

	// DeleteItem removes an item
	DeleteItem(category scanning.Category, barcode string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB with one bucket per category
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the catalog at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// normalizeBarcode is the storage key for a barcode. Lookups ignore case and surrounding space.
func normalizeBarcode(barcode string) string {
	return strings.ToUpper(strings.TrimSpace(barcode))
}

func bucketFor(tx *bbolt.Tx, category scanning.Category) (*bbolt.Bucket, error) {
	name, ok := buckets[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return tx.Bucket([]byte(name)), nil
}

// SaveItem creates or replaces an item
func (b *BoltDB) SaveItem(item *Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, item.Category)
		if err != nil {
			return err
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return bucket.Put([]byte(normalizeBarcode(item.Barcode)), data)
	})
}

// GetItem retrieves an item by category and barcode
func (b *BoltDB) GetItem(category scanning.Category, barcode string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, category)
		if err != nil {
			return err
		}
		data := bucket.Get([]byte(normalizeBarcode(barcode)))
		if data == nil {
			return fmt.Errorf("%w: %s %s", ErrNotFound, category, barcode)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns every item in a category ordered by barcode
func (b *BoltDB) ListItems(category scanning.Category) ([]*Item, error) {
	items := make([]*Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, category)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteItem removes an item. Deleting a missing item is not an error.
func (b *BoltDB) DeleteItem(category scanning.Category, barcode string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketFor(tx, category)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(normalizeBarcode(barcode)))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
