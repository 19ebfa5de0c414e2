// Package embedded keeps decoded fields in an on-disk Badger database for
// deployments without PostgreSQL.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/types"
)

const keyPrefix = "ais/"

// Entry is one stored field value
type Entry struct {
	Key   string
	T     float64
	Value string
}

// Store writes (mmsi, key, t, value) tuples to Badger
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at path
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path).WithLogger(nil))
}

// OpenInMemory opens a store that lives only as long as the process
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// tuple keys sort by vessel, field, then time for t >= 0
func tupleKey(mmsi int64, key string, t float64) []byte {
	return []byte(fmt.Sprintf("%s%d/%s/%017.6f", keyPrefix, mmsi, key, t))
}

func vesselPrefix(mmsi int64) []byte {
	return []byte(fmt.Sprintf("%s%d/", keyPrefix, mmsi))
}

// StoreMessage stores every field except mmsi and t in one transaction. A
// tuple that already exists keeps its first value.
func (s *Store) StoreMessage(_ context.Context, msg types.Message) error {
	mmsi, ok := msg.MMSI()
	if !ok {
		log.Warn().Interface("message", msg).Msg("Message has no mmsi, not stored")
		return nil
	}
	t, ok := msg.Time()
	if !ok {
		log.Warn().Int64("mmsi", mmsi).Msg("Message has no time, not stored")
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for key, value := range msg {
			if key == types.FieldMMSI || key == types.FieldTime {
				continue
			}
			k := tupleKey(mmsi, key, t)
			_, err := txn.Get(k)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("get %s: %w", k, err)
			}
			if err := txn.Set(k, []byte(types.FormatValue(value))); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	})
}

// History returns the stored values of one vessel ordered by field then time
func (s *Store) History(mmsi int64) ([]Entry, error) {
	prefix := vesselPrefix(mmsi)
	var out []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), string(prefix))
			sep := strings.LastIndexByte(rest, '/')
			if sep < 0 {
				continue
			}
			t, err := strconv.ParseFloat(rest[sep+1:], 64)
			if err != nil {
				continue
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Entry{Key: rest[:sep], T: t, Value: string(val)})
		}
		return nil
	})
	return out, err
}
