package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/wricardo/connectn/game/session"
)

const (
	resultPrefix   = "result:"
	countersPrefix = "counters:"
)

// BadgerStore keeps results and counters in an embedded badger database.
// Results live under "result:{id}" and counters under "counters:{participant}".
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadgerStore opens (or creates) the database in dir. An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	options := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger}).
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		options = options.WithInMemory(true)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return NewBadgerStore(db, logger), nil
}

// NewBadgerStore wraps an already opened database
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: logger}
}

func (b *BadgerStore) PersistResult(ctx context.Context, result session.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(resultPrefix+result.ID), data)
	})
}

func (b *BadgerStore) GetResults(ctx context.Context, ids []string) ([]session.Result, error) {
	results := make([]session.Result, 0, len(ids))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get([]byte(resultPrefix + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrResultNotFound, id)
			}
			if err != nil {
				return err
			}
			var result session.Result
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &result)
			}); err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchResults scans the result prefix and filters in memory
func (b *BadgerStore) SearchResults(ctx context.Context, params SearchParams) ([]session.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var all []session.Result
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(resultPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var result session.Result
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &result)
			})
			if err != nil {
				return err
			}
			all = append(all, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filterResults(all, params), nil
}

func (b *BadgerStore) FetchCounters(ctx context.Context, participantID string) (Counters, error) {
	var counters Counters
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		counters, err = loadCounters(txn, participantID)
		return err
	})
	return counters, err
}

// UpdateCounters applies delta in one transaction. A conflicting concurrent
// update fails with badger.ErrConflict and may be retried.
func (b *BadgerStore) UpdateCounters(ctx context.Context, participantID string, delta Delta) error {
	return b.db.Update(func(txn *badger.Txn) error {
		counters, err := loadCounters(txn, participantID)
		if err != nil {
			return err
		}
		if !counters.Apply(delta) {
			return nil
		}
		data, err := json.Marshal(counters)
		if err != nil {
			return err
		}
		return txn.Set([]byte(countersPrefix+participantID), data)
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func loadCounters(txn *badger.Txn, participantID string) (Counters, error) {
	var counters Counters
	item, err := txn.Get([]byte(countersPrefix + participantID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return counters, nil
	}
	if err != nil {
		return counters, err
	}
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &counters)
	})
	return counters, err
}

// badgerLogger routes badger's printf-style logging into slog
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
