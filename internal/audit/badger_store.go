// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/palisade/internal/metrics"
)

// Key layout: audit:<zero-padded unix nanos>:<event id>. Lexicographic key
// order is chronological order.
const auditKeyPrefix = "audit:"

// BadgerStore implements Store using BadgerDB for durable storage.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed audit store. The caller owns db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func eventKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", auditKeyPrefix, e.Timestamp.UnixNano(), e.ID))
}

func cutoffKey(t time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d:", auditKeyPrefix, t.UnixNano()))
}

// Save persists an audit event.
func (s *BadgerStore) Save(_ context.Context, event *Event) error {
	start := time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event), data)
	})
	metrics.RecordStoreOperation("audit_save", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// scan visits events, most recent first, until fn returns false.
func (s *BadgerStore) scan(ctx context.Context, fn func(*Event) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(auditKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}
			if !fn(&e) {
				return nil
			}
		}
		return nil
	})
}

// Query retrieves events matching the filter.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var out []Event
	err := s.scan(ctx, func(e *Event) bool {
		if filter.Matches(e) {
			out = append(out, *e)
		}
		return filter.Limit <= 0 || len(out) < filter.Limit
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return out, nil
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	filter.Limit = 0
	var n int64
	err := s.scan(ctx, func(e *Event) bool {
		if filter.Matches(e) {
			n++
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// Delete removes events older than olderThan.
func (s *BadgerStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	limit := cutoffKey(olderThan)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if string(k) >= string(limit) {
				break
			}
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list expired audit events: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete audit event: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush audit deletes: %w", err)
	}
	return int64(len(keys)), nil
}
