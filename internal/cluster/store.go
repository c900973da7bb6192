// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package cluster

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
)

var (
	// ErrVersionConflict is returned when a create targets an existing document.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDocumentNotFound is returned when an update targets a missing document.
	ErrDocumentNotFound = errors.New("document missing")

	// ErrIndexClosed is returned for operations on a closed index.
	ErrIndexClosed = errors.New("index closed")
)

// Key prefixes.
const (
	prefixDoc    = "doc:"
	prefixIndex  = "idx:"
	prefixClosed = "closed:"
	sequenceKey  = "seq"
)

// primaryTerm is constant; the store has a single, never-failing primary.
const primaryTerm = 1

// Config configures the embedded document store.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	// Default: /data/palisade/cluster
	Path string `koanf:"path"`

	// InMemory keeps documents in memory only.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `koanf:"sync_writes"`

	// Compression enables snappy compression of values.
	// Default: true
	Compression bool `koanf:"compression"`

	// GCInterval is how often value log garbage collection runs.
	// Default: 10m
	GCInterval time.Duration `koanf:"gc_interval"`
}

// DefaultConfig returns store defaults.
func DefaultConfig() Config {
	return Config{
		Path:        "/data/palisade/cluster",
		Compression: true,
		GCInterval:  10 * time.Minute,
	}
}

// Open opens the badger database described by cfg.
func Open(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Cluster store opened")
	return db, nil
}

// document is the stored form of a document.
type document struct {
	Version int64          `json:"version"`
	SeqNo   int64          `json:"seq_no"`
	Source  map[string]any `json:"source"`
}

// Store keeps documents of all indices in one badger database.
type Store struct {
	db         *badger.DB
	seq        *badger.Sequence
	gcInterval time.Duration
}

// NewStore creates a store on db.
func NewStore(db *badger.DB, cfg Config) (*Store, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), 1000)
	if err != nil {
		return nil, fmt.Errorf("sequence: %w", err)
	}
	return &Store{db: db, seq: seq, gcInterval: cfg.GCInterval}, nil
}

// Close releases the sequence lease. The database is closed by its owner.
func (s *Store) Close() error {
	return s.seq.Release()
}

func docKey(index, id string) []byte {
	return []byte(prefixDoc + index + "\x00" + id)
}

func docPrefix(index string) []byte {
	return []byte(prefixDoc + index + "\x00")
}

func conflict(index, id string) error {
	return action.NewStatusError(http.StatusConflict, ErrVersionConflict,
		"[%s][%s]: version conflict, document already exists", index, id)
}

func missing(index, id string) error {
	return action.NewStatusError(http.StatusNotFound, ErrDocumentNotFound, "[%s][%s]: document missing", index, id)
}

func closed(index string) error {
	return action.NewStatusError(http.StatusBadRequest, ErrIndexClosed, "index [%s] is closed", index)
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreOperation(op, time.Since(start), *err)
}

func readDoc(txn *badger.Txn, index, id string) (*document, error) {
	item, err := txn.Get(docKey(index, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d document
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &d) }); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", index, id, err)
	}
	return &d, nil
}

func (s *Store) ensureOpen(txn *badger.Txn, index string) error {
	_, err := txn.Get([]byte(prefixClosed + index))
	if err == nil {
		return closed(index)
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *Store) writeDoc(txn *badger.Txn, index, id string, d *document) error {
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence number: %w", err)
	}
	d.SeqNo = int64(seq)
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", index, id, err)
	}
	if err := txn.Set([]byte(prefixIndex+index), nil); err != nil {
		return err
	}
	return txn.Set(docKey(index, id), data)
}

func writeResult(index, id string, d *document, result action.DocWriteResult) action.DocWriteResponse {
	return action.DocWriteResponse{
		Index:       index,
		ID:          id,
		Version:     d.Version,
		SeqNo:       d.SeqNo,
		PrimaryTerm: primaryTerm,
		Result:      result,
	}
}

// Index stores source under id. OpCreate fails with a 409 StatusError
// wrapping ErrVersionConflict when the document exists.
func (s *Store) Index(_ context.Context, index, id string, op action.OpType, source map[string]any) (resp action.DocWriteResponse, err error) {
	defer observe("index", time.Now(), &err)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := s.ensureOpen(txn, index); err != nil {
			return err
		}
		existing, err := readDoc(txn, index, id)
		if err != nil {
			return err
		}
		d := &document{Version: 1, Source: source}
		result := action.ResultCreated
		if existing != nil {
			if op == action.OpCreate {
				return conflict(index, id)
			}
			d.Version = existing.Version + 1
			result = action.ResultUpdated
		}
		if err := s.writeDoc(txn, index, id, d); err != nil {
			return err
		}
		resp = writeResult(index, id, d, result)
		return nil
	})
	return resp, err
}

// Get fetches one document. A missing document is not an error.
func (s *Store) Get(_ context.Context, index, id string) (resp *action.GetResponse, err error) {
	defer observe("get", time.Now(), &err)
	resp = &action.GetResponse{Index: index, ID: id}
	err = s.db.View(func(txn *badger.Txn) error {
		if err := s.ensureOpen(txn, index); err != nil {
			return err
		}
		d, err := readDoc(txn, index, id)
		if err != nil || d == nil {
			return err
		}
		resp.Found = true
		resp.Version = d.Version
		resp.SeqNo = d.SeqNo
		resp.PrimaryTerm = primaryTerm
		resp.Source = d.Source
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Delete removes a document.
func (s *Store) Delete(_ context.Context, index, id string) (resp action.DocWriteResponse, err error) {
	defer observe("delete", time.Now(), &err)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := s.ensureOpen(txn, index); err != nil {
			return err
		}
		d, err := readDoc(txn, index, id)
		if err != nil {
			return err
		}
		if d == nil {
			resp = action.DocWriteResponse{Index: index, ID: id, Result: action.ResultNotFound}
			return nil
		}
		d.Version++
		resp = writeResult(index, id, d, action.ResultDeleted)
		return txn.Delete(docKey(index, id))
	})
	return resp, err
}

// Update merges doc into the stored document. upsert is stored when the
// document does not exist; without it the update fails with a 404.
func (s *Store) Update(_ context.Context, index, id string, doc, upsert map[string]any) (resp action.DocWriteResponse, err error) {
	defer observe("update", time.Now(), &err)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := s.ensureOpen(txn, index); err != nil {
			return err
		}
		existing, err := readDoc(txn, index, id)
		if err != nil {
			return err
		}
		if existing == nil {
			if upsert == nil {
				return missing(index, id)
			}
			d := &document{Version: 1, Source: maps.Clone(upsert)}
			if err := s.writeDoc(txn, index, id, d); err != nil {
				return err
			}
			resp = writeResult(index, id, d, action.ResultCreated)
			return nil
		}
		merged, changed := merge(existing.Source, doc)
		if !changed {
			resp = writeResult(index, id, existing, action.ResultNoop)
			return nil
		}
		d := &document{Version: existing.Version + 1, Source: merged}
		if err := s.writeDoc(txn, index, id, d); err != nil {
			return err
		}
		resp = writeResult(index, id, d, action.ResultUpdated)
		return nil
	})
	return resp, err
}

// merge applies a partial document. Nested objects merge recursively.
func merge(dst, patch map[string]any) (map[string]any, bool) {
	out := maps.Clone(dst)
	if out == nil {
		out = map[string]any{}
	}
	changed := false
	for k, v := range patch {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := out[k].(map[string]any); ok {
				m, c := merge(cur, sub)
				out[k] = m
				changed = changed || c
				continue
			}
		}
		if cur, ok := out[k]; ok && equalJSON(cur, v) {
			continue
		}
		out[k] = v
		changed = true
	}
	return out, changed
}

func equalJSON(a, b any) bool {
	x, err1 := json.Marshal(a)
	y, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(x) == string(y)
}

// Hit is a stored document visited by Scan.
type Hit struct {
	Index   string
	ID      string
	Version int64
	SeqNo   int64
	Source  map[string]any
}

// Scan visits every document of the given indices in key order until fn
// returns false.
func (s *Store) Scan(_ context.Context, indices []string, fn func(Hit) (bool, error)) (err error) {
	defer observe("scan", time.Now(), &err)
	return s.db.View(func(txn *badger.Txn) error {
		for _, index := range indices {
			if err := s.ensureOpen(txn, index); err != nil {
				return err
			}
			prefix := docPrefix(index)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
			stop, err := scanIndex(it, index, prefix, fn)
			it.Close()
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

func scanIndex(it *badger.Iterator, index string, prefix []byte, fn func(Hit) (bool, error)) (bool, error) {
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := strings.TrimPrefix(string(item.Key()), string(prefix))
		var d document
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &d) }); err != nil {
			return true, fmt.Errorf("decode %s/%s: %w", index, id, err)
		}
		more, err := fn(Hit{Index: index, ID: id, Version: d.Version, SeqNo: d.SeqNo, Source: d.Source})
		if err != nil || !more {
			return true, err
		}
	}
	return false, nil
}

// Indices lists every index that ever received a document, sorted.
func (s *Store) Indices(context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixIndex)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, strings.TrimPrefix(string(it.Item().Key()), prefixIndex))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// DeleteIndex drops an index and all its documents.
func (s *Store) DeleteIndex(_ context.Context, index string) (err error) {
	defer observe("delete_index", time.Now(), &err)
	if err := s.db.DropPrefix(docPrefix(index)); err != nil {
		return fmt.Errorf("drop %s: %w", index, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixIndex + index)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixClosed + index))
	})
}

// CloseIndex marks an index closed; reads and writes then fail.
func (s *Store) CloseIndex(_ context.Context, index string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixClosed+index), nil)
	})
}

// Serve runs value log garbage collection until ctx is canceled. It
// implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	interval := s.gcInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collectGarbage()
		}
	}
}

func (s *Store) collectGarbage() {
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return
		}
		if err != nil {
			logging.Warn().Err(err).Msg("Cluster store value log GC failed")
			return
		}
	}
}

// String names the service in supervisor logs.
func (s *Store) String() string { return "cluster-store-gc" }

const prefixAlias = "alias:"

// PutAlias points alias at index.
func (s *Store) PutAlias(_ context.Context, alias, index string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixAlias+alias+"\x00"+index), nil)
	})
}

// RemoveAlias removes alias from index.
func (s *Store) RemoveAlias(_ context.Context, alias, index string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixAlias + alias + "\x00" + index))
	})
}

// Aliases returns every alias and the indices it points at.
func (s *Store) Aliases(context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixAlias)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			alias, index, _ := strings.Cut(strings.TrimPrefix(string(it.Item().Key()), prefixAlias), "\x00")
			out[alias] = append(out[alias], index)
		}
		return nil
	})
	return out, err
}
