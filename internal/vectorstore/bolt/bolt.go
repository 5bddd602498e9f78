// Package bolt is a durable vector index stored in a single bbolt file.
//
// Entries live in the "entries" bucket keyed by their big-endian insertion
// sequence; the "meta" bucket holds the IndexInfo written by the last
// Replace. The whole index is loaded into an immutable snapshot on open and
// searched in memory.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

var _ vectorstore.Index = (*Index)(nil)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
	keyInfo       = []byte("info")
)

// Options configures Open.
type Options struct {
	// Timeout bounds how long Open waits for the file lock held by another
	// process. Zero means 5 seconds.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Index is a bbolt-backed vectorstore.Index.
type Index struct {
	db      *bbolt.DB
	logger  *zap.Logger
	mu      sync.Mutex
	snap    atomic.Pointer[vectorstore.Snapshot]
	nextSeq uint64
}

type storedEntry struct {
	Chunk  domain.Chunk `json:"chunk"`
	Vector []byte       `json:"vector"`
}

// Open opens or creates the index file at path and loads it.
func Open(path string, opts Options) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty index path", domain.ErrInvalidConfiguration)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init index buckets: %w", err)
	}

	idx := &Index{db: db, logger: opts.Logger}
	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}
	info := idx.snap.Load().Info()
	idx.logger.Debug("index opened",
		zap.String("path", path),
		zap.String("generation", info.Generation),
		zap.Int("size", info.Size),
		zap.Int("dimension", info.Dimension),
	)
	return idx, nil
}

func (idx *Index) load() error {
	var (
		info    domain.IndexInfo
		records []vectorstore.Record
	)
	err := idx.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keyInfo); data != nil {
			if err := json.Unmarshal(data, &info); err != nil {
				return fmt.Errorf("decode index info: %w", err)
			}
		}
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			e, err := decodeEntry(v)
			if err != nil {
				return fmt.Errorf("decode entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			records = append(records, vectorstore.Record{Seq: binary.BigEndian.Uint64(k), Entry: e})
			return nil
		})
	})
	if err != nil {
		return err
	}
	snap, err := vectorstore.NewSnapshot(info, records)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	idx.snap.Store(snap)
	if n := len(records); n > 0 {
		idx.nextSeq = records[n-1].Seq + 1
	}
	return nil
}

// Upsert adds entries, replacing any with the same chunk ID.
func (idx *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	next, changed, err := cur.Upsert(entries, idx.nextSeq)
	if err != nil {
		return err
	}
	err = idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for _, r := range changed {
			data, err := encodeEntry(r.Entry)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(r.Seq), data); err != nil {
				return err
			}
		}
		return putInfo(tx, next.Info())
	})
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	idx.nextSeq += uint64(next.Len() - cur.Len())
	idx.snap.Store(next)
	return nil
}

// Replace rewrites the entries bucket and metadata in one transaction, then
// publishes the new snapshot.
func (idx *Index) Replace(ctx context.Context, entries []domain.IndexEntry, info domain.IndexInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := make([]vectorstore.Record, len(entries))
	for i, e := range entries {
		records[i] = vectorstore.Record{Seq: uint64(i), Entry: e}
	}
	next, err := vectorstore.NewSnapshot(info, records)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	err = idx.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}
		// Keys are appended in order.
		b.FillPercent = 1.0
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := encodeEntry(r.Entry)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(r.Seq), data); err != nil {
				return err
			}
		}
		return putInfo(tx, next.Info())
	})
	if err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	idx.snap.Store(next)
	idx.nextSeq = uint64(len(records))
	return nil
}

// Clear removes every entry and the recorded metadata.
func (idx *Index) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	err := idx.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(bucketEntries); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete(keyInfo)
	})
	if err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	idx.snap.Store(vectorstore.Empty())
	idx.nextSeq = 0
	return nil
}

// Search returns the k entries most similar to query.
func (idx *Index) Search(ctx context.Context, query domain.Vector, k int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return idx.snap.Load().Search(query, k)
}

// Size returns the number of entries.
func (idx *Index) Size(context.Context) (int, error) {
	return idx.snap.Load().Len(), nil
}

// Info returns the metadata recorded with the current contents.
func (idx *Index) Info(context.Context) (domain.IndexInfo, error) {
	return idx.snap.Load().Info(), nil
}

// Close releases the file lock.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func putInfo(tx *bbolt.Tx, info domain.IndexInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(keyInfo, data)
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func encodeEntry(e domain.IndexEntry) ([]byte, error) {
	blob := make([]byte, 4*len(e.Vector))
	for i, x := range e.Vector {
		binary.LittleEndian.PutUint32(blob[4*i:], math.Float32bits(x))
	}
	return json.Marshal(storedEntry{Chunk: e.Chunk, Vector: blob})
}

func decodeEntry(data []byte) (domain.IndexEntry, error) {
	var s storedEntry
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.IndexEntry{}, err
	}
	if len(s.Vector)%4 != 0 {
		return domain.IndexEntry{}, fmt.Errorf("vector blob has %d bytes", len(s.Vector))
	}
	v := make(domain.Vector, len(s.Vector)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.Vector[4*i:]))
	}
	return domain.IndexEntry{Chunk: s.Chunk, Vector: v}, nil
}
