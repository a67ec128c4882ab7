package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/cockroachdb/pebble"
)

const recordKeyPrefix = "records/"

// PebbleStore implements RecordStore using PebbleDB.
type PebbleStore struct {
	db *pebble.DB
	// serializes read-modify-write sequences
	mu sync.Mutex
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		// Records are small and written one at a time
		MemTableSize:          16 << 20,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func recordKey(id string) []byte { return []byte(recordKeyPrefix + id) }

func encodeRecord(rec Record) ([]byte, error) { return json.Marshal(rec) }
func decodeRecord(val []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (p *PebbleStore) Insert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.put(rec)
}

func (p *PebbleStore) Update(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.get(rec.ID); err != nil {
		return err
	}
	return p.put(rec)
}

func (p *PebbleStore) Get(ctx context.Context, id string) (Record, error) {
	return p.get(id)
}

func (p *PebbleStore) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.db.Delete(recordKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete %s: %w", id, err)
	}
	return nil
}

func (p *PebbleStore) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	out := make([]Record, 0)
	err := p.scan(func(rec Record) {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (p *PebbleStore) ListUnsynced(ctx context.Context) ([]Record, error) {
	out := make([]Record, 0)
	err := p.scan(func(rec Record) {
		if rec.SyncState == SyncStateUnsynced {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PebbleStore) MarkSynced(ctx context.Context, id string, version time.Time, at time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, err := p.get(id)
	if err != nil {
		return false, err
	}
	if !rec.UpdatedAt.Equal(version) {
		return false, nil
	}
	rec.SyncState = SyncStateSynced
	ts := at
	rec.SyncTimestamp = &ts
	if err := p.put(rec); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) ReplaceIfVersion(ctx context.Context, expected *time.Time, rec Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	current, err := p.get(rec.ID)
	switch {
	case errors.Is(err, errors.ErrRecordNotFound):
		if expected != nil {
			return false, nil
		}
	case err != nil:
		return false, err
	case expected == nil || !current.UpdatedAt.Equal(*expected):
		return false, nil
	}
	if err := p.put(rec); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) get(id string) (Record, error) {
	v, closer, err := p.db.Get(recordKey(id))
	if err == pebble.ErrNotFound {
		return Record{}, fmt.Errorf("%s: %w", id, errors.ErrRecordNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("pebble get %s: %w", id, err)
	}
	defer closer.Close()
	rec, err := decodeRecord(v)
	if err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}

func (p *PebbleStore) put(rec Record) error {
	bytes, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	// Sync so a record acknowledged to the caller survives a crash
	if err := p.db.Set(recordKey(rec.ID), bytes, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", rec.ID, err)
	}
	return nil
}

func (p *PebbleStore) scan(fn func(rec Record)) error {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(recordKeyPrefix),
		UpperBound: []byte("records0"), // '0' sorts right after '/'
	})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		rec, err := decodeRecord(it.Value())
		if err != nil {
			return fmt.Errorf("decode record %s: %w", string(it.Key()), err)
		}
		fn(rec)
	}
	return it.Error()
}
