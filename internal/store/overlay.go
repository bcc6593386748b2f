package store

import (
	dbm "github.com/tendermint/tm-db"
)

// kvStore is the subset of dbm.DB the write path needs. Both dbm.DB and
// overlay implement it.
type kvStore interface {
	Get([]byte) ([]byte, error)
	Has([]byte) (bool, error)
	Set([]byte, []byte) error
	Delete([]byte) error
}

var (
	_ kvStore = (dbm.DB)(nil)
	_ kvStore = (*overlay)(nil)
)

// overlay buffers the writes of one transaction on top of a database so
// that later operations of the same transaction read earlier ones. Nothing
// reaches the database until flush.
type overlay struct {
	db      dbm.DB
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newOverlay(db dbm.DB) *overlay {
	return &overlay{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := o.writes[k]; ok {
		return v, nil
	}
	if _, ok := o.deletes[k]; ok {
		return nil, nil
	}
	v, err := o.db.Get(key)
	if err != nil {
		return nil, storageErr("get", err)
	}
	return v, nil
}

func (o *overlay) Has(key []byte) (bool, error) {
	v, err := o.Get(key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (o *overlay) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = value
	return nil
}

func (o *overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// size returns the number of buffered writes and deletes.
func (o *overlay) size() int {
	return len(o.writes) + len(o.deletes)
}

// flush writes every buffered change in one synced batch.
func (o *overlay) flush() error {
	batch := o.db.NewBatch()
	defer batch.Close()

	for k := range o.deletes {
		if err := batch.Delete([]byte(k)); err != nil {
			return storageErr("batch delete", err)
		}
	}
	for k, v := range o.writes {
		if err := batch.Set([]byte(k), v); err != nil {
			return storageErr("batch set", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return storageErr("write batch", err)
	}
	return nil
}
