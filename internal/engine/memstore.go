package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
)

const schemesTable = "schemes"

// memSchema indexes the fields listings filter on.
func memSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			schemesTable: {
				Name: schemesTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: objectIDIndex{},
					},
					"name": {
						Name:         "name",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Name"},
					},
					"category": {
						Name:         "category",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Category"},
					},
					"status": {
						Name:         "status",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
		},
	}
}

// objectIDIndex indexes schemes by the raw bytes of their ObjectID.
type objectIDIndex struct{}

func (objectIDIndex) FromObject(obj any) (bool, []byte, error) {
	s, ok := obj.(*schema.Scheme)
	if !ok {
		return false, nil, fmt.Errorf("unexpected object type %T", obj)
	}
	id := s.ID
	return true, id[:], nil
}

func (objectIDIndex) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	id, ok := args[0].(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("argument must be an ObjectID: %#v", args[0])
	}
	return id[:], nil
}

// MemStore is an in-process Scheme store backed by go-memdb.
// Stored objects are never mutated in place; writers insert clones.
type MemStore struct {
	db        *memdb.MemDB
	persister *Persistence
	wg        sync.WaitGroup
	version   atomic.Uint64
	now       func() time.Time
}

// NewMemStore initializes a store.
// It accepts existing records (from LoadAll) and an optional persister.
func NewMemStore(initial []*schema.Scheme, p *Persistence) (*MemStore, error) {
	db, err := memdb.NewMemDB(memSchema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}

	txn := db.Txn(true)
	for _, s := range initial {
		if err := txn.Insert(schemesTable, s.Clone()); err != nil {
			txn.Abort()
			return nil, fmt.Errorf("load scheme %s: %w", s.ID.Hex(), err)
		}
	}
	txn.Commit()

	return &MemStore{
		db:        db,
		persister: p,
		now:       schema.Now,
	}, nil
}

// SetClock replaces the time source used for createdAt and updatedAt.
func (m *MemStore) SetClock(now func() time.Time) {
	m.now = now
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

func (m *MemStore) Create(_ context.Context, in schema.SchemeInput) (*schema.Scheme, error) {
	s, err := schema.Prepare(nil, in)
	if err != nil {
		return nil, err
	}
	s.ID = schema.NewID()
	s.CreatedAt = m.now()
	s.UpdatedAt = s.CreatedAt

	txn := m.db.Txn(true)
	if err := txn.Insert(schemesTable, s); err != nil {
		txn.Abort()
		return nil, fmt.Errorf("insert scheme: %w", err)
	}
	txn.Commit()

	m.persist()
	return s.Clone(), nil
}

func (m *MemStore) FindByID(_ context.Context, id string) (*schema.Scheme, error) {
	oid, err := engine.ParseID(id)
	if err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	s, err := m.lookup(txn, oid)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *MemStore) FindMany(_ context.Context, f schema.Filter) ([]*schema.Scheme, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	// Narrow through the most selective index available.
	var (
		it  memdb.ResultIterator
		err error
	)
	switch {
	case f.Category != "":
		it, err = txn.Get(schemesTable, "category", f.Category)
	case f.Status != "":
		it, err = txn.Get(schemesTable, "status", f.Status)
	default:
		it, err = txn.Get(schemesTable, "id")
	}
	if err != nil {
		return nil, fmt.Errorf("scan schemes: %w", err)
	}

	out := []*schema.Scheme{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		s := obj.(*schema.Scheme)
		if f.Matches(s) {
			out = append(out, s.Clone())
		}
	}
	SortNewestFirst(out)
	return out, nil
}

func (m *MemStore) UpdateByID(_ context.Context, id string, in schema.SchemeInput) (*schema.Scheme, error) {
	oid, err := engine.ParseID(id)
	if err != nil {
		return nil, err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	current, err := m.lookup(txn, oid)
	if err != nil {
		return nil, err
	}
	s, err := schema.Prepare(current, in)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = m.now()

	if err := txn.Insert(schemesTable, s); err != nil {
		return nil, fmt.Errorf("update scheme: %w", err)
	}
	txn.Commit()

	m.persist()
	return s.Clone(), nil
}

func (m *MemStore) DeleteByID(_ context.Context, id string) error {
	oid, err := engine.ParseID(id)
	if err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	n, err := txn.DeleteAll(schemesTable, "id", oid)
	if err != nil {
		return fmt.Errorf("delete scheme: %w", err)
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	txn.Commit()

	m.persist()
	return nil
}

// Ping always succeeds for the in-process store.
func (m *MemStore) Ping(context.Context) error {
	return nil
}

// All returns a snapshot of every stored scheme.
func (m *MemStore) All() []*schema.Scheme {
	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(schemesTable, "id")
	if err != nil {
		return nil
	}
	var out []*schema.Scheme
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*schema.Scheme).Clone())
	}
	return out
}

func (m *MemStore) lookup(txn *memdb.Txn, oid primitive.ObjectID) (*schema.Scheme, error) {
	raw, err := txn.First(schemesTable, "id", oid)
	if err != nil {
		return nil, fmt.Errorf("lookup scheme: %w", err)
	}
	if raw == nil {
		return nil, engine.ErrNotFound
	}
	return raw.(*schema.Scheme), nil
}

// persist writes a snapshot of the store in the background.
func (m *MemStore) persist() {
	if m.persister == nil {
		return
	}
	version := m.version.Add(1)
	snapshot := m.All()

	m.wg.Add(1)
	go func(v uint64, data []*schema.Scheme) {
		defer m.wg.Done()
		if err := m.persister.Save(v, data); err != nil {
			logger.Error("Failed to persist schemes", zap.Uint64("version", v), zap.Error(err))
		}
	}(version, snapshot)
}

// SortNewestFirst orders schemes by createdAt descending, newest id first on ties.
func SortNewestFirst(list []*schema.Scheme) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.Hex() > list[j].ID.Hex()
	})
}
