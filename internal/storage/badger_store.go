package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	badger "github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("not found")
)

// Store interface (kept minimal, allows swapping implementations).
type Store interface {
	LoadState(ctx context.Context, contract string) ([]byte, error)
	GetReceipt(ctx context.Context, id string) (*models.Receipt, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// Update runs fn in a single read-write transaction. Nothing fn writes
	// is visible unless fn returns nil and the commit succeeds.
	Update(ctx context.Context, fn func(Txn) error) error
	Close() error
}

// Txn is the read-write view handed to Store.Update.
type Txn interface {
	LoadState(contract string) ([]byte, error)
	SaveState(contract string, data []byte) error
	GetAccount(id string) (*models.Account, error)
	SaveAccount(a *models.Account) error
	SaveReceipt(r *models.Receipt) error
}

// BadgerStore implements Store with Badger DB.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // disable badger logs for test clarity
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func stateKey(contract string) []byte {
	return []byte("state:" + contract)
}

func accountKey(id string) []byte {
	return []byte("account:" + id)
}

func receiptKey(id string) []byte {
	return []byte("receipt:" + id)
}

func (s *BadgerStore) LoadState(ctx context.Context, contract string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = getRaw(txn, stateKey(contract))
		return err
	})
	return out, err
}

func (s *BadgerStore) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	var out models.Receipt
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, receiptKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var out models.Account
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, accountKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// maxConflictRetries bounds how often Update reruns fn after badger reports
// a conflicting concurrent commit.
const maxConflictRetries = 3

func (s *BadgerStore) Update(ctx context.Context, fn func(Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return fn(badgerTxn{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// ---------- transaction ----------

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) LoadState(contract string) ([]byte, error) {
	return getRaw(t.txn, stateKey(contract))
}

func (t badgerTxn) SaveState(contract string, data []byte) error {
	return t.txn.Set(stateKey(contract), data)
}

func (t badgerTxn) GetAccount(id string) (*models.Account, error) {
	var out models.Account
	if err := getJSON(t.txn, accountKey(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t badgerTxn) SaveAccount(a *models.Account) error {
	return setJSON(t.txn, accountKey(a.ID), a)
}

func (t badgerTxn) SaveReceipt(r *models.Receipt) error {
	return setJSON(t.txn, receiptKey(r.ID), r)
}

func getRaw(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(b []byte) error {
		return json.Unmarshal(b, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
