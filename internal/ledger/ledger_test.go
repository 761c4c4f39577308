package ledger

import (
	"context"
	"math"
	"testing"

	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, accounts ...models.Account) (*Ledger, *storage.BadgerStore) {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l := New()
	require.NoError(t, l.Seed(context.Background(), store, accounts))
	return l, store
}

func balance(t *testing.T, store storage.Store, id string) uint64 {
	t.Helper()
	acc, err := store.GetAccount(context.Background(), id)
	if err != nil {
		require.ErrorIs(t, err, storage.ErrNotFound)
		return 0
	}
	return acc.Balance
}

func TestTransfer(t *testing.T) {
	l, store := setup(t, models.Account{ID: "battlefield.near", Balance: 100})

	var tr models.Transfer
	err := store.Update(context.Background(), func(txn storage.Txn) error {
		var err error
		tr, err = l.Transfer(txn, "battlefield.near", "bob.near", 40)
		return err
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, uint64(40), tr.Amount)
	assert.Equal(t, uint64(60), balance(t, store, "battlefield.near"))
	assert.Equal(t, uint64(40), balance(t, store, "bob.near"))
}

func TestTransferInsufficientBalance(t *testing.T) {
	l, store := setup(t, models.Account{ID: "battlefield.near", Balance: 10})

	err := store.Update(context.Background(), func(txn storage.Txn) error {
		_, err := l.Transfer(txn, "battlefield.near", "bob.near", 11)
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(10), balance(t, store, "battlefield.near"))
	assert.Equal(t, uint64(0), balance(t, store, "bob.near"))
}

func TestTransferOverflow(t *testing.T) {
	l, store := setup(t,
		models.Account{ID: "battlefield.near", Balance: 10},
		models.Account{ID: "bob.near", Balance: math.MaxUint64},
	)

	err := store.Update(context.Background(), func(txn storage.Txn) error {
		_, err := l.Transfer(txn, "battlefield.near", "bob.near", 1)
		return err
	})
	require.ErrorIs(t, err, ErrBalanceOverflow)
}

func TestSeedKeepsExistingBalances(t *testing.T) {
	l, store := setup(t, models.Account{ID: "bob.near", Balance: 5})

	err := l.Seed(context.Background(), store, []models.Account{{ID: "bob.near", Balance: 500}})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), balance(t, store, "bob.near"))
}
