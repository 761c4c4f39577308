// Package ledger keeps host account balances and executes value moves on
// behalf of contracts. Every operation runs inside a storage transaction so
// a failing call leaves balances untouched.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Ledger moves native value between accounts.
type Ledger struct {
	now func() time.Time
}

func New() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// Transfer moves amount from one account to another. The receiver is created
// when missing, even for a zero amount.
func (l *Ledger) Transfer(txn storage.Txn, from, to string, amount uint64) (models.Transfer, error) {
	t := models.Transfer{ID: uuid.NewString(), From: from, To: to, Amount: amount}

	src, err := l.account(txn, from)
	if err != nil {
		return t, err
	}
	if src.Balance < amount {
		return t, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, from, src.Balance, amount)
	}
	if from == to {
		return t, nil
	}

	dst, err := l.account(txn, to)
	if err != nil {
		return t, err
	}
	if dst.Balance > math.MaxUint64-amount {
		return t, fmt.Errorf("%w: crediting %d to %s", ErrBalanceOverflow, amount, to)
	}

	src.Balance -= amount
	dst.Balance += amount
	if err := l.save(txn, src); err != nil {
		return t, err
	}
	if err := l.save(txn, dst); err != nil {
		return t, err
	}
	return t, nil
}

// Seed creates genesis accounts that do not exist yet. Existing balances are
// never overwritten, so restarting the host is safe.
func (l *Ledger) Seed(ctx context.Context, store storage.Store, accounts []models.Account) error {
	return store.Update(ctx, func(txn storage.Txn) error {
		for _, a := range accounts {
			_, err := txn.GetAccount(a.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("seed %s: %w", a.ID, err)
			}
			acc := a
			if err := l.save(txn, &acc); err != nil {
				return fmt.Errorf("seed %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (l *Ledger) account(txn storage.Txn, id string) (*models.Account, error) {
	acc, err := txn.GetAccount(id)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Account{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return acc, nil
}

func (l *Ledger) save(txn storage.Txn, acc *models.Account) error {
	acc.UpdatedAt = l.now()
	return txn.SaveAccount(acc)
}
