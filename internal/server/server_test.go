package server

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/ledger"
	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

const battlefield = "battlefield.near"

type published struct {
	subject string
	payload map[string]any
}

type recordingSink struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingSink) Publish(_ context.Context, subject string, payload []byte) error {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, published{subject: subject, payload: m})
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestServer(t *testing.T, accounts ...models.Account) (*Server, *storage.BadgerStore, *recordingSink) {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err, "open badger")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, ledger.New().Seed(context.Background(), store, accounts))

	sink := &recordingSink{}
	return New(store, WithEventSink(sink, "battlefield")), store, sink
}

func call(t *testing.T, s *Server, caller, method, args string, deposit uint64) *models.Receipt {
	t.Helper()
	r, err := s.Call(context.Background(), &CallRequest{
		Contract: battlefield,
		Method:   method,
		Caller:   caller,
		Args:     json.RawMessage(args),
		Deposit:  deposit,
	})
	require.NoError(t, err, method)
	require.True(t, r.Succeeded())
	return r
}

func TestCallScenario(t *testing.T) {
	s, _, sink := newTestServer(t)
	ctx := context.Background()

	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	r := call(t, s, "alice.near", "increment", "", 0)
	assert.Equal(t, []string{"Increased number to 4", "Make sure you don't overflow, my friend."}, r.Logs)
	call(t, s, "alice.near", "increment", "", 0)

	num, err := s.View(ctx, battlefield, "get_num", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "5", string(num))

	call(t, s, "alice.near", "add_file", `{"name":"a.txt"}`, 0)
	snap, err := s.State(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, snap.Files)
	assert.Equal(t, []contract.Permission{{ID: 1, Writable: true}}, snap.Permissions)

	r = call(t, s, "alice.near", "reset", "", 0)
	snap, err = s.State(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, int8(0), snap.Counter)
	assert.Equal(t, []string{"a.txt"}, snap.Files)
	assert.Equal(t, "alice", snap.Owner)

	stored, err := s.GetReceipt(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Reset counter to zero"}, stored.Logs)

	require.Equal(t, 5, sink.len())
	last := sink.events[4]
	assert.Equal(t, "battlefield.battlefield.near.receipts", last.subject)
	assert.Equal(t, "reset", last.payload["method"])
	assert.Equal(t, []any{"Reset counter to zero"}, last.payload["logs"])
}

func TestCallBeforeInitialize(t *testing.T) {
	s, store, sink := newTestServer(t)
	ctx := context.Background()

	r, err := s.Call(ctx, &CallRequest{Contract: battlefield, Method: "increment", Caller: "alice.near"})
	require.ErrorIs(t, err, contract.ErrUninitialized)
	require.NotNil(t, r)
	assert.Equal(t, models.StatusFailure, r.Status)
	assert.Empty(t, r.Logs)

	_, err = store.LoadState(ctx, battlefield)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, sink.len())

	stored, err := s.GetReceipt(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.Succeeded())
	assert.Contains(t, stored.Error, "not initialized")

	_, err = s.State(ctx, battlefield)
	assert.ErrorIs(t, err, contract.ErrUninitialized)
}

func TestSecondInitializeFails(t *testing.T) {
	s, _, _ := newTestServer(t)
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)

	_, err := s.Call(context.Background(), &CallRequest{Contract: battlefield, Method: "new", Caller: "bob.near", Args: json.RawMessage(`{"owner":"bob"}`)})
	require.ErrorIs(t, err, contract.ErrAlreadyInitialized)

	snap, err := s.State(context.Background(), battlefield)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Owner)
}

func TestDepositGating(t *testing.T) {
	s, store, sink := newTestServer(t, models.Account{ID: "bob.near", Balance: 1000})
	ctx := context.Background()
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	before, err := store.LoadState(ctx, battlefield)
	require.NoError(t, err)
	events := sink.len()

	_, err = s.Call(ctx, &CallRequest{Contract: battlefield, Method: "payable_no_annotation", Caller: "bob.near", Deposit: 100})
	require.ErrorIs(t, err, contract.ErrUnexpectedValueAttached)
	acc, err := s.Balance(ctx, "bob.near")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), acc.Balance)
	assert.Equal(t, events, sink.len())

	r := call(t, s, "bob.near", "payable_annotated_mut", "", 100)
	assert.Equal(t, []string{"Burning fees received!."}, r.Logs)

	after, err := store.LoadState(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	acc, err = s.Balance(ctx, "bob.near")
	require.NoError(t, err)
	assert.Equal(t, uint64(900), acc.Balance)
	acc, err = s.Balance(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acc.Balance)
}

func TestDepositWithoutFunds(t *testing.T) {
	s, _, _ := newTestServer(t)
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)

	_, err := s.Call(context.Background(), &CallRequest{Contract: battlefield, Method: "payable_annotated_mut", Caller: "poor.near", Deposit: 1})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestTransferMoney(t *testing.T) {
	s, _, sink := newTestServer(t, models.Account{ID: "bob.near", Balance: 1000})
	ctx := context.Background()
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	events := sink.len()

	// The contract holds nothing yet, so the host rejects the whole call.
	r, err := s.Call(ctx, &CallRequest{Contract: battlefield, Method: "transfer_money", Caller: "alice.near", Args: json.RawMessage(`{"to":"carol.near","amount":50}`)})
	require.ErrorIs(t, err, contract.ErrTransferFailed)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Empty(t, r.Transfers)
	assert.Equal(t, events, sink.len())
	acc, err := s.Balance(ctx, "carol.near")
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)

	call(t, s, "bob.near", "payable_annotated_view", "", 100)
	r = call(t, s, "alice.near", "transfer_money", `{"to":"carol.near","amount":40}`, 0)
	require.Len(t, r.Transfers, 1)
	assert.Equal(t, battlefield, r.Transfers[0].From)
	assert.Equal(t, "carol.near", r.Transfers[0].To)
	assert.Equal(t, uint64(40), r.Transfers[0].Amount)

	acc, err = s.Balance(ctx, "carol.near")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), acc.Balance)
	acc, err = s.Balance(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), acc.Balance)
}

func TestView(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.View(ctx, battlefield, "get_num", nil)
	require.ErrorIs(t, err, contract.ErrUninitialized)

	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	before, err := store.LoadState(ctx, battlefield)
	require.NoError(t, err)

	_, err = s.View(ctx, battlefield, "increment", nil)
	require.ErrorIs(t, err, contract.ErrProhibitedInView)

	after, err := store.LoadState(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInvalidRequests(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	for _, req := range []*CallRequest{
		{Contract: "", Method: "new", Caller: "alice.near"},
		{Contract: battlefield, Method: "new", Caller: "Alice"},
		{Contract: battlefield, Method: "", Caller: "alice.near"},
		{Contract: battlefield, Method: "no_args", Caller: "alice.near", Args: json.RawMessage(`garbage`)},
		{Contract: battlefield, Method: "increment", Caller: "alice.near", Args: json.RawMessage(`{"a":`)},
	} {
		r, err := s.Call(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Nil(t, r)
	}

	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	_, err := s.Call(ctx, &CallRequest{Contract: battlefield, Method: "does_not_exist_understood?", Caller: "alice.near"})
	require.ErrorIs(t, err, contract.ErrMethodNotFound)

	call(t, s, "alice.near", "no_args", `{"name":"file #0","complex":{"value":"multi"}}`, 0)
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	s, _, _ := newTestServer(t)
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Call(context.Background(), &CallRequest{Contract: battlefield, Method: "add_file", Caller: "alice.near", Args: json.RawMessage(`{"name":"f"}`)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := s.State(context.Background(), battlefield)
	require.NoError(t, err)
	assert.Len(t, snap.Files, n)
	assert.Len(t, snap.Permissions, n)
}

func TestUndeployedAccount(t *testing.T) {
	s, store, sink := newTestServer(t)
	ctx := context.Background()
	assert.Equal(t, DefaultContractAccount, s.Account())

	r, err := s.Call(ctx, &CallRequest{Contract: "random-stranger.near", Method: "new", Caller: "mallory.near", Args: json.RawMessage(`{"owner":"mallory"}`)})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, r)
	_, err = store.LoadState(ctx, "random-stranger.near")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, sink.len())

	_, err = s.View(ctx, "random-stranger.near", "get_num", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = s.State(ctx, "random-stranger.near")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestContractAccountOption(t *testing.T) {
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	s := New(store, WithContractAccount("arena.near"))
	ctx := context.Background()

	_, err = s.Call(ctx, &CallRequest{Contract: battlefield, Method: "new", Caller: "alice.near", Args: json.RawMessage(`{"owner":"alice"}`)})
	require.ErrorIs(t, err, ErrInvalidRequest)

	r, err := s.Call(ctx, &CallRequest{Contract: "arena.near", Method: "new", Caller: "alice.near", Args: json.RawMessage(`{"owner":"alice"}`)})
	require.NoError(t, err)
	assert.True(t, r.Succeeded())
	snap, err := s.State(ctx, "arena.near")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Owner)
}

func TestInvalidArgsLeaveNoReceipt(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	before, err := store.LoadState(ctx, battlefield)
	require.NoError(t, err)

	r, err := s.Call(ctx, &CallRequest{Contract: battlefield, Method: "no_args", Caller: "alice.near", Args: json.RawMessage(`garbage`)})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, r)

	after, err := store.LoadState(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDepositOverflow(t *testing.T) {
	s, _, sink := newTestServer(t,
		models.Account{ID: "bob.near", Balance: 10},
		models.Account{ID: battlefield, Balance: math.MaxUint64},
	)
	ctx := context.Background()
	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	events := sink.len()

	_, err := s.Call(ctx, &CallRequest{Contract: battlefield, Method: "payable_annotated_mut", Caller: "bob.near", Deposit: 1})
	require.ErrorIs(t, err, ledger.ErrBalanceOverflow)
	assert.Equal(t, codes.FailedPrecondition, grpcCode(err))
	assert.Equal(t, events, sink.len())

	acc, err := s.Balance(ctx, "bob.near")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), acc.Balance)
	acc, err = s.Balance(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), acc.Balance)
}

func TestViewFollowsCommits(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.State(ctx, battlefield)
	require.ErrorIs(t, err, contract.ErrUninitialized)

	call(t, s, "alice.near", "new", `{"owner":"alice"}`, 0)
	num, err := s.View(ctx, battlefield, "get_num", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "3", string(num))

	call(t, s, "alice.near", "increment", "", 0)
	num, err = s.View(ctx, battlefield, "get_num", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "4", string(num))

	// A failed transfer aborts the call; the committed counter stays put.
	_, err = s.Call(ctx, &CallRequest{Contract: battlefield, Method: "transfer_money", Caller: "alice.near", Args: json.RawMessage(`{"to":"carol.near","amount":5}`)})
	require.Error(t, err)
	snap, err := s.State(ctx, battlefield)
	require.NoError(t, err)
	assert.Equal(t, int8(4), snap.Counter)
}
