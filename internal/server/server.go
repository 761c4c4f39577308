package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/ledger"
	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	"github.com/devghori1264/aerophoenix/battlefield/internal/natsclient"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/devghori1264/aerophoenix/battlefield/internal/server"

// DefaultContractAccount is the account the contract is deployed at unless
// WithContractAccount says otherwise.
const DefaultContractAccount = "battlefield.near"

// ErrInvalidRequest is returned for calls the host refuses to execute at all,
// such as a malformed account id, args that are not JSON, or an account
// with no contract deployed.
var ErrInvalidRequest = errors.New("invalid request")

// EventSink receives committed receipts. *natsclient.Publisher satisfies it.
type EventSink interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, string, []byte) error { return nil }

// Server is the execution host: it loads contract state, runs one entry
// point per call and commits the outcome.
type Server struct {
	store         storage.Store
	contract      *contract.Contract
	account       string
	ledger        *ledger.Ledger
	sink          EventSink
	subjectPrefix string
	logger        *zap.Logger
	// operations mutex per contract account
	opMu sync.Map

	// in-memory cache of committed state roots; written under the op lock.
	cacheMu sync.RWMutex
	cache   map[string]*contract.StateRoot
}

type Option func(*Server)

func WithContract(c *contract.Contract) Option {
	return func(s *Server) { s.contract = c }
}

// WithContractAccount sets the account the contract is deployed at. Calls
// addressed to any other account are rejected.
func WithContractAccount(id string) Option {
	return func(s *Server) { s.account = id }
}

// WithEventSink publishes committed receipts under subjectPrefix.
func WithEventSink(sink EventSink, subjectPrefix string) Option {
	return func(s *Server) {
		s.sink = sink
		s.subjectPrefix = subjectPrefix
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new server instance.
func New(store storage.Store, opts ...Option) *Server {
	s := &Server{
		store:         store,
		contract:      contract.New(),
		account:       DefaultContractAccount,
		ledger:        ledger.New(),
		sink:          nopSink{},
		subjectPrefix: "battlefield",
		logger:        zap.NewNop(),
		cache:         make(map[string]*contract.StateRoot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Contract returns the dispatcher the server executes.
func (s *Server) Contract() *contract.Contract {
	return s.contract
}

// Account returns the account the contract is deployed at.
func (s *Server) Account() string {
	return s.account
}

func (s *Server) checkDeployed(id string) error {
	if id != s.account {
		return fmt.Errorf("%w: no contract deployed at %q", ErrInvalidRequest, id)
	}
	return nil
}

// CallRequest is one function call transaction.
type CallRequest struct {
	Contract string          `json:"contract"`
	Method   string          `json:"method"`
	Caller   string          `json:"caller"`
	Args     json.RawMessage `json:"args,omitempty"`
	Deposit  uint64          `json:"deposit,omitempty"`
}

func (r *CallRequest) validate() error {
	if !contract.ValidAccountID(r.Contract) {
		return fmt.Errorf("%w: invalid contract account %q", ErrInvalidRequest, r.Contract)
	}
	if !contract.ValidAccountID(r.Caller) {
		return fmt.Errorf("%w: invalid caller account %q", ErrInvalidRequest, r.Caller)
	}
	if r.Method == "" {
		return fmt.Errorf("%w: method required", ErrInvalidRequest)
	}
	if !validArgs(r.Args) {
		return fmt.Errorf("%w: args are not valid JSON", ErrInvalidRequest)
	}
	return nil
}

// Call executes one entry point. State, ledger moves and the receipt commit
// together or not at all. When execution fails the returned receipt records
// the failure and err holds the cause.
func (s *Server) Call(ctx context.Context, req *CallRequest) (*models.Receipt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.checkDeployed(req.Contract); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "contract.call", trace.WithAttributes(
		attribute.String("contract", req.Contract),
		attribute.String("method", req.Method),
		attribute.String("deposit", strconv.FormatUint(req.Deposit, 10)),
	))
	defer span.End()
	start := time.Now()

	_ = s.acquireOpLock(req.Contract)
	defer s.releaseOpLock(req.Contract)

	receipt := &models.Receipt{
		ID:        uuid.NewString(),
		Contract:  req.Contract,
		Method:    req.Method,
		Caller:    req.Caller,
		Deposit:   req.Deposit,
		Args:      req.Args,
		CreatedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("receipt", receipt.ID))

	var out *contract.Outcome
	err := s.store.Update(ctx, func(txn storage.Txn) error {
		var err error
		out, err = s.execute(txn, req, receipt)
		return err
	})
	s.observe(req.Method, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.recordFailure(ctx, receipt, err)
		return receipt, err
	}

	if out.Mutated {
		s.setCachedState(req.Contract, out.State)
	}
	transfersTotal.Add(float64(len(receipt.Transfers)))
	s.publish(ctx, receipt)
	s.logger.Debug("call committed",
		zap.String("receipt", receipt.ID),
		zap.String("contract", req.Contract),
		zap.String("method", req.Method),
		zap.Int("logs", len(receipt.Logs)),
	)
	return receipt, nil
}

// execute runs inside the store transaction; any error aborts it.
func (s *Server) execute(txn storage.Txn, req *CallRequest, r *models.Receipt) (*contract.Outcome, error) {
	state, err := decodeState(txn.LoadState(req.Contract))
	if err != nil {
		return nil, err
	}

	out, err := s.contract.Dispatch(state, contract.Call{
		Method:  req.Method,
		Args:    req.Args,
		Deposit: req.Deposit,
		Caller:  req.Caller,
	})
	if err != nil {
		return nil, err
	}

	if req.Deposit > 0 {
		if _, err := s.ledger.Transfer(txn, req.Caller, req.Contract, req.Deposit); err != nil {
			return nil, fmt.Errorf("attach deposit: %w", err)
		}
	}

	r.Transfers = r.Transfers[:0]
	for _, tr := range out.Transfers {
		done, err := s.ledger.Transfer(txn, req.Contract, tr.To, tr.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", contract.ErrTransferFailed, err)
		}
		r.Transfers = append(r.Transfers, done)
	}

	if out.Mutated {
		data, err := contract.Store(out.State)
		if err != nil {
			return nil, err
		}
		if err := txn.SaveState(req.Contract, data); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
	}

	r.Status = models.StatusSuccess
	r.Logs = out.Logs
	r.Return = out.Return
	return out, txn.SaveReceipt(r)
}

// recordFailure persists a failure receipt outside the aborted transaction.
func (s *Server) recordFailure(ctx context.Context, r *models.Receipt, cause error) {
	r.Status = models.StatusFailure
	r.Error = cause.Error()
	r.Logs = nil
	r.Return = nil
	r.Transfers = nil

	err := s.store.Update(context.WithoutCancel(ctx), func(txn storage.Txn) error {
		return txn.SaveReceipt(r)
	})
	if err != nil {
		s.logger.Warn("failed to save failure receipt", zap.String("receipt", r.ID), zap.Error(err))
	}
}

func (s *Server) publish(ctx context.Context, r *models.Receipt) {
	ev := map[string]interface{}{
		"event":    "receipt.committed",
		"id":       r.ID,
		"contract": r.Contract,
		"method":   r.Method,
		"caller":   r.Caller,
		"logs":     r.Logs,
		"time":     r.CreatedAt.Unix(),
	}
	payload, _ := json.Marshal(ev)
	subject := natsclient.ReceiptSubject(s.subjectPrefix, r.Contract)
	if err := s.sink.Publish(ctx, subject, payload); err != nil {
		s.logger.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// View runs a view entry point against the committed state without writing.
func (s *Server) View(ctx context.Context, contractID, method string, args json.RawMessage) (json.RawMessage, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "contract.view", trace.WithAttributes(
		attribute.String("contract", contractID),
		attribute.String("method", method),
	))
	defer span.End()
	start := time.Now()

	state, err := s.committedState(ctx, contractID)
	if err == nil {
		var out json.RawMessage
		out, err = s.contract.View(state, method, args)
		if err == nil {
			s.observe(method, nil, time.Since(start))
			return out, nil
		}
	}
	span.RecordError(err)
	s.observe(method, err, time.Since(start))
	return nil, err
}

// State returns the committed state of contractID.
func (s *Server) State(ctx context.Context, contractID string) (*contract.Snapshot, error) {
	state, err := s.committedState(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, contract.ErrUninitialized
	}
	snap := state.Snapshot()
	return &snap, nil
}

// GetReceipt fetches a receipt by ID.
func (s *Server) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	return s.store.GetReceipt(ctx, id)
}

// Balance returns the ledger account for id. Unknown accounts hold zero.
func (s *Server) Balance(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Account{ID: id}, nil
	}
	return acc, err
}

// committedState returns the last committed state of id, reading through the
// cache. A miss is filled under the op lock so it cannot race a commit.
func (s *Server) committedState(ctx context.Context, id string) (*contract.StateRoot, error) {
	if err := s.checkDeployed(id); err != nil {
		return nil, err
	}
	if st, ok := s.cachedState(id); ok {
		return st, nil
	}

	_ = s.acquireOpLock(id)
	defer s.releaseOpLock(id)
	if st, ok := s.cachedState(id); ok {
		return st, nil
	}
	st, err := decodeState(s.store.LoadState(ctx, id))
	if err != nil {
		return nil, err
	}
	s.setCachedState(id, st)
	return st, nil
}

func (s *Server) cachedState(id string) (*contract.StateRoot, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	st, ok := s.cache[id]
	return st, ok
}

func (s *Server) setCachedState(id string, st *contract.StateRoot) {
	s.cacheMu.Lock()
	s.cache[id] = st
	s.cacheMu.Unlock()
}

// validArgs accepts absent args or a single JSON value.
func validArgs(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || json.Valid(raw)
}

func decodeState(data []byte, err error) (*contract.StateRoot, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return contract.Load(data)
}

// acquireOpLock ensures only one call per contract at a time.
func (s *Server) acquireOpLock(id string) *sync.Mutex {
	v, _ := s.opMu.LoadOrStore(id, &sync.Mutex{})
	mtx := v.(*sync.Mutex)
	mtx.Lock()
	return mtx
}

// releaseOpLock releases the op lock.
func (s *Server) releaseOpLock(id string) {
	v, ok := s.opMu.Load(id)
	if !ok {
		return
	}
	mtx := v.(*sync.Mutex)
	mtx.Unlock()
}
