package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind classifies how an entry point may be invoked.
type Kind int

const (
	KindInit Kind = iota
	KindView
	KindChange
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindView:
		return "view"
	case KindChange:
		return "change"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Method describes one callable entry point.
type Method struct {
	Name    string
	Kind    Kind
	Payable bool
	run     handler
}

type handler func(x *execution, args json.RawMessage) (json.RawMessage, error)

// Call is a single invocation of an entry point. Deposit is the value
// attached by the caller, in the host's native unit.
type Call struct {
	Method  string
	Args    json.RawMessage
	Deposit uint64
	Caller  string
}

// TransferRequest asks the host to move Amount from the contract account to
// To. Requests are irrevocable once the host executes them.
type TransferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Outcome is everything a successful call produced. Nothing in it is
// observable until the host commits it.
type Outcome struct {
	// State is the post-call state. It is nil only when the call failed.
	State     *StateRoot
	Logs      []string
	Transfers []TransferRequest
	Return    json.RawMessage
	// Mutated reports whether State differs from the state the call started
	// with and must be persisted.
	Mutated bool
}

// Contract is the entry point dispatcher.
type Contract struct {
	policy  OverflowPolicy
	methods map[string]Method
}

type Option func(*Contract)

// WithOverflowPolicy selects how the counter behaves at the int8 boundary.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(c *Contract) {
		c.policy = p
	}
}

// New returns a dispatcher with every entry point registered.
func New(opts ...Option) *Contract {
	c := &Contract{policy: Wrap}
	for _, opt := range opts {
		opt(c)
	}

	c.methods = make(map[string]Method)
	for _, m := range []Method{
		{Name: "new", Kind: KindInit, run: c.initialize},
		{Name: "get_num", Kind: KindView, run: c.getNum},
		{Name: "increment", Kind: KindChange, run: c.increment},
		{Name: "decrement", Kind: KindChange, run: c.decrement},
		{Name: "reset", Kind: KindChange, run: c.reset},
		{Name: "add_file", Kind: KindChange, run: c.addFile},
		{Name: "payable_annotated_view", Kind: KindChange, Payable: true, run: c.burnFees},
		{Name: "payable_annotated_mut", Kind: KindChange, Payable: true, run: c.burnFees},
		{Name: "payable_no_annotation", Kind: KindChange, run: c.payableNoAnnotation},
		{Name: "transfer_money", Kind: KindChange, run: c.transferMoney},
		{Name: "no_args", Kind: KindChange, run: c.noArgs},
	} {
		c.methods[m.Name] = m
	}
	return c
}

// Policy returns the configured overflow policy.
func (c *Contract) Policy() OverflowPolicy {
	return c.policy
}

// Lookup returns the entry point registered under name.
func (c *Contract) Lookup(name string) (Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Methods lists every entry point sorted by name.
func (c *Contract) Methods() []Method {
	out := make([]Method, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs one entry point against a copy of state. A nil state means
// the contract is not initialized. The input state is never modified; on
// error no outcome is returned.
func (c *Contract) Dispatch(state *StateRoot, call Call) (*Outcome, error) {
	m, ok := c.methods[call.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, call.Method)
	}
	if call.Deposit > 0 && !m.Payable {
		return nil, fmt.Errorf("%w: %q is not payable", ErrUnexpectedValueAttached, m.Name)
	}

	switch {
	case m.Kind == KindInit && state != nil:
		return nil, ErrAlreadyInitialized
	case m.Kind != KindInit && state == nil:
		return nil, ErrUninitialized
	}

	x := &execution{state: state.Clone()}
	ret, err := m.run(x, call.Args)
	if err != nil {
		return nil, err
	}
	if m.Kind == KindView && x.mutated {
		return nil, fmt.Errorf("%w: %q changed state", ErrProhibitedInView, m.Name)
	}

	return &Outcome{
		State:     x.state,
		Logs:      x.logs,
		Transfers: x.transfers,
		Return:    ret,
		Mutated:   x.mutated,
	}, nil
}

// View runs a view entry point and returns its JSON result. Change methods
// are rejected with ErrProhibitedInView.
func (c *Contract) View(state *StateRoot, method string, args json.RawMessage) (json.RawMessage, error) {
	m, ok := c.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, method)
	}
	if m.Kind != KindView {
		return nil, fmt.Errorf("%w: %q is a %s method", ErrProhibitedInView, method, m.Kind)
	}
	out, err := c.Dispatch(state, Call{Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	return out.Return, nil
}

// execution buffers the effects of one call.
type execution struct {
	state     *StateRoot
	logs      []string
	transfers []TransferRequest
	mutated   bool
}

func (x *execution) log(msg string) {
	x.logs = append(x.logs, msg)
}

func (x *execution) logf(format string, args ...any) {
	x.log(fmt.Sprintf(format, args...))
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing field `%s`", ErrInvalidArguments, name)
}
