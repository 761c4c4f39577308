package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Log lines are matched byte for byte by event stream consumers.
const (
	overflowAdvisory  = "Make sure you don't overflow, my friend."
	resetMessage      = "Reset counter to zero"
	feesMessage       = "Burning fees received!."
	notPayableMessage = "This will actually panic when deposit is part of the transaction, because we are not flagged as payable."
)

// ---------- init ----------

func (c *Contract) initialize(x *execution, raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Owner *string `json:"owner"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Owner == nil {
		return nil, missingField("owner")
	}
	x.state = Initialize(*args.Owner)
	x.mutated = true
	return nil, nil
}

// ---------- counter ----------

func (c *Contract) getNum(x *execution, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(strconv.Itoa(int(x.state.counter.Get()))), nil
}

func (c *Contract) increment(x *execution, _ json.RawMessage) (json.RawMessage, error) {
	v := x.state.counter.Increment(c.policy)
	x.mutated = true
	x.logf("Increased number to %d", v)
	afterCounterChange(x)
	return nil, nil
}

func (c *Contract) decrement(x *execution, _ json.RawMessage) (json.RawMessage, error) {
	v := x.state.counter.Decrement(c.policy)
	x.mutated = true
	x.logf("Decreased number to %d", v)
	afterCounterChange(x)
	return nil, nil
}

func (c *Contract) reset(x *execution, _ json.RawMessage) (json.RawMessage, error) {
	x.state.counter.Reset()
	x.mutated = true
	x.log(resetMessage)
	return nil, nil
}

// afterCounterChange runs after every increment and decrement.
func afterCounterChange(x *execution) {
	x.log(overflowAdvisory)
}

// ---------- storage ----------

func (c *Contract) addFile(x *execution, raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Name *string `json:"name"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Name == nil {
		return nil, missingField("name")
	}
	x.state.computer.AddFile(*args.Name)
	x.mutated = true
	return nil, nil
}

// ---------- payable & transfers ----------

// burnFees absorbs the attached deposit; the value never touches the state.
func (c *Contract) burnFees(x *execution, _ json.RawMessage) (json.RawMessage, error) {
	x.log(feesMessage)
	return nil, nil
}

func (c *Contract) payableNoAnnotation(x *execution, _ json.RawMessage) (json.RawMessage, error) {
	x.log(notPayableMessage)
	return nil, nil
}

func (c *Contract) transferMoney(x *execution, raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		To     *string       `json:"to"`
		Amount *nativeAmount `json:"amount"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.To == nil {
		return nil, missingField("to")
	}
	if args.Amount == nil {
		return nil, missingField("amount")
	}
	if !ValidAccountID(*args.To) {
		return nil, fmt.Errorf("%w: invalid account id %q", ErrInvalidArguments, *args.To)
	}
	// uint64 amounts always fit the host's native unit.
	x.transfers = append(x.transfers, TransferRequest{To: *args.To, Amount: uint64(*args.Amount)})
	return nil, nil
}

// ---------- args ----------

// nativeAmount is an amount given either as a JSON number or as a decimal
// string, the form clients use for values a float64 cannot hold.
type nativeAmount uint64

func (a *nativeAmount) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("amount %s: %w", b, err)
	}
	*a = nativeAmount(v)
	return nil
}

// noArgs ignores whatever arguments the caller supplied.
func (c *Contract) noArgs(_ *execution, _ json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}
