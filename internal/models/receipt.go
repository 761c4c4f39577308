package models

import (
	"encoding/json"
	"time"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Receipt is the host's record of one call against a contract account.
// Shared between the server, storage and api layers.
type Receipt struct {
	ID        string          `json:"id"`
	Contract  string          `json:"contract"`
	Method    string          `json:"method"`
	Caller    string          `json:"caller"`
	Deposit   uint64          `json:"deposit,omitempty,string"`
	Args      json.RawMessage `json:"args,omitempty"`
	Status    string          `json:"status"`
	Logs      []string        `json:"logs,omitempty"`
	Return    json.RawMessage `json:"return,omitempty"`
	Error     string          `json:"error,omitempty"`
	Transfers []Transfer      `json:"transfers,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Succeeded reports whether the call committed.
func (r *Receipt) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Transfer is an executed outbound value transfer.
type Transfer struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount,string"`
}

// Account is a host ledger balance in the native unit. Amounts are
// encoded as decimal strings so no JSON consumer rounds them.
type Account struct {
	ID        string    `json:"id"`
	Balance   uint64    `json:"balance,string"`
	UpdatedAt time.Time `json:"updated_at"`
}
