package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/ledger"
	"github.com/devghori1264/aerophoenix/battlefield/internal/server"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"go.uber.org/zap"
)

type Handler struct {
	srv    *server.Server
	logger *zap.Logger

	mu          sync.RWMutex
	partitioned map[string]bool
	latency     map[string]time.Duration
}

func NewHTTPHandler(srv *server.Server, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		srv:         srv,
		logger:      logger,
		partitioned: make(map[string]bool),
		latency:     make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	mux.Handle("/ping", instrument("ping", h.handlePing))
	mux.Handle("/call", instrument("call", h.handleCall))
	mux.Handle("/view", instrument("view", h.handleView))
	mux.Handle("/receipt", instrument("receipt", h.handleReceipt))
	mux.Handle("/state", instrument("state", h.handleState))
	mux.Handle("/balance", instrument("balance", h.handleBalance))
	mux.Handle("/methods", instrument("methods", h.handleMethods))

	mux.Handle("/chaos/partition", instrument("chaos_partition", h.handlePartition))
	mux.Handle("/chaos/heal", instrument("chaos_heal", h.handleHeal))
	mux.Handle("/chaos/latency", instrument("chaos_latency", h.handleLatency))

	return mux
}

func (h *Handler) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "pong from battlefieldd http"})
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req server.CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if !h.admit(w, r, req.Contract) {
		return
	}

	receipt, err := h.srv.Call(r.Context(), &req)
	if err != nil {
		body := map[string]interface{}{"error": err.Error()}
		if receipt != nil {
			body["receipt"] = receipt
		}
		h.logger.Info("call failed", zap.String("method", req.Method), zap.Error(err))
		writeJSON(w, statusFor(err), body)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req server.ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Contract == "" || req.Method == "" {
		h.writeError(w, http.StatusBadRequest, "contract and method required")
		return
	}
	if !h.admit(w, r, req.Contract) {
		return
	}

	out, err := h.srv.View(r.Context(), req.Contract, req.Method, req.Args)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, server.ViewResponse{Result: out})
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "id required")
		return
	}
	receipt, err := h.srv.GetReceipt(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), "receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("contract")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "contract required")
		return
	}
	snap, err := h.srv.State(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("account")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "account required")
		return
	}
	acc, err := h.srv.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) handleMethods(w http.ResponseWriter, _ *http.Request) {
	type method struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Payable bool   `json:"payable"`
	}
	var out []method
	for _, m := range h.srv.Contract().Methods() {
		out = append(out, method{Name: m.Name, Kind: m.Kind.String(), Payable: m.Payable})
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, contract.ErrMethodNotFound):
		return http.StatusNotFound
	case errors.Is(err, contract.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contract.ErrUnexpectedValueAttached), errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrBalanceOverflow):
		return http.StatusPaymentRequired
	case errors.Is(err, server.ErrInvalidRequest), errors.Is(err, contract.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.Is(err, contract.ErrUninitialized), errors.Is(err, contract.ErrAlreadyInitialized),
		errors.Is(err, contract.ErrProhibitedInView):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
	h.logger.Debug("http error", zap.Int("status", status), zap.String("error", msg))
}
