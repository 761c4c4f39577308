package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Fault injection keyed by contract account. A partitioned account refuses
// calls and views with 503; a latency setting delays them before execution.

type chaosRequest struct {
	Contract  string `json:"contract"`
	LatencyMs int    `json:"latency_ms"`
}

func (h *Handler) decodeChaos(w http.ResponseWriter, r *http.Request) (chaosRequest, bool) {
	var body chaosRequest
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return body, false
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Contract == "" {
		h.writeError(w, http.StatusBadRequest, "contract required")
		return body, false
	}
	return body, true
}

func (h *Handler) handlePartition(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeChaos(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	h.partitioned[body.Contract] = true
	h.mu.Unlock()

	h.logger.Info("contract partitioned", zap.String("contract", body.Contract))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "partitioned",
		"contract": body.Contract,
	})
}

func (h *Handler) handleHeal(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeChaos(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	delete(h.partitioned, body.Contract)
	delete(h.latency, body.Contract)
	h.mu.Unlock()

	h.logger.Info("contract healed", zap.String("contract", body.Contract))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healed",
		"contract": body.Contract,
	})
}

func (h *Handler) handleLatency(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeChaos(w, r)
	if !ok {
		return
	}
	if body.LatencyMs < 0 {
		h.writeError(w, http.StatusBadRequest, "latency_ms must be non-negative")
		return
	}

	h.mu.Lock()
	h.latency[body.Contract] = time.Duration(body.LatencyMs) * time.Millisecond
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "latency_set",
		"contract":   body.Contract,
		"latency_ms": body.LatencyMs,
	})
}

// admit applies the faults configured for contract. It reports false when
// the request was answered here and must not reach the server.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, contract string) bool {
	if h.isPartitioned(contract) {
		h.writeError(w, http.StatusServiceUnavailable, "contract partitioned")
		return false
	}
	if delay := h.getLatency(contract); delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			h.writeError(w, http.StatusServiceUnavailable, "request canceled during injected latency")
			return false
		}
	}
	return true
}

func (h *Handler) isPartitioned(contract string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.partitioned[contract]
}

func (h *Handler) getLatency(contract string) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latency[contract]
}
