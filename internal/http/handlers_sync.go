package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"spendly/internal/core"
	"spendly/internal/services"
)

// syncRequest keeps items raw so one malformed record fails alone instead of
// rejecting the batch.
type syncRequest struct {
	Expenses json.RawMessage `json:"expenses"`
}

type syncResponse struct {
	Message string `json:"message"`
	services.SyncResult
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	candidates, err := decodeSyncCandidates(req.Expenses)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.Sync.Reconcile(r.Context(), ownerID(r), candidates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Message: "Sync complete", SyncResult: result})
}

// decodeSyncCandidates splits the expenses array into candidates. Items are
// decoded leniently: offline clients send their whole local record, so fields
// such as syncStatus or createdAt are ignored.
func decodeSyncCandidates(raw json.RawMessage) ([]services.SyncCandidate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, core.NewValidationError("expenses", "expenses array is required")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, core.NewValidationError("expenses", "expenses must be an array")
	}

	candidates := make([]services.SyncCandidate, len(items))
	for i, item := range items {
		var req expenseRequest
		if err := json.Unmarshal(item, &req); err != nil {
			// Recover the localId so the client can match the failure.
			var key struct {
				LocalID *string `json:"localId"`
			}
			_ = json.Unmarshal(item, &key)
			candidates[i] = services.SyncCandidate{
				Input: services.ExpenseInput{LocalID: key.LocalID},
				Err:   bodyError(err),
			}
			continue
		}
		candidates[i] = services.SyncCandidate{Input: req.input()}
	}
	return candidates, nil
}
