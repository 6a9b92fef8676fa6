package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spendly/internal/core"
	"spendly/internal/services"
)

// expenseRequest is the body of a create call and of one sync item.
type expenseRequest struct {
	Amount        *core.Money `json:"amount"`
	Category      string      `json:"category"`
	PaymentMethod string      `json:"paymentMethod"`
	Description   string      `json:"description"`
	Date          string      `json:"date"`
	LocalID       *string     `json:"localId"`
}

func (req expenseRequest) input() services.ExpenseInput {
	return services.ExpenseInput{
		Amount:        req.Amount,
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		Date:          req.Date,
		LocalID:       req.LocalID,
	}
}

// expenseUpdateRequest holds the fields of a partial update. Absent fields
// are left unchanged.
type expenseUpdateRequest struct {
	Amount        *core.Money `json:"amount"`
	Category      *string     `json:"category"`
	PaymentMethod *string     `json:"paymentMethod"`
	Description   *string     `json:"description"`
	Date          *string     `json:"date"`
}

func (req expenseUpdateRequest) input() services.ExpenseUpdateInput {
	return services.ExpenseUpdateInput{
		Amount:        req.Amount,
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		Date:          req.Date,
	}
}

type pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.deps.Expenses.CreateExpense(r.Context(), ownerID(r), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Expense added", "expense": e})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query(), s.deps.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.deps.Expenses.ListExpenses(r.Context(), ownerID(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expenses":   page.Expenses,
		"pagination": pagination{Current: page.Page, Pages: page.Pages, Total: page.Total},
	})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Expenses.GetExpense(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expense": e})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.deps.Expenses.UpdateExpense(r.Context(), ownerID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Expense updated", "expense": e})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Expenses.DeleteExpense(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Expense deleted"})
}
