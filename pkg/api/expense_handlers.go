package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gymledger/pkg/expenses"
	"github.com/platinummonkey/gymledger/pkg/httputil"
)

// ExpenseHandlers handles expense requests
type ExpenseHandlers struct {
	expenses expenses.Service
}

// NewExpenseHandlers creates a new ExpenseHandlers
func NewExpenseHandlers(svc expenses.Service) *ExpenseHandlers {
	return &ExpenseHandlers{expenses: svc}
}

// RegisterRoutes registers expense routes
func (h *ExpenseHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/expense", h.CreateExpense).Methods("POST")
	router.HandleFunc("/expense", h.ListExpenses).Methods("GET")
}

// CreateExpense handles POST /expense
func (h *ExpenseHandlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	var req expenses.CreateExpenseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	expense, err := h.expenses.CreateExpense(r.Context(), ownerID, &req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteCreated(w, "Expense created successfully", expense)
}

// ListExpenses handles GET /expense
func (h *ExpenseHandlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	list, err := h.expenses.ListExpenses(r.Context(), ownerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, "Expenses fetched successfully", list)
}
