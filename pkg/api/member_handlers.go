package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/ledger"
)

// MemberHandlers handles member requests
type MemberHandlers struct {
	members ledger.Service
}

// NewMemberHandlers creates a new MemberHandlers
func NewMemberHandlers(members ledger.Service) *MemberHandlers {
	return &MemberHandlers{members: members}
}

// RegisterRoutes registers member routes
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/member", h.CreateMember).Methods("POST")
	router.HandleFunc("/member", h.ListMembers).Methods("GET")
	router.HandleFunc("/member/{id}", h.GetMember).Methods("GET")
	router.HandleFunc("/member/{id}", h.DeleteMember).Methods("DELETE")
	router.HandleFunc("/member/{id}/payments", h.GetPaymentHistory).Methods("GET")
	router.HandleFunc("/ledger/reconcile", h.Reconcile).Methods("GET")
}

// CreateMember handles POST /member. The admission payment is recorded in
// the same transaction.
func (h *MemberHandlers) CreateMember(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	var req ledger.CreateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.members.CreateMember(r.Context(), ownerID, &req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteCreated(w, "Member created successfully", created)
}

// ListMembers handles GET /member
func (h *MemberHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	members, err := h.members.ListMembers(r.Context(), ownerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, "Members fetched successfully", members)
}

// GetMember handles GET /member/{id}
func (h *MemberHandlers) GetMember(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	member, err := h.members.GetMember(r.Context(), ownerID, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, "Member fetched successfully", member)
}

// DeleteMember handles DELETE /member/{id}
func (h *MemberHandlers) DeleteMember(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.members.DeleteMember(r.Context(), ownerID, id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, "Member deleted successfully", nil)
}

// GetPaymentHistory handles GET /member/{id}/payments
func (h *MemberHandlers) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	history, err := h.members.GetMemberWithPaymentHistory(r.Context(), ownerID, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, "Payment history fetched successfully", history)
}

// Reconcile handles GET /ledger/reconcile
func (h *MemberHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	discrepancies, err := h.members.Reconcile(r.Context(), ownerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	message := "Ledger is consistent"
	if len(discrepancies) > 0 {
		message = "Ledger discrepancies found"
	}
	httputil.WriteSuccess(w, message, discrepancies)
}

// PaymentHandlers handles payment requests
type PaymentHandlers struct {
	members ledger.Service
}

// NewPaymentHandlers creates a new PaymentHandlers
func NewPaymentHandlers(members ledger.Service) *PaymentHandlers {
	return &PaymentHandlers{members: members}
}

// RegisterRoutes registers payment routes
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payment", h.RecordPayment).Methods("POST")
}

// RecordPayment handles POST /payment
func (h *PaymentHandlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	var req ledger.RecordPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	recorded, err := h.members.RecordPayment(r.Context(), ownerID, &req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteCreated(w, "Payment recorded successfully", recorded)
}
