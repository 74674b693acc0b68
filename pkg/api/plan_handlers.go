package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/httputil"
)

// PlanHandlers handles subscription plan requests
type PlanHandlers struct {
	plans catalog.Service
}

// NewPlanHandlers creates a new PlanHandlers
func NewPlanHandlers(plans catalog.Service) *PlanHandlers {
	return &PlanHandlers{plans: plans}
}

// RegisterRoutes registers plan routes
func (h *PlanHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plan", h.CreatePlan).Methods("POST")
	router.HandleFunc("/plan/{ownerId}", h.ListPlans).Methods("GET")
}

// CreatePlan handles POST /plan
func (h *PlanHandlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	var req catalog.CreatePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	plan, err := h.plans.CreatePlan(r.Context(), ownerID, &req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteCreated(w, "Plan created successfully", plan)
}

// ListPlans handles GET /plan/{ownerId}. Owners may only list their own plans.
func (h *PlanHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	requested, ok := httputil.ParsePathInt64OrError(w, r, "ownerId")
	if !ok {
		return
	}
	if requested != ownerID {
		httputil.WriteForbidden(w, "cannot list plans of another owner")
		return
	}

	plans, err := h.plans.ListPlans(r.Context(), ownerID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, "Plans fetched successfully", plans)
}
