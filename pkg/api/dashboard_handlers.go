package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gymledger/pkg/httputil"
)

// DashboardHandlers serves the dashboard
type DashboardHandlers struct {
	dashboards DashboardService
	now        func() time.Time
}

// NewDashboardHandlers creates a new DashboardHandlers
func NewDashboardHandlers(dashboards DashboardService) *DashboardHandlers {
	return &DashboardHandlers{
		dashboards: dashboards,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers dashboard routes
func (h *DashboardHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/dashboard", h.GetDashboard).Methods("GET")
}

// GetDashboard handles GET /dashboard. The body is the bare dashboard,
// without the message envelope.
func (h *DashboardHandlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerOrError(w, r)
	if !ok {
		return
	}

	d, err := h.dashboards.Dashboard(r.Context(), ownerID, h.now())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, d)
}
