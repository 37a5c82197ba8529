package dashboard

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apphttp "spendscope/internal/http"
	"spendscope/internal/logger"
	dashsvc "spendscope/internal/services/dashboard"
	"spendscope/internal/source"
)

var service *dashsvc.Service

// Initialize sets up the dashboard package with required dependencies
func Initialize(s *dashsvc.Service) {
	service = s
}

// RegisterRoutes registers all dashboard routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/dashboard", handleDashboard)
	r.Get("/dashboard/charts/data/{chartType}", handleChartData)
	r.Get("/dashboard/category/{category}", handleCategoryDrilldown)
	r.Get("/export/{format}", handleExport)
}

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, ok := buildView(w, r)
	if !ok {
		return
	}

	status := http.StatusOK
	if view.State == dashsvc.StateUnavailable {
		status = http.StatusServiceUnavailable
	}
	apphttp.WriteJSON(w, status, view)
}

func handleChartData(w http.ResponseWriter, r *http.Request) {
	chartType := chi.URLParam(r, "chartType")

	build, known := chartBuilders[chartType]
	if !known {
		apphttp.ErrorResponse(w, r, "Unknown chart type", http.StatusBadRequest)
		return
	}

	view, ok := buildView(w, r)
	if !ok {
		return
	}
	if view.State == dashsvc.StateUnavailable {
		apphttp.ErrorResponse(w, r, view.Message, http.StatusServiceUnavailable)
		return
	}

	apphttp.WriteJSON(w, http.StatusOK, build(view.Result))
}

func handleCategoryDrilldown(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	crit, err := apphttp.ParseCriteria(r)
	if err != nil {
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	drill, err := service.Drilldown(r.Context(), apphttp.Session(r), category, crit)
	if err != nil {
		if errors.Is(err, source.ErrNoSession) {
			apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
			return
		}
		logger.FromContext(r.Context()).Error().Err(err).Str("category", category).Msg("drilldown failed")
		apphttp.ErrorResponse(w, r, "Transactions could not be loaded", http.StatusServiceUnavailable)
		return
	}

	apphttp.WriteJSON(w, http.StatusOK, drill)
}

// buildView parses the request and assembles the dashboard view. It writes
// the error response itself and reports false when the caller should stop.
func buildView(w http.ResponseWriter, r *http.Request) (*dashsvc.View, bool) {
	crit, err := apphttp.ParseCriteria(r)
	if err != nil {
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	view, err := service.Build(r.Context(), dashsvc.Request{
		Session:    apphttp.Session(r),
		Criteria:   crit,
		Comparison: apphttp.ParseComparison(r),
	})
	if err != nil {
		if errors.Is(err, source.ErrNoSession) {
			apphttp.ErrorResponse(w, r, "Authentication required", http.StatusUnauthorized)
			return nil, false
		}
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return view, true
}
