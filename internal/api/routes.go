package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Data routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/symbols", handler.GetSymbols).Methods("GET")
	api.HandleFunc("/symbols/{symbol}", handler.GetSymbol).Methods("GET")
	api.HandleFunc("/symbols/{symbol}/prices", handler.GetPrices).Methods("GET")
	api.HandleFunc("/symbols/{symbol}/dividends", handler.GetDividends).Methods("GET")
	api.HandleFunc("/dividends/upcoming", handler.GetUpcomingDividends).Methods("GET")
	api.HandleFunc("/etfs/{symbol}/holdings", handler.GetETFHoldings).Methods("GET")
	api.HandleFunc("/runs", handler.GetRuns).Methods("GET")

	return r
}
