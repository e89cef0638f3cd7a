package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dividendscout/pipeline/internal/database"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db *database.DB
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB) *Handler {
	return &Handler{db: db}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSymbols handles GET /symbols
func (h *Handler) GetSymbols(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	symbols, err := h.db.GetAllSymbols(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, symbols)
}

// GetSymbol handles GET /symbols/{symbol}
func (h *Handler) GetSymbol(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol, err := h.db.GetSymbol(vars["symbol"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, symbol)
}

// GetPrices handles GET /symbols/{symbol}/prices
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit := queryInt(r, "limit", 30)
	prices, err := h.db.GetPriceBars(vars["symbol"], limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, prices)
}

// GetDividends handles GET /symbols/{symbol}/dividends
func (h *Handler) GetDividends(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit := queryInt(r, "limit", 50)
	dividends, err := h.db.GetDividends(vars["symbol"], limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, dividends)
}

// GetUpcomingDividends handles GET /dividends/upcoming
func (h *Handler) GetUpcomingDividends(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	from := time.Now().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, days)

	dividends, err := h.db.GetUpcomingDividends(from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, dividends)
}

// GetETFHoldings handles GET /etfs/{symbol}/holdings
func (h *Handler) GetETFHoldings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	holdings, err := h.db.GetETFHoldings(vars["symbol"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, holdings)
}

// GetRuns handles GET /runs
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	runs, err := h.db.GetRecentPipelineRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
