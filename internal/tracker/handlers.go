package tracker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
	"github.com/freelilwilly/polymarket-tracker/internal/store"
)

// defaultAuditLimit bounds GET /audit when no limit is given.
const defaultAuditLimit = 100

// --- Request/Response types ---

// RecordRequest is the JSON body for POST /api/v1/trades.
type RecordRequest struct {
	Trader   model.Trader     `json:"trader"`
	Category string           `json:"category"`
	TradeKey string           `json:"trade_key"` // derived from the trade when empty
	Trade    model.TradeEvent `json:"trade"`
}

// RecordResponse is the JSON body returned from POST /api/v1/trades. Error
// is set when the trade was applied but its snapshot was not persisted.
type RecordResponse struct {
	Audit  model.AuditRow `json:"audit"`
	Reason string         `json:"reason,omitempty"` // why an IGNORED trade was not copied
	Error  string         `json:"error,omitempty"`
}

// SeedRequest is the JSON body for PUT /api/v1/traders/{traderID}/history.
type SeedRequest struct {
	Sizes []float64 `json:"sizes"`
}

// Routes mounts the tracker API on r. The WebSocket endpoint is mounted
// separately so it can skip request timeouts.
func (s *Service) Routes(r chi.Router) {
	r.Post("/trades", s.RecordTrade)
	r.Put("/traders/{traderID}/history", s.SeedTraderHistory)
	r.Get("/traders/open", s.OpenTraders)
	r.Get("/summary", s.GetSummary)
	r.Get("/positions", s.ListPositions)
	r.Get("/accounts", s.ListAccounts)
	r.Get("/audit", s.ListAudit)
	r.Post("/snapshot/flush", s.FlushSnapshot)
}

// --- HTTP Handlers ---

// RecordTrade handles POST /api/v1/trades
func (s *Service) RecordTrade(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.Record(r.Context(), req.Trade, req.Trader, req.Category, req.TradeKey)

	resp := RecordResponse{Audit: res.Row}
	if res.Reason != nil {
		resp.Reason = res.Reason.Error()
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SeedTraderHistory handles PUT /api/v1/traders/{traderID}/history
func (s *Service) SeedTraderHistory(w http.ResponseWriter, r *http.Request) {
	traderID := chi.URLParam(r, "traderID")

	var req SeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.SeedHistory(traderID, req.Sizes)
	w.WriteHeader(http.StatusNoContent)
}

// OpenTraders handles GET /api/v1/traders/open
func (s *Service) OpenTraders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"traders": s.engine.TradersWithOpenPositions(),
	})
}

// GetSummary handles GET /api/v1/summary
// Serves the persisted summary, or the live one before the first write.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.GetSummary(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		live := s.engine.Snapshot().Summary
		summary, err = &live, nil
	}
	if err != nil {
		slog.Error("load summary failed", "err", err)
		writeError(w, "failed to load summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListPositions handles GET /api/v1/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		slog.Error("load positions failed", "err", err)
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// ListAccounts handles GET /api/v1/accounts
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		slog.Error("load accounts failed", "err", err)
		writeError(w, "failed to load accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// ListAudit handles GET /api/v1/audit?limit=N
// Returns the newest audit rows first.
func (s *Service) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := s.store.ListAudit(r.Context(), limit)
	if err != nil {
		slog.Error("load audit failed", "err", err)
		writeError(w, "failed to load audit log", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []model.AuditRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// FlushSnapshot handles POST /api/v1/snapshot/flush
func (s *Service) FlushSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.Flush(r.Context()); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending_audit": s.Pending()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
