package live

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/model"
)

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for POST /api/v1/markets.
type CreateMarketRequest struct {
	EventID  string         `json:"event_id"`
	Question string         `json:"question"`
	Options  []model.Option `json:"options"`
}

// PlaceWagerRequest is the JSON body for POST /api/v1/wagers.
type PlaceWagerRequest struct {
	EventID   string          `json:"event_id"`
	MarketID  string          `json:"market_id"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	OptionKey string          `json:"option_key"`
	Amount    decimal.Decimal `json:"amount"`
}

// PlaceWagerResponse is returned from POST /api/v1/wagers.
type PlaceWagerResponse struct {
	Success bool         `json:"success"`
	Wager   *model.Wager `json:"wager,omitempty"`
	Message string       `json:"message"`
}

// SettleMarketRequest is the JSON body for POST /api/v1/markets/{marketID}/settle.
type SettleMarketRequest struct {
	WinningOptionKey string `json:"winning_option_key"`
}

// SettleMarketResponse is returned from settle and void.
type SettleMarketResponse struct {
	Success     bool            `json:"success"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	Message     string          `json:"message"`
}

// --- HTTP Handlers ---

// HandleCreateMarket handles POST /api/v1/markets
func (s *Service) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	market, err := s.CreateMarket(r.Context(), req.EventID, req.Question, req.Options)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(market)
}

// HandleListMarkets handles GET /api/v1/markets?event_id=...
func (s *Service) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		writeError(w, "event_id is required", http.StatusBadRequest)
		return
	}

	markets, err := s.ListMarkets(r.Context(), eventID)
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]model.Market{"markets": markets})
}

// HandlePlaceWager handles POST /api/v1/wagers — the request/response
// placement path. The room socket funnels into the same Service.Place.
func (s *Service) HandlePlaceWager(w http.ResponseWriter, r *http.Request) {
	var req PlaceWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.MarketID == "" || req.EventID == "" {
		writeError(w, "event_id, market_id and user_id are required", http.StatusBadRequest)
		return
	}

	wager, _, err := s.Place(r.Context(), PlaceParams{
		EventID:   req.EventID,
		MarketID:  req.MarketID,
		UserID:    req.UserID,
		Username:  req.Username,
		OptionKey: req.OptionKey,
		Amount:    req.Amount,
	})
	if err != nil {
		writeError(w, err.Error(), placementStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(PlaceWagerResponse{
		Success: true,
		Wager:   wager,
		Message: "Bet placed successfully",
	})
}

// HandleSettleMarket handles POST /api/v1/markets/{marketID}/settle
func (s *Service) HandleSettleMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req SettleMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WinningOptionKey == "" {
		writeError(w, "winning_option_key is required", http.StatusBadRequest)
		return
	}

	totalPayout, err := s.Settle(r.Context(), marketID, req.WinningOptionKey)
	if err != nil {
		writeError(w, err.Error(), settlementStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SettleMarketResponse{
		Success:     true,
		TotalPayout: totalPayout,
		Message:     "Market settled",
	})
}

// HandleVoidMarket handles POST /api/v1/markets/{marketID}/void
func (s *Service) HandleVoidMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	refunded, err := s.Void(r.Context(), marketID)
	if err != nil {
		writeError(w, err.Error(), settlementStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SettleMarketResponse{
		Success:     true,
		TotalPayout: refunded,
		Message:     "Market voided, stakes refunded",
	})
}

// placementStatus maps placement errors to HTTP statuses.
func placementStatus(err error) int {
	switch {
	case errors.Is(err, ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMarketClosed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidOption), errors.Is(err, ErrBetLimit):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// settlementStatus maps settlement errors to HTTP statuses.
func settlementStatus(err error) int {
	switch {
	case errors.Is(err, ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
