package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/request"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/prediction"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/stats"
)

// AnalyticsHandler handles prediction, stats and economy endpoints
type AnalyticsHandler struct {
	presence   *presence.Service
	prediction *prediction.Service
	stats      *stats.Service
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(presence *presence.Service, prediction *prediction.Service, stats *stats.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		presence:   presence,
		prediction: prediction,
		stats:      stats,
	}
}

// Prediction handles GET /api/v1/groups/{group}/players/{player}/prediction.
// Too little history is a normal outcome and answers 200.
func (h *AnalyticsHandler) Prediction(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	player, err := resolvePlayer(r.Context(), h.presence, group, mux.Vars(r)["player"])
	if err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.prediction.PredictReturn(r.Context(), group, player.ID)
	switch {
	case errors.Is(err, model.ErrInsufficientData):
		response.JSON(w, http.StatusOK, response.Prediction{Status: response.PredictionInsufficient, Player: player})
	case err != nil:
		WriteError(w, err)
	default:
		response.JSON(w, http.StatusOK, response.Prediction{Status: response.PredictionOK, Player: player, Prediction: p})
	}
}

// Stats handles GET /api/v1/groups/{group}/players/{player}/stats
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	player, err := resolvePlayer(r.Context(), h.presence, group, mux.Vars(r)["player"])
	if err != nil {
		WriteError(w, err)
		return
	}

	s, err := h.stats.PlaytimeStats(r.Context(), group, player.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, s)
}

// Leaderboard handles GET /api/v1/groups/{group}/leaderboard?limit=
func (h *AnalyticsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	limit := stats.DefaultLeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			WriteError(w, NewInvalidRequestError("limit must be a positive integer"))
			return
		}
	}

	entries, err := h.stats.Leaderboard(r.Context(), group, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []stats.LeaderboardEntry{}
	}

	response.JSON(w, http.StatusOK, entries)
}

// Economy handles GET /api/v1/groups/{group}/economy
func (h *AnalyticsHandler) Economy(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	report, err := h.stats.EconomyStats(r.Context(), group)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}

// RecordTrade handles POST /api/v1/groups/{group}/trades
func (h *AnalyticsHandler) RecordTrade(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.TradeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	trade := &model.Trade{
		Group:      group,
		Buyer:      req.Buyer,
		Seller:     req.Seller,
		Item:       req.Item,
		Quantity:   req.Quantity,
		CostItem:   req.CostItem,
		CostAmount: req.CostAmount,
		At:         req.At,
	}
	if err := h.stats.RecordTrade(r.Context(), trade); err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, trade)
}

// RecordListings handles POST /api/v1/groups/{group}/listings
func (h *AnalyticsHandler) RecordListings(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.ListingsRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	listings := make([]*model.MarketListing, 0, len(req.Listings))
	for _, o := range req.Listings {
		listings = append(listings, &model.MarketListing{
			Item:       o.Item,
			Quantity:   o.Quantity,
			CostItem:   o.CostItem,
			CostAmount: o.CostAmount,
			Stock:      o.Stock,
		})
	}
	saved, err := h.stats.RecordListings(r.Context(), group, req.Shop, req.At, listings)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.Listings{Listings: saved})
}

// SearchListings handles GET /api/v1/groups/{group}/listings?item=
func (h *AnalyticsHandler) SearchListings(w http.ResponseWriter, r *http.Request) {
	group, err := groupID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.stats.SearchListings(r.Context(), group, r.URL.Query().Get("item"))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}
