package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tradefloor/auctioneer/internal/auction"
	"github.com/tradefloor/auctioneer/internal/money"
)

// Monetary fields cross the wire as decimal strings ("125.00") and are
// parsed exactly; floats never touch an amount.

type createAuctionRequest struct {
	ItemRef      string `json:"item_ref"`
	SellerID     string `json:"seller_id"`
	StartingBid  string `json:"starting_bid"`
	ReservePrice string `json:"reserve_price,omitempty"`
	BuyNowPrice  string `json:"buy_now_price,omitempty"`
	StartTime    string `json:"start_time,omitempty"` // RFC 3339
	Duration     string `json:"duration,omitempty"`   // Go duration, e.g. "24h"
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemRef == "" || req.SellerID == "" {
		writeError(w, http.StatusBadRequest, "item_ref and seller_id are required")
		return
	}

	params := auction.CreateParams{ItemRef: req.ItemRef, SellerID: req.SellerID}

	var err error
	if params.StartingBid, err = money.ParsePositive(req.StartingBid); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("starting_bid: %v", err))
		return
	}
	if req.ReservePrice != "" {
		if params.ReservePrice, err = money.ParsePositive(req.ReservePrice); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("reserve_price: %v", err))
			return
		}
	}
	if req.BuyNowPrice != "" {
		if params.BuyNowPrice, err = money.ParsePositive(req.BuyNowPrice); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("buy_now_price: %v", err))
			return
		}
	}
	if req.StartTime != "" {
		if params.StartTime, err = time.Parse(time.RFC3339, req.StartTime); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("start_time: %v", err))
			return
		}
	}
	if req.Duration != "" {
		if params.Duration, err = time.ParseDuration(req.Duration); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("duration: %v", err))
			return
		}
	}

	snap, err := h.manager.Create(r.Context(), params)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type submitBidRequest struct {
	BidderID string `json:"bidder_id"`
	Amount   string `json:"amount"`
}

type bidResponse struct {
	Accepted   bool      `json:"accepted"`
	BidID      string    `json:"bid_id"`
	Reason     string    `json:"reason,omitempty"`
	CurrentBid string    `json:"current_bid"`
	MinimumBid string    `json:"minimum_bid,omitempty"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
}

func toBidResponse(res *auction.BidResult) bidResponse {
	out := bidResponse{
		Accepted:   res.Accepted,
		BidID:      res.BidID,
		Reason:     string(res.Reason),
		CurrentBid: res.CurrentBid.String(),
		EndTime:    res.EndTime,
		Status:     string(res.Status),
	}
	if res.MinimumBid > 0 {
		out.MinimumBid = res.MinimumBid.String()
	}
	return out
}

func (h *Handler) submitBid(w http.ResponseWriter, r *http.Request) {
	var req submitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BidderID == "" {
		writeError(w, http.StatusBadRequest, "bidder_id is required")
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("amount: %v", err))
		return
	}

	res, err := h.manager.SubmitBid(r.Context(), mux.Vars(r)["id"], req.BidderID, amount)
	if err != nil {
		// A conflict result still carries the rejection entry; the 409
		// tells the caller to retry rather than report a validation error.
		if errors.Is(err, auction.ErrConflict) && res != nil {
			writeJSON(w, http.StatusConflict, toBidResponse(res))
			return
		}
		h.writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBidResponse(res))
}

type bidHistoryEntry struct {
	BidID    string    `json:"bid_id"`
	BidderID string    `json:"bidder_id"`
	Amount   string    `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
	Accepted bool      `json:"accepted"`
	Reason   string    `json:"reason,omitempty"`
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	entries, err := h.manager.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	out := make([]bidHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, bidHistoryEntry{
			BidID:    e.ID,
			BidderID: e.BidderID,
			Amount:   e.Amount.String(),
			PlacedAt: e.PlacedAt,
			Accepted: e.Accepted,
			Reason:   string(e.Reason),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type cancelRequest struct {
	Actor string `json:"actor"`
}

type cancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.manager.Cancel(r.Context(), mux.Vars(r)["id"], req.Actor)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: res.OK, Reason: res.Reason})
}
