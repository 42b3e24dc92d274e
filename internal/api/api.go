// Package api exposes the bidding operations over HTTP. Validation
// rejections travel as normal responses with accepted=false; HTTP error
// codes are reserved for bad requests, unknown auctions and conflicts.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tradefloor/auctioneer/internal/auction"
)

// Handler serves the auction API.
type Handler struct {
	manager *auction.Manager
	logger  *slog.Logger
}

// NewHandler returns a Handler backed by the given manager.
func NewHandler(manager *auction.Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// Router builds the HTTP route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/auctions", h.createAuction).Methods(http.MethodPost)
	r.HandleFunc("/api/auctions/{id}", h.getSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/auctions/{id}/bids", h.submitBid).Methods(http.MethodPost)
	r.HandleFunc("/api/auctions/{id}/bids", h.listBids).Methods(http.MethodGet)
	r.HandleFunc("/api/auctions/{id}/cancel", h.cancelAuction).Methods(http.MethodPost)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeManagerError maps the manager's error taxonomy onto HTTP codes.
func (h *Handler) writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		writeError(w, http.StatusNotFound, "auction not found")
	case errors.Is(err, auction.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent updates exhausted retries, try again")
	case errors.Is(err, auction.ErrInvalidAmount), errors.Is(err, auction.ErrBidTooLow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
