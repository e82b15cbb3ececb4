package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/services"
	"github.com/senyabanana/auction-service/internal/utils"
)

// BidHandler - структура для обработки HTTP-запросов ставок.
type BidHandler struct {
	Service *services.BidService
	Logger  *log.Logger
	Timeout time.Duration
}

// NewBidHandler создаёт новый экземпляр BidHandler.
func NewBidHandler(service *services.BidService, logger *log.Logger, timeout time.Duration) *BidHandler {
	return &BidHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// PlaceBid обрабатывает ручную ставку участника.
func (h *BidHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	bid, err := h.Service.SubmitBid(ctx, principal, r.PathValue("auctionId"), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusCreated, bid)
}

// PlaceProxyBid обрабатывает регистрацию прокси-ставки.
func (h *BidHandler) PlaceProxyBid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.ProxyBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	proxy, err := h.Service.SubmitProxyBid(ctx, principal, r.PathValue("auctionId"), req)
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusCreated, proxy)
}

// GetAuctionBids обрабатывает получение журнала ставок аукциона.
func (h *BidHandler) GetAuctionBids(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bids, err := h.Service.ListAuctionBids(ctx, r.PathValue("auctionId"), r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, bids)
}

// GetMyBids обрабатывает получение ставок участника.
func (h *BidHandler) GetMyBids(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	bids, err := h.Service.ListMyBids(ctx, principal, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, bids)
}

// GetMyProxyBid обрабатывает получение собственной прокси-ставки участника.
func (h *BidHandler) GetMyProxyBid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	proxy, err := h.Service.GetOwnProxy(ctx, principal, r.PathValue("auctionId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, proxy)
}

// GetPrice обрабатывает получение текущей цены аукциона.
func (h *BidHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	snapshot, err := h.Service.GetPrice(ctx, r.PathValue("auctionId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, snapshot)
}
