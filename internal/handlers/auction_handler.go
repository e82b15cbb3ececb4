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

// AuctionHandler - структура для обработки HTTP-запросов жизненного цикла аукциона.
type AuctionHandler struct {
	Service *services.AuctionService
	Logger  *log.Logger
	Timeout time.Duration
}

// NewAuctionHandler создаёт новый экземпляр AuctionHandler.
func NewAuctionHandler(service *services.AuctionService, logger *log.Logger, timeout time.Duration) *AuctionHandler {
	return &AuctionHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// CreateAuction обрабатывает создание аукциона продавцом.
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.AuctionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	auction, err := h.Service.Create(ctx, principal, req)
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusCreated, auction)
}

// GetAuction обрабатывает получение аукциона.
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	auction, err := h.Service.GetAuction(ctx, r.PathValue("auctionId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, auction)
}

// GetLiveAuctions обрабатывает получение идущих аукционов.
func (h *AuctionHandler) GetLiveAuctions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	auctions, err := h.Service.ListByStatus(ctx, models.LiveAuction, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, auctions)
}

// GetWonAuctions обрабатывает получение аукционов, выигранных пользователем.
func (h *AuctionHandler) GetWonAuctions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	auctions, err := h.Service.ListWon(ctx, principal, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, auctions)
}

// StartAuction обрабатывает запуск аукциона.
func (h *AuctionHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	h.mutateAuction(w, r, h.Service.Start)
}

// EndAuction обрабатывает завершение аукциона.
func (h *AuctionHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	h.mutateAuction(w, r, h.Service.End)
}

// CancelAuction обрабатывает отмену аукциона.
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	h.mutateAuction(w, r, h.Service.Cancel)
}

func (h *AuctionHandler) mutateAuction(w http.ResponseWriter, r *http.Request, op func(context.Context, models.Principal, string) (*models.Auction, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	auction, err := op(ctx, principal, r.PathValue("auctionId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, auction)
}
