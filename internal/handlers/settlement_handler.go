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

// SettlementHandler - структура для обработки HTTP-запросов расчёта:
// оплата, webhook шлюза, доставка.
type SettlementHandler struct {
	Service *services.SettlementService
	Logger  *log.Logger
	Timeout time.Duration
}

// NewSettlementHandler создаёт новый экземпляр SettlementHandler.
func NewSettlementHandler(service *services.SettlementService, logger *log.Logger, timeout time.Duration) *SettlementHandler {
	return &SettlementHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// Checkout обрабатывает запрос победителя на оплату выигранного аукциона.
func (h *SettlementHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	checkout, err := h.Service.InitiateCheckout(ctx, principal, req.AuctionID)
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, checkout)
}

// Webhook обрабатывает подтверждение платёжного шлюза.
// Аутентифицируется не заголовками пользователя, а подписью шлюза,
// которую снимает внешний edge.
func (h *SettlementHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var event models.GatewayEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	if err := h.Service.HandleGatewayEvent(ctx, event); err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, map[string]string{"status": "processed"})
}

// GetPayment обрабатывает получение платежа по аукциону.
func (h *SettlementHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	payment, err := h.Service.GetPayment(ctx, principal, r.PathValue("auctionId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, payment)
}

// ChooseDelivery обрабатывает выбор способа получения лота победителем.
func (h *SettlementHandler) ChooseDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	delivery, err := h.Service.ChooseDelivery(ctx, principal, req)
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusCreated, delivery)
}

// UpdateDelivery обрабатывает изменение способа получения лота победителем.
func (h *SettlementHandler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.DeliveryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	delivery, err := h.Service.UpdateDelivery(ctx, principal, r.PathValue("deliveryId"), req)
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, delivery)
}

// CompleteDelivery обрабатывает завершение доставки администратором.
func (h *SettlementHandler) CompleteDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	delivery, err := h.Service.CompleteDelivery(ctx, principal, r.PathValue("deliveryId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, delivery)
}
