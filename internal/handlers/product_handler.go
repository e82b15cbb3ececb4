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

// ProductHandler - структура для обработки HTTP-запросов жизненного цикла товара.
type ProductHandler struct {
	Service *services.ProductService
	Logger  *log.Logger
	Timeout time.Duration
}

// NewProductHandler создаёт новый экземпляр ProductHandler.
func NewProductHandler(service *services.ProductService, logger *log.Logger, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// SubmitProduct обрабатывает запросы на подачу товара продавцом.
func (h *ProductHandler) SubmitProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, models.CodeValidationError, "invalid request body")
		return
	}

	product, err := h.Service.Submit(ctx, principal, req)
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusCreated, product)
}

// GetProduct обрабатывает запросы на получение товара.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	product, err := h.Service.GetProduct(ctx, r.PathValue("productId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, product)
}

// GetMyProducts обрабатывает запросы на получение товаров продавца.
func (h *ProductHandler) GetMyProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	products, err := h.Service.ListSellerProducts(ctx, principal, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, products)
}

// GetReviewQueue обрабатывает запросы на очередь проверки документов.
func (h *ProductHandler) GetReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	products, err := h.Service.ListReviewQueue(ctx, principal, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, products)
}

// ApproveDocuments обрабатывает одобрение документов товара.
func (h *ProductHandler) ApproveDocuments(w http.ResponseWriter, r *http.Request) {
	h.decideDocuments(w, r, true)
}

// RejectDocuments обрабатывает отклонение документов товара.
func (h *ProductHandler) RejectDocuments(w http.ResponseWriter, r *http.Request) {
	h.decideDocuments(w, r, false)
}

func (h *ProductHandler) decideDocuments(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.InspectionDecisionRequest
	if r.Body != nil {
		// Тело необязательно, пустое читается как нулевой запрос.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var product *models.Product
	if approve {
		product, err = h.Service.ApproveDocuments(ctx, principal, r.PathValue("productId"), req.Remarks)
	} else {
		product, err = h.Service.RejectDocuments(ctx, principal, r.PathValue("productId"), req.Reason)
	}
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, product)
}

// OpenInspection обрабатывает взятие товара на осмотр инспектором.
func (h *ProductHandler) OpenInspection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	inspection, err := h.Service.CreateOrReuseInspection(ctx, principal, r.PathValue("productId"))
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusCreated, inspection)
}

// ApproveInspection обрабатывает успешное завершение осмотра.
func (h *ProductHandler) ApproveInspection(w http.ResponseWriter, r *http.Request) {
	h.decideInspection(w, r, true)
}

// RejectInspection обрабатывает завершение осмотра отказом.
func (h *ProductHandler) RejectInspection(w http.ResponseWriter, r *http.Request) {
	h.decideInspection(w, r, false)
}

func (h *ProductHandler) decideInspection(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	principal, err := utils.GetPrincipal(r)
	if err != nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, models.CodeForbidden, err.Error())
		return
	}

	var req models.InspectionDecisionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var inspection *models.Inspection
	if approve {
		inspection, err = h.Service.ApproveInspection(ctx, principal, r.PathValue("inspectionId"), req.Remarks)
	} else {
		inspection, err = h.Service.RejectInspection(ctx, principal, r.PathValue("inspectionId"), req.Reason)
	}
	if err != nil {
		h.Logger.Println(err)
		utils.SendServiceError(w, err)
		return
	}
	utils.SendJSONResponse(w, http.StatusOK, inspection)
}
