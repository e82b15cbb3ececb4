package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository"
	"github.com/senyabanana/auction-service/internal/utils"
)

// allowedProductTransitions описывает машину состояний товара.
var allowedProductTransitions = map[models.ProductStatus][]models.ProductStatus{
	models.PendingProduct:           {models.DocApprovedProduct, models.DocRejectedProduct},
	models.DocApprovedProduct:       {models.InspectionPendingProduct},
	models.InspectionPendingProduct: {models.ApprovedProduct, models.RejectedProduct},
	models.ApprovedProduct:          {models.AuctionedProduct},
	models.AuctionedProduct:         {models.SoldProduct, models.ApprovedProduct},
	models.DocRejectedProduct:       {},
	models.RejectedProduct:          {},
	models.SoldProduct:              {},
}

// ProductService реализует жизненный цикл товара: подача, проверка
// документов, физический осмотр, допуск к аукциону.
type ProductService struct {
	Products    repository.ProductRepository
	Inspections repository.InspectionRepository
	emitter     notify.Emitter
}

// NewProductService создаёт новый экземпляр ProductService.
func NewProductService(products repository.ProductRepository, inspections repository.InspectionRepository, emitter notify.Emitter) *ProductService {
	return &ProductService{
		Products:    products,
		Inspections: inspections,
		emitter:     emitter,
	}
}

// Submit принимает товар от продавца в статусе PENDING.
func (s *ProductService) Submit(ctx context.Context, principal models.Principal, req models.ProductRequest) (*models.Product, error) {
	if principal.Role != models.RoleSeller {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only sellers can submit products")
	}
	if req.Title == "" || req.Description == "" || req.Category == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "missing required fields")
	}

	product, err := s.Products.Create(ctx, principal.UserID, req)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to create product")
	}
	s.emitStatusChanged(ctx, product)
	return product, nil
}

// GetProduct возвращает товар по ID.
func (s *ProductService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.Products.GetByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch product")
	}
	return product, nil
}

// ListSellerProducts возвращает товары продавца.
func (s *ProductService) ListSellerProducts(ctx context.Context, principal models.Principal, limitStr, offsetStr string) ([]models.Product, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	return s.Products.ListBySeller(ctx, principal.UserID, limit, offset)
}

// ListReviewQueue возвращает товары, ожидающие проверки документов.
func (s *ProductService) ListReviewQueue(ctx context.Context, principal models.Principal, limitStr, offsetStr string) ([]models.Product, error) {
	if principal.Role != models.RoleAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only admins can review products")
	}
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	return s.Products.ListByStatus(ctx, []string{string(models.PendingProduct)}, limit, offset)
}

// ApproveDocuments одобряет документы товара: PENDING -> DOC_APPROVED.
func (s *ProductService) ApproveDocuments(ctx context.Context, principal models.Principal, productID, remarks string) (*models.Product, error) {
	if principal.Role != models.RoleAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only admins can review documents")
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	product.ReviewRemarks = remarks
	if err := s.transition(ctx, product, models.DocApprovedProduct); err != nil {
		return nil, err
	}
	return product, nil
}

// RejectDocuments отклоняет документы товара: PENDING -> DOC_REJECTED.
func (s *ProductService) RejectDocuments(ctx context.Context, principal models.Principal, productID, reason string) (*models.Product, error) {
	if principal.Role != models.RoleAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only admins can review documents")
	}
	if reason == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "rejection reason is required")
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	product.RejectionReason = reason
	if err := s.transition(ctx, product, models.DocRejectedProduct); err != nil {
		return nil, err
	}
	return product, nil
}

// CreateOrReuseInspection открывает осмотр товара или возвращает уже
// открытый. Инспектору не нужно создавать осмотр заранее: первый же
// его вызов по товару со статусом DOC_APPROVED заводит запись и
// переводит товар в INSPECTION_PENDING.
func (s *ProductService) CreateOrReuseInspection(ctx context.Context, principal models.Principal, productID string) (*models.Inspection, error) {
	if principal.Role != models.RoleInspector {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only inspectors can open inspections")
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing, err := s.Inspections.GetOpenByProduct(ctx, productID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch inspection")
	}

	if product.Status != models.DocApprovedProduct {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "product is not awaiting inspection")
	}
	inspection, err := s.Inspections.Create(ctx, productID, principal.UserID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to create inspection")
	}
	if err := s.transition(ctx, product, models.InspectionPendingProduct); err != nil {
		return nil, err
	}
	return inspection, nil
}

// ApproveInspection завершает осмотр успешно: товар допускается к аукциону.
func (s *ProductService) ApproveInspection(ctx context.Context, principal models.Principal, inspectionID, remarks string) (*models.Inspection, error) {
	return s.decideInspection(ctx, principal, inspectionID, models.ApprovedInspection, remarks)
}

// RejectInspection завершает осмотр отказом: товар отклоняется.
func (s *ProductService) RejectInspection(ctx context.Context, principal models.Principal, inspectionID, reason string) (*models.Inspection, error) {
	if reason == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "rejection reason is required")
	}
	return s.decideInspection(ctx, principal, inspectionID, models.RejectedInspection, reason)
}

func (s *ProductService) decideInspection(ctx context.Context, principal models.Principal, inspectionID string, decision models.InspectionStatus, remarks string) (*models.Inspection, error) {
	if principal.Role != models.RoleInspector {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only inspectors can decide inspections")
	}

	inspection, err := s.Inspections.GetByID(ctx, inspectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "inspection not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch inspection")
	}
	if inspection.Status != models.OpenInspection {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "inspection is already decided")
	}

	product, err := s.GetProduct(ctx, inspection.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Status != models.InspectionPendingProduct {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "product is not under inspection")
	}

	next := models.ApprovedProduct
	if decision == models.RejectedInspection {
		next = models.RejectedProduct
		product.RejectionReason = remarks
	} else {
		product.ReviewRemarks = remarks
	}
	if err := s.transition(ctx, product, next); err != nil {
		return nil, err
	}

	decided, err := s.Inspections.UpdateStatus(ctx, inspectionID, decision, remarks)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update inspection")
	}
	return decided, nil
}

// transition переводит товар в новый статус с проверкой машины состояний
// и compare-and-swap по версии.
func (s *ProductService) transition(ctx context.Context, product *models.Product, next models.ProductStatus) error {
	if !containsProductStatus(allowedProductTransitions[product.Status], next) {
		return models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "invalid product status transition")
	}
	product.Status = next
	err := s.Products.Update(ctx, product)
	if errors.Is(err, repository.ErrVersionConflict) {
		return models.NewErrorResponse(http.StatusConflict, models.CodeStateConflict, "product was modified concurrently, re-fetch and retry")
	}
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update product")
	}
	s.emitStatusChanged(ctx, product)
	return nil
}

func (s *ProductService) emitStatusChanged(ctx context.Context, product *models.Product) {
	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.ProductStatusChanged,
		RecipientID: product.SellerID,
		Payload: map[string]any{
			"productId": product.ID,
			"title":     product.Title,
			"status":    product.Status,
		},
		OccurredAt: time.Now().UTC(),
	})
}

func containsProductStatus(statuses []models.ProductStatus, status models.ProductStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
