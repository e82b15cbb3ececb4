package services

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/senyabanana/auction-service/internal/gateway"
	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository"
	"github.com/senyabanana/auction-service/internal/utils"
)

// commissionPercentage - комиссия площадки с финальной цены.
var commissionPercentage = decimal.NewFromInt(5)

const (
	gatewayRetries    = 3
	gatewayRetryDelay = 200 * time.Millisecond
)

// SettlementService реализует расчёт по завершённому аукциону:
// оплата через внешний шлюз, комиссия площадки, доставка лота и
// финальный перевод товара в SOLD. Каждый шаг идемпотентен, повторный
// вызов доводит расчёт до конца, не дублируя побочные эффекты.
type SettlementService struct {
	Payments   repository.PaymentRepository
	Deliveries repository.DeliveryRepository
	Auctions   repository.AuctionRepository
	Products   repository.ProductRepository
	gateway    gateway.PaymentGateway
	emitter    notify.Emitter
	logger     *log.Logger
	now        func() time.Time
}

// NewSettlementService создаёт новый экземпляр SettlementService.
func NewSettlementService(payments repository.PaymentRepository, deliveries repository.DeliveryRepository, auctions repository.AuctionRepository, products repository.ProductRepository, gw gateway.PaymentGateway, emitter notify.Emitter, logger *log.Logger) *SettlementService {
	return &SettlementService{
		Payments:   payments,
		Deliveries: deliveries,
		Auctions:   auctions,
		Products:   products,
		gateway:    gw,
		emitter:    emitter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// InitiateCheckout открывает оплату выигранного аукциона для победителя.
// Повторный вызов возвращает существующий платёж: успешный как есть,
// незавершённый или отклонённый - с новым платёжным намерением.
func (s *SettlementService) InitiateCheckout(ctx context.Context, principal models.Principal, auctionID string) (*models.CheckoutResponse, error) {
	auction, err := s.Auctions.GetByID(ctx, auctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "auction not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	if auction.Status != models.EndedAuction {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is not awaiting settlement")
	}
	if auction.LeadingBidderID != principal.UserID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only the auction winner can check out")
	}

	payment, err := s.Payments.GetByAuction(ctx, auctionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch payment")
	}

	if payment != nil && payment.Status == models.SuccessPayment {
		return &models.CheckoutResponse{PaymentID: payment.ID, Status: payment.Status}, nil
	}

	intent, err := s.openIntent(ctx, auction, payment)
	if err != nil {
		return nil, err
	}

	if payment == nil {
		payment = &models.Payment{
			ID:                uuid.New().String(),
			AuctionID:         auction.ID,
			BidderID:          auction.LeadingBidderID,
			Amount:            auction.CurrentPrice,
			ExternalPaymentID: intent.ID,
			Status:            models.PendingPayment,
			CreatedAt:         s.now(),
		}
		if err := s.Payments.Create(ctx, payment); err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to create payment")
		}
	} else {
		payment.ExternalPaymentID = intent.ID
		payment.Status = models.PendingPayment
		if err := s.Payments.Update(ctx, payment); err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update payment")
		}
	}

	if err := s.recordCommission(ctx, auction); err != nil {
		return nil, err
	}

	return &models.CheckoutResponse{
		PaymentID:    payment.ID,
		ClientSecret: intent.ClientSecret,
		Status:       payment.Status,
	}, nil
}

// openIntent возвращает платёжное намерение для платежа: живое
// переиспользуется, отклонённое или отсутствующее заменяется новым.
// Шлюз ненадёжен, вызовы повторяются с паузой.
func (s *SettlementService) openIntent(ctx context.Context, auction *models.Auction, payment *models.Payment) (*gateway.Intent, error) {
	if payment != nil && payment.Status == models.PendingPayment && payment.ExternalPaymentID != "" {
		intent, err := s.withRetry(func() (*gateway.Intent, error) {
			return s.gateway.GetIntent(ctx, payment.ExternalPaymentID)
		})
		if err == nil {
			return intent, nil
		}
		s.logger.Printf("failed to fetch payment intent %s, opening a new one: %v", payment.ExternalPaymentID, err)
	}

	intent, err := s.withRetry(func() (*gateway.Intent, error) {
		return s.gateway.CreateIntent(ctx, auction.ID, auction.LeadingBidderID, auction.CurrentPrice)
	})
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadGateway, models.CodeExternalFailure, "payment gateway is unavailable, retry later")
	}
	return intent, nil
}

func (s *SettlementService) withRetry(call func() (*gateway.Intent, error)) (*gateway.Intent, error) {
	var intent *gateway.Intent
	var err error
	for attempt := 0; attempt < gatewayRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(gatewayRetryDelay * time.Duration(attempt))
		}
		intent, err = call()
		if err == nil {
			return intent, nil
		}
	}
	return nil, err
}

// recordCommission записывает комиссию площадки ровно один раз на аукцион.
func (s *SettlementService) recordCommission(ctx context.Context, auction *models.Auction) error {
	exists, err := s.Payments.CommissionExists(ctx, auction.ID)
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to check commission")
	}
	if exists {
		return nil
	}
	amount := auction.CurrentPrice.Mul(commissionPercentage).Div(decimal.NewFromInt(100))
	commission := &models.Commission{
		ID:         uuid.New().String(),
		AuctionID:  auction.ID,
		Percentage: commissionPercentage,
		Amount:     amount,
		CreatedAt:  s.now(),
	}
	if err := s.Payments.CreateCommission(ctx, commission); err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to record commission")
	}
	return nil
}

// HandleGatewayEvent обрабатывает подтверждение платёжного шлюза.
// Шлюз доставляет события как минимум один раз, обработка идемпотентна.
func (s *SettlementService) HandleGatewayEvent(ctx context.Context, event models.GatewayEvent) error {
	if event.PaymentIntentID == "" {
		return models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "paymentIntentId is required")
	}

	payment, err := s.Payments.GetByExternalID(ctx, event.PaymentIntentID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "payment not found")
	}
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch payment")
	}

	switch event.EventType {
	case "payment_intent.succeeded":
		return s.completePayment(ctx, payment)
	case "payment_intent.payment_failed":
		if payment.Status != models.PendingPayment {
			return nil
		}
		payment.Status = models.FailedPayment
		if err := s.Payments.Update(ctx, payment); err != nil {
			return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update payment")
		}
		s.emitter.Emit(ctx, notify.Event{
			Kind:        notify.PaymentFailed,
			RecipientID: payment.BidderID,
			Payload:     map[string]any{"auctionId": payment.AuctionID, "paymentId": payment.ID},
			OccurredAt:  s.now(),
		})
		return nil
	default:
		// Незнакомые события шлюза игнорируются.
		return nil
	}
}

// completePayment доводит сагу до конца: платёж SUCCESS, доставка
// заведена, товар SOLD. Каждый шаг сходится при повторной доставке события.
func (s *SettlementService) completePayment(ctx context.Context, payment *models.Payment) error {
	if payment.Status != models.SuccessPayment {
		paidAt := s.now()
		payment.Status = models.SuccessPayment
		payment.PaidAt = &paidAt
		if err := s.Payments.Update(ctx, payment); err != nil {
			return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update payment")
		}
	}

	delivery := &models.Delivery{
		ID:        uuid.New().String(),
		AuctionID: payment.AuctionID,
		Type:      models.PickupDelivery,
		Fee:       decimalZero,
		Status:    models.PendingDelivery,
		CreatedAt: s.now(),
	}
	if _, err := s.Deliveries.CreateIfAbsent(ctx, delivery); err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to create delivery")
	}

	auction, err := s.Auctions.GetByID(ctx, payment.AuctionID)
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	if err := s.markProductSold(ctx, auction.ProductID); err != nil {
		return err
	}

	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.PaymentSucceeded,
		RecipientID: payment.BidderID,
		Payload:     map[string]any{"auctionId": payment.AuctionID, "paymentId": payment.ID},
		OccurredAt:  s.now(),
	})
	return nil
}

func (s *SettlementService) markProductSold(ctx context.Context, productID string) error {
	product, err := s.Products.GetByID(ctx, productID)
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch product")
	}
	if product.Status == models.SoldProduct {
		return nil
	}
	product.Status = models.SoldProduct
	if err := s.Products.Update(ctx, product); err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update product")
	}
	return nil
}

// GetPayment возвращает платёж по аукциону для победителя или администратора.
func (s *SettlementService) GetPayment(ctx context.Context, principal models.Principal, auctionID string) (*models.Payment, error) {
	payment, err := s.Payments.GetByAuction(ctx, auctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch payment")
	}
	if principal.Role != models.RoleAdmin && principal.UserID != payment.BidderID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

// ListMyPayments возвращает платежи участника.
func (s *SettlementService) ListMyPayments(ctx context.Context, principal models.Principal, limitStr, offsetStr string) ([]models.Payment, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	return s.Payments.ListByBidder(ctx, principal.UserID, limit, offset)
}

// ChooseDelivery фиксирует способ получения лота, выбранный победителем.
// Выбор доступен сразу после завершения аукциона, не дожидаясь оплаты:
// с доставкой, заведённой webhook-ом, запись сходится через CreateIfAbsent.
func (s *SettlementService) ChooseDelivery(ctx context.Context, principal models.Principal, req models.DeliveryRequest) (*models.Delivery, error) {
	if err := validateDeliveryChoice(req.Type, req.Address); err != nil {
		return nil, err
	}

	auction, err := s.Auctions.GetByID(ctx, req.AuctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "auction not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	if auction.Status != models.EndedAuction {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is not awaiting settlement")
	}
	if auction.LeadingBidderID != principal.UserID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only the auction winner can choose delivery")
	}

	delivery := &models.Delivery{
		ID:        uuid.New().String(),
		AuctionID: req.AuctionID,
		Type:      req.Type,
		Address:   req.Address,
		Fee:       req.Fee,
		Status:    models.PendingDelivery,
		CreatedAt: s.now(),
	}
	created, err := s.Deliveries.CreateIfAbsent(ctx, delivery)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to create delivery")
	}
	return created, nil
}

func validateDeliveryChoice(deliveryType models.DeliveryType, address string) error {
	if deliveryType != models.PickupDelivery && deliveryType != models.CourierDelivery {
		return models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "unknown delivery type")
	}
	if deliveryType == models.CourierDelivery && address == "" {
		return models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "address is required for courier delivery")
	}
	return nil
}

// UpdateDelivery меняет способ получения лота до завершения доставки.
// Самовывоз, заведённый webhook-ом по умолчанию, меняется здесь на курьера.
func (s *SettlementService) UpdateDelivery(ctx context.Context, principal models.Principal, deliveryID string, req models.DeliveryUpdateRequest) (*models.Delivery, error) {
	if err := validateDeliveryChoice(req.Type, req.Address); err != nil {
		return nil, err
	}

	delivery, err := s.Deliveries.GetByID(ctx, deliveryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "delivery not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch delivery")
	}

	auction, err := s.Auctions.GetByID(ctx, delivery.AuctionID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	if auction.LeadingBidderID != principal.UserID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only the auction winner can change delivery")
	}
	if delivery.Status == models.CompletedDelivery {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "delivery is already completed")
	}

	delivery.Type = req.Type
	delivery.Address = req.Address
	delivery.Fee = req.Fee
	if err := s.Deliveries.Update(ctx, delivery); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update delivery")
	}
	return delivery, nil
}

// GetDelivery возвращает доставку по аукциону.
func (s *SettlementService) GetDelivery(ctx context.Context, auctionID string) (*models.Delivery, error) {
	delivery, err := s.Deliveries.GetByAuction(ctx, auctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "delivery not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch delivery")
	}
	return delivery, nil
}

// CompleteDelivery отмечает доставку завершённой. Доступно администратору.
func (s *SettlementService) CompleteDelivery(ctx context.Context, principal models.Principal, deliveryID string) (*models.Delivery, error) {
	if principal.Role != models.RoleAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only admins can complete deliveries")
	}
	delivery, err := s.Deliveries.GetByID(ctx, deliveryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "delivery not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch delivery")
	}
	if delivery.Status == models.CompletedDelivery {
		return delivery, nil
	}
	updated, err := s.Deliveries.UpdateStatus(ctx, deliveryID, models.CompletedDelivery)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update delivery")
	}
	return updated, nil
}
