package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository"
	"github.com/senyabanana/auction-service/internal/utils"
)

// AuctionService реализует жизненный цикл аукциона: создание, запуск,
// завершение и отмену. Завершение и отмена идущего аукциона берут
// пер-аукционную блокировку, чтобы не пересекаться с обработкой ставок.
type AuctionService struct {
	Auctions repository.AuctionRepository
	Products repository.ProductRepository
	Bids     repository.BidRepository
	locks    *AuctionLocks
	emitter  notify.Emitter
	now      func() time.Time
}

// NewAuctionService создаёт новый экземпляр AuctionService.
func NewAuctionService(auctions repository.AuctionRepository, products repository.ProductRepository, bids repository.BidRepository, locks *AuctionLocks, emitter notify.Emitter) *AuctionService {
	return &AuctionService{
		Auctions: auctions,
		Products: products,
		Bids:     bids,
		locks:    locks,
		emitter:  emitter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create создаёт аукцион для допущенного товара и переводит товар
// в статус AUCTIONED.
func (s *AuctionService) Create(ctx context.Context, principal models.Principal, req models.AuctionCreateRequest) (*models.Auction, error) {
	if principal.Role != models.RoleSeller {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only sellers can create auctions")
	}

	product, err := s.Products.GetByID(ctx, req.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch product")
	}
	if product.SellerID != principal.UserID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "product belongs to another seller")
	}
	if product.Status != models.ApprovedProduct {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeNotApproved, "product has not passed inspection")
	}

	if err := s.validateWindow(req); err != nil {
		return nil, err
	}

	_, err = s.Auctions.GetActiveByProduct(ctx, req.ProductID)
	if err == nil {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeStateConflict, "product already has an active auction")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to check active auctions")
	}

	auction := &models.Auction{
		ID:           uuid.New().String(),
		ProductID:    product.ID,
		SellerID:     product.SellerID,
		StartPrice:   req.StartPrice,
		CurrentPrice: req.StartPrice,
		MinIncrement: req.MinIncrement,
		StartTime:    req.StartTime.UTC(),
		EndTime:      req.EndTime.UTC(),
		Status:       models.ScheduledAuction,
		Version:      1,
		CreatedAt:    s.now(),
	}
	if err := s.Auctions.Create(ctx, auction); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to create auction")
	}

	product.Status = models.AuctionedProduct
	if err := s.Products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, models.NewErrorResponse(http.StatusConflict, models.CodeStateConflict, "product was modified concurrently, re-fetch and retry")
		}
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update product")
	}

	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.AuctionScheduled,
		RecipientID: auction.SellerID,
		Payload: map[string]any{
			"auctionId": auction.ID,
			"productId": auction.ProductID,
			"startTime": auction.StartTime,
		},
		OccurredAt: s.now(),
	})
	return auction, nil
}

func (s *AuctionService) validateWindow(req models.AuctionCreateRequest) error {
	if req.StartPrice.LessThanOrEqual(decimalZero) || req.MinIncrement.LessThanOrEqual(decimalZero) {
		return models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "startPrice and minIncrement must be positive")
	}
	if !req.StartTime.After(s.now()) {
		return models.NewErrorResponse(http.StatusBadRequest, models.CodeInvalidWindow, "startTime must be in the future")
	}
	if !req.EndTime.After(req.StartTime) {
		return models.NewErrorResponse(http.StatusBadRequest, models.CodeInvalidWindow, "endTime must be after startTime")
	}
	return nil
}

// GetAuction возвращает аукцион по ID.
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	auction, err := s.Auctions.GetByID(ctx, auctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "auction not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	return auction, nil
}

// ListByStatus возвращает аукционы в заданном статусе.
func (s *AuctionService) ListByStatus(ctx context.Context, status models.AuctionStatus, limitStr, offsetStr string) ([]models.Auction, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	return s.Auctions.ListByStatus(ctx, status, limit, offset)
}

// ListWon возвращает аукционы, выигранные пользователем.
func (s *AuctionService) ListWon(ctx context.Context, principal models.Principal, limitStr, offsetStr string) ([]models.Auction, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	return s.Auctions.ListWonByUser(ctx, principal.UserID, limit, offset)
}

// Start переводит аукцион SCHEDULED -> LIVE, когда наступило время старта.
func (s *AuctionService) Start(ctx context.Context, principal models.Principal, auctionID string) (*models.Auction, error) {
	if principal.Role != models.RoleAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only admins can start auctions")
	}
	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != models.ScheduledAuction {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is not scheduled")
	}
	if s.now().Before(auction.StartTime) {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction start time has not come yet")
	}

	auction.Status = models.LiveAuction
	if err := s.updateAuction(ctx, auction); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.AuctionStarted,
		RecipientID: auction.SellerID,
		Payload:     map[string]any{"auctionId": auction.ID},
		OccurredAt:  s.now(),
	})
	return auction, nil
}

// End завершает идущий аукцион: ENDED при наличии ставок, иначе NO_BIDS.
// Выполняется под пер-аукционной блокировкой, чтобы ставка, уже
// попавшая в критическую секцию, доиграла до конца.
func (s *AuctionService) End(ctx context.Context, principal models.Principal, auctionID string) (*models.Auction, error) {
	if principal.Role != models.RoleAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only admins can end auctions")
	}

	release, err := s.locks.Acquire(auctionID, lockTimeout)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusServiceUnavailable, models.CodeBusy, "auction is busy, retry later")
	}
	defer release()

	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != models.LiveAuction {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is not live")
	}
	if s.now().Before(auction.EndTime) {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction end time has not come yet")
	}

	hasBids, err := s.Bids.HasBids(ctx, auctionID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to check auction bids")
	}

	if hasBids {
		auction.Status = models.EndedAuction
	} else {
		auction.Status = models.NoBidsAuction
	}
	if err := s.updateAuction(ctx, auction); err != nil {
		return nil, err
	}

	if !hasBids {
		// Лот без ставок возвращается в пул допущенных товаров.
		if err := s.releaseProduct(ctx, auction.ProductID); err != nil {
			return nil, err
		}
	}

	if hasBids && auction.LeadingBidderID != "" {
		s.emitter.Emit(ctx, notify.Event{
			Kind:        notify.AuctionWon,
			RecipientID: auction.LeadingBidderID,
			Payload: map[string]any{
				"auctionId":  auction.ID,
				"finalPrice": auction.CurrentPrice,
			},
			OccurredAt: s.now(),
		})
	}
	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.AuctionEnded,
		RecipientID: auction.SellerID,
		Payload: map[string]any{
			"auctionId":  auction.ID,
			"status":     auction.Status,
			"finalPrice": auction.CurrentPrice,
		},
		OccurredAt: s.now(),
	})
	return auction, nil
}

// Cancel отменяет аукцион до завершения. Доступно продавцу лота и администратору.
func (s *AuctionService) Cancel(ctx context.Context, principal models.Principal, auctionID string) (*models.Auction, error) {
	release, err := s.locks.Acquire(auctionID, lockTimeout)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusServiceUnavailable, models.CodeBusy, "auction is busy, retry later")
	}
	defer release()

	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if principal.Role != models.RoleAdmin && principal.UserID != auction.SellerID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only the seller or an admin can cancel the auction")
	}
	if auction.Status.IsTerminal() {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is already finished")
	}

	auction.Status = models.CancelledAuction
	if err := s.updateAuction(ctx, auction); err != nil {
		return nil, err
	}
	if err := s.releaseProduct(ctx, auction.ProductID); err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.AuctionCancelled,
		RecipientID: auction.SellerID,
		Payload:     map[string]any{"auctionId": auction.ID},
		OccurredAt:  s.now(),
	})
	return auction, nil
}

func (s *AuctionService) updateAuction(ctx context.Context, auction *models.Auction) error {
	err := s.Auctions.Update(ctx, auction)
	if errors.Is(err, repository.ErrVersionConflict) {
		return models.NewErrorResponse(http.StatusConflict, models.CodeStateConflict, "auction was modified concurrently, re-fetch and retry")
	}
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update auction")
	}
	return nil
}

// releaseProduct возвращает товар AUCTIONED -> APPROVED, когда аукцион
// не состоялся.
func (s *AuctionService) releaseProduct(ctx context.Context, productID string) error {
	product, err := s.Products.GetByID(ctx, productID)
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch product")
	}
	if product.Status != models.AuctionedProduct {
		return nil
	}
	product.Status = models.ApprovedProduct
	if err := s.Products.Update(ctx, product); err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to release product")
	}
	s.emitter.Emit(ctx, notify.Event{
		Kind:        notify.ProductStatusChanged,
		RecipientID: product.SellerID,
		Payload: map[string]any{
			"productId": product.ID,
			"title":     product.Title,
			"status":    product.Status,
		},
		OccurredAt: s.now(),
	})
	return nil
}
