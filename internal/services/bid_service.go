package services

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/senyabanana/auction-service/internal/cache"
	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository"
	"github.com/senyabanana/auction-service/internal/utils"
)

// lockTimeout ограничивает ожидание пер-аукционной блокировки.
const lockTimeout = 3 * time.Second

var decimalZero = decimal.Zero

// BidService реализует разрешение ставок: ручные ставки, прокси-ставки
// и автоторг между ними. Все мутации одного аукциона сериализуются
// через AuctionLocks; версии в базе страхуют от гонок между репликами.
type BidService struct {
	Auctions repository.AuctionRepository
	Bids     repository.BidRepository
	Proxies  repository.ProxyBidRepository
	locks    *AuctionLocks
	emitter  notify.Emitter
	prices   *cache.PriceCache
	logger   *log.Logger
	now      func() time.Time
}

// NewBidService создаёт новый экземпляр BidService.
// prices может быть nil: снапшоты цен тогда не публикуются.
func NewBidService(auctions repository.AuctionRepository, bids repository.BidRepository, proxies repository.ProxyBidRepository, locks *AuctionLocks, emitter notify.Emitter, prices *cache.PriceCache, logger *log.Logger) *BidService {
	return &BidService{
		Auctions: auctions,
		Bids:     bids,
		Proxies:  proxies,
		locks:    locks,
		emitter:  emitter,
		prices:   prices,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// bidOutcome - результат критической секции: что записано и какие
// события рассылать после освобождения замка.
type bidOutcome struct {
	bid     *models.Bid
	proxy   *models.ProxyBid
	auction *models.Auction
	changed bool
	events  []notify.Event
}

// SubmitBid принимает ручную ставку участника.
func (s *BidService) SubmitBid(ctx context.Context, principal models.Principal, auctionID string, req models.BidRequest, idempotencyKey string) (*models.Bid, error) {
	if principal.Role != models.RoleBidder {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only bidders can place bids")
	}

	release, err := s.locks.Acquire(auctionID, lockTimeout)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusServiceUnavailable, models.CodeBusy, "auction is busy, retry later")
	}
	outcome, err := s.resolveManual(ctx, principal, auctionID, req.BidAmount, idempotencyKey)
	release()
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, outcome)
	return outcome.bid, nil
}

// SubmitProxyBid регистрирует скрытый максимум участника и немедленно
// разыгрывает автоторг с текущим лидером.
func (s *BidService) SubmitProxyBid(ctx context.Context, principal models.Principal, auctionID string, req models.ProxyBidRequest) (*models.ProxyBid, error) {
	if principal.Role != models.RoleBidder {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "only bidders can place proxy bids")
	}

	release, err := s.locks.Acquire(auctionID, lockTimeout)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusServiceUnavailable, models.CodeBusy, "auction is busy, retry later")
	}
	outcome, err := s.resolveProxy(ctx, principal, auctionID, req.MaxAmount)
	release()
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, outcome)
	return outcome.proxy, nil
}

// resolveManual выполняется под замком аукциона.
func (s *BidService) resolveManual(ctx context.Context, principal models.Principal, auctionID string, amount decimal.Decimal, idempotencyKey string) (*bidOutcome, error) {
	auction, err := s.loadOpenAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.SellerID == principal.UserID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "sellers cannot bid on their own auctions")
	}

	if idempotencyKey != "" {
		existing, err := s.Bids.GetByIdempotencyKey(ctx, auctionID, idempotencyKey)
		if err == nil {
			return &bidOutcome{bid: existing, auction: auction}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to check idempotency key")
		}
	}

	if amount.LessThanOrEqual(decimalZero) {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "bidAmount must be positive")
	}

	if auction.LeadingBidderID == principal.UserID {
		proxy, err := s.Proxies.GetByAuctionAndBidder(ctx, auctionID, principal.UserID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch proxy bid")
		}
		if err == nil && proxy.Active {
			return nil, models.NewErrorResponse(http.StatusConflict, models.CodeSelfOutbid, "your proxy bid is already leading, raising it would outbid yourself")
		}
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeStateConflict, "you are already the highest bidder")
	}

	if auction.LeadingBidderID == "" {
		if amount.LessThan(auction.StartPrice) {
			return nil, models.NewErrorResponse(http.StatusConflict, models.CodeBidTooLow, "bid is below the start price")
		}
	} else if amount.LessThan(auction.CurrentPrice.Add(auction.MinIncrement)) {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeBidTooLow, "bid is below the current price plus the minimum increment")
	}

	outcome := &bidOutcome{auction: auction, changed: true}
	prevPrice := auction.CurrentPrice
	prevLeader := auction.LeadingBidderID

	manual, err := s.appendBid(ctx, auctionID, principal.UserID, amount, models.ManualBid, idempotencyKey)
	if err != nil {
		return nil, err
	}
	outcome.bid = manual
	auction.CurrentPrice = amount
	auction.LeadingBidderID = principal.UserID

	// Лучшая чужая прокси-ставка отвечает на ручную ставку сразу.
	defender, err := s.topCompetingProxy(ctx, auctionID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if defender != nil {
		if defender.MaxAmount.GreaterThanOrEqual(amount.Add(auction.MinIncrement)) {
			counter := decimal.Min(defender.MaxAmount, amount.Add(auction.MinIncrement))
			if _, err := s.appendBid(ctx, auctionID, defender.BidderID, counter, models.ProxyGeneratedBid, ""); err != nil {
				return nil, err
			}
			if err := s.Proxies.UpdateCurrentAmount(ctx, defender.ID, counter); err != nil {
				return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update proxy bid")
			}
			auction.CurrentPrice = counter
			auction.LeadingBidderID = defender.BidderID
			outcome.events = append(outcome.events, s.event(notify.Outbid, principal.UserID, auction))
		} else {
			// Максимум прокси не покрывает следующий шаг: она выбывает.
			if err := s.Proxies.Deactivate(ctx, defender.ID); err != nil {
				return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to deactivate proxy bid")
			}
			outcome.events = append(outcome.events, s.event(notify.ProxyExhausted, defender.BidderID, auction))
		}
	}

	// Прежний лидер узнаёт о перебитой ставке только если после розыгрыша
	// автоторга лидерство действительно ушло: отбившаяся прокси не получает
	// уведомление о ставке, которую сама же перекрыла.
	if prevLeader != "" && auction.LeadingBidderID != prevLeader {
		outcome.events = append(outcome.events, s.event(notify.Outbid, prevLeader, auction))
	}

	if err := s.commitAuction(ctx, auction, prevPrice); err != nil {
		return nil, err
	}
	return outcome, nil
}

// resolveProxy выполняется под замком аукциона.
func (s *BidService) resolveProxy(ctx context.Context, principal models.Principal, auctionID string, maxAmount decimal.Decimal) (*bidOutcome, error) {
	auction, err := s.loadOpenAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.SellerID == principal.UserID {
		return nil, models.NewErrorResponse(http.StatusForbidden, models.CodeForbidden, "sellers cannot bid on their own auctions")
	}
	if maxAmount.LessThanOrEqual(decimalZero) {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, "maxAmount must be positive")
	}

	// Лидер лишь двигает свой потолок, цена не меняется.
	if auction.LeadingBidderID == principal.UserID {
		if maxAmount.LessThanOrEqual(auction.CurrentPrice) {
			return nil, models.NewErrorResponse(http.StatusConflict, models.CodeProxyTooLow, "maximum must exceed the current price")
		}
		proxy := &models.ProxyBid{
			ID:            uuid.New().String(),
			AuctionID:     auctionID,
			BidderID:      principal.UserID,
			MaxAmount:     maxAmount,
			CurrentAmount: auction.CurrentPrice,
			Active:        true,
			CreatedAt:     s.now(),
		}
		if err := s.Proxies.Upsert(ctx, proxy); err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to save proxy bid")
		}
		return &bidOutcome{proxy: proxy, auction: auction}, nil
	}

	if auction.LeadingBidderID == "" {
		if maxAmount.LessThan(auction.StartPrice) {
			return nil, models.NewErrorResponse(http.StatusConflict, models.CodeProxyTooLow, "maximum is below the start price")
		}
	} else if maxAmount.LessThan(auction.CurrentPrice.Add(auction.MinIncrement)) {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeProxyTooLow, "maximum is below the current price plus the minimum increment")
	}

	incumbent, err := s.leadingProxy(ctx, auction)
	if err != nil {
		return nil, err
	}

	proxy := &models.ProxyBid{
		ID:            uuid.New().String(),
		AuctionID:     auctionID,
		BidderID:      principal.UserID,
		MaxAmount:     maxAmount,
		CurrentAmount: decimalZero,
		Active:        true,
		CreatedAt:     s.now(),
	}
	if err := s.Proxies.Upsert(ctx, proxy); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to save proxy bid")
	}

	outcome := &bidOutcome{proxy: proxy, auction: auction, changed: true}
	prevPrice := auction.CurrentPrice
	prevLeader := auction.LeadingBidderID

	switch {
	case incumbent == nil:
		// Лидера-прокси нет: новая прокси сразу перебивает текущую цену
		// минимальным шагом, не раскрывая максимум.
		price := decimal.Min(maxAmount, auction.CurrentPrice.Add(auction.MinIncrement))
		if err := s.advanceProxyLeader(ctx, outcome, proxy, price); err != nil {
			return nil, err
		}
		if prevLeader != "" {
			outcome.events = append(outcome.events, s.event(notify.Outbid, prevLeader, auction))
		}

	case maxAmount.GreaterThan(incumbent.MaxAmount):
		price := decimal.Min(maxAmount, incumbent.MaxAmount.Add(auction.MinIncrement))
		if err := s.advanceProxyLeader(ctx, outcome, proxy, price); err != nil {
			return nil, err
		}
		if err := s.Proxies.Deactivate(ctx, incumbent.ID); err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to deactivate proxy bid")
		}
		outcome.events = append(outcome.events,
			s.event(notify.Outbid, incumbent.BidderID, auction),
			s.event(notify.ProxyExhausted, incumbent.BidderID, auction))

	case maxAmount.Equal(incumbent.MaxAmount):
		// Равные максимумы: лидерство у более ранней прокси, цена не растёт.
		if proxy.CreatedAt.Before(incumbent.CreatedAt) {
			auction.LeadingBidderID = proxy.BidderID
			if err := s.Proxies.UpdateCurrentAmount(ctx, proxy.ID, auction.CurrentPrice); err != nil {
				return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update proxy bid")
			}
			proxy.CurrentAmount = auction.CurrentPrice
			if err := s.Proxies.Deactivate(ctx, incumbent.ID); err != nil {
				return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to deactivate proxy bid")
			}
			outcome.events = append(outcome.events,
				s.event(notify.Outbid, incumbent.BidderID, auction),
				s.event(notify.ProxyExhausted, incumbent.BidderID, auction))
		} else {
			proxy.Active = false
			if err := s.Proxies.Deactivate(ctx, proxy.ID); err != nil {
				return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to deactivate proxy bid")
			}
			outcome.events = append(outcome.events, s.event(notify.ProxyExhausted, proxy.BidderID, auction))
		}

	default:
		// Лидер защищается: шаг поверх проигравшего максимума,
		// но не выше собственного потолка.
		counter := decimal.Min(incumbent.MaxAmount, maxAmount.Add(auction.MinIncrement))
		if _, err := s.appendBid(ctx, auctionID, incumbent.BidderID, counter, models.ProxyGeneratedBid, ""); err != nil {
			return nil, err
		}
		if err := s.Proxies.UpdateCurrentAmount(ctx, incumbent.ID, counter); err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update proxy bid")
		}
		auction.CurrentPrice = counter
		proxy.Active = false
		if err := s.Proxies.Deactivate(ctx, proxy.ID); err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to deactivate proxy bid")
		}
		outcome.events = append(outcome.events, s.event(notify.ProxyExhausted, proxy.BidderID, auction))
	}

	if err := s.commitAuction(ctx, auction, prevPrice); err != nil {
		return nil, err
	}
	return outcome, nil
}

// advanceProxyLeader записывает сгенерированную ставку и ставит прокси в лидеры.
func (s *BidService) advanceProxyLeader(ctx context.Context, outcome *bidOutcome, proxy *models.ProxyBid, price decimal.Decimal) error {
	bid, err := s.appendBid(ctx, proxy.AuctionID, proxy.BidderID, price, models.ProxyGeneratedBid, "")
	if err != nil {
		return err
	}
	if err := s.Proxies.UpdateCurrentAmount(ctx, proxy.ID, price); err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update proxy bid")
	}
	proxy.CurrentAmount = price
	outcome.bid = bid
	outcome.auction.CurrentPrice = price
	outcome.auction.LeadingBidderID = proxy.BidderID
	return nil
}

// loadOpenAuction возвращает аукцион, открытый для ставок прямо сейчас.
// Проверка выполняется в момент обработки, а не постановки в очередь:
// ставка, дождавшаяся замка после закрытия окна, отклоняется.
func (s *BidService) loadOpenAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	auction, err := s.Auctions.GetByID(ctx, auctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "auction not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	if auction.Status != models.LiveAuction {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is not live")
	}
	now := s.now()
	if now.Before(auction.StartTime) || !now.Before(auction.EndTime) {
		return nil, models.NewErrorResponse(http.StatusConflict, models.CodeInvalidState, "auction is not open for bidding")
	}
	return auction, nil
}

// topCompetingProxy возвращает лучшую активную прокси-ставку, не
// принадлежащую bidderID.
func (s *BidService) topCompetingProxy(ctx context.Context, auctionID, bidderID string) (*models.ProxyBid, error) {
	proxies, err := s.Proxies.ListActiveByAuction(ctx, auctionID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch proxy bids")
	}
	for i := range proxies {
		if proxies[i].BidderID != bidderID {
			return &proxies[i], nil
		}
	}
	return nil, nil
}

// leadingProxy возвращает активную прокси-ставку текущего лидера, если
// лидерство держится на прокси.
func (s *BidService) leadingProxy(ctx context.Context, auction *models.Auction) (*models.ProxyBid, error) {
	if auction.LeadingBidderID == "" {
		return nil, nil
	}
	proxy, err := s.Proxies.GetByAuctionAndBidder(ctx, auction.ID, auction.LeadingBidderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch proxy bids")
	}
	if !proxy.Active {
		return nil, nil
	}
	return proxy, nil
}

func (s *BidService) appendBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal, bidType models.BidType, idempotencyKey string) (*models.Bid, error) {
	bid := &models.Bid{
		ID:             uuid.New().String(),
		AuctionID:      auctionID,
		BidderID:       bidderID,
		Amount:         amount,
		Type:           bidType,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      s.now(),
	}
	if err := s.Bids.Append(ctx, bid); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to record bid")
	}
	return bid, nil
}

// commitAuction проверяет монотонность цены и сохраняет аукцион по CAS.
func (s *BidService) commitAuction(ctx context.Context, auction *models.Auction, prevPrice decimal.Decimal) error {
	if auction.CurrentPrice.LessThan(prevPrice) {
		s.logger.Printf("ERROR: price regression on auction %s: %s -> %s", auction.ID, prevPrice, auction.CurrentPrice)
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "internal server error")
	}
	err := s.Auctions.Update(ctx, auction)
	if errors.Is(err, repository.ErrVersionConflict) {
		return models.NewErrorResponse(http.StatusConflict, models.CodeStateConflict, "auction was modified concurrently, retry")
	}
	if err != nil {
		return models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to update auction")
	}
	return nil
}

func (s *BidService) event(kind notify.EventKind, recipientID string, auction *models.Auction) notify.Event {
	return notify.Event{
		Kind:        kind,
		RecipientID: recipientID,
		Payload: map[string]any{
			"auctionId":       auction.ID,
			"currentPrice":    auction.CurrentPrice,
			"leadingBidderId": auction.LeadingBidderID,
		},
		OccurredAt: s.now(),
	}
}

// fanOut рассылает события и публикует снапшот цены после освобождения замка.
func (s *BidService) fanOut(ctx context.Context, outcome *bidOutcome) {
	for _, event := range outcome.events {
		s.emitter.Emit(ctx, event)
	}
	if s.prices != nil && outcome.changed {
		snapshot := cache.PriceSnapshot{
			AuctionID:       outcome.auction.ID,
			CurrentPrice:    outcome.auction.CurrentPrice,
			LeadingBidderID: outcome.auction.LeadingBidderID,
			UpdatedAt:       s.now(),
		}
		if err := s.prices.Publish(ctx, snapshot); err != nil {
			s.logger.Printf("failed to publish price snapshot for auction %s: %v", outcome.auction.ID, err)
		}
	}
}

// ListAuctionBids возвращает журнал ставок аукциона.
func (s *BidService) ListAuctionBids(ctx context.Context, auctionID, limitStr, offsetStr string) ([]models.Bid, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	if _, err := s.Auctions.GetByID(ctx, auctionID); errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "auction not found")
	} else if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	return s.Bids.ListByAuction(ctx, auctionID, limit, offset)
}

// ListMyBids возвращает ставки участника по всем аукционам.
func (s *BidService) ListMyBids(ctx context.Context, principal models.Principal, limitStr, offsetStr string) ([]models.Bid, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, models.CodeValidationError, err.Error())
	}
	return s.Bids.ListByBidder(ctx, principal.UserID, limit, offset)
}

// GetOwnProxy возвращает прокси-ставку участника по аукциону.
// Чужие максимумы скрыты, участник видит только свой.
func (s *BidService) GetOwnProxy(ctx context.Context, principal models.Principal, auctionID string) (*models.ProxyBid, error) {
	proxy, err := s.Proxies.GetByAuctionAndBidder(ctx, auctionID, principal.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "proxy bid not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch proxy bid")
	}
	return proxy, nil
}

// GetPrice возвращает текущую цену аукциона: сперва из снапшота в Redis,
// при промахе из базы.
func (s *BidService) GetPrice(ctx context.Context, auctionID string) (*cache.PriceSnapshot, error) {
	if s.prices != nil {
		snapshot, err := s.prices.Get(ctx, auctionID)
		if err != nil {
			s.logger.Printf("failed to read price snapshot for auction %s: %v", auctionID, err)
		}
		if snapshot != nil {
			return snapshot, nil
		}
	}

	auction, err := s.Auctions.GetByID(ctx, auctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.NewErrorResponse(http.StatusNotFound, models.CodeNotFound, "auction not found")
	}
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, models.CodeInternal, "failed to fetch auction")
	}
	snapshot := &cache.PriceSnapshot{
		AuctionID:       auction.ID,
		CurrentPrice:    auction.CurrentPrice,
		LeadingBidderID: auction.LeadingBidderID,
		UpdatedAt:       s.now(),
	}
	if s.prices != nil {
		if err := s.prices.Publish(ctx, *snapshot); err != nil {
			s.logger.Printf("failed to publish price snapshot for auction %s: %v", auctionID, err)
		}
	}
	return snapshot, nil
}
